package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrAlreadyRunning reports a live owner already holding the interview socket.
var ErrAlreadyRunning = errors.New("viva interview already running")

// SocketEnv overrides the runtime socket location.
const SocketEnv = "VIVA_SOCKET"

// RuntimeSocketPath resolves the owner socket, preferring $VIVA_SOCKET over $XDG_RUNTIME_DIR/viva.sock.
func RuntimeSocketPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(SocketEnv)); override != "" {
		return override, nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "viva.sock"), nil
}

// Acquire binds the owner socket, recovering a stale socket file left by a crashed owner.
// Stale recovery is retried up to retries times with a linear backoff.
func Acquire(
	ctx context.Context,
	path string,
	probeTimeout time.Duration,
	retries int,
	rescue func(context.Context) error,
) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	backoff := retry.WithMaxRetries(uint64(max(retries, 0)), linearBackoff(25*time.Millisecond))
	listener, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (net.Listener, error) {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !isAddrInUse(err) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}
		if err := reclaimStale(ctx, path, probeTimeout); err != nil {
			return nil, err
		}
		if rescue != nil {
			_ = rescue(ctx)
		}
		return nil, retry.RetryableError(errStaleSocket)
	})
	if errors.Is(err, errStaleSocket) {
		return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, retries)
	}
	return listener, err
}

var errStaleSocket = errors.New("stale socket reclaimed")

// linearBackoff waits step, 2*step, 3*step, ... between attempts.
func linearBackoff(step time.Duration) retry.Backoff {
	var attempt int64
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * step, false
	})
}

// reclaimStale removes path unless a live owner still answers on it.
func reclaimStale(ctx context.Context, path string, probeTimeout time.Duration) error {
	alive, err := Probe(ctx, path, probeTimeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}
