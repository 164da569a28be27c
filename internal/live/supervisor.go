package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrReconnectExhausted reports that the reconnect budget is spent.
var ErrReconnectExhausted = errors.New("live reconnect budget exhausted")

// SupervisorConfig bounds reconnect attempts for one interview.
type SupervisorConfig struct {
	// MaxReconnects is the total dial budget; 0 disables reconnects.
	MaxReconnects int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Logger        *slog.Logger
}

// Supervisor re-dials after a fatal transport failure with capped exponential backoff.
type Supervisor struct {
	cfg SupervisorConfig

	mu   sync.Mutex
	used int
}

// NewSupervisor applies backoff defaults.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 8 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{cfg: cfg}
}

// Enabled reports whether any reconnect is permitted.
func (s *Supervisor) Enabled() bool {
	return s != nil && s.cfg.MaxReconnects > 0
}

// Remaining returns the unused dial budget.
func (s *Supervisor) Remaining() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(s.cfg.MaxReconnects-s.used, 0)
}

// Reconnect calls dial until it succeeds or the budget runs out. Each dial
// consumes one unit of budget, shared across the whole interview.
func Reconnect[T any](ctx context.Context, s *Supervisor, dial func(context.Context) (T, error)) (T, error) {
	var zero T
	remaining := s.Remaining()
	if remaining == 0 {
		return zero, ErrReconnectExhausted
	}

	backoff := retry.NewExponential(s.cfg.BaseDelay)
	backoff = retry.WithCappedDuration(s.cfg.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(remaining-1), backoff)

	attempt := 0
	result, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (T, error) {
		if !s.take() {
			return zero, ErrReconnectExhausted
		}
		attempt++
		v, err := dial(ctx)
		if err != nil {
			s.cfg.Logger.Warn("live reconnect attempt failed", "attempt", attempt, "error", err.Error())
			return zero, retry.RetryableError(err)
		}
		s.cfg.Logger.Info("live reconnected", "attempt", attempt)
		return v, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempt, err)
	}
	return result, nil
}

func (s *Supervisor) take() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used >= s.cfg.MaxReconnects {
		return false
	}
	s.used++
	return true
}
