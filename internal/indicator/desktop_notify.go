package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIcon  = "audio-headset"
	urgencyHigh = 2
)

// note is one freedesktop notification request.
type note struct {
	AppName   string
	ReplaceID uint32
	Summary   string
	Body      string
	TimeoutMS int
	Critical  bool
}

// args renders the Notify call signature and arguments in busctl's textual form.
func (nt note) args() []string {
	args := []string{
		"Notify", "susssasa{sv}i",
		nt.AppName,
		strconv.FormatUint(uint64(nt.ReplaceID), 10),
		notifyIcon,
		nt.Summary,
		nt.Body,
		"0",
	}
	if nt.Critical {
		args = append(args, "1", "urgency", "y", strconv.Itoa(urgencyHigh))
	} else {
		args = append(args, "0")
	}
	return append(args, strconv.Itoa(nt.TimeoutMS))
}

// desktopNotify posts nt and returns the ID the notification server assigned.
func desktopNotify(ctx context.Context, nt note) (uint32, error) {
	out, err := busctl(ctx, nt.args()...)
	if err != nil {
		return 0, fmt.Errorf("desktop notify: %w", err)
	}

	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify: invalid response %q", out)
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify: parse id %q: %w", fields[1], err)
	}
	return uint32(id), nil
}

// desktopDismiss closes a notification by ID.
func desktopDismiss(ctx context.Context, id uint32) error {
	if _, err := busctl(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10)); err != nil {
		return fmt.Errorf("desktop dismiss: %w", err)
	}
	return nil
}

// busctl invokes a method on the session notification service and returns trimmed output.
func busctl(ctx context.Context, method ...string) (string, error) {
	args := append([]string{"--user", "call", notifyDest, notifyPath, notifyDest}, method...)
	raw, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	out := strings.TrimSpace(string(raw))
	if err != nil {
		if out == "" {
			return "", err
		}
		return "", fmt.Errorf("%w (%s)", err, out)
	}
	return out, nil
}
