// Package indicator renders interview status (turns, captions, errors) and plays audio cues.
package indicator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/turn"
)

// Notifier is the concrete indicator used by interview sessions.
// It writes status lines to a terminal or routes them to desktop notifications.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	out      io.Writer

	notify  func(ctx context.Context, nt note) (uint32, error)
	dismiss func(ctx context.Context, id uint32) error
	cue     func(ctx context.Context, kind cueKind) error

	mu                    sync.Mutex
	lastStatus            string
	desktopNotificationID uint32
	soundMu               sync.Mutex
}

// New creates a notifier from config. Terminal output goes to out.
func New(cfg config.IndicatorConfig, out io.Writer, logger *slog.Logger) *Notifier {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		out:      out,
		notify:   desktopNotify,
		dismiss:  desktopDismiss,
		cue:      emitCue,
	}
}

// ShowConnecting signals that the session is acquiring a credential and opening audio.
func (n *Notifier) ShowConnecting(ctx context.Context) {
	n.status(ctx, n.messages.connecting, 0, false)
}

// ShowTurn renders the flag snapshot as a single status. Repeated statuses are suppressed.
func (n *Notifier) ShowTurn(ctx context.Context, snap turn.Snapshot) {
	text := n.messages.forSnapshot(snap)
	if text == "" {
		return
	}
	n.status(ctx, text, 0, false)
}

// ShowCaption prints what the candidate just said when captions are enabled.
func (n *Notifier) ShowCaption(_ context.Context, text string) {
	if !n.cfg.Enable || !n.cfg.Captions {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	// captions stay in the terminal; desktop popups would flicker per fragment
	n.write(n.messages.captionPrefix + text)
}

// ShowError displays an error-state message and emits the error cue.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	n.playCue(ctx, cueError)
	if text == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.status(ctx, text, timeout, true)
}

// CueStart emits the interview-start cue.
func (n *Notifier) CueStart(ctx context.Context) {
	n.playCue(ctx, cueStart)
}

// CueStop emits the interview-stop cue.
func (n *Notifier) CueStop(ctx context.Context) {
	n.playCue(ctx, cueStop)
}

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	n.mu.Lock()
	n.lastStatus = ""
	n.mu.Unlock()
	if !n.cfg.Enable {
		return
	}
	if n.desktop() {
		n.run(ctx, n.dismissDesktop)
		return
	}
	n.write(n.messages.ended)
}

func (n *Notifier) status(ctx context.Context, text string, timeoutMS int, critical bool) {
	if !n.cfg.Enable {
		return
	}

	n.mu.Lock()
	if n.lastStatus == text {
		n.mu.Unlock()
		return
	}
	n.lastStatus = text
	n.mu.Unlock()

	if !n.desktop() {
		n.write(text)
		return
	}
	if timeoutMS <= 0 {
		timeoutMS = 300000
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notifyDesktop(ctx, note{Summary: text, TimeoutMS: timeoutMS, Critical: critical})
	})
}

func (n *Notifier) desktop() bool {
	return strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop")
}

func (n *Notifier) write(line string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := fmt.Fprintf(n.out, "[viva] %s\n", line); err != nil {
		n.log("indicator write failed", err)
	}
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, nt note) error {
	n.mu.Lock()
	nt.ReplaceID = n.desktopNotificationID
	n.mu.Unlock()

	nt.AppName = strings.TrimSpace(n.cfg.DesktopAppName)
	if nt.AppName == "" {
		nt.AppName = "viva"
	}

	id, err := n.notify(ctx, nt)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return n.dismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(ctx context.Context, kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := n.cue(ctx, kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
