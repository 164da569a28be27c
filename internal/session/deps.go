package session

import (
	"context"
	"errors"

	"github.com/rbright/viva/internal/credential"
	"github.com/rbright/viva/internal/live"
	"github.com/rbright/viva/internal/report"
	"github.com/rbright/viva/internal/turn"
)

var (
	// ErrAlreadyActive reports Start while an interview is not idle.
	ErrAlreadyActive = errors.New("interview already active")
	// ErrNotWired reports a controller built without a required collaborator.
	ErrNotWired = errors.New("interview runtime not wired")
)

// CredentialSource yields one credential per session start.
type CredentialSource interface {
	Acquire(context.Context) (credential.Token, error)
}

// AudioSystem opens the two fixed-rate audio contexts.
type AudioSystem interface {
	OpenInput(ctx context.Context, rate int) (InputContext, error)
	OpenOutput(ctx context.Context, rate int) (OutputContext, error)
}

// InputContext owns the capture clock and hands out the microphone.
type InputContext interface {
	StartMicrophone(context.Context) (Microphone, error)
	Close() error
}

// OutputContext renders one buffer at a time.
type OutputContext interface {
	Play(ctx context.Context, samples []float32) error
	Close() error
}

// Microphone emits fixed-size PCM16 frames until Stop.
type Microphone interface {
	Frames() <-chan []byte
	Stop() error
	Device() string
}

// Transport opens live sessions.
type Transport interface {
	Open(ctx context.Context, token credential.Token, instruction string) (Conn, error)
}

// Conn is one open live session.
type Conn interface {
	SendAudio([]byte) error
	SendText(text string, final bool) error
	Events() <-chan live.Event
	Close() error
}

// ReportSink receives the finished interview.
type ReportSink interface {
	Deliver(context.Context, report.Report) error
}

// ReportFunc adapts a function to ReportSink.
type ReportFunc func(context.Context, report.Report) error

func (f ReportFunc) Deliver(ctx context.Context, r report.Report) error {
	return f(ctx, r)
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowConnecting(context.Context)
	ShowTurn(context.Context, turn.Snapshot)
	ShowCaption(context.Context, string)
	ShowError(context.Context, string)
	CueStart(context.Context)
	CueStop(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowConnecting(context.Context)          {}
func (noopIndicator) ShowTurn(context.Context, turn.Snapshot) {}
func (noopIndicator) ShowCaption(context.Context, string)     {}
func (noopIndicator) ShowError(context.Context, string)       {}
func (noopIndicator) CueStart(context.Context)                {}
func (noopIndicator) CueStop(context.Context)                 {}
func (noopIndicator) Hide(context.Context)                    {}
