package pipeline

import (
	"context"

	"github.com/rbright/viva/internal/credential"
	"github.com/rbright/viva/internal/live"
	"github.com/rbright/viva/internal/session"
)

var _ session.Conn = (*live.Session)(nil)

type liveOpener interface {
	Open(ctx context.Context, token credential.Token, instruction string) (*live.Session, error)
}

// LiveTransport opens Gemini Live sessions for the controller.
type LiveTransport struct {
	dialer liveOpener
}

// NewLiveTransport wraps a live dialer.
func NewLiveTransport(dialer *live.Dialer) *LiveTransport {
	return &LiveTransport{dialer: dialer}
}

// Open dials one live session.
func (t *LiveTransport) Open(ctx context.Context, token credential.Token, instruction string) (session.Conn, error) {
	s, err := t.dialer.Open(ctx, token, instruction)
	if err != nil {
		return nil, err
	}
	return s, nil
}
