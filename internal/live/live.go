// Package live owns the duplex realtime session with the streaming model endpoint.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/credential"
)

const (
	defaultOpenTimeout = 10 * time.Second
	eventBuffer        = 64
)

var (
	// ErrSendFailed wraps a non-fatal outbound failure on an open session.
	ErrSendFailed = errors.New("live send failed")
	// ErrTransportFatal reports a receive failure or abnormal close that ends the session.
	ErrTransportFatal = errors.New("live transport failed")
)

// Config describes the streaming endpoint.
type Config struct {
	Model       string
	APIVersion  string
	BaseURL     string
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

// conn is the subset of *genai.Session the session loop drives.
type conn interface {
	SendClientContent(genai.LiveClientContentInput) error
	SendRealtimeInput(genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type connectFunc func(ctx context.Context, token credential.Token, model string, cfg *genai.LiveConnectConfig) (conn, error)

// Dialer opens sessions against one endpoint configuration.
type Dialer struct {
	cfg     Config
	connect connectFunc
}

// NewDialer applies defaults to cfg.
func NewDialer(cfg Config) *Dialer {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	d := &Dialer{cfg: cfg}
	d.connect = d.genaiConnect
	return d
}

func (d *Dialer) genaiConnect(ctx context.Context, token credential.Token, model string, cfg *genai.LiveConnectConfig) (conn, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  token.Value,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    d.cfg.BaseURL,
			APIVersion: d.cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	session, err := client.Live.Connect(ctx, model, cfg)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ConnectConfig builds the session setup: audio responses, the instruction, and both transcriptions.
func ConnectConfig(instruction string) *genai.LiveConnectConfig {
	return &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		SystemInstruction:        genai.NewContentFromText(instruction, genai.RoleUser),
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
}

// Open dials the endpoint and waits for setup to complete.
// The returned session is live; events start flowing immediately.
func (d *Dialer) Open(ctx context.Context, token credential.Token, instruction string) (*Session, error) {
	if strings.TrimSpace(token.Value) == "" {
		return nil, errors.New("open live session: empty credential")
	}
	if strings.TrimSpace(d.cfg.Model) == "" {
		return nil, errors.New("open live session: model is not configured")
	}

	openCtx, cancel := context.WithTimeout(ctx, d.cfg.OpenTimeout)
	defer cancel()

	type dialResult struct {
		conn conn
		err  error
	}
	dialed := make(chan dialResult, 1)
	setup := ConnectConfig(instruction)
	go func() {
		c, err := d.connect(openCtx, token, d.cfg.Model, setup)
		dialed <- dialResult{conn: c, err: err}
	}()

	var c conn
	select {
	case <-openCtx.Done():
		// The dial ignores ctx; reap a late connection.
		go func() {
			if res := <-dialed; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("open live session: %w", openCtx.Err())
	case res := <-dialed:
		if res.err != nil {
			return nil, fmt.Errorf("open live session: %w", res.err)
		}
		c = res.conn
	}

	if err := awaitSetup(openCtx, c); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("open live session: %w", err)
	}

	s := newSession(c, d.cfg.Logger)
	s.transcribed = setup.OutputAudioTranscription != nil
	go s.recvLoop()
	return s, nil
}

func awaitSetup(ctx context.Context, c conn) error {
	type recvResult struct {
		msg *genai.LiveServerMessage
		err error
	}
	received := make(chan recvResult, 1)
	go func() {
		for {
			msg, err := c.Receive()
			if err != nil || msg == nil || msg.SetupComplete != nil {
				received <- recvResult{msg: msg, err: err}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		// Closing the conn unblocks the pending Receive.
		_ = c.Close()
		return fmt.Errorf("await setup: %w", ctx.Err())
	case res := <-received:
		if res.err != nil {
			return fmt.Errorf("await setup: %w", res.err)
		}
		if res.msg == nil {
			return errors.New("await setup: connection returned no message")
		}
		return nil
	}
}

// Session is one open duplex session. Sends are safe for concurrent use.
type Session struct {
	conn   conn
	logger *slog.Logger
	events chan Event
	done   chan struct{}

	// transcribed routes model text through the output transcription only.
	transcribed bool

	sendMu sync.Mutex

	mu      sync.Mutex
	closing bool
}

func newSession(c conn, logger *slog.Logger) *Session {
	return &Session{
		conn:   c,
		logger: logger,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Events returns inbound events in receive order. The channel closes when the session ends.
func (s *Session) Events() <-chan Event {
	return s.events
}

// SendAudio forwards one captured PCM frame.
func (s *Session) SendAudio(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	return s.send("audio", func() error {
		return s.conn.SendRealtimeInput(genai.LiveRealtimeInput{
			Audio: &genai.Blob{MIMEType: audio.CaptureMIMEType(), Data: frame},
		})
	})
}

// SendText sends one user text turn; final marks the turn complete.
func (s *Session) SendText(text string, final bool) error {
	return s.send("text", func() error {
		return s.conn.SendClientContent(genai.LiveClientContentInput{
			Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
			TurnComplete: genai.Ptr(final),
		})
	})
}

func (s *Session) send(kind string, write func() error) error {
	if s.isClosing() {
		s.logger.Debug("live send skipped; session closing", "kind", kind)
		return nil
	}

	s.sendMu.Lock()
	err := write()
	s.sendMu.Unlock()
	if err == nil {
		return nil
	}

	if s.isClosing() {
		s.logger.Debug("live send failed during close", "kind", kind, "error", err.Error())
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrSendFailed, kind, err)
}

// Close ends the session. Later calls are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	close(s.done)
	s.mu.Unlock()

	return s.conn.Close()
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Session) recvLoop() {
	defer close(s.events)

	for {
		msg, err := s.conn.Receive()
		if err != nil {
			if s.isClosing() {
				return
			}
			s.emit(closedEvent(err))
			_ = s.conn.Close()
			return
		}
		for _, event := range translate(msg, s.transcribed) {
			if !s.emit(event) {
				return
			}
		}
	}
}

func (s *Session) emit(event Event) bool {
	select {
	case <-s.done:
		return false
	case s.events <- event:
		return true
	}
}

// closedEvent classifies a receive error. Only a normal closure is a clean end.
func closedEvent(err error) Event {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseNormalClosure {
			return Event{Kind: EventClosed, Reason: closeReason(closeErr)}
		}
		return Event{
			Kind:   EventClosed,
			Reason: closeReason(closeErr),
			Err:    fmt.Errorf("%w: %w", ErrTransportFatal, err),
		}
	}
	return Event{Kind: EventClosed, Reason: err.Error(), Err: fmt.Errorf("%w: %w", ErrTransportFatal, err)}
}

func closeReason(closeErr *websocket.CloseError) string {
	if text := strings.TrimSpace(closeErr.Text); text != "" {
		return fmt.Sprintf("%d %s", closeErr.Code, text)
	}
	return fmt.Sprintf("%d", closeErr.Code)
}

// IsFatal reports whether err ended the transport.
func IsFatal(err error) bool {
	return errors.Is(err, ErrTransportFatal)
}
