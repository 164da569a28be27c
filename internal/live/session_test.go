package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/rbright/viva/internal/credential"
)

type fakeConn struct {
	mu       sync.Mutex
	realtime []genai.LiveRealtimeInput
	content  []genai.LiveClientContentInput
	sendErr  error
	closes   int

	incoming chan *genai.LiveServerMessage
	recvErr  chan error
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan *genai.LiveServerMessage, 16),
		recvErr:  make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (f *fakeConn) SendClientContent(in genai.LiveClientContentInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.content = append(f.content, in)
	return nil
}

func (f *fakeConn) SendRealtimeInput(in genai.LiveRealtimeInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.realtime = append(f.realtime, in)
	return nil
}

func (f *fakeConn) Receive() (*genai.LiveServerMessage, error) {
	select {
	case msg := <-f.incoming:
		return msg, nil
	case err := <-f.recvErr:
		return nil, err
	case <-f.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func dialerWith(fake *fakeConn, cfg Config) *Dialer {
	if cfg.Model == "" {
		cfg.Model = "gemini-live-test"
	}
	d := NewDialer(cfg)
	d.connect = func(context.Context, credential.Token, string, *genai.LiveConnectConfig) (conn, error) {
		return fake, nil
	}
	return d
}

func setupComplete() *genai.LiveServerMessage {
	return &genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestOpenWaitsForSetupAndStreamsEventsInOrder(t *testing.T) {
	fake := newFakeConn()
	fake.incoming <- setupComplete()

	session, err := dialerWith(fake, Config{}).Open(context.Background(), credential.Token{Value: "tok"}, "be an interviewer")
	require.NoError(t, err)
	defer session.Close()

	chunk := &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 2}}
	fake.incoming <- &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
		ModelTurn:           &genai.Content{Parts: []*genai.Part{{Text: "Tell me about "}, {InlineData: chunk}}},
		OutputTranscription: &genai.Transcription{Text: "Tell me about "},
	}}
	fake.incoming <- &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
		OutputTranscription: &genai.Transcription{Text: "yourself."},
		TurnComplete:        true,
	}}

	require.Equal(t, Event{Kind: EventModelTurn, Parts: []Part{{Audio: []byte{1, 2}, MIMEType: "audio/pcm;rate=24000"}}}, nextEvent(t, session))
	require.Equal(t, Event{Kind: EventModelTurn, Parts: []Part{{Text: "Tell me about "}}}, nextEvent(t, session))
	require.Equal(t, Event{Kind: EventModelTurn, Parts: []Part{{Text: "yourself."}}}, nextEvent(t, session))
	require.Equal(t, Event{Kind: EventTurnComplete}, nextEvent(t, session))
}

func TestOpenRejectsMissingInputs(t *testing.T) {
	fake := newFakeConn()
	_, err := dialerWith(fake, Config{}).Open(context.Background(), credential.Token{}, "x")
	require.ErrorContains(t, err, "empty credential")

	d := NewDialer(Config{})
	_, err = d.Open(context.Background(), credential.Token{Value: "tok"}, "x")
	require.ErrorContains(t, err, "model is not configured")
}

func TestOpenTimesOutWithoutSetupAndClosesConn(t *testing.T) {
	fake := newFakeConn()
	_, err := dialerWith(fake, Config{OpenTimeout: 30 * time.Millisecond}).Open(context.Background(), credential.Token{Value: "tok"}, "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.GreaterOrEqual(t, fake.closes, 1)
}

func TestOpenPropagatesDialError(t *testing.T) {
	d := NewDialer(Config{Model: "m"})
	d.connect = func(context.Context, credential.Token, string, *genai.LiveConnectConfig) (conn, error) {
		return nil, errors.New("handshake refused")
	}
	_, err := d.Open(context.Background(), credential.Token{Value: "tok"}, "x")
	require.ErrorContains(t, err, "handshake refused")
}

func TestSendAudioAndText(t *testing.T) {
	fake := newFakeConn()
	fake.incoming <- setupComplete()
	session, err := dialerWith(fake, Config{}).Open(context.Background(), credential.Token{Value: "tok"}, "x")
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.SendText("Hello", true))
	require.NoError(t, session.SendAudio([]byte{1, 0, 2, 0}))
	require.NoError(t, session.SendAudio(nil))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.content, 1)
	require.True(t, *fake.content[0].TurnComplete)
	require.Equal(t, "Hello", fake.content[0].Turns[0].Parts[0].Text)
	require.Len(t, fake.realtime, 1)
	require.Equal(t, "audio/pcm;rate=16000", fake.realtime[0].Audio.MIMEType)
	require.Equal(t, []byte{1, 0, 2, 0}, fake.realtime[0].Audio.Data)
}

func TestSendFailureIsWrappedWhileOpenAndSwallowedWhileClosing(t *testing.T) {
	fake := newFakeConn()
	fake.incoming <- setupComplete()
	session, err := dialerWith(fake, Config{}).Open(context.Background(), credential.Token{Value: "tok"}, "x")
	require.NoError(t, err)

	fake.setSendErr(errors.New("broken pipe"))
	err = session.SendAudio([]byte{1, 2})
	require.ErrorIs(t, err, ErrSendFailed)
	require.False(t, IsFatal(err))

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	require.NoError(t, session.SendAudio([]byte{1, 2}))
	require.NoError(t, session.SendText("late", true))
}

func TestCloseEndsEventStreamWithoutClosedEvent(t *testing.T) {
	fake := newFakeConn()
	fake.incoming <- setupComplete()
	session, err := dialerWith(fake, Config{}).Open(context.Background(), credential.Token{Value: "tok"}, "x")
	require.NoError(t, err)

	require.NoError(t, session.Close())
	select {
	case ev, ok := <-session.Events():
		require.False(t, ok, "unexpected event %v", ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestRemoteCloseClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantFatal bool
		reason    string
	}{
		{name: "normal closure", err: &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "done"}, reason: "1000 done"},
		{name: "going away", err: &websocket.CloseError{Code: websocket.CloseGoingAway}, wantFatal: true, reason: "1001"},
		{name: "abnormal", err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "eof"}, wantFatal: true, reason: "1006 eof"},
		{name: "read error", err: errors.New("connection reset"), wantFatal: true, reason: "connection reset"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := newFakeConn()
			fake.incoming <- setupComplete()
			session, err := dialerWith(fake, Config{}).Open(context.Background(), credential.Token{Value: "tok"}, "x")
			require.NoError(t, err)
			defer session.Close()

			fake.recvErr <- tc.err
			ev := nextEvent(t, session)
			require.Equal(t, EventClosed, ev.Kind)
			require.Equal(t, tc.reason, ev.Reason)
			if tc.wantFatal {
				require.ErrorIs(t, ev.Err, ErrTransportFatal)
			} else {
				require.NoError(t, ev.Err)
			}

			_, ok := <-session.Events()
			require.False(t, ok)
		})
	}
}

func TestConnectConfigRequestsAudioAndTranscripts(t *testing.T) {
	cfg := ConnectConfig("rules")
	require.Equal(t, []genai.Modality{genai.ModalityAudio}, cfg.ResponseModalities)
	require.Equal(t, "rules", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.InputAudioTranscription)
	require.NotNil(t, cfg.OutputAudioTranscription)
}
