// Package session coordinates interview lifecycle state, live events, and teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/fsm"
	"github.com/rbright/viva/internal/interview"
	"github.com/rbright/viva/internal/ipc"
	"github.com/rbright/viva/internal/live"
	"github.com/rbright/viva/internal/playback"
	"github.com/rbright/viva/internal/report"
	"github.com/rbright/viva/internal/transcript"
	"github.com/rbright/viva/internal/turn"
)

type action int

const (
	actionStop action = iota + 1
)

// Stop reasons recorded on results and reports.
const (
	ReasonRequested       = "requested"
	ReasonCancelled       = "cancelled"
	ReasonDurationElapsed = "duration_elapsed"
	ReasonRemoteClosed    = "remote_closed"
	ReasonTransportFailed = "transport_failed"
)

const (
	defaultResumePrompt = "The connection was interrupted. Continue the interview from where we left off with the next question."
	reportTimeout       = 15 * time.Second
)

// Options wires the controller's collaborators.
type Options struct {
	Logger      *slog.Logger
	Credentials CredentialSource
	Audio       AudioSystem
	Transport   Transport
	Reports     ReportSink
	Indicator   Indicator
	// Supervisor enables reconnects after fatal transport failures; nil disables them.
	Supervisor *live.Supervisor
	// Kickoff is the synthetic first turn that makes the interviewer speak first.
	Kickoff      string
	ResumePrompt string

	Now   func() time.Time
	NewID func() string
}

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	SessionID    string
	State        fsm.State
	StopReason   string
	Err          error
	Report       *report.Report
	AudioDevice  string
	FramesSent   int64
	SendFailures int64
	Reconnects   int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Controller orchestrates one interview at a time.
type Controller struct {
	logger       *slog.Logger
	credentials  CredentialSource
	audio        AudioSystem
	transport    Transport
	reports      ReportSink
	indicator    Indicator
	supervisor   *live.Supervisor
	kickoff      string
	resumePrompt string
	now          func() time.Time
	newID        func() string
	after        func(time.Duration) <-chan time.Time

	tracker *turn.Tracker

	mu        sync.RWMutex
	state     fsm.State
	sessionID string
	interrupt context.CancelFunc

	actions chan action
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Reports == nil {
		opts.Reports = ReportFunc(func(context.Context, report.Report) error { return nil })
	}
	if opts.Indicator == nil {
		opts.Indicator = noopIndicator{}
	}
	if opts.Kickoff == "" {
		opts.Kickoff = interview.DefaultKickoff
	}
	if opts.ResumePrompt == "" {
		opts.ResumePrompt = defaultResumePrompt
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	c := &Controller{
		logger:       opts.Logger,
		credentials:  opts.Credentials,
		audio:        opts.Audio,
		transport:    opts.Transport,
		reports:      opts.Reports,
		indicator:    opts.Indicator,
		supervisor:   opts.Supervisor,
		kickoff:      opts.Kickoff,
		resumePrompt: opts.ResumePrompt,
		now:          opts.Now,
		newID:        opts.NewID,
		after:        time.After,
		tracker:      turn.NewTracker(),
		state:        fsm.StateIdle,
		actions:      make(chan action, 1),
	}
	indicator := opts.Indicator
	c.tracker.Subscribe(func(s turn.Snapshot) {
		indicator.ShowTurn(context.Background(), s)
	})
	return c
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns the current turn flags.
func (c *Controller) Snapshot() turn.Snapshot {
	return c.tracker.Snapshot()
}

// Subscribe registers fn for turn flag changes.
func (c *Controller) Subscribe(fn func(turn.Snapshot)) func() {
	return c.tracker.Subscribe(fn)
}

// SessionID returns the id of the running interview, if any.
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Stop requests teardown. It is safe from any state and repeated calls are no-ops.
func (c *Controller) Stop() {
	_ = c.requestStop("stop")
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// begin claims the controller for one interview.
func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != fsm.StateIdle {
		return fmt.Errorf("%w: state %s", ErrAlreadyActive, c.state)
	}
	next, err := fsm.Transition(c.state, fsm.EventStart)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

func (c *Controller) setInterrupt(cancel context.CancelFunc) {
	c.mu.Lock()
	c.interrupt = cancel
	c.mu.Unlock()
}

func (c *Controller) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// Run executes one interview from startup to teardown.
func (c *Controller) Run(ctx context.Context, cfg interview.Config) Result {
	result := Result{StartedAt: c.now()}

	if err := c.begin(); err != nil {
		result.State = c.State()
		result.Err = err
		result.FinishedAt = c.now()
		return result
	}
	defer c.drainActions()

	if c.credentials == nil || c.audio == nil || c.transport == nil {
		c.toErrorAndReset()
		result.State = c.State()
		result.Err = ErrNotWired
		result.FinishedAt = c.now()
		return result
	}

	sessionID := c.newID()
	c.setSessionID(sessionID)
	defer c.setSessionID("")
	result.SessionID = sessionID
	logger := c.logger.With("session_id", sessionID)

	c.indicator.ShowConnecting(ctx)

	startCtx, cancelStart := context.WithCancel(ctx)
	c.setInterrupt(cancelStart)
	rt, err := c.start(startCtx, ctx, cfg, logger)
	c.setInterrupt(nil)
	stopRequested := startCtx.Err() != nil && ctx.Err() == nil
	cancelStart()

	if err != nil {
		if stopRequested {
			logger.Info("interview start aborted by stop request")
			_ = c.transition(fsm.EventStop)
			_ = c.transition(fsm.EventStopped)
			result.StopReason = ReasonRequested
		} else {
			logger.Error("interview start failed", "error", err.Error())
			c.indicator.ShowError(context.Background(), "Unable to start interview")
			c.toErrorAndReset()
			result.Err = err
		}
		result.State = c.State()
		result.FinishedAt = c.now()
		return result
	}

	if err := c.transition(fsm.EventOpened); err != nil {
		c.release(rt)
		c.toErrorAndReset()
		result.State = c.State()
		result.Err = err
		result.FinishedAt = c.now()
		return result
	}

	rt.startedAt = c.now()
	result.AudioDevice = rt.mic.Device()
	logger.Info("interview active", "audio_device", result.AudioDevice, "technology", cfg.Technology)
	c.indicator.CueStart(ctx)

	go c.sendLoop(rt, logger)

	if err := rt.currentConn().SendText(c.kickoff, true); err != nil {
		logger.Warn("send kickoff failed", "error", err.Error())
	}

	reason, runErr := c.loop(ctx, rt, cfg, logger)
	return c.finish(rt, cfg, logger, result, reason, runErr)
}

// start acquires credential, input context, output context, microphone, then transport.
// Any failure releases everything acquired so far. ctx bounds only the start itself;
// the microphone runs under a context derived from sessionCtx that release cancels.
func (c *Controller) start(ctx, sessionCtx context.Context, cfg interview.Config, logger *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{
		instruction: interview.Instruction(cfg),
		acc:         transcript.NewAccumulator(),
		drained:     make(chan struct{}, 1),
		sendDone:    make(chan struct{}),
	}
	defer func() {
		if err != nil {
			c.release(rt)
		}
	}()

	token, err := c.credentials.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire credential: %w", err)
	}
	if token.Static {
		logger.Warn("using static credential fallback")
	}

	rt.input, err = c.audio.OpenInput(ctx, audio.CaptureSampleRate)
	if err != nil {
		return nil, fmt.Errorf("open input context: %w", err)
	}
	rt.output, err = c.audio.OpenOutput(ctx, audio.PlaybackSampleRate)
	if err != nil {
		return nil, fmt.Errorf("open output context: %w", err)
	}

	drained := rt.drained
	rt.queue = playback.NewQueue(rt.output, playback.Options{
		Logger:     logger,
		SampleRate: audio.PlaybackSampleRate,
		OnDrained: func() {
			select {
			case drained <- struct{}{}:
			default:
			}
		},
	})

	micCtx, stopMic := context.WithCancel(sessionCtx)
	rt.stopMic = stopMic
	rt.mic, err = rt.input.StartMicrophone(micCtx)
	if err != nil {
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	c.tracker.SetMicrophoneLive(true)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := c.transport.Open(ctx, token, rt.instruction)
	if err != nil {
		return nil, fmt.Errorf("open live session: %w", err)
	}
	rt.setConn(conn)
	c.tracker.SetConnected(true)

	return rt, nil
}

// loop serializes live events, playback completions, control requests, and the duration timer.
func (c *Controller) loop(ctx context.Context, rt *runtime, cfg interview.Config, logger *slog.Logger) (string, error) {
	var deadline <-chan time.Time
	if d := cfg.Duration(); d > 0 {
		deadline = c.after(d)
	}

	events := rt.currentConn().Events()
	for {
		select {
		case <-ctx.Done():
			return ReasonCancelled, nil
		case <-c.actions:
			return ReasonRequested, nil
		case <-deadline:
			logger.Info("interview duration elapsed", "duration_minutes", cfg.DurationMinutes)
			return ReasonDurationElapsed, nil
		case <-rt.drained:
			if !rt.queue.Busy() {
				c.tracker.QueueDrained()
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Kind != live.EventClosed {
				c.handleEvent(ctx, rt, ev, logger)
				continue
			}

			if ev.Err == nil {
				logger.Info("live session closed by remote", "reason", ev.Reason)
				return ReasonRemoteClosed, nil
			}
			logger.Error("live transport failed", "reason", ev.Reason, "error", ev.Err.Error())
			if !c.supervisor.Enabled() {
				return ReasonTransportFailed, ev.Err
			}
			if err := c.reconnect(ctx, rt, logger); err != nil {
				if errors.Is(err, context.Canceled) {
					if ctx.Err() != nil {
						return ReasonCancelled, nil
					}
					return ReasonRequested, nil
				}
				return ReasonTransportFailed, fmt.Errorf("%w; %w", ev.Err, err)
			}
			events = rt.currentConn().Events()
		}
	}
}

func (c *Controller) handleEvent(ctx context.Context, rt *runtime, ev live.Event, logger *slog.Logger) {
	switch ev.Kind {
	case live.EventUserTranscript:
		if display := rt.acc.OnUserText(ev.Text); display != "" {
			c.indicator.ShowCaption(ctx, display)
		}
	case live.EventInterrupted:
		dropped := rt.queue.Flush()
		c.tracker.Interrupted()
		rt.acc.OnTurnBoundary()
		logger.Debug("interviewer interrupted", "dropped_buffers", dropped)
	case live.EventModelTurn:
		for _, part := range ev.Parts {
			if !part.IsAudio() {
				rt.acc.OnModelText(part.Text)
				continue
			}
			if err := rt.queue.Enqueue(part.MIMEType, part.Audio); err != nil {
				switch {
				case errors.Is(err, playback.ErrDeviceClosed):
					logger.Debug("playback closed; dropping audio chunk")
				case errors.Is(err, playback.ErrEmptyChunk):
					logger.Debug("ignoring empty audio chunk", "bytes", len(part.Audio))
				default:
					logger.Warn("dropping inbound audio chunk", "mime_type", part.MIMEType, "error", err.Error())
				}
				continue
			}
			c.tracker.ChunkEnqueued()
		}
	case live.EventTurnComplete:
		c.tracker.TurnComplete()
		rt.acc.OnTurnBoundary()
	case live.EventGoAway:
		logger.Warn("live session going away", "time_left_ms", ev.TimeLeft.Milliseconds())
	}
}

// reconnect replaces a failed transport while keeping audio and transcript state.
func (c *Controller) reconnect(ctx context.Context, rt *runtime, logger *slog.Logger) error {
	if old := rt.setConn(nil); old != nil {
		_ = old.Close()
	}
	c.tracker.SetConnected(false)
	rt.queue.Flush()
	c.tracker.Interrupted()
	rt.acc.OnTurnBoundary()

	reconnectCtx, cancel := context.WithCancel(ctx)
	c.setInterrupt(cancel)
	defer func() {
		c.setInterrupt(nil)
		cancel()
	}()

	conn, err := live.Reconnect(reconnectCtx, c.supervisor, func(ctx context.Context) (Conn, error) {
		token, err := c.credentials.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return c.transport.Open(ctx, token, rt.instruction)
	})
	if err != nil {
		return err
	}

	rt.setConn(conn)
	rt.reconnects++
	c.tracker.SetConnected(true)
	logger.Info("live session restored", "reconnects", rt.reconnects)

	if err := conn.SendText(c.resumePrompt, true); err != nil {
		logger.Warn("send resume prompt failed", "error", err.Error())
	}
	return nil
}

// sendLoop forwards capture frames to the current transport until the microphone stops.
func (c *Controller) sendLoop(rt *runtime, logger *slog.Logger) {
	defer close(rt.sendDone)

	for frame := range rt.mic.Frames() {
		conn := rt.currentConn()
		if conn == nil {
			continue
		}
		if err := conn.SendAudio(frame); err != nil {
			if rt.sendFailures.Add(1) == 1 {
				logger.Warn("send audio failed", "error", err.Error())
			} else {
				logger.Debug("send audio failed", "error", err.Error())
			}
			continue
		}
		rt.framesSent.Add(1)
	}
}

// finish tears down every resource, finalizes the transcript, and delivers the report.
func (c *Controller) finish(rt *runtime, cfg interview.Config, logger *slog.Logger, result Result, reason string, runErr error) Result {
	_ = c.transition(fsm.EventStop)
	c.indicator.CueStop(context.Background())

	c.release(rt)
	<-rt.sendDone

	rep := report.New(result.SessionID, cfg, rt.acc.Finalize())
	rep.StartedAt = rt.startedAt
	rep.FinishedAt = c.now()
	rep.StopReason = reason
	rep.Reconnects = rt.reconnects
	rep.Captions = rt.acc.Captions()

	result.Report = &rep
	result.StopReason = reason
	result.Err = runErr
	result.FramesSent = rt.framesSent.Load()
	result.SendFailures = rt.sendFailures.Load()
	result.Reconnects = rt.reconnects

	deliverCtx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	if err := c.reports.Deliver(deliverCtx, rep); err != nil {
		logger.Error("report delivery failed", "error", err.Error())
		if result.Err == nil {
			result.Err = fmt.Errorf("deliver report: %w", err)
		}
	}

	if runErr != nil {
		c.indicator.ShowError(context.Background(), "Interview connection lost")
	}

	hideCtx, hideCancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	c.indicator.Hide(hideCtx)
	hideCancel()

	if err := c.transition(fsm.EventStopped); err != nil {
		c.toErrorAndReset()
	}
	result.State = c.State()
	result.FinishedAt = c.now()
	return result
}

// release closes the transport, stops the microphone, drops playback, and closes both contexts.
// It tolerates partially acquired runtimes and repeated calls.
func (c *Controller) release(rt *runtime) {
	if rt == nil {
		return
	}
	if conn := rt.setConn(nil); conn != nil {
		_ = conn.Close()
	}
	if rt.mic != nil {
		_ = rt.mic.Stop()
	}
	if rt.stopMic != nil {
		rt.stopMic()
	}
	if rt.queue != nil {
		rt.queue.Close()
	}
	if rt.input != nil {
		_ = rt.input.Close()
	}
	if rt.output != nil {
		_ = rt.output.Close()
	}
	c.tracker.Reset()
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return c.status()
	case "stop":
		return c.requestStop("stop")
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) status() ipc.Response {
	snap := c.tracker.Snapshot()
	return ipc.Response{
		OK:             true,
		State:          string(c.State()),
		Message:        "status",
		SessionID:      c.SessionID(),
		Connected:      snap.Connected,
		MicrophoneLive: snap.MicrophoneLive,
		AISpeaking:     snap.AISpeaking,
	}
}

// requestStop enqueues a stop action and aborts a pending start or reconnect.
func (c *Controller) requestStop(source string) ipc.Response {
	c.mu.RLock()
	state := c.state
	interrupt := c.interrupt
	c.mu.RUnlock()

	switch state {
	case fsm.StateStopping:
		return ipc.Response{OK: true, State: string(state), Message: "already stopping"}
	case fsm.StateStarting, fsm.StateActive:
	default:
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot %s from state %s", source, state)}
	}

	if interrupt != nil {
		interrupt()
	}

	select {
	case c.actions <- actionStop:
		return ipc.Response{OK: true, State: string(state), Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	}
}

func (c *Controller) drainActions() {
	for {
		select {
		case <-c.actions:
		default:
			return
		}
	}
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (c *Controller) toErrorAndReset() {
	_ = c.transition(fsm.EventFail)
	_ = c.transition(fsm.EventReset)
}

// runtime holds everything one interview acquired.
type runtime struct {
	instruction string
	startedAt   time.Time

	input   InputContext
	output  OutputContext
	mic     Microphone
	stopMic context.CancelFunc
	queue   *playback.Queue
	acc     *transcript.Accumulator

	connMu sync.Mutex
	conn   Conn

	drained  chan struct{}
	sendDone chan struct{}

	framesSent   atomic.Int64
	sendFailures atomic.Int64
	reconnects   int
}

func (rt *runtime) currentConn() Conn {
	rt.connMu.Lock()
	defer rt.connMu.Unlock()
	return rt.conn
}

// setConn swaps the transport and returns the previous one.
func (rt *runtime) setConn(conn Conn) Conn {
	rt.connMu.Lock()
	defer rt.connMu.Unlock()
	prev := rt.conn
	rt.conn = conn
	return prev
}
