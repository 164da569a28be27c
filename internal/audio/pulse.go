package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
)

const (
	captureFragmentBytes = 640 // 20ms @ 16kHz mono s16
	playbackLatency      = 0.05
)

// ErrContextClosed reports use of an audio context after Close.
var ErrContextClosed = errors.New("audio context closed")

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("viva"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect pulse server: %w", ErrDeviceUnavailable, err)
	}
	return client, nil
}

// Context is one Pulse connection clocked at a fixed sample rate.
// Capture and playback streams opened on it share its lifetime.
type Context struct {
	name   string
	rate   int
	client *pulse.Client

	mu     sync.Mutex
	closed bool
}

// OpenContext connects to the Pulse server for streams at rate.
func OpenContext(name string, rate int) (*Context, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", rate)
	}
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	return &Context{name: name, rate: rate, client: client}, nil
}

// Rate returns the context sample rate.
func (c *Context) Rate() int {
	return c.rate
}

// Closed reports whether Close has run.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close releases the Pulse connection. Later calls are no-ops.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

func (c *Context) pulseClient() (*pulse.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.client == nil {
		return nil, ErrContextClosed
	}
	return c.client, nil
}

// Play renders mono float samples at the context rate and blocks until they drain.
// Cancelling ctx ends the stream at the next buffer request.
func (c *Context) Play(ctx context.Context, samples []float32) error {
	client, err := c.pulseClient()
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	cursor := 0
	reader := pulse.Float32Reader(func(buf []float32) (int, error) {
		if ctx.Err() != nil || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(c.rate),
		pulse.PlaybackLatency(playbackLatency),
		pulse.PlaybackMediaName(c.name),
	)
	if err != nil {
		return fmt.Errorf("%w: create pulse playback stream: %w", ErrDeviceUnavailable, err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play stream: %w", err)
	}
	return nil
}

// StartCapture opens a mono record stream on selected and emits fixed-size PCM16 frames.
// A failure leaves nothing acquired.
func (c *Context) StartCapture(ctx context.Context, selected Device, frameSamples int) (*Capture, error) {
	client, err := c.pulseClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve source %q: %w", ErrDeviceUnavailable, selected.ID, err)
	}

	capture := newCapture(selected, frameSamples)
	stream, err := client.NewRecord(
		pulse.Float32Writer(capture.onSamples),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(c.rate),
		pulse.RecordBufferFragmentSize(captureFragmentBytes),
		pulse.RecordMediaName(c.name),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("%w: create pulse record stream: %w", ErrDeviceUnavailable, err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = capture.Stop()
		case <-capture.stopCh:
		}
	}()

	return capture, nil
}

// Capture streams fixed-size PCM16 frames from one Pulse source in capture order.
type Capture struct {
	device Device
	stream *pulse.RecordStream

	frames chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	framer  *Framer
	stopped bool

	inflight        sync.WaitGroup
	samples         atomic.Int64
	residualDropped atomic.Bool
}

func newCapture(device Device, frameSamples int) *Capture {
	return &Capture{
		device: device,
		framer: NewFramer(frameSamples),
		frames: make(chan []byte, 32),
		stopCh: make(chan struct{}),
	}
}

// Device returns capture metadata for logging.
func (c *Capture) Device() Device {
	return c.device
}

// Frames returns the outbound frame stream; it closes after Stop.
func (c *Capture) Frames() <-chan []byte {
	return c.frames
}

// SamplesCaptured reports total samples accepted from Pulse.
func (c *Capture) SamplesCaptured() int64 {
	return c.samples.Load()
}

// residualSendTimeout bounds how long Stop waits for a consumer to take the final padded frame.
const residualSendTimeout = 250 * time.Millisecond

// ResidualDropped reports whether Stop gave up on the final frame because nobody was reading.
func (c *Capture) ResidualDropped() bool {
	return c.residualDropped.Load()
}

// Stop halts the record stream, emits the padded residual frame, and closes Frames once.
// It waits up to residualSendTimeout for a reader to take the residual.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	residual := c.framer.Flush()
	c.mu.Unlock()

	if residual != nil {
		timer := time.NewTimer(residualSendTimeout)
		select {
		case c.frames <- residual:
		case <-timer.C:
			c.residualDropped.Store(true)
		}
		timer.Stop()
	}

	close(c.frames)
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onSamples receives float samples from Pulse and forwards completed frames.
// It blocks while the consumer is behind so no frame is dropped.
func (c *Capture) onSamples(buf []float32) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped so Stop never races Wait.
	c.inflight.Add(1)
	frames := c.framer.Push(buf)
	c.mu.Unlock()
	defer c.inflight.Done()

	c.samples.Add(int64(len(buf)))

	for _, frame := range frames {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.frames <- frame:
		}
	}
	return len(buf), nil
}
