//go:build portaudio

// Package portaudio is the PortAudio device backend, built with -tags portaudio.
package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rbright/viva/internal/audio"
)

const framesPerBuffer = 512

// Context is one initialized PortAudio host clocked at a fixed rate.
type Context struct {
	rate int

	mu     sync.Mutex
	closed bool
}

// OpenContext initializes PortAudio for default-device streams at rate.
func OpenContext(rate int) (*Context, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialize portaudio: %w", audio.ErrDeviceUnavailable, err)
	}
	return &Context{rate: rate}, nil
}

// Rate returns the context sample rate.
func (c *Context) Rate() int {
	return c.rate
}

// Close terminates the PortAudio host once.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return portaudio.Terminate()
}

func (c *Context) ensureOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return audio.ErrContextClosed
	}
	return nil
}

// Play writes mono samples to the default output device and returns when done or ctx ends.
func (c *Context) Play(ctx context.Context, samples []float32) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(c.rate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("%w: open output stream: %w", audio.ErrDeviceUnavailable, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for cursor := 0; cursor < len(samples); cursor += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, samples[cursor:])
		clear(buf[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}

// StartCapture reads the default input device and emits fixed-size PCM16 frames.
func (c *Context) StartCapture(ctx context.Context, frameSamples int) (*Capture, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}

	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.rate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("%w: open input stream: %w", audio.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: start input stream: %w", audio.ErrDeviceUnavailable, err)
	}

	capture := &Capture{
		stream: stream,
		buf:    buf,
		framer: audio.NewFramer(frameSamples),
		frames: make(chan []byte, 32),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go capture.readLoop(ctx)
	return capture, nil
}

// Capture streams fixed-size PCM16 frames from the default input device.
type Capture struct {
	stream *portaudio.Stream
	buf    []float32
	framer *audio.Framer

	frames chan []byte
	stopCh chan struct{}
	done   chan struct{}

	once sync.Once
}

// Frames returns the outbound frame stream; it closes after Stop.
func (c *Capture) Frames() <-chan []byte {
	return c.frames
}

// Stop halts reading and releases the input stream. Later calls are no-ops.
func (c *Capture) Stop() error {
	c.once.Do(func() {
		close(c.stopCh)
		<-c.done
		_ = c.stream.Stop()
		_ = c.stream.Close()
	})
	return nil
}

func (c *Capture) readLoop(ctx context.Context) {
	defer close(c.done)
	defer close(c.frames)

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			return
		}
		for _, frame := range c.framer.Push(c.buf) {
			select {
			case c.frames <- frame:
			case <-c.stopCh:
				return
			}
		}
	}
}
