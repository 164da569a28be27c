// Package playback sequences decoded interviewer audio through one serial player.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rbright/viva/internal/audio"
)

var (
	// ErrDeviceClosed reports Enqueue after the output device was closed.
	ErrDeviceClosed = errors.New("playback device closed")
	// ErrEmptyChunk reports a chunk that decoded to no samples; nothing was queued.
	ErrEmptyChunk = errors.New("empty audio chunk")
)

// Player renders one buffer and blocks until it finishes or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, samples []float32) error
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func(context.Context, []float32) error

func (f PlayerFunc) Play(ctx context.Context, samples []float32) error {
	return f(ctx, samples)
}

// Options tune queue behavior.
type Options struct {
	Logger *slog.Logger
	// SampleRate is the rate every chunk must carry; defaults to audio.PlaybackSampleRate.
	SampleRate int
	// OnDrained runs on the drain goroutine when the queue empties after playing.
	// It must not block.
	OnDrained func()
}

// Queue is a FIFO of decoded buffers drained by a single goroutine.
type Queue struct {
	player    Player
	logger    *slog.Logger
	rate      int
	onDrained func()

	mu      sync.Mutex
	items   [][]float32
	playing bool
	closed  bool
	epoch   uint64
	cancel  context.CancelFunc

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// NewQueue starts the drain goroutine for player.
func NewQueue(player Player, opts Options) *Queue {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.PlaybackSampleRate
	}

	q := &Queue{
		player:    player,
		logger:    opts.Logger,
		rate:      opts.SampleRate,
		onDrained: opts.OnDrained,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue decodes one inbound chunk and appends it to the queue.
// Chunks at any other rate are rejected without being decoded.
func (q *Queue) Enqueue(mimeType string, data []byte) error {
	samples, err := audio.DecodeChunk(mimeType, data, q.rate)
	if err != nil {
		return err
	}
	return q.EnqueueSamples(samples)
}

// EnqueueSamples appends an already decoded buffer.
// A nil error means exactly one buffer was queued.
func (q *Queue) EnqueueSamples(samples []float32) error {
	if len(samples) == 0 {
		return ErrEmptyChunk
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrDeviceClosed
	}
	q.items = append(q.items, samples)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Busy reports whether audio is queued or playing.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing || len(q.items) > 0
}

// Len returns the number of buffers waiting to play.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Flush drops every pending buffer and cancels the one in flight.
// OnDrained is not invoked for flushed audio.
func (q *Queue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flushLocked()
}

func (q *Queue) flushLocked() int {
	dropped := len(q.items)
	q.items = nil
	q.epoch++
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
		dropped++
	}
	return dropped
}

// Close flushes, stops the drain goroutine, and waits for it. Later calls are no-ops.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.flushLocked()
	close(q.quit)
	q.mu.Unlock()

	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		select {
		case <-q.quit:
			return
		case <-q.wake:
		}

		for {
			ctx, samples, epoch, ok := q.next()
			if !ok {
				break
			}
			err := q.player.Play(ctx, samples)
			q.finish(epoch, err)
		}
	}
}

func (q *Queue) next() (context.Context, []float32, uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.items) == 0 {
		q.playing = false
		return nil, nil, 0, false
	}

	samples := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.playing = true
	return ctx, samples, q.epoch, true
}

func (q *Queue) finish(epoch uint64, err error) {
	q.mu.Lock()
	stale := epoch != q.epoch
	if !stale && q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	drained := len(q.items) == 0
	if drained {
		q.playing = false
	}
	q.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Warn("playback buffer failed", "error", err.Error())
	}
	if drained && !stale && q.onDrained != nil {
		q.onDrained()
	}
}
