// Package turn tracks connection, microphone, and interviewer-speaking flags.
package turn

import "sync"

// Snapshot is a read-only copy of the turn flags.
type Snapshot struct {
	Connected      bool `json:"connected"`
	MicrophoneLive bool `json:"microphone_live"`
	AISpeaking     bool `json:"ai_speaking"`
}

// Tracker owns the turn flags. AISpeaking clears only after playback has
// drained and the current turn has completed, in whichever order they arrive.
type Tracker struct {
	mu           sync.Mutex
	snap         Snapshot
	queueBusy    bool
	turnComplete bool

	nextID      int
	subscribers map[int]func(Snapshot)
}

// NewTracker returns a tracker with every flag false.
func NewTracker() *Tracker {
	return &Tracker{subscribers: map[int]func(Snapshot){}}
}

// Snapshot returns the current flags.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Subscribe registers fn for every flag change and returns its cancel func.
// fn runs synchronously on the goroutine that caused the change.
func (t *Tracker) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subscribers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subscribers, id)
		t.mu.Unlock()
	}
}

// SetConnected records transport open/close.
func (t *Tracker) SetConnected(connected bool) {
	t.update(func() { t.snap.Connected = connected })
}

// SetMicrophoneLive records capture start/stop.
func (t *Tracker) SetMicrophoneLive(live bool) {
	t.update(func() { t.snap.MicrophoneLive = live })
}

// ChunkEnqueued marks the interviewer as speaking for a new or continuing turn.
func (t *Tracker) ChunkEnqueued() {
	t.update(func() {
		t.queueBusy = true
		t.turnComplete = false
		t.snap.AISpeaking = true
	})
}

// QueueDrained records that playback ran out of buffered audio.
func (t *Tracker) QueueDrained() {
	t.update(func() {
		t.queueBusy = false
		if t.turnComplete {
			t.snap.AISpeaking = false
		}
	})
}

// TurnComplete records the end of the current model turn.
func (t *Tracker) TurnComplete() {
	t.update(func() {
		t.turnComplete = true
		if !t.queueBusy {
			t.snap.AISpeaking = false
		}
	})
}

// Interrupted ends the current turn immediately; playback was flushed.
func (t *Tracker) Interrupted() {
	t.update(func() {
		t.queueBusy = false
		t.turnComplete = true
		t.snap.AISpeaking = false
	})
}

// Reset clears every flag.
func (t *Tracker) Reset() {
	t.update(func() {
		t.snap = Snapshot{}
		t.queueBusy = false
		t.turnComplete = false
	})
}

func (t *Tracker) update(apply func()) {
	t.mu.Lock()
	before := t.snap
	apply()
	after := t.snap
	var subs []func(Snapshot)
	if before != after {
		subs = make([]func(Snapshot), 0, len(t.subscribers))
		for _, fn := range t.subscribers {
			subs = append(subs, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(after)
	}
}
