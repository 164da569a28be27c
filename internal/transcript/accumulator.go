// Package transcript reconstructs the interview chat history from streamed text fragments.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Role attributes a message to one side of the conversation.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one text span of a message.
type Part struct {
	Text string `json:"text"`
}

// Message is one finalized or in-progress chat message.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text returns the concatenated text of all parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, part := range m.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// Caption is one input-transcription fragment of what the microphone heard.
// Captions are display material and never enter the history.
type Caption struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Accumulator merges model text fragments into an ordered message list.
// Consecutive fragments of one model turn land in a single message; a turn
// boundary closes that message. After Finalize the history is immutable.
type Accumulator struct {
	now func() time.Time

	mu        sync.Mutex
	messages  []Message
	open      bool
	captions  []Caption
	finalized bool
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{now: time.Now}
}

// OnModelText appends fragment to the open model message or starts a new one.
func (a *Accumulator) OnModelText(fragment string) {
	if fragment == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}

	if a.open && len(a.messages) > 0 {
		last := &a.messages[len(a.messages)-1]
		if last.Role == RoleModel && len(last.Parts) > 0 {
			last.Parts[len(last.Parts)-1].Text += fragment
			return
		}
	}

	a.messages = append(a.messages, Message{Role: RoleModel, Parts: []Part{{Text: fragment}}})
	a.open = true
}

// OnUserText records a caption and returns its display form.
// A user fragment also marks a role change, closing any open model message.
func (a *Accumulator) OnUserText(fragment string) string {
	display := strings.Join(strings.Fields(fragment), " ")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return display
	}

	a.open = false
	if display != "" {
		a.captions = append(a.captions, Caption{Text: display, At: a.now()})
	}
	return display
}

// OnTurnBoundary closes the open model message.
func (a *Accumulator) OnTurnBoundary() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = false
}

// Finalize closes the history and returns it. Later fragments are ignored.
func (a *Accumulator) Finalize() []Message {
	a.mu.Lock()
	a.open = false
	a.finalized = true
	a.mu.Unlock()
	return a.History()
}

// Finalized reports whether Finalize has run.
func (a *Accumulator) Finalized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalized
}

// History returns a deep copy of the messages accumulated so far.
func (a *Accumulator) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Message, len(a.messages))
	for i, msg := range a.messages {
		out[i] = Message{Role: msg.Role, Parts: append([]Part(nil), msg.Parts...)}
	}
	return out
}

// Captions returns a copy of the recorded input captions.
func (a *Accumulator) Captions() []Caption {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Caption(nil), a.captions...)
}

// Render flattens messages into "role: text" lines with normalized whitespace.
func Render(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		text := strings.Join(strings.Fields(msg.Text()), " ")
		if text == "" {
			continue
		}
		lines = append(lines, string(msg.Role)+": "+text)
	}
	return strings.Join(lines, "\n")
}
