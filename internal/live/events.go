package live

import (
	"time"

	"google.golang.org/genai"
)

// EventKind enumerates inbound session events.
type EventKind int

const (
	EventUserTranscript EventKind = iota + 1
	EventInterrupted
	EventModelTurn
	EventTurnComplete
	EventGoAway
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventUserTranscript:
		return "user_transcript"
	case EventInterrupted:
		return "interrupted"
	case EventModelTurn:
		return "model_turn"
	case EventTurnComplete:
		return "turn_complete"
	case EventGoAway:
		return "go_away"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Part is one piece of a model turn: text or inline audio.
type Part struct {
	Text     string
	Audio    []byte
	MIMEType string
}

// IsAudio reports whether the part carries inline audio.
func (p Part) IsAudio() bool {
	return len(p.Audio) > 0
}

// Event is one inbound occurrence, delivered in receive order.
type Event struct {
	Kind EventKind
	// Text carries the user transcript fragment.
	Text string
	// Parts carries a model turn in listed order.
	Parts []Part
	// TimeLeft is set on EventGoAway.
	TimeLeft time.Duration
	// Reason and Err are set on EventClosed; Err is nil for a clean remote close.
	Reason string
	Err    error
}

// translate expands one server message into events. Within a message the
// order is input transcript, interruption, model parts, output transcript,
// turn completion, go-away. When transcribed is set the output transcription
// is the only source of model text and text parts in the model turn are dropped.
func translate(msg *genai.LiveServerMessage, transcribed bool) []Event {
	if msg == nil {
		return nil
	}

	var events []Event
	if content := msg.ServerContent; content != nil {
		if tr := content.InputTranscription; tr != nil && tr.Text != "" {
			events = append(events, Event{Kind: EventUserTranscript, Text: tr.Text})
		}
		if content.Interrupted {
			events = append(events, Event{Kind: EventInterrupted})
		}
		if parts := modelParts(content.ModelTurn, transcribed); len(parts) > 0 {
			events = append(events, Event{Kind: EventModelTurn, Parts: parts})
		}
		if tr := content.OutputTranscription; tr != nil && tr.Text != "" {
			events = append(events, Event{Kind: EventModelTurn, Parts: []Part{{Text: tr.Text}}})
		}
		if content.TurnComplete {
			events = append(events, Event{Kind: EventTurnComplete})
		}
	}
	if msg.GoAway != nil {
		events = append(events, Event{Kind: EventGoAway, TimeLeft: msg.GoAway.TimeLeft})
	}
	return events
}

// modelParts keeps inline audio and, unless transcribed, spoken text. Thought parts are never surfaced.
func modelParts(content *genai.Content, transcribed bool) []Part {
	if content == nil {
		return nil
	}
	parts := make([]Part, 0, len(content.Parts))
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		switch {
		case part.InlineData != nil && len(part.InlineData.Data) > 0:
			parts = append(parts, Part{Audio: part.InlineData.Data, MIMEType: part.InlineData.MIMEType})
		case part.Text != "" && !transcribed:
			parts = append(parts, Part{Text: part.Text})
		}
	}
	return parts
}
