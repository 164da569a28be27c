package ipc

// Commands understood by the interview owner.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
)

// Request is one JSON line sent to the running interview owner.
type Request struct {
	Command string `json:"command"`
}

// Response carries controller state and, for status, the current turn flags.
type Response struct {
	OK             bool   `json:"ok"`
	State          string `json:"state,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	Connected      bool   `json:"connected,omitempty"`
	MicrophoneLive bool   `json:"microphone_live,omitempty"`
	AISpeaking     bool   `json:"ai_speaking,omitempty"`
}

// Speaker names who holds the floor in a status response.
func (r Response) Speaker() string {
	switch {
	case !r.Connected:
		return "none"
	case r.AISpeaking:
		return "interviewer"
	case r.MicrophoneLive:
		return "candidate"
	default:
		return "none"
	}
}
