package indicator

import (
	"os"
	"strings"

	"github.com/rbright/viva/internal/turn"
)

type locale string

const (
	localeEnglish locale = "en"
	localeGerman  locale = "de"
)

type messages struct {
	connecting    string
	listening     string
	speaking      string
	reconnecting  string
	captionPrefix string
	ended         string
	errorText     string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "de") {
		return localeGerman
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeGerman:
		return messages{
			connecting:    "Verbinde…",
			listening:     "Sie sind dran",
			speaking:      "Interviewer spricht…",
			reconnecting:  "Verbindung unterbrochen, verbinde neu…",
			captionPrefix: "Sie: ",
			ended:         "Interview beendet",
			errorText:     "Interviewfehler",
		}
	case localeEnglish:
		fallthrough
	default:
		return messages{
			connecting:    "Connecting…",
			listening:     "Your turn",
			speaking:      "Interviewer speaking…",
			reconnecting:  "Connection lost, reconnecting…",
			captionPrefix: "you: ",
			ended:         "Interview ended",
			errorText:     "Interview error",
		}
	}
}

// forSnapshot maps turn flags to one status line. An all-false snapshot has no status.
func (m messages) forSnapshot(snap turn.Snapshot) string {
	switch {
	case snap.AISpeaking:
		return m.speaking
	case snap.Connected && snap.MicrophoneLive:
		return m.listening
	case snap.MicrophoneLive:
		return m.reconnecting
	default:
		return ""
	}
}
