package indicator

import (
	"testing"

	"github.com/rbright/viva/internal/turn"
	"github.com/stretchr/testify/require"
)

func TestResolveLocale(t *testing.T) {
	require.Equal(t, localeEnglish, resolveLocale("en_US.UTF-8"))
	require.Equal(t, localeEnglish, resolveLocale("fr_FR.UTF-8"))
	require.Equal(t, localeGerman, resolveLocale("de_DE.UTF-8"))
	require.Equal(t, localeEnglish, resolveLocale(""))
}

func TestIndicatorMessagesEnglish(t *testing.T) {
	msg := indicatorMessages(localeEnglish)
	require.Equal(t, "Connecting…", msg.connecting)
	require.Equal(t, "Your turn", msg.listening)
	require.Equal(t, "Interview error", msg.errorText)
}

func TestMessagesForSnapshot(t *testing.T) {
	msg := indicatorMessages(localeEnglish)

	tests := []struct {
		name string
		snap turn.Snapshot
		want string
	}{
		{name: "idle", snap: turn.Snapshot{}, want: ""},
		{name: "listening", snap: turn.Snapshot{Connected: true, MicrophoneLive: true}, want: msg.listening},
		{name: "speaking", snap: turn.Snapshot{Connected: true, MicrophoneLive: true, AISpeaking: true}, want: msg.speaking},
		{name: "speaking while reconnecting", snap: turn.Snapshot{MicrophoneLive: true, AISpeaking: true}, want: msg.speaking},
		{name: "reconnecting", snap: turn.Snapshot{MicrophoneLive: true}, want: msg.reconnecting},
		{name: "connected before microphone", snap: turn.Snapshot{Connected: true}, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, msg.forSnapshot(tc.snap))
		})
	}
}
