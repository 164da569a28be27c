//go:build !portaudio

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPortAudioBackendRequiresBuildTag(t *testing.T) {
	require.False(t, PortAudioAvailable)
	_, err := NewAudioSystem(BackendPortAudio, AudioOptions{})
	require.ErrorIs(t, err, ErrBackendNotBuilt)
}
