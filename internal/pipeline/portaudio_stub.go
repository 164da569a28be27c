//go:build !portaudio

package pipeline

// PortAudioAvailable reports whether this binary carries the PortAudio backend.
const PortAudioAvailable = false

// NewPortAudioSystem reports that the PortAudio backend is unavailable.
func NewPortAudioSystem(AudioOptions) (*System, error) {
	return nil, ErrBackendNotBuilt
}
