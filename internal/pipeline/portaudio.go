//go:build portaudio

package pipeline

import (
	"context"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/audio/portaudio"
	"github.com/rbright/viva/internal/session"
)

// PortAudioAvailable reports whether this binary carries the PortAudio backend.
const PortAudioAvailable = true

// NewPortAudioSystem builds an audio system on the PortAudio default devices.
func NewPortAudioSystem(opts AudioOptions) (*System, error) {
	s := newSystem(opts)
	s.openInput = func(rate int) (inputBackend, error) {
		c, err := portaudio.OpenContext(rate)
		if err != nil {
			return nil, err
		}
		return portaudioInput{ctx: c}, nil
	}
	s.openOutput = func(rate int) (session.OutputContext, error) {
		c, err := portaudio.OpenContext(rate)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return s, nil
}

type portaudioInput struct {
	ctx *portaudio.Context
}

func (p portaudioInput) StartCapture(ctx context.Context, _ audio.Device, frameSamples int) (captureClient, error) {
	capture, err := p.ctx.StartCapture(ctx, frameSamples)
	if err != nil {
		return nil, err
	}
	return capture, nil
}

func (p portaudioInput) Close() error {
	return p.ctx.Close()
}
