// Package pipeline adapts device and transport backends to the interview session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/session"
)

// AudioOptions selects and frames the capture device.
type AudioOptions struct {
	Input        string
	Fallback     string
	FrameSamples int
	// DebugDump writes every captured frame to a WAV file under the state dir.
	DebugDump bool
	Logger    *slog.Logger
}

type captureClient interface {
	Frames() <-chan []byte
	Stop() error
}

type inputBackend interface {
	StartCapture(ctx context.Context, device audio.Device, frameSamples int) (captureClient, error)
	Close() error
}

// System opens the capture and playback contexts for one interview.
type System struct {
	opts   AudioOptions
	logger *slog.Logger

	selectDevice func(context.Context, string, string) (audio.Selection, error)
	openInput    func(rate int) (inputBackend, error)
	openOutput   func(rate int) (session.OutputContext, error)
}

// ErrBackendNotBuilt reports a backend compiled out of this binary.
var ErrBackendNotBuilt = errors.New("portaudio backend not built; rebuild with -tags portaudio")

// Audio backends accepted by NewAudioSystem.
const (
	BackendPulse     = "pulse"
	BackendPortAudio = "portaudio"
)

// NewAudioSystem builds the audio system for backend.
func NewAudioSystem(backend string, opts AudioOptions) (*System, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendPulse:
		return NewPulseSystem(opts), nil
	case BackendPortAudio:
		return NewPortAudioSystem(opts)
	default:
		return nil, fmt.Errorf("unsupported audio backend %q", backend)
	}
}

// NewPulseSystem builds the default Pulse-backed audio system.
func NewPulseSystem(opts AudioOptions) *System {
	s := newSystem(opts)
	s.selectDevice = audio.SelectDevice
	s.openInput = func(rate int) (inputBackend, error) {
		c, err := audio.OpenContext("viva capture", rate)
		if err != nil {
			return nil, err
		}
		return pulseInput{ctx: c}, nil
	}
	s.openOutput = func(rate int) (session.OutputContext, error) {
		c, err := audio.OpenContext("viva interviewer", rate)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return s
}

func newSystem(opts AudioOptions) *System {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.FrameSamples <= 0 {
		opts.FrameSamples = audio.DefaultFrameSamples
	}
	return &System{opts: opts, logger: opts.Logger}
}

// OpenInput opens the capture context at rate.
func (s *System) OpenInput(_ context.Context, rate int) (session.InputContext, error) {
	backend, err := s.openInput(rate)
	if err != nil {
		return nil, err
	}
	return &inputContext{system: s, backend: backend}, nil
}

// OpenOutput opens the playback context at rate.
func (s *System) OpenOutput(_ context.Context, rate int) (session.OutputContext, error) {
	return s.openOutput(rate)
}

type inputContext struct {
	system  *System
	backend inputBackend
}

// StartMicrophone resolves the configured device and starts capture on it.
func (c *inputContext) StartMicrophone(ctx context.Context) (session.Microphone, error) {
	s := c.system

	device := audio.Device{ID: "default", Description: "System default input", Default: true}
	if s.selectDevice != nil {
		selection, err := s.selectDevice(ctx, s.opts.Input, s.opts.Fallback)
		if err != nil {
			return nil, err
		}
		if selection.Warning != "" {
			s.logger.Warn(selection.Warning)
		}
		device = selection.Device
	}

	capture, err := c.backend.StartCapture(ctx, device, s.opts.FrameSamples)
	if err != nil {
		return nil, err
	}

	mic := &microphone{capture: capture, device: describeDevice(device), frames: capture.Frames(), logger: s.logger}
	if s.opts.DebugDump {
		mic.frames = teeToWAV(capture.Frames(), s.logger)
	}
	return mic, nil
}

func (c *inputContext) Close() error {
	return c.backend.Close()
}

type microphone struct {
	capture captureClient
	device  string
	frames  <-chan []byte
	logger  *slog.Logger
}

func (m *microphone) Frames() <-chan []byte { return m.frames }
func (m *microphone) Device() string        { return m.device }

func (m *microphone) Stop() error {
	err := m.capture.Stop()
	if d, ok := m.capture.(interface{ ResidualDropped() bool }); ok && d.ResidualDropped() {
		m.logger.Warn("final microphone frame dropped; no reader at stop", "device", m.device)
	}
	return err
}

type pulseInput struct {
	ctx *audio.Context
}

func (p pulseInput) StartCapture(ctx context.Context, device audio.Device, frameSamples int) (captureClient, error) {
	capture, err := p.ctx.StartCapture(ctx, device, frameSamples)
	if err != nil {
		return nil, err
	}
	return capture, nil
}

func (p pulseInput) Close() error {
	return p.ctx.Close()
}

// describeDevice formats device metadata for logs and session results.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}
