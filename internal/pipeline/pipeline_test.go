package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/credential"
	"github.com/rbright/viva/internal/live"
	"github.com/rbright/viva/internal/session"
)

type fakeCapture struct {
	frames     chan []byte
	stopCalled bool
}

func (f *fakeCapture) Frames() <-chan []byte { return f.frames }

func (f *fakeCapture) Stop() error {
	if !f.stopCalled {
		f.stopCalled = true
		close(f.frames)
	}
	return nil
}

type fakeInput struct {
	capture     *fakeCapture
	startErr    error
	device      audio.Device
	frames      int
	closeCalled bool
}

func (f *fakeInput) StartCapture(_ context.Context, device audio.Device, frameSamples int) (captureClient, error) {
	f.device = device
	f.frames = frameSamples
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.capture, nil
}

func (f *fakeInput) Close() error {
	f.closeCalled = true
	return nil
}

func systemWith(opts AudioOptions, input *fakeInput, selection audio.Selection, selectErr error) *System {
	s := newSystem(opts)
	s.selectDevice = func(context.Context, string, string) (audio.Selection, error) {
		return selection, selectErr
	}
	s.openInput = func(int) (inputBackend, error) { return input, nil }
	s.openOutput = func(int) (session.OutputContext, error) { return nil, errors.New("no output in tests") }
	return s
}

func TestDescribeDevice(t *testing.T) {
	require.Equal(t, "Elgato (alsa_input.wave3)", describeDevice(audio.Device{Description: "Elgato", ID: "alsa_input.wave3"}))
	require.Equal(t, "Elgato", describeDevice(audio.Device{Description: "Elgato"}))
	require.Equal(t, "alsa_input.wave3", describeDevice(audio.Device{ID: "alsa_input.wave3"}))
}

func TestStartMicrophoneUsesSelectedDevice(t *testing.T) {
	input := &fakeInput{capture: &fakeCapture{frames: make(chan []byte, 1)}}
	s := systemWith(AudioOptions{FrameSamples: 1024}, input, audio.Selection{
		Device:  audio.Device{ID: "alsa_input.usb", Description: "USB Mic"},
		Warning: "audio.input is muted",
	}, nil)

	ictx, err := s.OpenInput(context.Background(), audio.CaptureSampleRate)
	require.NoError(t, err)

	mic, err := ictx.StartMicrophone(context.Background())
	require.NoError(t, err)
	require.Equal(t, "USB Mic (alsa_input.usb)", mic.Device())
	require.Equal(t, "alsa_input.usb", input.device.ID)
	require.Equal(t, 1024, input.frames)

	require.NoError(t, mic.Stop())
	require.True(t, input.capture.stopCalled)
	require.NoError(t, ictx.Close())
	require.True(t, input.closeCalled)
}

func TestStartMicrophoneDefaultsFrameSize(t *testing.T) {
	input := &fakeInput{capture: &fakeCapture{frames: make(chan []byte)}}
	s := systemWith(AudioOptions{}, input, audio.Selection{Device: audio.Device{ID: "mic"}}, nil)

	ictx, err := s.OpenInput(context.Background(), audio.CaptureSampleRate)
	require.NoError(t, err)
	_, err = ictx.StartMicrophone(context.Background())
	require.NoError(t, err)
	require.Equal(t, audio.DefaultFrameSamples, input.frames)
}

func TestStartMicrophoneSelectionFailureSkipsCapture(t *testing.T) {
	input := &fakeInput{}
	s := systemWith(AudioOptions{}, input, audio.Selection{}, audio.ErrDeviceUnavailable)

	ictx, err := s.OpenInput(context.Background(), audio.CaptureSampleRate)
	require.NoError(t, err)
	_, err = ictx.StartMicrophone(context.Background())
	require.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	require.Zero(t, input.frames)
}

func TestStartMicrophoneWithoutSelectorUsesDefaultDevice(t *testing.T) {
	input := &fakeInput{capture: &fakeCapture{frames: make(chan []byte)}}
	s := systemWith(AudioOptions{}, input, audio.Selection{}, nil)
	s.selectDevice = nil

	ictx, err := s.OpenInput(context.Background(), audio.CaptureSampleRate)
	require.NoError(t, err)
	mic, err := ictx.StartMicrophone(context.Background())
	require.NoError(t, err)
	require.Equal(t, "default", input.device.ID)
	require.Equal(t, "System default input (default)", mic.Device())
}

func TestDebugDumpTeesFramesAndWritesWAV(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)

	input := &fakeInput{capture: &fakeCapture{frames: make(chan []byte, 2)}}
	s := systemWith(AudioOptions{DebugDump: true}, input, audio.Selection{Device: audio.Device{ID: "mic"}}, nil)

	ictx, err := s.OpenInput(context.Background(), audio.CaptureSampleRate)
	require.NoError(t, err)
	mic, err := ictx.StartMicrophone(context.Background())
	require.NoError(t, err)

	input.capture.frames <- []byte{0x01, 0x00}
	input.capture.frames <- []byte{0x02, 0x00}
	require.NoError(t, mic.Stop())

	var got [][]byte
	for frame := range mic.Frames() {
		got = append(got, frame)
	}
	require.Equal(t, [][]byte{{0x01, 0x00}, {0x02, 0x00}}, got)

	matches, err := filepath.Glob(filepath.Join(xdgStateHome, "viva", "debug", "capture-*.wav"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x00, 0x02, 0x00}, data[44:])
	require.Equal(t, uint32(audio.CaptureSampleRate), binary.LittleEndian.Uint32(data[24:28]))
}

func TestDebugDumpSkipsEmptyCapture(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)

	frames := make(chan []byte)
	close(frames)
	for range teeToWAV(frames, newSystem(AudioOptions{}).logger) {
	}

	matches, err := filepath.Glob(filepath.Join(xdgStateHome, "viva", "debug", "*.wav"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestResolveStateDirUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("HOME", t.TempDir())

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, xdgStateHome, dir)
}

func TestResolveStateDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state"), dir)
}

func TestCreateDebugFileCreatesExpectedPath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	file, err := createDebugFile("capture", "wav")
	require.NoError(t, err)
	path := file.Name()
	require.NoError(t, file.Close())

	require.Contains(t, path, string(filepath.Separator)+"viva"+string(filepath.Separator)+"debug"+string(filepath.Separator))
	require.Contains(t, filepath.Base(path), "capture-")
	require.Equal(t, ".wav", filepath.Ext(path))

	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestWritePCM16WAVWritesHeaderAndPCM(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "*.wav")
	require.NoError(t, err)

	pcm := []byte{0x01, 0x00, 0xFF, 0x7F}
	require.NoError(t, writePCM16WAV(file, pcm, 16000, 0))
	require.NoError(t, file.Close())

	data, err := os.ReadFile(file.Name())
	require.NoError(t, err)
	require.Len(t, data, 44+len(pcm))

	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, "data", string(data[36:40]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24])) // channels default to mono
	require.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(data[40:44]))
	require.Equal(t, pcm, data[44:])
}

func TestNewAudioSystemRejectsUnknownBackend(t *testing.T) {
	_, err := NewAudioSystem("alsa", AudioOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported audio backend")

	s, err := NewAudioSystem("", AudioOptions{})
	require.NoError(t, err)
	require.NotNil(t, s.selectDevice)
}

type fakeOpener struct {
	err error
}

func (f fakeOpener) Open(context.Context, credential.Token, string) (*live.Session, error) {
	return nil, f.err
}

func TestLiveTransportOpenErrorReturnsNilConn(t *testing.T) {
	transport := &LiveTransport{dialer: fakeOpener{err: errors.New("dial timeout")}}

	conn, err := transport.Open(context.Background(), credential.Token{Value: "tok"}, "be an interviewer")
	require.Error(t, err)
	require.Nil(t, conn)
}

func TestLiveTransportUsesRealDialerTimeout(t *testing.T) {
	dialer := live.NewDialer(live.Config{Model: "gemini-live-test", BaseURL: "ws://127.0.0.1:1", OpenTimeout: 200 * time.Millisecond})
	transport := NewLiveTransport(dialer)

	conn, err := transport.Open(context.Background(), credential.Token{Value: "tok"}, "be an interviewer")
	require.Error(t, err)
	require.Nil(t, conn)
}
