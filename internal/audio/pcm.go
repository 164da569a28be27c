package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"mime"
	"strconv"
	"strings"
)

const (
	CaptureSampleRate   = 16000
	PlaybackSampleRate  = 24000
	DefaultFrameSamples = 2048

	bytesPerSample = 2
)

var (
	// ErrDeviceUnavailable reports a denied, absent, or unusable audio device.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrRateMismatch reports inbound audio whose declared sample rate is not the playback rate.
	ErrRateMismatch = errors.New("audio sample rate mismatch")
)

// CaptureMIMEType is the wire mime type for outbound microphone frames.
func CaptureMIMEType() string {
	return "audio/pcm;rate=" + strconv.Itoa(CaptureSampleRate)
}

// SampleToPCM16 clamps a float sample to [-1, 1] and scales it to int16.
func SampleToPCM16(sample float32) int16 {
	switch {
	case sample > 1 || math.IsInf(float64(sample), 1):
		sample = 1
	case sample < -1 || math.IsInf(float64(sample), -1):
		sample = -1
	case math.IsNaN(float64(sample)):
		sample = 0
	}
	return int16(math.Round(float64(sample) * math.MaxInt16))
}

// AppendPCM16 encodes float samples as little-endian signed 16-bit PCM.
func AppendPCM16(dst []byte, samples []float32) []byte {
	for _, sample := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(SampleToPCM16(sample)))
	}
	return dst
}

// DecodePCM16 converts little-endian signed 16-bit PCM to float samples in [-1, 1).
// A trailing odd byte is ignored.
func DecodePCM16(data []byte) []float32 {
	samples := make([]float32, len(data)/bytesPerSample)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
		samples[i] = float32(v) / 32768
	}
	return samples
}

// ParseRate extracts the rate parameter from an audio/pcm mime type.
// A missing rate parameter reports fallback.
func ParseRate(mimeType string, fallback int) (int, error) {
	mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(mimeType))
	if err != nil {
		return 0, fmt.Errorf("parse mime type %q: %w", mimeType, err)
	}
	if mediaType != "audio/pcm" && mediaType != "audio/l16" {
		return 0, fmt.Errorf("unsupported audio mime type %q", mediaType)
	}
	raw, ok := params["rate"]
	if !ok {
		return fallback, nil
	}
	rate, err := strconv.Atoi(raw)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %q in mime type %q", raw, mimeType)
	}
	return rate, nil
}

// DecodeChunk decodes one inbound PCM chunk, rejecting anything not declared at wantRate.
func DecodeChunk(mimeType string, data []byte, wantRate int) ([]float32, error) {
	rate, err := ParseRate(mimeType, wantRate)
	if err != nil {
		return nil, err
	}
	if rate != wantRate {
		return nil, fmt.Errorf("%w: got %d Hz, want %d Hz", ErrRateMismatch, rate, wantRate)
	}
	return DecodePCM16(data), nil
}
