package audio

// Framer slices a continuous sample stream into fixed-length PCM16 frames.
type Framer struct {
	frameBytes int
	pending    []byte
}

// NewFramer builds a framer emitting frames of frameSamples samples.
func NewFramer(frameSamples int) *Framer {
	if frameSamples <= 0 {
		frameSamples = DefaultFrameSamples
	}
	return &Framer{frameBytes: frameSamples * bytesPerSample}
}

// FrameBytes returns the encoded size of one frame.
func (f *Framer) FrameBytes() int {
	return f.frameBytes
}

// Push encodes samples and returns every frame completed by them, in order.
func (f *Framer) Push(samples []float32) [][]byte {
	f.pending = AppendPCM16(f.pending, samples)

	frames := make([][]byte, 0, len(f.pending)/f.frameBytes)
	for len(f.pending) >= f.frameBytes {
		frame := make([]byte, f.frameBytes)
		copy(frame, f.pending[:f.frameBytes])
		f.pending = f.pending[f.frameBytes:]
		frames = append(frames, frame)
	}
	return frames
}

// Flush returns the residual partial frame padded with silence, or nil when empty.
func (f *Framer) Flush() []byte {
	if len(f.pending) == 0 {
		return nil
	}
	frame := make([]byte, f.frameBytes)
	copy(frame, f.pending)
	f.pending = nil
	return frame
}
