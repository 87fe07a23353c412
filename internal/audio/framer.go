package audio

// Framer accumulates samples into fixed-size frames. Partial leftover
// samples stay buffered and lead the next accumulation cycle; no sample
// is dropped at a boundary.
type Framer struct {
	size int
	buf  []float32
}

func NewFramer(samplesPerFrame int) *Framer {
	if samplesPerFrame <= 0 {
		samplesPerFrame = 1
	}
	return &Framer{size: samplesPerFrame}
}

// Push appends samples and returns zero or more complete frames.
func (f *Framer) Push(samples []float32) [][]float32 {
	f.buf = append(f.buf, samples...)
	var frames [][]float32
	for len(f.buf) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.buf[:f.size])
		f.buf = f.buf[f.size:]
		frames = append(frames, frame)
	}
	return frames
}

// Flush returns the buffered remainder, which may be empty.
func (f *Framer) Flush() []float32 {
	rest := f.buf
	f.buf = nil
	return rest
}
