package shopassist

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// FixedChunkReader re-slices a stream into chunks of exactly chunkSize bytes,
// except for the last one before EOF.
type FixedChunkReader struct {
	r         io.Reader
	buf       []byte
	scratch   []byte
	chunkSize int
	err       error
}

func NewFixedChunkReader(r io.Reader, chunkSize int) *FixedChunkReader {
	return &FixedChunkReader{
		r:         r,
		chunkSize: chunkSize,
		buf:       make([]byte, 0, chunkSize*2),
		scratch:   make([]byte, chunkSize),
	}
}

// getChunkSize returns the byte size of sampleDuration worth of PCM.
func getChunkSize(sampleRate int, sampleDuration time.Duration, bytesPerSample int, channels int) int {
	frames := int(float64(sampleRate) * sampleDuration.Seconds())
	return frames * bytesPerSample * channels
}

func NewFixedAudioChunkReader(
	r io.Reader,
	sampleRate int,
	latency time.Duration,
	bytesPerSample int,
	channels int,
) *FixedChunkReader {
	return NewFixedChunkReader(r, getChunkSize(sampleRate, latency, bytesPerSample, channels))
}

func (f *FixedChunkReader) ChunkSize() int {
	return f.chunkSize
}

func (f *FixedChunkReader) Read(p []byte) (int, error) {
	if len(p) < f.chunkSize {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", f.chunkSize)
	}

	// fill until a full chunk is available or the source is exhausted
	for len(f.buf) < f.chunkSize && f.err == nil {
		n, err := f.r.Read(f.scratch)
		if n > 0 {
			f.buf = append(f.buf, f.scratch[:n]...)
		}
		if err != nil {
			f.err = err
		}
	}

	if len(f.buf) == 0 {
		if errors.Is(f.err, io.EOF) {
			return 0, io.EOF
		}
		return 0, f.err
	}

	n := copy(p, f.buf[:min(len(f.buf), f.chunkSize)])
	f.buf = f.buf[n:]

	return n, nil
}
