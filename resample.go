package shopassist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/faiface/beep"
)

// pcmStreamer exposes mono PCM16 as a beep stereo streamer.
type pcmStreamer struct {
	data []int16
	pos  int
}

func newPCMStreamer(b []byte) *pcmStreamer {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return &pcmStreamer{data: samples}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, i > 0
		}
		val := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = val
		samples[i][1] = val
		s.pos++
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error { return nil }

// ResamplePCM converts mono PCM16 little endian between sample rates.
func ResamplePCM(pcmData []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate {
		return pcmData, nil
	}

	resampler := beep.Resample(3, beep.SampleRate(fromRate), beep.SampleRate(toRate), newPCMStreamer(pcmData))

	buf := new(bytes.Buffer)
	buf.Grow(len(pcmData) * toRate / fromRate)
	sample := make([][2]float64, 1024)
	out := make([]byte, 2)

	for {
		n, ok := resampler.Stream(sample)
		for i := 0; i < n; i++ {
			mono := clamp((sample[i][0] + sample[i][1]) / 2.0)
			binary.LittleEndian.PutUint16(out, uint16(int16(mono*32767)))
			buf.Write(out)
		}
		if !ok {
			break
		}
	}

	return buf.Bytes(), nil
}

func clamp(f float64) float64 {
	switch {
	case f > 1:
		return 1
	case f < -1:
		return -1
	default:
		return f
	}
}

// ResampleWriter converts every write from FromRate to ToRate before passing
// it to Sink. Writes must hold whole 16 bit samples.
type ResampleWriter struct {
	Sink     io.Writer
	FromRate int
	ToRate   int
}

var errOddPCM = errors.New("resample: write expects 16-bit mono PCM")

func (w *ResampleWriter) Write(p []byte) (int, error) {
	if len(p)%2 != 0 {
		return 0, errOddPCM
	}
	data, err := ResamplePCM(p, w.FromRate, w.ToRate)
	if err != nil {
		return 0, err
	}
	if _, err := w.Sink.Write(data); err != nil {
		return 0, err
	}
	return len(p), nil
}
