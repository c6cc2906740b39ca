package shopassist

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
)

// backendSampleRate is the PCM16 rate the realtime backend speaks.
const backendSampleRate = 24_000

// inputBufferDuration bounds how much user audio may queue up while the
// sender is behind.
const inputBufferDuration = 10 * time.Second

// inputPipeline carries user audio from AppendInputAudio to the backend:
// resample -> ring buffer -> fixed size chunks -> send.
type inputPipeline struct {
	buffer *ringbuffer.RingBuffer
	writer io.Writer
	reader *FixedChunkReader
	closed atomic.Bool
	logger *slog.Logger
}

func newInputPipeline(sampleRate int, latency time.Duration, logger *slog.Logger) *inputPipeline {
	size := getChunkSize(backendSampleRate, inputBufferDuration, 2, 1)
	buffer := ringbuffer.New(size).SetBlocking(true)

	return &inputPipeline{
		buffer: buffer,
		writer: &ResampleWriter{
			Sink:     buffer,
			FromRate: sampleRate,
			ToRate:   backendSampleRate,
		},
		reader: NewFixedAudioChunkReader(buffer, backendSampleRate, latency, 2, 1),
		logger: logger,
	}
}

func (p *inputPipeline) Write(pcm []byte) (int, error) {
	if p.closed.Load() {
		return 0, ringbuffer.ErrWriteOnClosed
	}
	return p.writer.Write(pcm)
}

// close stops the sender and drops whatever audio is still queued.
func (p *inputPipeline) close() {
	if p.closed.Swap(true) {
		return
	}
	p.buffer.CloseWriter()
}

// run forwards chunks until the pipeline is closed or send fails.
func (p *inputPipeline) run(send func(chunk []byte) error) {
	buf := make([]byte, p.reader.ChunkSize())

	for {
		n, err := p.reader.Read(buf)
		if p.closed.Load() {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Error("failed to read from input audio buffer", slog.Any("err", err))
			}
			return
		}

		if err := send(buf[:n]); err != nil {
			p.logger.Debug("input audio sender stopped", slog.Any("err", err))
			return
		}
	}
}
