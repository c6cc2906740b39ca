package shopassist

import (
	"log/slog"
	"os"
	"time"

	"github.com/codewandler/shopassist-go/tool"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"

	DefaultURL = "wss://api.openai.com/v1/realtime"
)

type sessionConfig struct {
	url                string
	model              string
	apiKey             string
	instruction        string
	language           string
	voice              string
	temperature        float64
	speed              float64
	sampleRate         int
	latencyMS          int
	transcriptionModel string
	handshakeTimeout   time.Duration
	logger             *slog.Logger
	transport          Transport
	registry           *tool.Registry
	state              *tool.State
}

func (c *sessionConfig) latency() time.Duration {
	return time.Duration(c.latencyMS) * time.Millisecond
}

type Option func(*sessionConfig)

// WithRegistry seeds the session with a copy of a shared tool registry.
func WithRegistry(r *tool.Registry) Option {
	return func(config *sessionConfig) {
		config.registry = r
	}
}

// WithState sets the per-session tool state.
func WithState(s *tool.State) Option {
	return func(config *sessionConfig) {
		config.state = s
	}
}

// WithTransport replaces the websocket transport to the backend.
func WithTransport(t Transport) Option {
	return func(config *sessionConfig) {
		config.transport = t
	}
}

func WithURL(url string) Option {
	return func(config *sessionConfig) {
		config.url = url
	}
}

func WithVoice(voice string) Option {
	return func(config *sessionConfig) {
		config.voice = voice
	}
}

func WithSpeed(speed float64) Option {
	return func(config *sessionConfig) {
		config.speed = speed
	}
}

// WithSampleRate sets the rate of audio passed to AppendInputAudio.
func WithSampleRate(sr int) Option {
	return func(config *sessionConfig) {
		config.sampleRate = sr
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *sessionConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() Option {
	return WithLogger(slog.Default())
}

func WithTemperature(temperature float64) Option {
	return func(o *sessionConfig) {
		o.temperature = temperature
	}
}

func WithModel(model string) Option {
	return func(o *sessionConfig) {
		o.model = model
	}
}

func WithKey(apiKey string) Option {
	return func(o *sessionConfig) {
		o.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) Option {
	return func(o *sessionConfig) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				o.apiKey = k
				return
			}
		}
	}
}

func WithTranscriptionModel(model string) Option {
	return func(o *sessionConfig) {
		o.transcriptionModel = model
	}
}

// WithHandshakeTimeout bounds how long Connect waits for the backend to
// acknowledge the session configuration.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *sessionConfig) {
		o.handshakeTimeout = d
	}
}

func WithOptions(opts ...Option) Option {
	return func(o *sessionConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() Option {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithURL(DefaultURL),
		WithLanguage("en"),
		WithVoice("alloy"),
		WithInstruction("You are a customer service assistant and help the user."),
		WithTemperature(0.8),
		WithSampleRate(24_000),
		WithLatency(200),
		WithSpeed(1.0),
		WithModel("gpt-4o-realtime-preview-2024-10-01"),
		WithTranscriptionModel("whisper-1"),
		WithHandshakeTimeout(10*time.Second),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong),
	)
}

func WithLanguage(language string) Option {
	return func(o *sessionConfig) {
		o.language = language
	}
}

func WithInstruction(instruction string) Option {
	return func(o *sessionConfig) {
		o.instruction = instruction
	}
}

// WithLatency sets the input audio chunk duration in milliseconds.
func WithLatency(latencyMS int) Option {
	return func(o *sessionConfig) {
		o.latencyMS = latencyMS
	}
}
