// Package config loads the server configuration: defaults, then an optional
// YAML file, then a .env file and finally environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Database      DatabaseConfig      `yaml:"database"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Log           LogConfig           `yaml:"log"`
}

type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Greeting       string   `yaml:"greeting"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	RealtimeURL    string `yaml:"realtime_url"`
	Model          string `yaml:"model"`
	Voice          string `yaml:"voice"`
	EmbeddingModel string `yaml:"embedding_model"`
	// InputSampleRate is the rate of the PCM16 audio the UI sends.
	InputSampleRate int    `yaml:"input_sample_rate"`
	Instructions    string `yaml:"instructions"`
}

type DatabaseConfig struct {
	// URL selects the PostgreSQL store. Empty means the in-memory demo store.
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	Index     string   `yaml:"index"`
}

type RedisConfig struct {
	// URL is a redis:// URL. Empty disables Redis.
	URL string `yaml:"url"`
}

type SessionsConfig struct {
	MaxSessions    int           `yaml:"max_sessions"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"*"},
		},
		OpenAI: OpenAIConfig{
			InputSampleRate: 24_000,
		},
		Database: DatabaseConfig{Migrate: true},
		Elasticsearch: ElasticsearchConfig{
			Index: "walmart_products",
		},
		Sessions: SessionsConfig{
			MaxSessions:    100,
			SessionTimeout: 30 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path may be empty. envFiles default to
// ".env"; missing env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	setList := func(dst *[]string, key string) {
		if v := getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	setString(&c.Server.ListenAddr, "LISTEN_ADDR")
	setList(&c.Server.AllowedOrigins, "ALLOWED_ORIGINS")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY", "OPENAI_KEY")
	setString(&c.OpenAI.RealtimeURL, "OPENAI_REALTIME_URL")
	setString(&c.OpenAI.Model, "OPENAI_REALTIME_MODEL")
	setString(&c.OpenAI.Voice, "OPENAI_VOICE")
	setString(&c.OpenAI.EmbeddingModel, "OPENAI_EMBEDDING_MODEL")
	setString(&c.Database.URL, "DATABASE_URL")
	setList(&c.Elasticsearch.Addresses, "ELASTICSEARCH_URL")
	setString(&c.Elasticsearch.Username, "ELASTICSEARCH_USERNAME")
	setString(&c.Elasticsearch.Password, "ELASTICSEARCH_PASSWORD")
	setString(&c.Elasticsearch.Index, "ELASTICSEARCH_INDEX")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	if v := getenv("INPUT_SAMPLE_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid INPUT_SAMPLE_RATE: %w", err)
		}
		c.OpenAI.InputSampleRate = n
	}
	if v := getenv("MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		c.Sessions.MaxSessions = n
	}
	if v := getenv("SESSION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		c.Sessions.SessionTimeout = d
	}
	if v := getenv("DATABASE_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_MIGRATE: %w", err)
		}
		c.Database.Migrate = b
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.OpenAI.InputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("invalid input sample rate %d", c.OpenAI.InputSampleRate))
	}
	if c.Sessions.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("invalid max sessions %d", c.Sessions.MaxSessions))
	}
	if c.Sessions.SessionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid session timeout %s", c.Sessions.SessionTimeout))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// SearchEnabled reports whether product search can be wired.
func (c *Config) SearchEnabled() bool {
	return len(c.Elasticsearch.Addresses) > 0 && c.Elasticsearch.Index != ""
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", l.Level)
	}
	return lvl, nil
}
