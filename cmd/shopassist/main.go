package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codewandler/shopassist-go"
	"github.com/codewandler/shopassist-go/internal/config"
	"github.com/codewandler/shopassist-go/internal/search"
	"github.com/codewandler/shopassist-go/internal/server"
	"github.com/codewandler/shopassist-go/internal/sessions"
	"github.com/codewandler/shopassist-go/internal/store/memory"
	"github.com/codewandler/shopassist-go/internal/store/postgres"
	"github.com/codewandler/shopassist-go/shop"
	"github.com/openai/openai-go/v3/option"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		configPath = ""
		debug      = false
	)
	flag.StringVar(&configPath, "config", configPath, "path to a YAML config file")
	flag.BoolVar(&debug, "debug", debug, "enable debug logs")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	logger := newLogger(os.Stderr, cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("shopassist failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	lvl, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var products shop.ProductSearch
	if cfg.SearchEnabled() {
		embedder := search.NewOpenAIEmbedder(cfg.OpenAI.EmbeddingModel, option.WithAPIKey(cfg.OpenAI.APIKey))
		p, err := search.New(search.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
			Index:     cfg.Elasticsearch.Index,
		}, embedder, logger.With(slog.String("component", "search")))
		if err != nil {
			return fmt.Errorf("product search: %w", err)
		}
		products = p
	} else {
		logger.Warn("elasticsearch not configured, product search disabled")
	}

	rdb, err := openRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	manager := sessions.NewManager(sessions.Config{
		MaxSessions:    cfg.Sessions.MaxSessions,
		SessionTimeout: cfg.Sessions.SessionTimeout,
	}, rdb, logger.With(slog.String("component", "sessions")))
	go manager.StartCleanupRoutine(ctx)

	instructions := cfg.OpenAI.Instructions
	if instructions == "" {
		instructions = defaultInstructions
	}
	opts := []shopassist.Option{
		shopassist.WithLogger(logger.With(slog.String("component", "realtime"))),
		shopassist.WithKey(cfg.OpenAI.APIKey),
		shopassist.WithInstruction(instructions),
		shopassist.WithSampleRate(cfg.OpenAI.InputSampleRate),
	}
	if cfg.OpenAI.RealtimeURL != "" {
		opts = append(opts, shopassist.WithURL(cfg.OpenAI.RealtimeURL))
	}
	if cfg.OpenAI.Model != "" {
		opts = append(opts, shopassist.WithModel(cfg.OpenAI.Model))
	}
	if cfg.OpenAI.Voice != "" {
		opts = append(opts, shopassist.WithVoice(cfg.OpenAI.Voice))
	}

	toolset := shop.NewToolset(store, products)
	srv := server.New(server.Config{
		Addr:           cfg.Server.ListenAddr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Greeting:       cfg.Server.Greeting,
	}, server.RealtimeSessions(toolset.Bindings(), opts...), manager, logger)

	return srv.Run(ctx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (shop.Store, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("no database configured, using in-memory demo data")
		return memory.Seeded(time.Now()), func() {}, nil
	}

	pg, err := postgres.Open(ctx, cfg.Database.URL, logger.With(slog.String("component", "postgres")))
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
	}
	return pg, pg.Close, nil
}

// openRedis returns nil when Redis is not configured or not reachable;
// sessions are then tracked in memory only.
func openRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, tracking sessions in memory", slog.Any("err", err))
		_ = rdb.Close()
		return nil, nil
	}
	return rdb, nil
}
