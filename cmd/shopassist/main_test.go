package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/codewandler/shopassist-go/internal/config"
	"github.com/codewandler/shopassist-go/internal/store/memory"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Contains(t, buf.String(), `"k":"v"`)
}

func TestOpenStore_DefaultsToMemory(t *testing.T) {
	cfg := config.Default()
	store, closeStore, err := openStore(context.Background(), &cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer closeStore()

	require.IsType(t, &memory.Store{}, store)
	c, err := store.Customer(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "John Doe", c.Name)
}

func TestOpenRedis_Disabled(t *testing.T) {
	rdb, err := openRedis(context.Background(), config.RedisConfig{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.Nil(t, rdb)

	_, err = openRedis(context.Background(), config.RedisConfig{URL: "::not a url"}, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}
