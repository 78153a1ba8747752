package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "films", cfg.FilmsPath)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.StaleAfter)
	assert.Equal(t, 2*time.Hour, cfg.TransferTimeout)
	assert.True(t, cfg.SyncCatalog)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FILMS_PATH", "/mnt/films")
	t.Setenv("CONCURRENCY", "8")
	t.Setenv("MAX_RETRIES", "2")
	t.Setenv("STALE_AFTER", "90m")
	t.Setenv("SYNC_CATALOG", "false")

	cfg := Load()

	assert.Equal(t, "/mnt/films", cfg.FilmsPath)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 90*time.Minute, cfg.StaleAfter)
	assert.False(t, cfg.SyncCatalog)
}

func TestLoadIgnoresGarbageValues(t *testing.T) {
	t.Setenv("CONCURRENCY", "zero")
	t.Setenv("MAX_RETRIES", "-3")
	t.Setenv("STALE_AFTER", "soon")

	cfg := Load()

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.StaleAfter)
}
