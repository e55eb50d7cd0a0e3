package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/depnotify/internal/identity"
	"github.com/roach88/depnotify/internal/update"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 256, cfg.Engine.Shards)
	assert.Equal(t, 10240, cfg.Engine.MaxDependents)
	assert.Equal(t, "", cfg.Journal.Path)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load("testdata/small.cue")
	require.NoError(t, err)

	assert.Equal(t, EngineConfig{Shards: 4, MaxDependents: 2}, cfg.Engine)
	assert.Equal(t, "runs.db", cfg.Journal.Path)
	assert.Equal(t, ":9464", cfg.Metrics.Addr, "unset fields keep defaults")
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.cue"))
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"syntax", "engine: {", "failed to parse CUE"},
		{"unknown field", "engin: shards: 3", "invalid config"},
		{"wrong type", `engine: shards: "many"`, "invalid config"},
		{"zero shards", "engine: shards: 0", "engine.shards must be at least 1"},
		{"zero cap", "engine: max_dependents: 0", "engine.max_dependents must be at least 1"},
		{"bad level", `log: level: "loud"`, `log.level "loud"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "test.cue")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_LevelCaseInsensitive(t *testing.T) {
	cfg, err := Parse([]byte(`log: level: "WARN"`), "test.cue")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}

func TestEngineOptions(t *testing.T) {
	cfg, err := Parse([]byte("engine: max_dependents: 1"), "test.cue")
	require.NoError(t, err)

	rec := update.NewMemoryRecorder()
	e := update.New(append(cfg.EngineOptions(), update.WithRecorder(rec))...)

	var calls int
	count := func(context.Context, identity.Identity, update.Message) error {
		calls++
		return nil
	}
	require.NoError(t, e.AddDependent("s", update.DependentFunc("a", count)))
	require.NoError(t, e.AddDependent("s", update.DependentFunc("b", count)))

	delivered, err := e.TriggerUpdates(context.Background(), "s", update.Changed)
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Equal(t, 1, calls, "dispatch is capped at max_dependents")

	var overflow bool
	for _, ev := range rec.Events() {
		overflow = overflow || ev.Kind == update.EventOverflow
	}
	assert.True(t, overflow)
}
