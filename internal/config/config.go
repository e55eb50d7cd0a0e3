// Package config loads depnotify configuration files.
//
// Files are CUE. Every field is optional; missing fields take the defaults
// in schema.cue. Unknown fields are rejected.
//
//	engine: {
//		shards:         64
//		max_dependents: 1024
//	}
//	log: level: "debug"
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/depnotify/internal/update"
)

//go:embed schema.cue
var schemaCUE string

// Config is the decoded configuration.
type Config struct {
	Engine  EngineConfig  `json:"engine"`
	Journal JournalConfig `json:"journal"`
	Metrics MetricsConfig `json:"metrics"`
	Log     LogConfig     `json:"log"`
}

// EngineConfig sizes the notification engine.
type EngineConfig struct {
	Shards        int `json:"shards"`
	MaxDependents int `json:"max_dependents"`
}

// JournalConfig locates the SQLite journal. An empty path disables it.
type JournalConfig struct {
	Path string `json:"path"`
}

// MetricsConfig configures the Prometheus endpoint served by watch.
type MetricsConfig struct {
	Addr string `json:"addr"`
}

// LogConfig sets the minimum log level: debug, info, warn or error.
type LogConfig struct {
	Level string `json:"level"`
}

// LoadError is returned when a config file cannot be read, compiled,
// decoded or validated.
type LoadError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, err := Parse(nil, "defaults.cue")
	if err != nil {
		// schema.cue is embedded; a failure here is a build defect.
		panic(err)
	}
	return cfg
}

// Load reads the config file at path. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{Path: path, Err: fmt.Errorf("failed to read config file: %w", err)}
	}
	cfg, err := Parse(data, path)
	if err != nil {
		return Config{}, &LoadError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse compiles data against the schema, fills defaults and validates the
// result. filename is used in CUE error positions.
func Parse(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return Config{}, fmt.Errorf("failed to parse CUE: %w", err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks value ranges the schema cannot express.
func (c Config) Validate() error {
	if c.Engine.Shards < 1 {
		return fmt.Errorf("engine.shards must be at least 1, got %d", c.Engine.Shards)
	}
	if c.Engine.MaxDependents < 1 {
		return fmt.Errorf("engine.max_dependents must be at least 1, got %d", c.Engine.MaxDependents)
	}
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		return fmt.Errorf("log.level %q: must be one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	return levels[strings.ToLower(c.Log.Level)]
}

// EngineOptions translates the engine section into engine options.
func (c Config) EngineOptions() []update.EngineOption {
	return []update.EngineOption{
		update.WithShards(c.Engine.Shards),
		update.WithMaxDependents(c.Engine.MaxDependents),
	}
}
