package testsupport

import (
	"path/filepath"
	"testing"

	"sceneforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Storage.Dir = filepath.Join(base, "storage")
	cfg.LLM.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithQuality overrides the renderer quality tier on the test config.
func WithQuality(quality string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Renderer.Quality = quality
	}
}

// WithTransitions enables crossfade transitions on the test config.
func WithTransitions(duration float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Assembler.Transitions = true
		cfg.Assembler.TransitionDuration = duration
	}
}
