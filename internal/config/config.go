package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Renderer contains configuration for the external scene renderer.
type Renderer struct {
	Binary         string `toml:"binary"`
	Quality        string `toml:"quality"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Assembler contains configuration for final video assembly.
type Assembler struct {
	FFmpegBinary       string  `toml:"ffmpeg_binary"`
	Transitions        bool    `toml:"transitions"`
	TransitionDuration float64 `toml:"transition_duration"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
}

// Storage contains configuration for the artifact store.
type Storage struct {
	Dir     string `toml:"dir"`
	BaseURL string `toml:"base_url"`
}

// LLM contains connection settings for the content-generation collaborator.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains retry budgets and per-step timeouts for durable runs.
type Workflow struct {
	MaxAttempts            int `toml:"max_attempts"`
	GenerateTimeoutSeconds int `toml:"generate_timeout_seconds"`
	CompileTimeoutSeconds  int `toml:"compile_timeout_seconds"`
	UploadTimeoutSeconds   int `toml:"upload_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for sceneforge.
//
// Sections by subsystem:
//   - Paths: data, staging and log directories
//   - Renderer: external scene renderer binary and quality tier
//   - Assembler: ffmpeg binary and transition settings
//   - Storage: artifact store location
//   - LLM: content-generation connection settings
//   - Workflow: retry budgets and step timeouts
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Renderer  Renderer  `toml:"renderer"`
	Assembler Assembler `toml:"assembler"`
	Storage   Storage   `toml:"storage"`
	LLM       LLM       `toml:"llm"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// Default returns the built-in configuration values.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    "~/.local/share/sceneforge",
			StagingDir: "~/.local/share/sceneforge/staging",
			LogDir:     "~/.local/share/sceneforge/logs",
		},
		Renderer: Renderer{
			Binary:         "manim",
			Quality:        "low",
			TimeoutSeconds: 300,
		},
		Assembler: Assembler{
			FFmpegBinary:       "ffmpeg",
			Transitions:        false,
			TransitionDuration: 0.5,
			TimeoutSeconds:     240,
		},
		Storage: Storage{
			Dir: "~/.local/share/sceneforge/artifacts",
		},
		LLM: LLM{
			BaseURL:        "https://openrouter.ai/api/v1/chat/completions",
			Model:          "anthropic/claude-sonnet-4",
			TimeoutSeconds: 60,
		},
		Workflow: Workflow{
			MaxAttempts:            3,
			GenerateTimeoutSeconds: 120,
			CompileTimeoutSeconds:  300,
			UploadTimeoutSeconds:   60,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sceneforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("sceneforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir, c.Storage.Dir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.DataDir, &c.Paths.StagingDir, &c.Paths.LogDir, &c.Storage.Dir,
	} {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Renderer.Quality = strings.ToLower(strings.TrimSpace(c.Renderer.Quality))
	if c.Renderer.Quality == "" {
		c.Renderer.Quality = "low"
	}
	if strings.TrimSpace(c.Renderer.Binary) == "" {
		c.Renderer.Binary = "manim"
	}
	if strings.TrimSpace(c.Assembler.FFmpegBinary) == "" {
		c.Assembler.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		c.LLM.APIKey = strings.TrimSpace(os.Getenv("SCENEFORGE_LLM_API_KEY"))
	}
	return nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	switch c.Renderer.Quality {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("renderer quality: unsupported value %q (want low, medium, or high)", c.Renderer.Quality)
	}
	if c.Assembler.TransitionDuration < 0 {
		return fmt.Errorf("assembler transition_duration must not be negative")
	}
	if c.Workflow.MaxAttempts < 1 {
		return fmt.Errorf("workflow max_attempts must be at least 1")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths data_dir is required")
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
