package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// Request describes one render job.
type Request struct {
	// Code is a standalone script containing exactly one scene class.
	Code string
	// EntryName is the scene class the binary should render.
	EntryName string
	// Quality selects the renderer quality tier (low, medium, high).
	Quality string
}

// Result captures a completed render.
type Result struct {
	// ArtifactPath points at the rendered clip inside the output directory.
	ArtifactPath string
	// Logs holds the combined stdout/stderr of the renderer invocation.
	Logs string
	// WallClock is how long the invocation took.
	WallClock time.Duration
}

// Client defines renderer behaviour.
type Client interface {
	Render(ctx context.Context, req Request) (Result, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the manim command-line renderer.
type CLI struct {
	binary    string
	outputDir string
}

// NewCLI constructs a CLI client writing artifacts into outputDir.
func NewCLI(outputDir string, opts ...Option) *CLI {
	cli := &CLI{binary: "manim", outputDir: outputDir}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

const renderedFileStem = "output"

// Render writes the scene to a scratch directory, invokes the renderer, and
// moves the resulting clip into the output directory. The scratch directory
// is removed on every exit path.
func (c *CLI) Render(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Code) == "" {
		return Result{}, errors.New("scene code required")
	}
	if req.EntryName == "" {
		return Result{}, errors.New("entry name required")
	}

	scratch, err := os.MkdirTemp("", "sceneforge-render-")
	if err != nil {
		return Result{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	scriptPath := filepath.Join(scratch, "scene.py")
	if err := os.WriteFile(scriptPath, []byte(req.Code), 0o644); err != nil {
		return Result{}, fmt.Errorf("write scene script: %w", err)
	}
	mediaDir := filepath.Join(scratch, "media")

	args := []string{
		scriptPath,
		req.EntryName,
		qualityFlag(req.Quality),
		"--disable_caching",
		"--output_file", renderedFileStem,
		"--media_dir", mediaDir,
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	started := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(started)
	logs := combined.String()

	if runErr != nil {
		if ctx.Err() != nil {
			return Result{Logs: logs, WallClock: elapsed}, ctx.Err()
		}
		return Result{Logs: logs, WallClock: elapsed},
			fmt.Errorf("render %s failed: %w: %s", req.EntryName, runErr, tail(logs, 400))
	}

	rendered, err := findRenderedFile(mediaDir, req.EntryName)
	if err != nil {
		return Result{Logs: logs, WallClock: elapsed}, err
	}

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return Result{Logs: logs, WallClock: elapsed}, fmt.Errorf("create output dir: %w", err)
	}
	artifactPath := filepath.Join(c.outputDir, req.EntryName+".mp4")
	if err := moveFile(rendered, artifactPath); err != nil {
		return Result{Logs: logs, WallClock: elapsed}, fmt.Errorf("move rendered clip: %w", err)
	}

	return Result{ArtifactPath: artifactPath, Logs: logs, WallClock: elapsed}, nil
}

func qualityFlag(quality string) string {
	switch strings.ToLower(quality) {
	case "medium":
		return "-qm"
	case "high":
		return "-qh"
	default:
		return "-ql"
	}
}

// findRenderedFile searches the media tree for the requested output file,
// falling back to the renderer's default class-named file.
func findRenderedFile(mediaDir, entryName string) (string, error) {
	for _, name := range []string{renderedFileStem + ".mp4", entryName + ".mp4"} {
		var found string
		err := filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && d.Name() == name {
				found = path
				return fs.SkipAll
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("scan media dir: %w", err)
		}
		if found != "" {
			return found, nil
		}
	}
	return "", fmt.Errorf("renderer produced no output file for %s", entryName)
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func tail(text string, limit int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= limit {
		return trimmed
	}
	return "..." + trimmed[len(trimmed)-limit:]
}

var _ Client = (*CLI)(nil)
