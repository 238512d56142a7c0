package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"sceneforge/internal/assembler"
	"sceneforge/internal/compiler"
	"sceneforge/internal/config"
	"sceneforge/internal/generation"
	"sceneforge/internal/logging"
	"sceneforge/internal/renderer"
	"sceneforge/internal/scenestore"
	"sceneforge/internal/storage"
	"sceneforge/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// runtime bundles the wired services a single command invocation needs.
type runtime struct {
	cfg    *config.Config
	store  *scenestore.Store
	logger *slog.Logger
}

// withRuntime opens the store and hands a wired runtime to fn. Mutating
// commands take the single-writer lock first so two invocations cannot
// interleave pipeline work on the same library.
func (c *commandContext) withRuntime(mutating bool, fn func(rt *runtime) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	if mutating {
		lock := flock.New(filepath.Join(cfg.Paths.DataDir, "sceneforge.lock"))
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return errors.New("another sceneforge invocation is already running against this library")
		}
		defer lock.Unlock()
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		LogDir: cfg.Paths.LogDir,
	})
	if err != nil {
		return err
	}

	store, err := scenestore.Open(cfg)
	if err != nil {
		return fmt.Errorf("open scene store: %w", err)
	}
	defer store.Close()

	return fn(&runtime{cfg: cfg, store: store, logger: logger})
}

func (rt *runtime) artifacts() *storage.Local {
	return storage.NewLocal(rt.cfg.Storage.Dir, rt.cfg.Storage.BaseURL)
}

func (rt *runtime) newCompiler() *compiler.Compiler {
	render := renderer.NewCLI(
		filepath.Join(rt.cfg.Paths.StagingDir, "renders"),
		renderer.WithBinary(rt.cfg.Renderer.Binary),
	)
	return compiler.New(rt.store, render, rt.artifacts(), rt.logger, rt.cfg.Renderer.Quality)
}

func (rt *runtime) newAssembler() *assembler.Assembler {
	return assembler.New(rt.artifacts(), rt.logger, rt.cfg.Assembler.FFmpegBinary, rt.cfg.Paths.StagingDir)
}

func (rt *runtime) mergeOptions() assembler.Options {
	return assembler.Options{
		Transitions:        rt.cfg.Assembler.Transitions,
		TransitionDuration: rt.cfg.Assembler.TransitionDuration,
	}
}

func (rt *runtime) newEngine() *workflow.Engine {
	generator := generation.NewClient(rt.cfg.LLM)
	return workflow.New(rt.store, generator, rt.newCompiler(), rt.newAssembler(),
		rt.logger, rt.cfg.Workflow, rt.mergeOptions())
}

// resolveVideo finds a video by full id, unique id prefix, or, when arg is
// empty, falls back to the most recently created video.
func resolveVideo(ctx context.Context, store *scenestore.Store, arg string) (*scenestore.Video, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		video, err := store.LatestVideo(ctx)
		if err != nil {
			return nil, err
		}
		if video == nil {
			return nil, errors.New("no videos exist yet; run `sceneforge create` first")
		}
		return video, nil
	}

	if video, err := store.GetVideo(ctx, arg); err != nil {
		return nil, err
	} else if video != nil {
		return video, nil
	}

	videos, err := store.ListVideos(ctx)
	if err != nil {
		return nil, err
	}
	var match *scenestore.Video
	for _, video := range videos {
		if strings.HasPrefix(video.ID, arg) {
			if match != nil {
				return nil, fmt.Errorf("video id prefix %q is ambiguous", arg)
			}
			match = video
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no video matches %q", arg)
	}
	return match, nil
}

// resolveScene finds a scene within a video by full id, unique id prefix, or
// exact name.
func resolveScene(video *scenestore.Video, arg string) (*scenestore.Scene, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, errors.New("scene id is required")
	}

	var match *scenestore.Scene
	for i := range video.Scenes {
		scene := &video.Scenes[i]
		if scene.ID == arg || scene.Name == arg {
			return scene, nil
		}
		if strings.HasPrefix(scene.ID, arg) {
			if match != nil {
				return nil, fmt.Errorf("scene id prefix %q is ambiguous", arg)
			}
			match = scene
		}
	}
	if match == nil {
		return nil, fmt.Errorf("video %q has no scene matching %q", video.Title, arg)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
