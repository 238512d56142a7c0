package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"sceneforge/internal/logging"
	"sceneforge/internal/renderer"
	"sceneforge/internal/scenestore"
	"sceneforge/internal/segmenter"
	"sceneforge/internal/services"
	"sceneforge/internal/storage"
)

// SceneStore is the slice of scenestore behaviour the compiler needs.
type SceneStore interface {
	UpdateSceneStatus(ctx context.Context, videoID, sceneID string, status scenestore.SceneStatus, artifactRef, errorMessage string) error
}

// Compiler renders scenes and records their lifecycle transitions.
type Compiler struct {
	store     SceneStore
	renderer  renderer.Client
	artifacts storage.Store
	logger    *slog.Logger
	quality   string
}

// New constructs a compiler.
func New(store SceneStore, client renderer.Client, artifacts storage.Store, logger *slog.Logger, quality string) *Compiler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Compiler{
		store:     store,
		renderer:  client,
		artifacts: artifacts,
		logger:    logger,
		quality:   quality,
	}
}

// CompileScene renders one scene and persists the resulting transition. The
// returned ref identifies the stored artifact. There is no retry here; a
// caller that wants retries runs this inside a workflow step.
func (c *Compiler) CompileScene(ctx context.Context, scene *scenestore.Scene) (string, error) {
	ctx = services.WithSceneID(services.WithVideoID(ctx, scene.VideoID), scene.ID)
	log := logging.WithContext(ctx, c.logger)

	if err := c.store.UpdateSceneStatus(ctx, scene.VideoID, scene.ID, scenestore.SceneStatusCompiling, "", ""); err != nil {
		return "", err
	}
	scene.Status = scenestore.SceneStatusCompiling

	className := segmenter.ClassName(scene.Name, scene.Order)
	result, err := c.renderer.Render(ctx, renderer.Request{
		Code:      standaloneCode(scene.Code, className),
		EntryName: className,
		Quality:   c.quality,
	})
	if err != nil {
		message := services.Details(err).Message
		if updateErr := c.store.UpdateSceneStatus(ctx, scene.VideoID, scene.ID, scenestore.SceneStatusFailed, "", message); updateErr != nil {
			log.Error("record scene failure", logging.Error(updateErr))
		}
		scene.Status = scenestore.SceneStatusFailed
		scene.ErrorMessage = message
		return "", services.Wrap(services.ErrCompilation, "compile", scene.Name, "render failed", err)
	}

	object, err := c.artifacts.Put(ctx, storage.Request{
		SourcePath:  result.ArtifactPath,
		Name:        fmt.Sprintf("videos/%s/scenes/%s.mp4", scene.VideoID, scene.ID),
		ContentType: "video/mp4",
	})
	if err != nil {
		if updateErr := c.store.UpdateSceneStatus(ctx, scene.VideoID, scene.ID, scenestore.SceneStatusFailed, "", err.Error()); updateErr != nil {
			log.Error("record scene failure", logging.Error(updateErr))
		}
		scene.Status = scenestore.SceneStatusFailed
		scene.ErrorMessage = err.Error()
		return "", services.Wrap(services.ErrExternalTool, "compile", scene.Name, "store artifact", err)
	}

	if err := c.store.UpdateSceneStatus(ctx, scene.VideoID, scene.ID, scenestore.SceneStatusCompiled, object.Ref, ""); err != nil {
		return "", err
	}
	scene.Status = scenestore.SceneStatusCompiled
	scene.ArtifactRef = object.Ref
	scene.ErrorMessage = ""
	log.Info("scene compiled",
		logging.String("artifact", object.Ref),
		logging.Duration("wall_clock", result.WallClock))
	return object.Ref, nil
}

// CompileScenes fans out over independent scenes concurrently. A failing
// scene does not cancel its siblings; the first error is returned after all
// scenes settle, with per-scene outcomes recorded on the scenes themselves.
func (c *Compiler) CompileScenes(ctx context.Context, scenes []*scenestore.Scene) error {
	var group errgroup.Group
	for _, scene := range scenes {
		group.Go(func() error {
			_, err := c.CompileScene(ctx, scene)
			return err
		})
	}
	return group.Wait()
}

// CompileScenesWithDependencies orders scenes topologically over the symbol
// graph and compiles them one at a time, since a failed producer can
// invalidate its consumers. When a scene with dependents fails, the remaining
// scenes stay uncompiled and the run stops early.
func (c *Compiler) CompileScenesWithDependencies(ctx context.Context, scenes []*scenestore.Scene) error {
	deps := BuildGraph(scenes)
	order := c.topoSort(ctx, scenes, deps)

	dependents := make(map[string]int)
	for _, targets := range deps {
		for _, target := range targets {
			dependents[target]++
		}
	}

	for i, scene := range order {
		if _, err := c.CompileScene(ctx, scene); err != nil {
			if dependents[scene.ID] > 0 {
				logging.WithContext(ctx, c.logger).Warn("dependency failed, stopping early",
					logging.String("scene", scene.Name),
					logging.Int("skipped", len(order)-i-1))
				return err
			}
			// Nothing downstream needs this scene; keep going.
			continue
		}
	}
	return nil
}

// standaloneCode wraps a bare scene body into a self-contained script.
// Scenes that already carry their own class (generated ones) pass through.
func standaloneCode(code, className string) string {
	if strings.Contains(code, "def construct(self):") {
		return code
	}
	return segmenter.Standalone(className, code)
}

// BuildGraph maps each scene id to the ids of scenes it consumes symbols
// from. Producers resolve last-writer-wins by scene order; self-references
// are dropped.
func BuildGraph(scenes []*scenestore.Scene) map[string][]string {
	producers := make(map[string]string)
	for _, scene := range scenes {
		for _, symbol := range scene.ProducedSymbols {
			producers[symbol] = scene.ID
		}
	}

	deps := make(map[string][]string, len(scenes))
	for _, scene := range scenes {
		seen := make(map[string]struct{})
		for _, symbol := range scene.ConsumedSymbols {
			producer, ok := producers[symbol]
			if !ok || producer == scene.ID {
				continue
			}
			if _, dup := seen[producer]; dup {
				continue
			}
			seen[producer] = struct{}{}
			deps[scene.ID] = append(deps[scene.ID], producer)
		}
	}
	return deps
}

// topoSort runs a depth-first topological sort. A back-edge to a scene still
// on the visit stack means a cycle; the edge is logged and dropped because
// the symbol graph is heuristic and a hard failure would block compilable
// scenes.
func (c *Compiler) topoSort(ctx context.Context, scenes []*scenestore.Scene, deps map[string][]string) []*scenestore.Scene {
	byID := make(map[string]*scenestore.Scene, len(scenes))
	for _, scene := range scenes {
		byID[scene.ID] = scene
	}

	const (
		white = iota
		grey
		black
	)
	state := make(map[string]int, len(scenes))
	order := make([]*scenestore.Scene, 0, len(scenes))

	var visit func(id string)
	visit = func(id string) {
		state[id] = grey
		for _, dep := range deps[id] {
			if _, known := byID[dep]; !known {
				continue
			}
			switch state[dep] {
			case white:
				visit(dep)
			case grey:
				logging.WithContext(ctx, c.logger).Warn("dependency cycle detected, dropping edge",
					logging.String("from", sceneName(byID, id)),
					logging.String("to", sceneName(byID, dep)))
			}
		}
		state[id] = black
		order = append(order, byID[id])
	}

	for _, scene := range scenes {
		if state[scene.ID] == white {
			visit(scene.ID)
		}
	}
	return order
}

func sceneName(byID map[string]*scenestore.Scene, id string) string {
	if scene, ok := byID[id]; ok && strings.TrimSpace(scene.Name) != "" {
		return scene.Name
	}
	return id
}

// GetOrCompileScene short-circuits when the scene already has a compiled
// artifact. This is the only compile cache; invalidation happens solely
// through the store's code-change rule.
func (c *Compiler) GetOrCompileScene(ctx context.Context, scene *scenestore.Scene) (string, error) {
	if scene.Status == scenestore.SceneStatusCompiled && scene.ArtifactRef != "" {
		return scene.ArtifactRef, nil
	}
	return c.CompileScene(ctx, scene)
}
