package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"sceneforge/internal/renderer"
	"sceneforge/internal/scenestore"
	"sceneforge/internal/services"
	"sceneforge/internal/storage"
	"sceneforge/internal/testsupport"
)

type recordingStore struct {
	mu          sync.Mutex
	transitions map[string][]scenestore.SceneStatus
}

func newRecordingStore() *recordingStore {
	return &recordingStore{transitions: make(map[string][]scenestore.SceneStatus)}
}

func (r *recordingStore) UpdateSceneStatus(ctx context.Context, videoID, sceneID string, status scenestore.SceneStatus, artifactRef, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[sceneID] = append(r.transitions[sceneID], status)
	return nil
}

func (r *recordingStore) statuses(sceneID string) []scenestore.SceneStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scenestore.SceneStatus(nil), r.transitions[sceneID]...)
}

type fakeRenderer struct {
	mu    sync.Mutex
	dir   string
	fail  map[string]bool
	calls []string
}

func newFakeRenderer(t *testing.T) *fakeRenderer {
	return &fakeRenderer{dir: t.TempDir(), fail: make(map[string]bool)}
}

func (f *fakeRenderer) Render(ctx context.Context, req renderer.Request) (renderer.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.EntryName)
	shouldFail := f.fail[req.EntryName]
	f.mu.Unlock()

	if shouldFail {
		return renderer.Result{Logs: "Traceback: broken scene"}, fmt.Errorf("render %s failed", req.EntryName)
	}
	path := filepath.Join(f.dir, req.EntryName+".mp4")
	if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
		return renderer.Result{}, err
	}
	return renderer.Result{ArtifactPath: path}, nil
}

func (f *fakeRenderer) rendered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestCompiler(t *testing.T, store SceneStore, client renderer.Client) *Compiler {
	t.Helper()
	artifacts := storage.NewLocal(t.TempDir(), "")
	return New(store, client, artifacts, nil, "low")
}

func scene(id, name string, order int, produced, consumed []string) *scenestore.Scene {
	return &scenestore.Scene{
		ID:              id,
		VideoID:         "video-1",
		Name:            name,
		Code:            "self.wait()",
		Order:           order,
		Status:          scenestore.SceneStatusPending,
		ProducedSymbols: produced,
		ConsumedSymbols: consumed,
	}
}

func TestCompileSceneSuccess(t *testing.T) {
	store := newRecordingStore()
	rend := newFakeRenderer(t)
	comp := newTestCompiler(t, store, rend)

	target := scene("s1", "Intro", 0, nil, nil)
	ref, err := comp.CompileScene(context.Background(), target)
	if err != nil {
		t.Fatalf("CompileScene: %v", err)
	}
	if ref != "videos/video-1/scenes/s1.mp4" {
		t.Fatalf("unexpected ref %q", ref)
	}
	if target.Status != scenestore.SceneStatusCompiled || target.ArtifactRef != ref {
		t.Fatalf("scene not updated: %#v", target)
	}

	want := []scenestore.SceneStatus{scenestore.SceneStatusCompiling, scenestore.SceneStatusCompiled}
	got := store.statuses("s1")
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected transitions %v", got)
	}
}

func TestCompileSceneRenderFailure(t *testing.T) {
	store := newRecordingStore()
	rend := newFakeRenderer(t)
	rend.fail["Intro"] = true
	comp := newTestCompiler(t, store, rend)

	target := scene("s1", "Intro", 0, nil, nil)
	_, err := comp.CompileScene(context.Background(), target)
	if !errors.Is(err, services.ErrCompilation) {
		t.Fatalf("expected compilation error, got %v", err)
	}
	if target.Status != scenestore.SceneStatusFailed {
		t.Fatalf("expected failed status, got %s", target.Status)
	}
	got := store.statuses("s1")
	if got[len(got)-1] != scenestore.SceneStatusFailed {
		t.Fatalf("unexpected transitions %v", got)
	}
}

func TestCompileScenesPartialFailureProgress(t *testing.T) {
	store := newRecordingStore()
	rend := newFakeRenderer(t)
	rend.fail["Two"] = true
	comp := newTestCompiler(t, store, rend)

	scenes := []*scenestore.Scene{
		scene("s1", "One", 0, nil, nil),
		scene("s2", "Two", 1, nil, nil),
		scene("s3", "Three", 2, nil, nil),
	}
	if err := comp.CompileScenes(context.Background(), scenes); err == nil {
		t.Fatal("expected error from failing scene")
	}

	progress := ProgressOf(scenes)
	if progress.Total != 3 || progress.Compiled != 2 || progress.Pending != 0 || progress.Failed != 1 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if progress.Percentage != 66.67 {
		t.Fatalf("expected 66.67, got %v", progress.Percentage)
	}
}

func TestCompileScenesWithDependenciesOrder(t *testing.T) {
	store := newRecordingStore()
	rend := newFakeRenderer(t)
	comp := newTestCompiler(t, store, rend)

	// Outro consumes x, Body produces it; Intro is independent.
	scenes := []*scenestore.Scene{
		scene("s1", "Outro", 0, nil, []string{"x"}),
		scene("s2", "Intro", 1, nil, nil),
		scene("s3", "Body", 2, []string{"x"}, nil),
	}
	if err := comp.CompileScenesWithDependencies(context.Background(), scenes); err != nil {
		t.Fatalf("CompileScenesWithDependencies: %v", err)
	}

	order := rend.rendered()
	if len(order) != 3 {
		t.Fatalf("expected 3 renders, got %v", order)
	}
	bodyIdx, outroIdx := -1, -1
	for i, name := range order {
		switch name {
		case "Body":
			bodyIdx = i
		case "Outro":
			outroIdx = i
		}
	}
	if bodyIdx < 0 || outroIdx < 0 || bodyIdx > outroIdx {
		t.Fatalf("expected Body before Outro, got %v", order)
	}
}

func TestCompileScenesWithDependenciesCycleTerminates(t *testing.T) {
	store := newRecordingStore()
	rend := newFakeRenderer(t)
	comp := newTestCompiler(t, store, rend)

	scenes := []*scenestore.Scene{
		scene("s1", "A", 0, []string{"x"}, []string{"y"}),
		scene("s2", "B", 1, []string{"y"}, []string{"x"}),
	}
	if err := comp.CompileScenesWithDependencies(context.Background(), scenes); err != nil {
		t.Fatalf("CompileScenesWithDependencies: %v", err)
	}
	for _, s := range scenes {
		if s.Status != scenestore.SceneStatusCompiled {
			t.Fatalf("scene %s not compiled: %s", s.Name, s.Status)
		}
	}
}

func TestCompileScenesWithDependenciesStopsAfterProducerFailure(t *testing.T) {
	store := newRecordingStore()
	rend := newFakeRenderer(t)
	rend.fail["Body"] = true
	comp := newTestCompiler(t, store, rend)

	scenes := []*scenestore.Scene{
		scene("s1", "Body", 0, []string{"x"}, nil),
		scene("s2", "Outro", 1, nil, []string{"x"}),
	}
	err := comp.CompileScenesWithDependencies(context.Background(), scenes)
	if err == nil {
		t.Fatal("expected error from failed producer")
	}

	var outro *scenestore.Scene
	for _, s := range scenes {
		if s.Name == "Outro" {
			outro = s
		}
	}
	if outro.Status != scenestore.SceneStatusPending {
		t.Fatalf("expected dependent left uncompiled, got %s", outro.Status)
	}
}

func TestGetOrCompileSceneShortCircuits(t *testing.T) {
	store := newRecordingStore()
	rend := newFakeRenderer(t)
	comp := newTestCompiler(t, store, rend)

	target := scene("s1", "Intro", 0, nil, nil)
	target.Status = scenestore.SceneStatusCompiled
	target.ArtifactRef = "videos/video-1/scenes/s1.mp4"

	ref, err := comp.GetOrCompileScene(context.Background(), target)
	if err != nil {
		t.Fatalf("GetOrCompileScene: %v", err)
	}
	if ref != target.ArtifactRef {
		t.Fatalf("unexpected ref %q", ref)
	}
	if calls := rend.rendered(); len(calls) != 0 {
		t.Fatalf("expected no renders, got %v", calls)
	}
}

func TestCompileSceneAgainstRealStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	video := testsupport.NewVideo(t, store, "Lesson", testsupport.SingleSceneScript)

	rend := newFakeRenderer(t)
	comp := New(store, rend, storage.NewLocal(cfg.Storage.Dir, ""), nil, cfg.Renderer.Quality)

	target := video.Scenes[0]
	if _, err := comp.CompileScene(context.Background(), &target); err != nil {
		t.Fatalf("CompileScene: %v", err)
	}

	fetched, err := store.GetScene(context.Background(), video.ID, target.ID)
	if err != nil {
		t.Fatalf("GetScene: %v", err)
	}
	if fetched.Status != scenestore.SceneStatusCompiled || fetched.ArtifactRef == "" {
		t.Fatalf("scene not persisted as compiled: %#v", fetched)
	}
}
