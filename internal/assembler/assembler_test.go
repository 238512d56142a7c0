package assembler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"sceneforge/internal/scenestore"
	"sceneforge/internal/services"
	"sceneforge/internal/storage"
	"sceneforge/internal/testsupport"
)

func compiledScene(t *testing.T, store *storage.Local, name string, order int) scenestore.Scene {
	t.Helper()
	source := filepath.Join(t.TempDir(), name+".mp4")
	testsupport.WriteFile(t, source, 64)
	obj, err := store.Put(context.Background(), storage.Request{SourcePath: source, Name: "clips/" + name + ".mp4"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	return scenestore.Scene{
		ID:          name,
		Name:        name,
		Order:       order,
		Status:      scenestore.SceneStatusCompiled,
		ArtifactRef: obj.Ref,
	}
}

func TestValidateForAssembly(t *testing.T) {
	scenes := []scenestore.Scene{
		{Name: "A", Order: 0, ArtifactRef: "a.mp4"},
		{Name: "B", Order: 2, ArtifactRef: "b.mp4"},
		{Name: "C", Order: 2},
	}
	issues := ValidateForAssembly(scenes)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", issues)
	}

	dense := []scenestore.Scene{
		{Name: "A", Order: 1, ArtifactRef: "a.mp4"},
		{Name: "B", Order: 0, ArtifactRef: "b.mp4"},
	}
	if issues := ValidateForAssembly(dense); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestAssembleNothing(t *testing.T) {
	store := storage.NewLocal(t.TempDir(), "")
	asm := New(store, nil, "ffmpeg", t.TempDir())

	_, err := asm.Assemble(context.Background(), "v1", nil, Options{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "nothing to assemble") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestAssembleSingleSceneSkipsFFmpeg(t *testing.T) {
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		t.Fatal("ffmpeg must not run for a single scene")
		return nil
	}
	t.Cleanup(func() { commandContext = original })

	store := storage.NewLocal(t.TempDir(), "http://assets.local")
	asm := New(store, nil, "ffmpeg", t.TempDir())

	scene := compiledScene(t, store, "only", 0)
	result, err := asm.Assemble(context.Background(), "v1", []scenestore.Scene{scene}, Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if result.ArtifactRef != "videos/v1/final.mp4" || result.SceneCount != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := os.Stat(store.Resolve(result.ArtifactRef)); err != nil {
		t.Fatalf("final artifact missing: %v", err)
	}
}

func TestAssembleConcatUsesStreamCopy(t *testing.T) {
	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string(nil), args...)
		// Produce the merged output the real binary would have written.
		output := args[len(args)-1]
		if err := os.WriteFile(output, []byte("merged"), 0o644); err != nil {
			t.Fatalf("write merged output: %v", err)
		}
		return exec.CommandContext(ctx, "true")
	}
	t.Cleanup(func() { commandContext = original })

	store := storage.NewLocal(t.TempDir(), "")
	staging := t.TempDir()
	asm := New(store, nil, "ffmpeg", staging)

	scenes := []scenestore.Scene{
		compiledScene(t, store, "a", 0),
		compiledScene(t, store, "b", 1),
	}
	result, err := asm.Assemble(context.Background(), "v1", scenes, Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if result.SceneCount != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	joined := strings.Join(captured, " ")
	if !strings.Contains(joined, "-f concat") || !strings.Contains(joined, "-c copy") {
		t.Fatalf("expected concat stream copy args, got %v", captured)
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		t.Fatalf("read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch not cleaned up: %v", entries)
	}
}

func TestAssembleTransitionsReencode(t *testing.T) {
	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string(nil), args...)
		output := args[len(args)-1]
		if err := os.WriteFile(output, []byte("merged"), 0o644); err != nil {
			t.Fatalf("write merged output: %v", err)
		}
		return exec.CommandContext(ctx, "true")
	}
	t.Cleanup(func() { commandContext = original })

	store := storage.NewLocal(t.TempDir(), "")
	asm := New(store, nil, "ffmpeg", t.TempDir())

	scenes := []scenestore.Scene{
		compiledScene(t, store, "a", 0),
		compiledScene(t, store, "b", 1),
		compiledScene(t, store, "c", 2),
	}
	_, err := asm.Assemble(context.Background(), "v1", scenes, Options{Transitions: true, TransitionDuration: 0.5})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	joined := strings.Join(captured, " ")
	if !strings.Contains(joined, "xfade=transition=fade:duration=0.5") {
		t.Fatalf("expected xfade filter, got %v", captured)
	}
	if !strings.Contains(joined, "libx264") {
		t.Fatalf("expected re-encode args, got %v", captured)
	}
	if strings.Count(joined, "-i ") != 3 {
		t.Fatalf("expected 3 inputs, got %v", captured)
	}
}

func TestAssembleFFmpegFailureCleansScratch(t *testing.T) {
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", "echo 'codec mismatch' >&2; exit 1")
	}
	t.Cleanup(func() { commandContext = original })

	store := storage.NewLocal(t.TempDir(), "")
	staging := t.TempDir()
	asm := New(store, nil, "ffmpeg", staging)

	scenes := []scenestore.Scene{
		compiledScene(t, store, "a", 0),
		compiledScene(t, store, "b", 1),
	}
	_, err := asm.Assemble(context.Background(), "v1", scenes, Options{})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "codec mismatch") {
		t.Fatalf("expected tool output in error, got %v", err)
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		t.Fatalf("read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch not cleaned up after failure: %v", entries)
	}
}
