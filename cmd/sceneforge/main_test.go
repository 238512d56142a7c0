package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sceneforge/internal/config"
	"sceneforge/internal/scenestore"
	"sceneforge/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	scriptPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Storage.Dir = filepath.Join(base, "storage")
	cfg := &cfgVal

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	scriptPath := filepath.Join(base, "script.py")
	if err := os.WriteFile(scriptPath, []byte(testsupport.ThreeSceneScript), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	return &cliTestEnv{cfg: cfg, configPath: configPath, scriptPath: scriptPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nstaging_dir = %q\nlog_dir = %q\n\n[storage]\ndir = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.StagingDir,
		cfg.Paths.LogDir,
		cfg.Storage.Dir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (env *cliTestEnv) openStore(t *testing.T) *scenestore.Store {
	t.Helper()
	store, err := scenestore.Open(env.cfg)
	if err != nil {
		t.Fatalf("scenestore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCLICreateListShow(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, stderr, err := runCLI(t, env, "create", env.scriptPath, "--title", "Algebra Basics")
	if err != nil {
		t.Fatalf("create: %v (stderr: %s)", err, stderr)
	}
	if !strings.Contains(stdout, "Created video") || !strings.Contains(stdout, "3 scenes") {
		t.Fatalf("create output unexpected:\n%s", stdout)
	}

	stdout, _, err = runCLI(t, env, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(stdout, "Algebra Basics") || !strings.Contains(stdout, "draft") {
		t.Fatalf("list output unexpected:\n%s", stdout)
	}

	stdout, _, err = runCLI(t, env, "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"Algebra Basics", "Intro", "Body", "Outro"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("show output missing %q:\n%s", want, stdout)
		}
	}
}

func TestCLISceneEditing(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, stderr, err := runCLI(t, env, "create", env.scriptPath); err != nil {
		t.Fatalf("create: %v (stderr: %s)", err, stderr)
	}

	codePath := filepath.Join(env.baseDir, "credits.py")
	if err := os.WriteFile(codePath, []byte("self.play(Write(Text(\"fin\")))\n"), 0o644); err != nil {
		t.Fatalf("write code: %v", err)
	}

	stdout, _, err := runCLI(t, env, "scene", "add", "Credits", "--file", codePath)
	if err != nil {
		t.Fatalf("scene add: %v", err)
	}
	if !strings.Contains(stdout, "Credits") {
		t.Fatalf("scene add output missing new scene:\n%s", stdout)
	}

	store := env.openStore(t)
	video, err := store.LatestVideo(context.Background())
	if err != nil {
		t.Fatalf("LatestVideo: %v", err)
	}
	if len(video.Scenes) != 4 {
		t.Fatalf("scene count = %d, want 4", len(video.Scenes))
	}
	credits := video.Scenes[3]
	if credits.Name != "Credits" {
		t.Fatalf("appended scene = %q, want Credits", credits.Name)
	}

	if _, _, err := runCLI(t, env, "scene", "move", credits.ID, "0"); err != nil {
		t.Fatalf("scene move: %v", err)
	}
	video, err = store.GetVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if video.Scenes[0].Name != "Credits" {
		t.Fatalf("scene order after move: %q first, want Credits", video.Scenes[0].Name)
	}

	if _, _, err := runCLI(t, env, "scene", "delete", credits.ID); err != nil {
		t.Fatalf("scene delete: %v", err)
	}
	video, err = store.GetVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if len(video.Scenes) != 3 {
		t.Fatalf("scene count after delete = %d, want 3", len(video.Scenes))
	}
	for i, scene := range video.Scenes {
		if scene.Order != i {
			t.Fatalf("orders not dense after delete: scene %d has order %d", i, scene.Order)
		}
	}
}

func TestCLISceneResolveByPrefix(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "create", env.scriptPath); err != nil {
		t.Fatalf("create: %v", err)
	}

	store := env.openStore(t)
	video, err := store.LatestVideo(context.Background())
	if err != nil {
		t.Fatalf("LatestVideo: %v", err)
	}
	target := video.Scenes[1]

	newName := "Renamed"
	if _, _, err := runCLI(t, env, "scene", "edit", target.ID[:8], "--name", newName); err != nil {
		t.Fatalf("scene edit by prefix: %v", err)
	}

	scene, err := store.GetScene(context.Background(), video.ID, target.ID)
	if err != nil {
		t.Fatalf("GetScene: %v", err)
	}
	if scene.Name != newName {
		t.Fatalf("scene name = %q, want %q", scene.Name, newName)
	}
}

func TestCLIStatusReportsProgress(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "create", env.scriptPath); err != nil {
		t.Fatalf("create: %v", err)
	}

	store := env.openStore(t)
	video, err := store.LatestVideo(context.Background())
	if err != nil {
		t.Fatalf("LatestVideo: %v", err)
	}
	scene := video.Scenes[0]
	if err := store.UpdateSceneStatus(context.Background(), video.ID, scene.ID, scenestore.SceneStatusCompiled, "clips/intro.mp4", ""); err != nil {
		t.Fatalf("UpdateSceneStatus: %v", err)
	}

	stdout, _, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(stdout, "Compiled 1/3 scenes") {
		t.Fatalf("status output unexpected:\n%s", stdout)
	}
}

func TestCLIListJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "create", env.scriptPath, "--title", "JSON Demo"); err != nil {
		t.Fatalf("create: %v", err)
	}

	stdout, _, err := runCLI(t, env, "list", "--json")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var views []videoView
	if err := json.Unmarshal([]byte(stdout), &views); err != nil {
		t.Fatalf("list --json output is not JSON: %v\n%s", err, stdout)
	}
	if len(views) != 1 || views[0].Title != "JSON Demo" {
		t.Fatalf("unexpected JSON payload: %+v", views)
	}

	stdout, _, err = runCLI(t, env, "show", "--json")
	if err != nil {
		t.Fatalf("show --json: %v", err)
	}
	var view videoView
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("show --json output is not JSON: %v\n%s", err, stdout)
	}
	if len(view.Scenes) != 3 {
		t.Fatalf("show --json scenes = %d, want 3", len(view.Scenes))
	}
}

func TestCLIAssembleExplicitSubset(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "create", env.scriptPath); err != nil {
		t.Fatalf("create: %v", err)
	}

	store := env.openStore(t)
	video, err := store.LatestVideo(context.Background())
	if err != nil {
		t.Fatalf("LatestVideo: %v", err)
	}
	scene := video.Scenes[1]
	ref := fmt.Sprintf("videos/%s/scenes/%s.mp4", video.ID, scene.ID)
	clipPath := filepath.Join(env.cfg.Storage.Dir, ref)
	if err := os.MkdirAll(filepath.Dir(clipPath), 0o755); err != nil {
		t.Fatalf("mkdir clip dir: %v", err)
	}
	if err := os.WriteFile(clipPath, []byte("clip"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	if err := store.UpdateSceneStatus(context.Background(), video.ID, scene.ID, scenestore.SceneStatusCompiled, ref, ""); err != nil {
		t.Fatalf("UpdateSceneStatus: %v", err)
	}

	// A single-scene subset promotes the clip without invoking ffmpeg, so
	// this passes without the binary installed.
	stdout, stderr, err := runCLI(t, env, "assemble", "--scenes", scene.ID)
	if err != nil {
		t.Fatalf("assemble: %v (stderr: %s)", err, stderr)
	}
	if !strings.Contains(stdout, "Assembled 1 scenes") {
		t.Fatalf("assemble output unexpected:\n%s", stdout)
	}

	// A partial merge must not mark the video ready.
	video, err = store.GetVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if video.Status == scenestore.VideoStatusReady {
		t.Fatal("partial assemble marked the video ready")
	}
}

func TestCLIConfigInit(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "config.toml")

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	cmd = newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}
}

func TestCLIUnknownVideoFails(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "show", "no-such-video"); err == nil {
		t.Fatal("show of unknown video should fail")
	}
	if _, _, err := runCLI(t, env, "show"); err == nil {
		t.Fatal("show with empty library should fail")
	}
}
