package testsupport

import (
	"context"
	"testing"

	"sceneforge/internal/config"
	"sceneforge/internal/scenestore"
)

// MustOpenStore opens a scenestore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *scenestore.Store {
	t.Helper()

	store, err := scenestore.Open(cfg)
	if err != nil {
		t.Fatalf("scenestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewVideo creates a video from the provided script for tests.
func NewVideo(t testing.TB, store *scenestore.Store, title, script string) *scenestore.Video {
	t.Helper()

	video, err := store.CreateVideo(context.Background(), title, script)
	if err != nil {
		t.Fatalf("store.CreateVideo: %v", err)
	}
	return video
}
