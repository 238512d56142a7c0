package scenestore

import "time"

// SceneStatus represents the compilation lifecycle of a scene.
type SceneStatus string

const (
	SceneStatusPending   SceneStatus = "pending"
	SceneStatusCompiling SceneStatus = "compiling"
	SceneStatusCompiled  SceneStatus = "compiled"
	SceneStatusFailed    SceneStatus = "failed"
)

// VideoStatus represents the lifecycle of a video aggregate.
type VideoStatus string

const (
	VideoStatusDraft     VideoStatus = "draft"
	VideoStatusCompiling VideoStatus = "compiling"
	VideoStatusReady     VideoStatus = "ready"
	VideoStatusFailed    VideoStatus = "failed"
)

// Scene is one independently compilable unit of a video.
type Scene struct {
	ID              string
	VideoID         string
	Name            string
	Code            string
	Order           int
	Status          SceneStatus
	ArtifactRef     string
	ErrorMessage    string
	ProducedSymbols []string
	ConsumedSymbols []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Video is an ordered aggregate of scenes plus the final merged artifact.
type Video struct {
	ID               string
	Title            string
	Status           VideoStatus
	FinalArtifactRef string
	Scenes           []Scene
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SceneByID returns a pointer into the aggregate's scene slice, or nil when
// the id is unknown.
func (v *Video) SceneByID(sceneID string) *Scene {
	for i := range v.Scenes {
		if v.Scenes[i].ID == sceneID {
			return &v.Scenes[i]
		}
	}
	return nil
}

// Reindex rewrites scene order values to a dense 0..n-1 sequence matching the
// slice order. Every structural edit ends with a reindex.
func (v *Video) Reindex() {
	for i := range v.Scenes {
		v.Scenes[i].Order = i
	}
}

// AllScenesCompiled reports whether every scene has reached the compiled
// state with an artifact.
func (v *Video) AllScenesCompiled() bool {
	if len(v.Scenes) == 0 {
		return false
	}
	for _, scene := range v.Scenes {
		if scene.Status != SceneStatusCompiled || scene.ArtifactRef == "" {
			return false
		}
	}
	return true
}
