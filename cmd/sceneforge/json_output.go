package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"sceneforge/internal/scenestore"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type sceneView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Order        int       `json:"order"`
	Status       string    `json:"status"`
	ArtifactRef  string    `json:"artifact_ref,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type videoView struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Status           string      `json:"status"`
	FinalArtifactRef string      `json:"final_artifact_ref,omitempty"`
	Scenes           []sceneView `json:"scenes,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func newVideoView(video *scenestore.Video, withScenes bool) videoView {
	view := videoView{
		ID:               video.ID,
		Title:            video.Title,
		Status:           string(video.Status),
		FinalArtifactRef: video.FinalArtifactRef,
		CreatedAt:        video.CreatedAt,
		UpdatedAt:        video.UpdatedAt,
	}
	if !withScenes {
		return view
	}
	view.Scenes = make([]sceneView, 0, len(video.Scenes))
	for i := range video.Scenes {
		scene := &video.Scenes[i]
		view.Scenes = append(view.Scenes, sceneView{
			ID:           scene.ID,
			Name:         scene.Name,
			Order:        scene.Order,
			Status:       string(scene.Status),
			ArtifactRef:  scene.ArtifactRef,
			ErrorMessage: scene.ErrorMessage,
			UpdatedAt:    scene.UpdatedAt,
		})
	}
	return view
}
