package compiler

import (
	"math"

	"sceneforge/internal/scenestore"
)

// Progress summarizes how far a set of scenes has compiled.
type Progress struct {
	Total      int
	Compiled   int
	Pending    int
	Failed     int
	Percentage float64
}

// ProgressOf aggregates scene statuses. In-flight scenes count as pending.
// The percentage tracks compiled scenes only, rounded to two decimals.
func ProgressOf(scenes []*scenestore.Scene) Progress {
	progress := Progress{Total: len(scenes)}
	for _, scene := range scenes {
		switch scene.Status {
		case scenestore.SceneStatusCompiled:
			progress.Compiled++
		case scenestore.SceneStatusFailed:
			progress.Failed++
		default:
			progress.Pending++
		}
	}
	if progress.Total > 0 {
		raw := float64(progress.Compiled) / float64(progress.Total) * 100
		progress.Percentage = math.Round(raw*100) / 100
	}
	return progress
}
