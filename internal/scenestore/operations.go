package scenestore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sceneforge/internal/segmenter"
)

// ErrSceneNotFound reports an operation targeting a scene id the video does
// not contain.
var ErrSceneNotFound = errors.New("scene not found")

// Operation is one structural edit applied to a video aggregate. Every
// variant leaves the aggregate with dense 0..n-1 ordering; ApplyOperation
// performs the reindex after the variant runs.
type Operation interface {
	apply(v *Video, now time.Time) error
}

// CreateScene inserts a new pending scene at Position, clamped to the valid
// insertion range.
type CreateScene struct {
	Name     string
	Code     string
	Position int
}

func (op CreateScene) apply(v *Video, now time.Time) error {
	produced, consumed := segmenter.ExtractSymbols(op.Code)
	scene := Scene{
		ID:              uuid.NewString(),
		VideoID:         v.ID,
		Name:            op.Name,
		Code:            op.Code,
		Status:          SceneStatusPending,
		ProducedSymbols: produced,
		ConsumedSymbols: consumed,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	pos := clamp(op.Position, 0, len(v.Scenes))
	v.Scenes = append(v.Scenes, Scene{})
	copy(v.Scenes[pos+1:], v.Scenes[pos:])
	v.Scenes[pos] = scene
	return nil
}

// ModifyScene merges a patch into an existing scene. A code change always
// resets the scene to pending and clears its artifact, and re-runs symbol
// extraction so the dependency graph reflects the new body.
type ModifyScene struct {
	SceneID string
	Name    *string
	Code    *string
}

func (op ModifyScene) apply(v *Video, now time.Time) error {
	scene := v.SceneByID(op.SceneID)
	if scene == nil {
		return fmt.Errorf("%w: %s", ErrSceneNotFound, op.SceneID)
	}
	if op.Name != nil {
		scene.Name = *op.Name
	}
	if op.Code != nil && *op.Code != scene.Code {
		scene.Code = *op.Code
		scene.Status = SceneStatusPending
		scene.ArtifactRef = ""
		scene.ErrorMessage = ""
		scene.ProducedSymbols, scene.ConsumedSymbols = segmenter.ExtractSymbols(scene.Code)
	}
	scene.UpdatedAt = now
	return nil
}

// DeleteScene removes a scene by id.
type DeleteScene struct {
	SceneID string
}

func (op DeleteScene) apply(v *Video, now time.Time) error {
	for i := range v.Scenes {
		if v.Scenes[i].ID == op.SceneID {
			v.Scenes = append(v.Scenes[:i], v.Scenes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSceneNotFound, op.SceneID)
}

// ReorderScene moves a scene to NewPosition, clamped to the valid range.
type ReorderScene struct {
	SceneID     string
	NewPosition int
}

func (op ReorderScene) apply(v *Video, now time.Time) error {
	idx := -1
	for i := range v.Scenes {
		if v.Scenes[i].ID == op.SceneID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrSceneNotFound, op.SceneID)
	}
	scene := v.Scenes[idx]
	v.Scenes = append(v.Scenes[:idx], v.Scenes[idx+1:]...)
	pos := clamp(op.NewPosition, 0, len(v.Scenes))
	v.Scenes = append(v.Scenes, Scene{})
	copy(v.Scenes[pos+1:], v.Scenes[pos:])
	v.Scenes[pos] = scene
	v.Scenes[pos].UpdatedAt = now
	return nil
}

// SplitScene divides a scene at the first occurrence of Marker. The text up
// to and including the marker stays in the original scene (reset to pending);
// the remainder becomes a new scene inserted immediately after. A marker the
// code does not contain leaves the video unchanged.
type SplitScene struct {
	SceneID string
	Marker  string
}

func (op SplitScene) apply(v *Video, now time.Time) error {
	idx := -1
	for i := range v.Scenes {
		if v.Scenes[i].ID == op.SceneID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrSceneNotFound, op.SceneID)
	}
	scene := &v.Scenes[idx]
	if op.Marker == "" {
		return nil
	}
	cut := strings.Index(scene.Code, op.Marker)
	if cut < 0 {
		// Soft failure: the caller gets the video back unchanged.
		return nil
	}
	cut += len(op.Marker)

	head := scene.Code[:cut]
	tail := scene.Code[cut:]
	baseName := scene.Name

	scene.Name = baseName + " Part 1"
	scene.Code = head
	scene.Status = SceneStatusPending
	scene.ArtifactRef = ""
	scene.ErrorMessage = ""
	scene.ProducedSymbols, scene.ConsumedSymbols = segmenter.ExtractSymbols(head)
	scene.UpdatedAt = now

	produced, consumed := segmenter.ExtractSymbols(tail)
	part2 := Scene{
		ID:              uuid.NewString(),
		VideoID:         v.ID,
		Name:            baseName + " Part 2",
		Code:            tail,
		Status:          SceneStatusPending,
		ProducedSymbols: produced,
		ConsumedSymbols: consumed,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	pos := idx + 1
	v.Scenes = append(v.Scenes, Scene{})
	copy(v.Scenes[pos+1:], v.Scenes[pos:])
	v.Scenes[pos] = part2
	return nil
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
