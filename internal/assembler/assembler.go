package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"sceneforge/internal/logging"
	"sceneforge/internal/scenestore"
	"sceneforge/internal/services"
	"sceneforge/internal/storage"
)

var commandContext = exec.CommandContext

// ErrNothingToAssemble reports an empty valid-scene set.
var ErrNothingToAssemble = errors.New("nothing to assemble")

// Options configure a merge.
type Options struct {
	// Transitions switches from stream-copy concatenation to a re-encoded
	// crossfade between each adjacent pair.
	Transitions bool
	// TransitionDuration is the crossfade length in seconds.
	TransitionDuration float64
}

// Result describes the merged output.
type Result struct {
	// ArtifactRef identifies the stored final video.
	ArtifactRef string
	// URL is the user-facing location of the final video.
	URL string
	// SceneCount is the number of clips that went into the merge.
	SceneCount int
}

// Assembler merges scene artifacts via the external ffmpeg binary.
type Assembler struct {
	artifacts  storage.Store
	logger     *slog.Logger
	binary     string
	stagingDir string
}

// New constructs an assembler. Scratch files live under stagingDir.
func New(artifacts storage.Store, logger *slog.Logger, binary, stagingDir string) *Assembler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Assembler{
		artifacts:  artifacts,
		logger:     logger,
		binary:     binary,
		stagingDir: stagingDir,
	}
}

// ValidateForAssembly checks that every scene carries an artifact and that
// the order values form a dense 0..n-1 permutation. Violations come back as
// an issue list, not an error.
func ValidateForAssembly(scenes []scenestore.Scene) []string {
	var issues []string
	seen := make(map[int]string, len(scenes))
	for _, scene := range scenes {
		if scene.ArtifactRef == "" {
			issues = append(issues, fmt.Sprintf("scene %q has no artifact", scene.Name))
		}
		if scene.Order < 0 || scene.Order >= len(scenes) {
			issues = append(issues, fmt.Sprintf("scene %q order %d out of range", scene.Name, scene.Order))
			continue
		}
		if other, dup := seen[scene.Order]; dup {
			issues = append(issues, fmt.Sprintf("scenes %q and %q share order %d", other, scene.Name, scene.Order))
			continue
		}
		seen[scene.Order] = scene.Name
	}
	return issues
}

// Assemble merges the scenes' artifacts in order and stores the final video
// under the video's id. Zero valid scenes is an error; exactly one scene's
// artifact becomes the final artifact verbatim with no ffmpeg call. Scratch
// files are removed on every exit path.
func (a *Assembler) Assemble(ctx context.Context, videoID string, scenes []scenestore.Scene, opts Options) (Result, error) {
	ctx = services.WithVideoID(ctx, videoID)
	log := logging.WithContext(ctx, a.logger)

	if issues := ValidateForAssembly(scenes); len(issues) > 0 {
		return Result{}, services.Wrap(services.ErrValidation, "assemble", "validate", strings.Join(issues, "; "), nil)
	}
	if len(scenes) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "assemble", "validate", ErrNothingToAssemble.Error(), nil)
	}

	ordered := make([]scenestore.Scene, len(scenes))
	for _, scene := range scenes {
		ordered[scene.Order] = scene
	}

	finalName := fmt.Sprintf("videos/%s/final.mp4", videoID)

	if len(ordered) == 1 {
		// One clip: promote its artifact directly, no transcoding.
		object, err := a.artifacts.Put(ctx, storage.Request{
			SourcePath:  a.artifacts.Resolve(ordered[0].ArtifactRef),
			Name:        finalName,
			ContentType: "video/mp4",
		})
		if err != nil {
			return Result{}, services.Wrap(services.ErrExternalTool, "assemble", "store", "promote single clip", err)
		}
		return Result{ArtifactRef: object.Ref, URL: object.URL, SceneCount: 1}, nil
	}

	if a.stagingDir != "" {
		if err := os.MkdirAll(a.stagingDir, 0o755); err != nil {
			return Result{}, fmt.Errorf("create staging dir: %w", err)
		}
	}
	scratch, err := os.MkdirTemp(a.stagingDir, "assemble-")
	if err != nil {
		return Result{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	clipPaths := make([]string, len(ordered))
	for i, scene := range ordered {
		clipPaths[i] = a.artifacts.Resolve(scene.ArtifactRef)
		if _, err := os.Stat(clipPaths[i]); err != nil {
			return Result{}, services.Wrap(services.ErrValidation, "assemble", "clips",
				fmt.Sprintf("artifact %s unreadable", scene.ArtifactRef), err)
		}
	}

	outputPath := filepath.Join(scratch, "merged.mp4")
	var args []string
	if opts.Transitions {
		args = crossfadeArgs(clipPaths, opts.TransitionDuration, outputPath)
		log.Info("merging with crossfade transitions",
			logging.Int("scenes", len(ordered)),
			logging.Float64("duration", opts.TransitionDuration))
	} else {
		listPath := filepath.Join(scratch, "concat_list.txt")
		if err := writeConcatList(listPath, clipPaths); err != nil {
			return Result{}, err
		}
		args = []string{"-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", outputPath}
		log.Info("merging with stream copy", logging.Int("scenes", len(ordered)))
	}

	cmd := commandContext(ctx, a.binary, args...) //nolint:gosec
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "assemble", "ffmpeg",
			tail(combined.String(), 400), err)
	}

	object, err := a.artifacts.Put(ctx, storage.Request{
		SourcePath:  outputPath,
		Name:        finalName,
		ContentType: "video/mp4",
	})
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "assemble", "store", "store merged video", err)
	}

	return Result{ArtifactRef: object.Ref, URL: object.URL, SceneCount: len(ordered)}, nil
}

// writeConcatList emits the demuxer list file consumed by ffmpeg -f concat.
func writeConcatList(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		fmt.Fprintf(&b, "file '%s'\n", clip)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// crossfadeArgs builds the xfade filter graph chaining each clip into the
// next with a fade of the requested duration.
func crossfadeArgs(clips []string, duration float64, outputPath string) []string {
	var args []string
	for _, clip := range clips {
		args = append(args, "-i", clip)
	}

	var filters []string
	current := "[0:v]"
	for i := 0; i < len(clips)-1; i++ {
		next := fmt.Sprintf("[%d:v]", i+1)
		out := fmt.Sprintf("[v%d]", i)
		if i == len(clips)-2 {
			out = "[v]"
		}
		filters = append(filters, fmt.Sprintf("%s%sxfade=transition=fade:duration=%g:offset=%d%s",
			current, next, duration, i*10, out))
		current = out
	}

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[v]",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		outputPath,
	)
	return args
}

func tail(text string, limit int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= limit {
		return trimmed
	}
	return "..." + trimmed[len(trimmed)-limit:]
}
