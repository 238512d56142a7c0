package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"sceneforge/internal/assembler"
	"sceneforge/internal/config"
	"sceneforge/internal/generation"
	"sceneforge/internal/logging"
	"sceneforge/internal/scenestore"
	"sceneforge/internal/services"
)

// Run kinds recorded in the journal.
const (
	RunKindScene = "scene"
	RunKindBatch = "batch"
)

const (
	defaultStepTimeout = 10 * time.Second
	defaultMaxAttempts = 3
)

// StepError carries the classification of a failed step to the caller.
type StepError struct {
	StepID  string
	Type    ErrorType
	Attempt int
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed (%s, attempt %d): %v", e.StepID, e.Type, e.Attempt, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// SceneCompiler is the compiler behaviour the engine drives.
type SceneCompiler interface {
	CompileScene(ctx context.Context, scene *scenestore.Scene) (string, error)
	GetOrCompileScene(ctx context.Context, scene *scenestore.Scene) (string, error)
}

// Merger is the assembler behaviour the engine drives.
type Merger interface {
	Assemble(ctx context.Context, videoID string, scenes []scenestore.Scene, opts assembler.Options) (assembler.Result, error)
}

// Engine executes durable pipeline runs.
type Engine struct {
	store     *scenestore.Store
	generator generation.Generator
	compiler  SceneCompiler
	merger    Merger
	logger    *slog.Logger
	cfg       config.Workflow
	mergeOpts assembler.Options
	sleeper   func(context.Context, time.Duration) error
}

// Option customizes the engine.
type Option func(*Engine)

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(e *Engine) {
		if sleeper != nil {
			e.sleeper = sleeper
		}
	}
}

// New constructs a workflow engine.
func New(store *scenestore.Store, generator generation.Generator, comp SceneCompiler, merger Merger, logger *slog.Logger, cfg config.Workflow, mergeOpts assembler.Options, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	engine := &Engine{
		store:     store,
		generator: generator,
		compiler:  comp,
		merger:    merger,
		logger:    logger,
		cfg:       cfg,
		mergeOpts: mergeOpts,
		sleeper:   sleepContext,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// RunScene executes the single-scene pipeline: generate (when a prompt is
// supplied), validate, compile, and refresh the video status. The returned
// run carries the terminal status; the error is the classified step failure,
// if any.
func (e *Engine) RunScene(ctx context.Context, videoID, sceneID, prompt string) (*scenestore.WorkflowRun, error) {
	run, err := e.store.CreateRun(ctx, RunKindScene, videoID, sceneID)
	if err != nil {
		return nil, err
	}
	runErr := e.executeScene(ctx, run, prompt)
	e.finish(ctx, run, runErr, false)
	return run, runErr
}

// RunBatch compiles every scene of a video concurrently, merges the
// successful subset, and finalizes the video. Sub-runs are independent: one
// failing scene does not cancel its siblings. Zero successes fails the run
// before any merge; a strict subset yields a partial run whose merge covers
// only the successes.
func (e *Engine) RunBatch(ctx context.Context, videoID string) (*scenestore.WorkflowRun, error) {
	run, err := e.store.CreateRun(ctx, RunKindBatch, videoID, "")
	if err != nil {
		return nil, err
	}
	partial, runErr := e.executeBatch(ctx, run)
	e.finish(ctx, run, runErr, partial)
	return run, runErr
}

// Resume re-executes an unfinished run, skipping every step the journal
// already records as completed. Terminal runs come back unchanged.
func (e *Engine) Resume(ctx context.Context, runID string) (*scenestore.WorkflowRun, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "resume", "unknown run "+runID, nil)
	}
	if run.Status != scenestore.RunStatusRunning {
		return run, nil
	}

	switch run.Kind {
	case RunKindScene:
		// The original prompt is not journaled; a generate step that never
		// completed re-runs only if the scene still lacks code.
		runErr := e.executeScene(ctx, run, "")
		e.finish(ctx, run, runErr, false)
		return run, runErr
	case RunKindBatch:
		partial, runErr := e.executeBatch(ctx, run)
		e.finish(ctx, run, runErr, partial)
		return run, runErr
	default:
		return nil, fmt.Errorf("unknown run kind %q", run.Kind)
	}
}

func (e *Engine) executeScene(ctx context.Context, run *scenestore.WorkflowRun, prompt string) error {
	ctx = services.WithVideoID(ctx, run.VideoID)
	ctx = services.WithSceneID(ctx, run.SceneID)
	ctx = services.WithRequestID(ctx, run.ID)

	video, err := e.store.GetVideo(ctx, run.VideoID)
	if err != nil {
		return err
	}
	if video == nil || video.SceneByID(run.SceneID) == nil {
		return services.Wrap(services.ErrValidation, "workflow", "scene run",
			fmt.Sprintf("video %s has no scene %s", run.VideoID, run.SceneID), nil)
	}

	if prompt != "" {
		_, err := e.runStep(ctx, run.ID, "generate", StepGenerate, e.generateTimeout(), func(stepCtx context.Context) (string, error) {
			code, err := e.generator.GenerateScene(stepCtx, prompt)
			if err != nil {
				return "", err
			}
			if _, err := e.store.ApplyOperation(stepCtx, run.VideoID, scenestore.ModifyScene{SceneID: run.SceneID, Code: &code}); err != nil {
				return "", err
			}
			return code, nil
		})
		if err != nil {
			return err
		}
	}

	if _, err := e.runStep(ctx, run.ID, "validate", StepValidate, defaultStepTimeout, func(stepCtx context.Context) (string, error) {
		scene, err := e.store.GetScene(stepCtx, run.VideoID, run.SceneID)
		if err != nil {
			return "", err
		}
		if scene == nil {
			return "", services.Wrap(services.ErrValidation, "workflow", "validate", "scene disappeared mid-run", nil)
		}
		if strings.Contains(scene.Code, "def construct(self):") {
			return "", generation.ValidateSceneCode(scene.Code)
		}
		// Segmented slices are bare bodies; only emptiness is checkable.
		if strings.TrimSpace(scene.Code) == "" {
			return "", services.Wrap(services.ErrValidation, "workflow", "validate", "scene has no code", nil)
		}
		return "", nil
	}); err != nil {
		return err
	}

	if _, err := e.runStep(ctx, run.ID, "compile", StepCompile, e.compileTimeout(), func(stepCtx context.Context) (string, error) {
		scene, err := e.store.GetScene(stepCtx, run.VideoID, run.SceneID)
		if err != nil {
			return "", err
		}
		if scene == nil {
			return "", services.Wrap(services.ErrValidation, "workflow", "compile", "scene disappeared mid-run", nil)
		}
		return e.compiler.CompileScene(stepCtx, scene)
	}); err != nil {
		return err
	}

	_, err = e.runStep(ctx, run.ID, "status-update", StepStatus, defaultStepTimeout, func(stepCtx context.Context) (string, error) {
		return "", e.refreshVideoStatus(stepCtx, run.VideoID)
	})
	return err
}

// executeBatch returns (partial, err): partial is true when a strict subset
// of scenes succeeded but the merge went through.
func (e *Engine) executeBatch(ctx context.Context, run *scenestore.WorkflowRun) (bool, error) {
	ctx = services.WithVideoID(ctx, run.VideoID)
	ctx = services.WithRequestID(ctx, run.ID)
	log := logging.WithContext(ctx, e.logger)

	video, err := e.store.GetVideo(ctx, run.VideoID)
	if err != nil {
		return false, err
	}
	if video == nil {
		return false, services.Wrap(services.ErrValidation, "workflow", "batch run", "unknown video "+run.VideoID, nil)
	}
	if len(video.Scenes) == 0 {
		return false, services.Wrap(services.ErrValidation, "workflow", "batch run", "video has no scenes", nil)
	}

	if err := e.store.UpdateVideoStatus(ctx, video.ID, scenestore.VideoStatusCompiling); err != nil {
		return false, err
	}

	sceneErrs := make([]error, len(video.Scenes))
	var wg sync.WaitGroup
	for i := range video.Scenes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scene := &video.Scenes[i]
			stepID := "compile:" + scene.ID
			_, sceneErrs[i] = e.runStep(ctx, run.ID, stepID, StepCompile, e.compileTimeout(), func(stepCtx context.Context) (string, error) {
				return e.compiler.GetOrCompileScene(services.WithSceneID(stepCtx, scene.ID), scene)
			})
		}()
	}
	wg.Wait()

	var failures []error
	successes := make([]scenestore.Scene, 0, len(video.Scenes))
	for i := range video.Scenes {
		if sceneErrs[i] != nil {
			failures = append(failures, fmt.Errorf("scene %q: %w", video.Scenes[i].Name, sceneErrs[i]))
			continue
		}
		successes = append(successes, video.Scenes[i])
	}

	if len(successes) == 0 {
		if err := e.store.UpdateVideoStatus(ctx, video.ID, scenestore.VideoStatusFailed); err != nil {
			log.Error("mark video failed", logging.Error(err))
		}
		return false, errors.Join(failures...)
	}

	// The merge subset keeps the surviving relative order but must be dense
	// again for assembly.
	sort.Slice(successes, func(a, b int) bool { return successes[a].Order < successes[b].Order })
	for i := range successes {
		successes[i].Order = i
	}

	finalRef, err := e.runStep(ctx, run.ID, "merge", StepMerge, e.mergeTimeout(), func(stepCtx context.Context) (string, error) {
		result, err := e.merger.Assemble(stepCtx, video.ID, successes, e.mergeOpts)
		if err != nil {
			return "", err
		}
		return result.ArtifactRef, nil
	})
	if err != nil {
		if statusErr := e.store.UpdateVideoStatus(ctx, video.ID, scenestore.VideoStatusFailed); statusErr != nil {
			log.Error("mark video failed", logging.Error(statusErr))
		}
		return false, err
	}

	if len(failures) > 0 {
		// Partial outcome: the merged subset exists but the video cannot be
		// ready while scenes are missing. Keep it draft with the failures on
		// the run record.
		if err := e.store.UpdateVideoStatus(ctx, video.ID, scenestore.VideoStatusDraft); err != nil {
			log.Error("reset video status", logging.Error(err))
		}
		log.Warn("batch completed partially",
			logging.Int("succeeded", len(successes)),
			logging.Int("failed", len(failures)),
			logging.String("final_artifact", finalRef))
		return true, errors.Join(failures...)
	}

	_, err = e.runStep(ctx, run.ID, "finalize", StepStatus, defaultStepTimeout, func(stepCtx context.Context) (string, error) {
		if _, err := e.store.MarkVideoReady(stepCtx, video.ID, finalRef); err != nil {
			return "", err
		}
		return finalRef, nil
	})
	return false, err
}

// runStep executes one named step with retry, backoff, and journaling. A
// step already present in the journal returns its recorded result without
// executing.
func (e *Engine) runStep(ctx context.Context, runID, stepID string, stepType StepType, timeout time.Duration, fn func(context.Context) (string, error)) (string, error) {
	completed, err := e.store.CompletedSteps(ctx, runID)
	if err != nil {
		return "", err
	}
	if done, ok := completed[stepID]; ok {
		return done.Result, nil
	}

	key := IdempotencyKey(stepID, string(stepType), runID)
	attempts := e.maxAttempts()
	log := logging.WithContext(ctx, e.logger)

	for attempt := 1; ; attempt++ {
		stepCtx := services.WithStep(ctx, stepID)
		cancel := context.CancelFunc(func() {})
		if timeout > 0 {
			stepCtx, cancel = context.WithTimeout(stepCtx, timeout)
		}
		result, err := fn(stepCtx)
		cancel()

		if err == nil {
			record := scenestore.StepResult{
				RunID:          runID,
				StepID:         stepID,
				Attempt:        attempt,
				IdempotencyKey: key,
				Result:         result,
				CompletedAt:    time.Now().UTC(),
			}
			if jerr := e.store.RecordStepResult(ctx, record); jerr != nil {
				return "", jerr
			}
			return result, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		errType := Classify(err)
		log.Warn("step attempt failed",
			logging.String(logging.FieldStep, stepID),
			logging.Int(logging.FieldAttempt, attempt),
			logging.String("error_type", string(errType)),
			logging.Error(err))

		if !errType.IsRetryable() || attempt >= attempts {
			return "", &StepError{StepID: stepID, Type: errType, Attempt: attempt, Err: err}
		}

		delay := RetryDelay(errType, stepType, attempt)
		var httpErr *services.HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > delay && httpErr.RetryAfter <= maxRetryDelay {
			delay = httpErr.RetryAfter
		}
		if err := e.sleeper(ctx, delay); err != nil {
			return "", err
		}
	}
}

// refreshVideoStatus derives the video status from its scenes: any failed
// scene fails the video, otherwise it stays (or returns to) draft until an
// assembly marks it ready.
func (e *Engine) refreshVideoStatus(ctx context.Context, videoID string) error {
	video, err := e.store.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if video == nil {
		return nil
	}
	if video.Status == scenestore.VideoStatusReady {
		return nil
	}
	status := scenestore.VideoStatusDraft
	for _, scene := range video.Scenes {
		if scene.Status == scenestore.SceneStatusFailed {
			status = scenestore.VideoStatusFailed
			break
		}
	}
	if status == video.Status {
		return nil
	}
	return e.store.UpdateVideoStatus(ctx, videoID, status)
}

func (e *Engine) finish(ctx context.Context, run *scenestore.WorkflowRun, runErr error, partial bool) {
	status := scenestore.RunStatusCompleted
	message := ""
	switch {
	case partial:
		status = scenestore.RunStatusPartial
		if runErr != nil {
			message = runErr.Error()
		}
	case runErr != nil:
		status = scenestore.RunStatusFailed
		message = runErr.Error()
	}
	run.Status = status
	run.ErrorMessage = message
	if err := e.store.FinishRun(ctx, run.ID, status, message); err != nil {
		logging.WithContext(ctx, e.logger).Error("record run outcome", logging.Error(err))
	}
}

func (e *Engine) maxAttempts() int {
	if e.cfg.MaxAttempts > 0 {
		return e.cfg.MaxAttempts
	}
	return defaultMaxAttempts
}

func (e *Engine) generateTimeout() time.Duration {
	return secondsOr(e.cfg.GenerateTimeoutSeconds, 2*time.Minute)
}

func (e *Engine) compileTimeout() time.Duration {
	return secondsOr(e.cfg.CompileTimeoutSeconds, 10*time.Minute)
}

func (e *Engine) mergeTimeout() time.Duration {
	return secondsOr(e.cfg.UploadTimeoutSeconds, 4*time.Minute)
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
