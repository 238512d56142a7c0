package workflow_test

import (
	"testing"
	"time"

	"sceneforge/internal/workflow"
)

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		delay := workflow.RetryDelay(workflow.TypeServer, workflow.StepGenerate, attempt)
		if delay < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, delay, prev)
		}
		if delay > 5*time.Minute {
			t.Fatalf("delay exceeds cap at attempt %d: %v", attempt, delay)
		}
		prev = delay
	}
	if got := workflow.RetryDelay(workflow.TypeServer, workflow.StepGenerate, 1); got != 4*time.Second {
		t.Fatalf("first server delay = %v, want 4s", got)
	}
	if got := workflow.RetryDelay(workflow.TypeServer, workflow.StepGenerate, 2); got != 8*time.Second {
		t.Fatalf("second server delay = %v, want 8s", got)
	}
	if got := workflow.RetryDelay(workflow.TypeServer, workflow.StepGenerate, 20); got != 5*time.Minute {
		t.Fatalf("late server delay = %v, want cap", got)
	}
}

func TestRetryDelayRateLimitStartsShort(t *testing.T) {
	first := workflow.RetryDelay(workflow.TypeRateLimit, workflow.StepGenerate, 1)
	if first != 2*time.Second {
		t.Fatalf("first rate limit delay = %v, want 2s", first)
	}
	second := workflow.RetryDelay(workflow.TypeRateLimit, workflow.StepGenerate, 2)
	if second != 10*time.Second {
		t.Fatalf("second rate limit delay = %v, want 10s", second)
	}
	third := workflow.RetryDelay(workflow.TypeRateLimit, workflow.StepGenerate, 3)
	if third != 20*time.Second {
		t.Fatalf("third rate limit delay = %v, want 20s", third)
	}
}

func TestRetryDelayCompileUsesLongerBase(t *testing.T) {
	generate := workflow.RetryDelay(workflow.TypeNetwork, workflow.StepGenerate, 1)
	compile := workflow.RetryDelay(workflow.TypeNetwork, workflow.StepCompile, 1)
	if compile != 2*generate {
		t.Fatalf("compile delay = %v, want double of %v", compile, generate)
	}
	merge := workflow.RetryDelay(workflow.TypeNetwork, workflow.StepMerge, 1)
	if merge != compile {
		t.Fatalf("merge delay = %v, want %v", merge, compile)
	}
}

func TestRetryDelayClampsAttempt(t *testing.T) {
	if got := workflow.RetryDelay(workflow.TypeUnknown, workflow.StepValidate, 0); got != 3*time.Second {
		t.Fatalf("attempt 0 delay = %v, want base 3s", got)
	}
}

func TestIdempotencyKeyIsStable(t *testing.T) {
	a := workflow.IdempotencyKey("compile:scene-1", "compile", "run-1")
	b := workflow.IdempotencyKey("compile:scene-1", "compile", "run-1")
	if a != b {
		t.Fatalf("same inputs produced different keys: %s vs %s", a, b)
	}
	if c := workflow.IdempotencyKey("compile:scene-2", "compile", "run-1"); c == a {
		t.Fatalf("different steps produced identical key %s", a)
	}
	if d := workflow.IdempotencyKey("compile:scene-1", "compile", "run-2"); d == a {
		t.Fatalf("different runs produced identical key %s", a)
	}
}
