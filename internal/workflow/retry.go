package workflow

import "time"

// StepType selects per-step retry budgets and timeouts.
type StepType string

const (
	StepGenerate StepType = "generate"
	StepValidate StepType = "validate"
	StepCompile  StepType = "compile"
	StepMerge    StepType = "merge"
	StepUpload   StepType = "upload"
	StepStatus   StepType = "status_update"
)

const (
	maxRetryDelay = 5 * time.Minute
	// rateLimitFirstDelay is deliberately small: the first 429 usually clears
	// quickly, the second means the window is saturated.
	rateLimitFirstDelay = 2 * time.Second
)

// RetryDelay computes the backoff before the given attempt is retried,
// doubling per attempt from a base keyed on error and step type and capped at
// five minutes. The result is non-decreasing in the attempt number.
func RetryDelay(errType ErrorType, step StepType, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if errType == TypeRateLimit && attempt == 1 {
		return rateLimitFirstDelay
	}

	base := baseDelay(errType, step)
	shift := attempt - 1
	if errType == TypeRateLimit {
		shift = attempt - 2
	}
	if shift > 16 {
		return maxRetryDelay
	}
	delay := base << shift
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

func baseDelay(errType ErrorType, step StepType) time.Duration {
	var base time.Duration
	switch errType {
	case TypeRateLimit:
		base = 10 * time.Second
	case TypeTimeout:
		base = 5 * time.Second
	case TypeNetwork:
		base = 2 * time.Second
	case TypeServer:
		base = 4 * time.Second
	case TypeProvider:
		base = 5 * time.Second
	default:
		base = 3 * time.Second
	}
	// Renderer and ffmpeg work is expensive to restart; give external
	// conditions longer to clear before burning an attempt.
	if step == StepCompile || step == StepMerge {
		base *= 2
	}
	return base
}
