package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrCompilation   = errors.New("compilation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrRateLimited   = errors.New("rate limited")
	ErrProvider      = errors.New("provider error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// HTTPError carries the status code and optional Retry-After hint of a failed
// HTTP exchange so workflow classification can distinguish client, server and
// rate-limit failures.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, body)
}

// Detail captures the human-readable portion of a wrapped service error.
type Detail struct {
	Message string
}

// Details extracts the message portion of an error produced by Wrap, falling
// back to the raw error string.
func Details(err error) Detail {
	if err == nil {
		return Detail{}
	}
	msg := err.Error()
	for _, marker := range []error{
		ErrExternalTool, ErrValidation, ErrCompilation, ErrConfiguration,
		ErrNotFound, ErrTimeout, ErrRateLimited, ErrProvider, ErrTransient,
	} {
		prefix := marker.Error() + ": "
		if errors.Is(err, marker) && strings.HasPrefix(msg, prefix) {
			return Detail{Message: strings.TrimPrefix(msg, prefix)}
		}
	}
	return Detail{Message: msg}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
