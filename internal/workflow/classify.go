package workflow

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"sceneforge/internal/services"
)

// ErrorType buckets a step failure for retry policy.
type ErrorType string

const (
	TypeRateLimit   ErrorType = "rate_limit"
	TypeTimeout     ErrorType = "timeout"
	TypeNetwork     ErrorType = "network_error"
	TypeServer      ErrorType = "server_error"
	TypeProvider    ErrorType = "provider_error"
	TypeValidation  ErrorType = "validation_error"
	TypeCompilation ErrorType = "compilation_error"
	TypeClient      ErrorType = "client_error"
	TypeUnknown     ErrorType = "unknown"
)

// IsRetryable reports whether the workflow engine may retry this failure.
// Validation, compilation, and client errors indicate bad input rather than a
// transient condition and are never retried.
func (t ErrorType) IsRetryable() bool {
	switch t {
	case TypeValidation, TypeCompilation, TypeClient:
		return false
	default:
		return true
	}
}

// Classify maps an error to its type. Matching is first-match by precedence:
// rate limit, timeout, network, server, provider, validation, compilation,
// client, unknown. The result is deterministic for a fixed error.
func Classify(err error) ErrorType {
	if err == nil {
		return TypeUnknown
	}

	var httpErr *services.HTTPError
	hasHTTP := errors.As(err, &httpErr)
	message := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, services.ErrRateLimited),
		hasHTTP && httpErr.StatusCode == http.StatusTooManyRequests,
		containsAny(message, "rate limit", "too many requests"):
		return TypeRateLimit

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, services.ErrTimeout),
		isNetTimeout(err),
		hasHTTP && httpErr.StatusCode == http.StatusRequestTimeout,
		containsAny(message, "timeout", "timed out", "deadline exceeded"):
		return TypeTimeout

	case isNetworkError(err),
		containsAny(message, "connection refused", "connection reset", "no such host", "network is unreachable", "broken pipe"):
		return TypeNetwork

	case hasHTTP && httpErr.StatusCode >= http.StatusInternalServerError:
		return TypeServer

	case errors.Is(err, services.ErrProvider),
		containsAny(message, "provider error", "model overloaded", "service unavailable"):
		return TypeProvider

	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrConfiguration),
		containsAny(message, "validation", "invalid input"):
		return TypeValidation

	case errors.Is(err, services.ErrCompilation),
		containsAny(message, "compilation", "render failed", "traceback"):
		return TypeCompilation

	case hasHTTP && httpErr.StatusCode >= http.StatusBadRequest:
		return TypeClient

	default:
		return TypeUnknown
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return !errors.Is(err, context.Canceled)
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func containsAny(message string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(message, needle) {
			return true
		}
	}
	return false
}
