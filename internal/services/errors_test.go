package services_test

import (
	"errors"
	"strings"
	"testing"

	"sceneforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "compile", "render", "renderer exited nonzero", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"compile", "render", "renderer exited nonzero"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "upload", "put", "storage unavailable", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestDetailsStripsMarkerPrefix(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "segment", "scan", "no entry point", nil)
	details := services.Details(err)
	if strings.Contains(details.Message, services.ErrValidation.Error()) {
		t.Fatalf("expected marker prefix stripped, got %q", details.Message)
	}
	if !strings.Contains(details.Message, "no entry point") {
		t.Fatalf("expected message retained, got %q", details.Message)
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &services.HTTPError{StatusCode: 429, Body: "slow down"}
	if got := err.Error(); !strings.Contains(got, "429") || !strings.Contains(got, "slow down") {
		t.Fatalf("unexpected message: %q", got)
	}
}
