package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"shelfrate/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "catalog", "update", "patch rejected", base)
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
	for _, fragment := range []string{"catalog", "update", "patch rejected"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not found", err: services.Wrap(services.ErrNotFound, "audible", "fetch", "no page", nil), want: services.KindNotFound},
		{name: "transient", err: services.Wrap(services.ErrTransient, "goodreads", "search", "429", nil), want: services.KindTransient},
		{name: "deadline", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), want: services.KindTransient},
		{name: "timeout marker", err: services.ErrTimeout, want: services.KindTransient},
		{name: "config", err: services.Wrap(services.ErrConfiguration, "config", "load", "bad", nil), want: services.KindConfiguration},
		{name: "validation", err: services.ErrValidation, want: services.KindValidation},
		{name: "other", err: errors.New("boom"), want: services.KindFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify() = %q, want %q", got, tc.want)
			}
		})
	}
}
