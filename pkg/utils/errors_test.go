package utils

import (
	"errors"
	"testing"
)

func TestWrapNilPassesThrough(t *testing.T) {
	if err := Wrap(nil, "anything"); err != nil {
		t.Errorf("Wrap(nil, ...) should return nil, got %v", err)
	}
}

func TestWrapPreservesCauseForUnwrapping(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Wrap(cause, "doing something")
	if wrapped == nil {
		t.Fatalf("Wrap should not return nil for a non-nil error")
	}
	if !errors.Is(wrapped, cause) {
		t.Errorf("errors.Is should see through Wrap to the original cause")
	}
}
