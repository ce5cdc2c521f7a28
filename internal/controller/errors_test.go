package controller

import (
	"errors"
	"testing"
)

func TestDropErrorUnwrapsToSentinel(t *testing.T) {
	err := &DropError{Reason: "short read on header", Err: ErrNoMessage}
	if !errors.Is(err, ErrNoMessage) {
		t.Fatalf("errors.Is(err, ErrNoMessage) = false, want true")
	}
	if err.Error() == "" {
		t.Errorf("DropError.Error() returned an empty string")
	}
}
