package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeWriteFailed, "units.update", cause)
	if !IsCode(err, CodeWriteFailed) {
		t.Fatalf("expected write_failed, got %q", CodeOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(CodeFatal, "op", nil) != nil {
		t.Fatalf("wrapping nil must stay nil")
	}
}

func TestCodeOfThroughFmtWrap(t *testing.T) {
	inner := NewError(CodeFatal, "snapshot.load", "timed out", nil)
	outer := fmt.Errorf("start session: %w", inner)
	if got := CodeOf(outer); got != CodeFatal {
		t.Fatalf("CodeOf: want fatal got %q", got)
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}

func TestErrorString(t *testing.T) {
	err := NewError(CodeValidation, "grade", "score out of range", nil)
	if got := err.Error(); got != "grade: score out of range (validation)" {
		t.Fatalf("unexpected message %q", got)
	}
}
