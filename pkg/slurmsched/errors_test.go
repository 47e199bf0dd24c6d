package slurmsched

import (
	"errors"
	"fmt"
	"testing"
)

func TestSchedulerErrorIsSentinel(t *testing.T) {
	err := newError(KindJobBlocked, 42, "blocked forever", nil)

	if !errors.Is(err, ErrJobBlocked) {
		t.Error("errors.Is(err, ErrJobBlocked) = false, want true")
	}

	if errors.Is(err, ErrTimedOut) {
		t.Error("errors.Is(err, ErrTimedOut) = true, want false")
	}
}

func TestSchedulerErrorWrapsCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := newError(KindCommandFailure, 7, "sacct failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	if !errors.Is(err, ErrCommandFailure) {
		t.Error("errors.Is(err, ErrCommandFailure) = false, want true")
	}
}

func TestSchedulerErrorAs(t *testing.T) {
	err := fmt.Errorf("submit: %w", newError(KindTimedOut, 1, "", nil))

	var schedErr *SchedulerError
	if !errors.As(err, &schedErr) {
		t.Fatal("errors.As() = false, want true")
	}

	if schedErr.Kind != KindTimedOut {
		t.Errorf("schedErr.Kind = %v, want KindTimedOut", schedErr.Kind)
	}
}

func TestKindString(t *testing.T) {
	if KindJobBlocked.String() != "job_blocked" {
		t.Errorf("KindJobBlocked.String() = %q, want job_blocked", KindJobBlocked.String())
	}

	if Kind(999).String() != "unknown" {
		t.Errorf("Kind(999).String() = %q, want unknown", Kind(999).String())
	}
}
