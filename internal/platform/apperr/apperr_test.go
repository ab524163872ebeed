package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestKinds_AreDistinguishable(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name       string
		err        error
		validation bool
		notFound   bool
		conflict   bool
		storage    bool
	}{
		{"validation", Validation("must be in the future"), true, false, false, false},
		{"not found", NotFound(KindPatient, id), false, true, false, false},
		{"conflict", Conflict(KindPerson, id, 3, 4), false, false, true, false},
		{"storage", Storage("insert person", errors.New("connection reset")), false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("service: %w", tt.err)
			if got := IsValidation(wrapped); got != tt.validation {
				t.Errorf("IsValidation = %v, want %v", got, tt.validation)
			}
			if got := IsNotFound(wrapped); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
			if got := IsConflict(wrapped); got != tt.conflict {
				t.Errorf("IsConflict = %v, want %v", got, tt.conflict)
			}
			if got := IsStorage(wrapped); got != tt.storage {
				t.Errorf("IsStorage = %v, want %v", got, tt.storage)
			}
		})
	}
}

func TestStorage_KeepsDomainKinds(t *testing.T) {
	nf := NotFound(KindSupporter, "abc")
	if got := Storage("link", nf); got != nf {
		t.Errorf("expected NotFound to pass through unchanged, got %v", got)
	}
	if Storage("noop", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestStorage_Unwraps(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := Storage("update appointment", cause)
	if !errors.Is(err, cause) {
		t.Error("expected StorageError to unwrap to its cause")
	}
}

func TestConflictError_Message(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	err := Conflict(KindAppointment, id, 2, 3)
	want := "Appointment 11111111-2222-3333-4444-555555555555 was modified concurrently: expected version 2, current version 3"
	if err.Error() != want {
		t.Errorf("unexpected message: %s", err.Error())
	}
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.Expected != 2 || ce.Actual != 3 {
		t.Errorf("expected versions 2/3, got %+v", ce)
	}
}
