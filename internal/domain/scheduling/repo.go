package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/pkg/pagination"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	// GetByID returns nil, nil when the appointment does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update, UpdateStatus and UpdateNotes write only when the stored version
	// equals expected and report whether they did.
	Update(ctx context.Context, a *Appointment) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected int64, status Status) (bool, error)
	UpdateNotes(ctx context.Context, id uuid.UUID, expected int64, notes *string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	CurrentVersion(ctx context.Context, id uuid.UUID) (int64, bool, error)

	// LockDoctor serializes bookings for one doctor until the surrounding
	// transaction ends.
	LockDoctor(ctx context.Context, doctorName string) error
	// HasConflict reports a non-cancelled appointment of doctorName whose slot
	// overlaps the one starting at when, ignoring excludeID.
	HasConflict(ctx context.Context, doctorName string, when time.Time, excludeID uuid.UUID) (bool, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, page pagination.Params) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorName string, page pagination.Params) ([]*Appointment, int, error)
	ListByStatus(ctx context.Context, status Status, page pagination.Params) ([]*Appointment, int, error)
	// ListScheduledBetween returns SCHEDULED appointments in [from, to) ordered by time.
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	Count(ctx context.Context) (int, error)
}
