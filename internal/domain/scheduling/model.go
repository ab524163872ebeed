package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

const (
	// SlotLength is how long a consultation occupies its doctor.
	SlotLength = 30 * time.Minute
	// CancelLeadTime is how far ahead an appointment must be to be cancellable.
	CancelLeadTime = 2 * time.Hour
	MaxNotesLength = 500
)

var validStatuses = map[Status]bool{
	StatusScheduled: true,
	StatusCompleted: true,
	StatusCancelled: true,
}

// transitions lists the allowed exits of each status; terminal states have none.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool { return validStatuses[s] }

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// Appointment is a remote consultation between a patient and a doctor.
type Appointment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Version     int64     `db:"version" json:"version"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorName  string    `db:"doctor_name" json:"doctor_name"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Status      Status    `db:"status" json:"status"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Cancellable reports whether a is still scheduled and more than
// CancelLeadTime ahead of now.
func (a *Appointment) Cancellable(now time.Time) bool {
	return a.Status == StatusScheduled && a.ScheduledAt.After(now.Add(CancelLeadTime))
}

// Overlaps reports whether slots starting at a and b share any instant.
func Overlaps(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < SlotLength
}
