package scheduling

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/pkg/pagination"
)

// PatientChecker reports whether a patient exists.
type PatientChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

var (
	errNotFuture   = apperr.Validation("must be in the future")
	errUnavailable = apperr.Validation("doctor unavailable")
)

type Service struct {
	appointments AppointmentRepository
	patients     PatientChecker
	tx           db.Transactor
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(appointments AppointmentRepository, patients PatientChecker, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appointments,
		patients:     patients,
		tx:           tx,
		logger:       logger.With().Str("component", "scheduling").Logger(),
		now:          time.Now,
	}
}

func (s *Service) checkPatient(ctx context.Context, id uuid.UUID) error {
	exists, err := s.patients.Exists(ctx, id)
	if err != nil {
		return apperr.Storage("check patient", err)
	}
	if !exists {
		return apperr.NotFound(apperr.KindPatient, id)
	}
	return nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get appointment", err)
	}
	if a == nil {
		return nil, apperr.NotFound(apperr.KindAppointment, id)
	}
	return a, nil
}

func (s *Service) conflict(ctx context.Context, id uuid.UUID, expected int64) error {
	actual, found, err := s.appointments.CurrentVersion(ctx, id)
	if err != nil {
		return apperr.Storage("read appointment version", err)
	}
	if !found {
		actual = -1
	}
	s.logger.Warn().Stringer("appointment_id", id).Int64("expected_version", expected).Int64("actual_version", actual).Msg("appointment version conflict")
	return apperr.Conflict(apperr.KindAppointment, id, expected, actual)
}

// ensureSlot takes the doctor's booking lock and fails if the slot at when is
// taken by another appointment. It must run inside a transaction.
func (s *Service) ensureSlot(ctx context.Context, doctorName string, when time.Time, excludeID uuid.UUID) error {
	if err := s.appointments.LockDoctor(ctx, doctorName); err != nil {
		return apperr.Storage("lock doctor schedule", err)
	}
	taken, err := s.appointments.HasConflict(ctx, doctorName, when, excludeID)
	if err != nil {
		return apperr.Storage("check doctor availability", err)
	}
	if taken {
		return errUnavailable
	}
	return nil
}

// writeError maps an appointment write failure; a foreign key violation means
// the patient was deleted after it was checked.
func writeError(op string, patientID uuid.UUID, err error) error {
	if errors.Is(err, db.ErrForeignKeyViolation) {
		return apperr.NotFound(apperr.KindPatient, patientID)
	}
	return apperr.Storage(op, err)
}

func validateStatus(status Status) error {
	if !status.Valid() {
		return apperr.Validation("invalid status: %s", status)
	}
	return nil
}

// Schedule books a. Checks run in order: patient exists, time is in the
// future, doctor is free, status is valid. The availability check and the
// insert share one transaction.
func (s *Service) Schedule(ctx context.Context, a *Appointment) error {
	if err := s.checkPatient(ctx, a.PatientID); err != nil {
		return err
	}
	if !a.ScheduledAt.After(s.now()) {
		return errNotFuture
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.ensureSlot(ctx, a.DoctorName, a.ScheduledAt, uuid.Nil); err != nil {
			return err
		}
		if a.Status == "" {
			a.Status = StatusScheduled
		}
		if err := validateStatus(a.Status); err != nil {
			return err
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			return writeError("create appointment", a.PatientID, err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor", a.DoctorName).Time("scheduled_at", a.ScheduledAt).Msg("appointment not scheduled")
		return apperr.Storage("schedule appointment", err)
	}
	s.logger.Info().Stringer("appointment_id", a.ID).Str("doctor", a.DoctorName).Time("scheduled_at", a.ScheduledAt).Msg("appointment scheduled")
	return nil
}

// Update replaces the appointment's fields. The doctor's availability is
// re-checked only when the doctor or the time changes. An empty status keeps
// the stored one; a different status must be a legal transition.
func (s *Service) Update(ctx context.Context, id uuid.UUID, a *Appointment) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkPatient(ctx, a.PatientID); err != nil {
			return err
		}

		if a.DoctorName != current.DoctorName || !a.ScheduledAt.Equal(current.ScheduledAt) {
			if err := s.ensureSlot(ctx, a.DoctorName, a.ScheduledAt, id); err != nil {
				return err
			}
		}

		if a.Status == "" {
			a.Status = current.Status
		}
		if err := validateStatus(a.Status); err != nil {
			return err
		}
		if a.Status != current.Status && !current.Status.CanTransitionTo(a.Status) {
			return apperr.Validation("invalid status transition from %s to %s", current.Status, a.Status)
		}
		if a.Notes != nil && utf8.RuneCountInString(*a.Notes) > MaxNotesLength {
			return apperr.Validation("notes exceed %d characters", MaxNotesLength)
		}

		a.ID = id
		a.Version = current.Version
		a.CreatedAt = current.CreatedAt
		ok, err := s.appointments.Update(ctx, a)
		if err != nil {
			return writeError("update appointment", a.PatientID, err)
		}
		if !ok {
			return s.conflict(ctx, id, current.Version)
		}
		return nil
	})
	if err != nil {
		return apperr.Storage("update appointment", err)
	}
	s.logger.Info().Stringer("appointment_id", id).Int64("version", a.Version).Msg("appointment updated")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.get(ctx, id)
}

// IsCancellable reports whether Cancel would accept the appointment now.
func (s *Service) IsCancellable(ctx context.Context, id uuid.UUID) (bool, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return false, err
	}
	return a.Cancellable(s.now()), nil
}

// Cancel moves a SCHEDULED appointment to CANCELLED, but only while it is
// more than CancelLeadTime away.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	a, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != StatusScheduled {
		return apperr.Validation("only scheduled appointments can be cancelled, status is %s", a.Status)
	}
	if !a.Cancellable(s.now()) {
		return apperr.Validation("appointments can only be cancelled more than %s in advance", CancelLeadTime)
	}
	return s.writeStatus(ctx, a, StatusCancelled)
}

// SetStatus applies a status transition directly. It enforces the state
// machine but not the cancellation lead time.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	a, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !a.Status.CanTransitionTo(status) {
		return apperr.Validation("invalid status transition from %s to %s", a.Status, status)
	}
	return s.writeStatus(ctx, a, status)
}

func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.SetStatus(ctx, id, StatusCompleted)
}

func (s *Service) writeStatus(ctx context.Context, a *Appointment, status Status) error {
	ok, err := s.appointments.UpdateStatus(ctx, a.ID, a.Version, status)
	if err != nil {
		return apperr.Storage("update appointment status", err)
	}
	if !ok {
		return s.conflict(ctx, a.ID, a.Version)
	}
	s.logger.Info().Stringer("appointment_id", a.ID).Str("from", string(a.Status)).Str("to", string(status)).Msg("appointment status changed")
	return nil
}

// AddNotes replaces the appointment's notes.
func (s *Service) AddNotes(ctx context.Context, id uuid.UUID, notes string) error {
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return apperr.Validation("notes exceed %d characters", MaxNotesLength)
	}
	a, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.appointments.UpdateNotes(ctx, id, a.Version, &notes)
	if err != nil {
		return apperr.Storage("update appointment notes", err)
	}
	if !ok {
		return s.conflict(ctx, id, a.Version)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.appointments.Delete(ctx, id)
	if err != nil {
		return apperr.Storage("delete appointment", err)
	}
	if !ok {
		return apperr.NotFound(apperr.KindAppointment, id)
	}
	s.logger.Info().Stringer("appointment_id", id).Msg("appointment deleted")
	return nil
}

// IsSlotAvailable reports whether doctorName is free for a slot starting at
// when, ignoring excludeID (uuid.Nil for none).
func (s *Service) IsSlotAvailable(ctx context.Context, doctorName string, when time.Time, excludeID uuid.UUID) (bool, error) {
	taken, err := s.appointments.HasConflict(ctx, doctorName, when, excludeID)
	if err != nil {
		return false, apperr.Storage("check doctor availability", err)
	}
	return !taken, nil
}

// CheckAvailability is IsSlotAvailable for a prospective booking; past times
// are rejected.
func (s *Service) CheckAvailability(ctx context.Context, doctorName string, when time.Time) (bool, error) {
	if !when.After(s.now()) {
		return false, errNotFuture
	}
	return s.IsSlotAvailable(ctx, doctorName, when, uuid.Nil)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, page pagination.Params) ([]*Appointment, int, error) {
	if err := s.checkPatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.appointments.ListByPatient(ctx, patientID, page.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage("list appointments by patient", err)
	}
	return items, total, nil
}

func (s *Service) ListByDoctor(ctx context.Context, doctorName string, page pagination.Params) ([]*Appointment, int, error) {
	items, total, err := s.appointments.ListByDoctor(ctx, doctorName, page.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage("list appointments by doctor", err)
	}
	return items, total, nil
}

func (s *Service) ListByStatus(ctx context.Context, status Status, page pagination.Params) ([]*Appointment, int, error) {
	if err := validateStatus(status); err != nil {
		return nil, 0, err
	}
	items, total, err := s.appointments.ListByStatus(ctx, status, page.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage("list appointments by status", err)
	}
	return items, total, nil
}

// Today lists the scheduled appointments of the current calendar day, in the
// clock's location, ordered by time.
func (s *Service) Today(ctx context.Context) ([]*Appointment, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	items, err := s.appointments.ListScheduledBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, apperr.Storage("list today's appointments", err)
	}
	return items, nil
}

func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	counts, err := s.appointments.CountByStatus(ctx)
	if err != nil {
		return nil, apperr.Storage("count appointments by status", err)
	}
	return counts, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.appointments.Count(ctx)
	if err != nil {
		return 0, apperr.Storage("count appointments", err)
	}
	return n, nil
}
