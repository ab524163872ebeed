package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/pkg/pagination"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, version, patient_id, doctor_name, scheduled_at, status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Version, &a.PatientID, &a.DoctorName, &a.ScheduledAt,
		&a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.Version = 0
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, version, patient_id, doctor_name, scheduled_at, status, notes)
		VALUES ($1, 0, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorName, a.ScheduledAt, a.Status, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", db.Classify(err))
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return a, err
}

// casUpdate runs an UPDATE guarded by "id = $1 AND version = $2" that returns
// the new version and update time.
func (r *appointmentRepoPG) casUpdate(ctx context.Context, op, set string, args ...interface{}) (int64, time.Time, bool, error) {
	var (
		version int64
		updated time.Time
	)
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE appointment SET `+set+`, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 RETURNING version, updated_at`, args...,
	).Scan(&version, &updated)
	if db.IsNoRows(err) {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("%s: %w", op, db.Classify(err))
	}
	return version, updated, true, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) (bool, error) {
	v, at, ok, err := r.casUpdate(ctx, "update appointment",
		`patient_id = $3, doctor_name = $4, scheduled_at = $5, status = $6, notes = $7`,
		a.ID, a.Version, a.PatientID, a.DoctorName, a.ScheduledAt, a.Status, a.Notes)
	if ok {
		a.Version, a.UpdatedAt = v, at
	}
	return ok, err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, expected int64, status Status) (bool, error) {
	_, _, ok, err := r.casUpdate(ctx, "update appointment status", `status = $3`, id, expected, status)
	return ok, err
}

func (r *appointmentRepoPG) UpdateNotes(ctx context.Context, id uuid.UUID, expected int64, notes *string) (bool, error) {
	_, _, ok, err := r.casUpdate(ctx, "update appointment notes", `notes = $3`, id, expected, notes)
	return ok, err
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete appointment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepoPG) CurrentVersion(ctx context.Context, id uuid.UUID) (int64, bool, error) {
	var v int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT version FROM appointment WHERE id = $1`, id).Scan(&v)
	if db.IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (r *appointmentRepoPG) LockDoctor(ctx context.Context, doctorName string) error {
	if db.TxFromContext(ctx) == nil {
		return fmt.Errorf("lock doctor %q: no transaction in context", doctorName)
	}
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doctorName)
	return err
}

func (r *appointmentRepoPG) HasConflict(ctx context.Context, doctorName string, when time.Time, excludeID uuid.UUID) (bool, error) {
	var conflict bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_name = $1
			  AND status <> $4
			  AND scheduled_at > $2::timestamptz - make_interval(mins => $3)
			  AND scheduled_at < $2::timestamptz + make_interval(mins => $3)
			  AND id <> $5)`,
		doctorName, when, int(SlotLength/time.Minute), StatusCancelled, excludeID,
	).Scan(&conflict)
	return conflict, err
}

func (r *appointmentRepoPG) list(ctx context.Context, where string, page pagination.Params, args ...interface{}) ([]*Appointment, int, error) {
	page = page.Normalize()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE `+where+` ORDER BY scheduled_at, id `+page.SQL(), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, page pagination.Params) ([]*Appointment, int, error) {
	return r.list(ctx, `patient_id = $1`, page, patientID)
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorName string, page pagination.Params) ([]*Appointment, int, error) {
	return r.list(ctx, `doctor_name = $1`, page, doctorName)
}

func (r *appointmentRepoPG) ListByStatus(ctx context.Context, status Status, page pagination.Params) ([]*Appointment, int, error) {
	return r.list(ctx, `status = $1`, page, status)
}

func (r *appointmentRepoPG) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE status = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at, id`, StatusScheduled, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *appointmentRepoPG) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM appointment GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{StatusScheduled: 0, StatusCompleted: 0, StatusCancelled: 0}
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

func (r *appointmentRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`).Scan(&n)
	return n, err
}
