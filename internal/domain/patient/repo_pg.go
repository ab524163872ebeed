package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/domain/person"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/pkg/pagination"
)

type patientRepoPG struct {
	pool    *pgxpool.Pool
	persons person.PersonRepository
	tx      db.Transactor
}

func NewRepoPG(pool *pgxpool.Pool, persons person.PersonRepository, tx db.Transactor) Repository {
	return &patientRepoPG{pool: pool, persons: persons, tx: tx}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = person.Columns + `, pt.contact_phone, pt.insurance_id, pt.supporter_id`

const patientFrom = ` FROM person p JOIN patient pt ON pt.id = p.id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	dest := append(person.ScanDest(&p.Person), &p.ContactPhone, &p.InsuranceID, &p.SupporterID)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.Role = person.RolePatient
	return r.tx.InTx(ctx, func(ctx context.Context) error {
		if err := r.persons.Create(ctx, &p.Person); err != nil {
			return err
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO patient (id, contact_phone, insurance_id, supporter_id)
			VALUES ($1, $2, $3, $4)`,
			p.ID, p.ContactPhone, p.InsuranceID, p.SupporterID)
		if err != nil {
			return fmt.Errorf("insert patient: %w", db.Classify(err))
		}
		return nil
	})
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) (bool, error) {
	prev, prevUpdated := p.Version, p.UpdatedAt
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		ok, err := r.persons.Update(ctx, &p.Person)
		if err != nil {
			return err
		}
		if !ok {
			return db.ErrNoChange
		}
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE patient SET contact_phone = $2, insurance_id = $3, supporter_id = $4
			WHERE id = $1`,
			p.ID, p.ContactPhone, p.InsuranceID, p.SupporterID)
		if err != nil {
			return fmt.Errorf("update patient: %w", db.Classify(err))
		}
		if tag.RowsAffected() != 1 {
			return db.ErrNoChange
		}
		return nil
	})
	if err != nil {
		p.Version, p.UpdatedAt = prev, prevUpdated
		if errors.Is(err, db.ErrNoChange) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete patient: %w", db.Classify(err))
		}
		if tag.RowsAffected() != 1 {
			return db.ErrNoChange
		}
		ok, err := r.persons.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return db.ErrNoChange
		}
		return nil
	})
	if errors.Is(err, db.ErrNoChange) {
		return false, nil
	}
	return err == nil, err
}

func (r *patientRepoPG) getOne(ctx context.Context, where string, arg interface{}) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return p, err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `p.id = $1`, id)
}

func (r *patientRepoPG) GetByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	return r.getOne(ctx, `p.national_id = $1`, nationalID)
}

func (r *patientRepoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patient WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *patientRepoPG) list(ctx context.Context, where string, page pagination.Params, args ...interface{}) ([]*Patient, int, error) {
	page = page.Normalize()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+patientFrom+` WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+patientFrom+` WHERE `+where+` ORDER BY p.full_name, p.id `+page.SQL(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) List(ctx context.Context, page pagination.Params) ([]*Patient, int, error) {
	return r.list(ctx, `TRUE`, page)
}

func (r *patientRepoPG) ListBySupporter(ctx context.Context, supporterID uuid.UUID, page pagination.Params) ([]*Patient, int, error) {
	return r.list(ctx, `pt.supporter_id = $1`, page, supporterID)
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&n)
	return n, err
}

func (r *patientRepoPG) SupporterOf(ctx context.Context, patientID uuid.UUID) (*uuid.UUID, bool, error) {
	var supporterID *uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT supporter_id FROM patient WHERE id = $1`, patientID).Scan(&supporterID)
	if db.IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return supporterID, true, nil
}

func (r *patientRepoPG) SetSupporter(ctx context.Context, patientID uuid.UUID, supporterID *uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE patient SET supporter_id = $2 WHERE id = $1`, patientID, supporterID)
	if err != nil {
		return false, fmt.Errorf("set patient supporter: %w", db.Classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *patientRepoPG) CountBySupporter(ctx context.Context, supporterID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE supporter_id = $1`, supporterID).Scan(&n)
	return n, err
}
