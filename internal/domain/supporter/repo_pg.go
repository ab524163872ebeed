package supporter

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

type supporterRepoPG struct {
	pool    *pgxpool.Pool
	persons person.PersonRepository
	tx      db.Transactor
}

func NewRepoPG(pool *pgxpool.Pool, persons person.PersonRepository, tx db.Transactor) Repository {
	return &supporterRepoPG{pool: pool, persons: persons, tx: tx}
}

func (r *supporterRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const supporterCols = person.Columns + `, s.job_title, s.practice_area`

const supporterFrom = ` FROM person p JOIN supporter s ON s.id = p.id`

func scanSupporter(row pgx.Row) (*Supporter, error) {
	var s Supporter
	dest := append(person.ScanDest(&s.Person), &s.JobTitle, &s.PracticeArea)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *supporterRepoPG) Create(ctx context.Context, s *Supporter) error {
	s.Role = person.RoleSupporter
	return r.tx.InTx(ctx, func(ctx context.Context) error {
		if err := r.persons.Create(ctx, &s.Person); err != nil {
			return err
		}
		_, err := r.conn(ctx).Exec(ctx,
			`INSERT INTO supporter (id, job_title, practice_area) VALUES ($1, $2, $3)`,
			s.ID, s.JobTitle, s.PracticeArea)
		if err != nil {
			return fmt.Errorf("insert supporter: %w", db.Classify(err))
		}
		return nil
	})
}

func (r *supporterRepoPG) Update(ctx context.Context, s *Supporter) (bool, error) {
	prev, prevUpdated := s.Version, s.UpdatedAt
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		ok, err := r.persons.Update(ctx, &s.Person)
		if err != nil {
			return err
		}
		if !ok {
			return db.ErrNoChange
		}
		tag, err := r.conn(ctx).Exec(ctx,
			`UPDATE supporter SET job_title = $2, practice_area = $3 WHERE id = $1`,
			s.ID, s.JobTitle, s.PracticeArea)
		if err != nil {
			return fmt.Errorf("update supporter: %w", db.Classify(err))
		}
		if tag.RowsAffected() != 1 {
			return db.ErrNoChange
		}
		return nil
	})
	if err != nil {
		s.Version, s.UpdatedAt = prev, prevUpdated
		if errors.Is(err, db.ErrNoChange) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *supporterRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM supporter WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete supporter: %w", db.Classify(err))
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

func (r *supporterRepoPG) getOne(ctx context.Context, where string, arg interface{}) (*Supporter, error) {
	s, err := scanSupporter(r.conn(ctx).QueryRow(ctx, `SELECT `+supporterCols+supporterFrom+` WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return s, err
}

func (r *supporterRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Supporter, error) {
	return r.getOne(ctx, `p.id = $1`, id)
}

func (r *supporterRepoPG) GetByNationalID(ctx context.Context, nationalID string) (*Supporter, error) {
	return r.getOne(ctx, `p.national_id = $1`, nationalID)
}

func (r *supporterRepoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM supporter WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *supporterRepoPG) list(ctx context.Context, where string, page pagination.Params, args ...interface{}) ([]*Supporter, int, error) {
	page = page.Normalize()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+supporterFrom+` WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+supporterCols+supporterFrom+` WHERE `+where+` ORDER BY p.full_name, p.id `+page.SQL(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Supporter
	for rows.Next() {
		s, err := scanSupporter(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *supporterRepoPG) List(ctx context.Context, page pagination.Params) ([]*Supporter, int, error) {
	return r.list(ctx, `TRUE`, page)
}

func (r *supporterRepoPG) ListByJobTitle(ctx context.Context, jobTitle string, page pagination.Params) ([]*Supporter, int, error) {
	return r.list(ctx, `s.job_title = $1`, page, jobTitle)
}

func (r *supporterRepoPG) ListJobTitles(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT DISTINCT job_title FROM supporter ORDER BY job_title`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *supporterRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM supporter`).Scan(&n)
	return n, err
}
