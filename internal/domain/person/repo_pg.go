package person

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/pkg/pagination"
)

type personRepoPG struct{ pool *pgxpool.Pool }

func NewPersonRepoPG(pool *pgxpool.Pool) PersonRepository {
	return &personRepoPG{pool: pool}
}

func (r *personRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func scanRow(row pgx.Row) (*Person, error) {
	var p Person
	if err := row.Scan(ScanDest(&p)...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *personRepoPG) Create(ctx context.Context, p *Person) error {
	p.ID = uuid.New()
	p.Version = 0
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO person (id, version, role, full_name, age, national_id,
			postal_code, number, complement, phone, credential)
		VALUES ($1, 0, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.ID, p.Role, p.FullName, p.Age, p.NationalID,
		p.PostalCode, p.Number, p.Complement, p.Phone, p.Credential,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert person: %w", db.Classify(err))
	}
	return nil
}

// Update keeps the stored credential when p.Credential is empty.
func (r *personRepoPG) Update(ctx context.Context, p *Person) (bool, error) {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE person SET full_name = $3, age = $4, national_id = $5,
			postal_code = $6, number = $7, complement = $8, phone = $9,
			credential = COALESCE(NULLIF($10, ''), credential),
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		p.ID, p.Version, p.FullName, p.Age, p.NationalID,
		p.PostalCode, p.Number, p.Complement, p.Phone, p.Credential,
	).Scan(&p.Version, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update person: %w", db.Classify(err))
	}
	return true, nil
}

func (r *personRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM person WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete person: %w", db.Classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *personRepoPG) getOne(ctx context.Context, where string, arg interface{}) (*Person, error) {
	p, err := scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+Columns+` FROM person p WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return p, err
}

func (r *personRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Person, error) {
	return r.getOne(ctx, `p.id = $1`, id)
}

func (r *personRepoPG) GetByNationalID(ctx context.Context, nationalID string) (*Person, error) {
	return r.getOne(ctx, `p.national_id = $1`, nationalID)
}

func (r *personRepoPG) ExistsNationalIDForOther(ctx context.Context, nationalID string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM person WHERE national_id = $1 AND id <> $2)`,
		nationalID, excludeID).Scan(&exists)
	return exists, err
}

func (r *personRepoPG) CurrentVersion(ctx context.Context, id uuid.UUID) (int64, bool, error) {
	var v int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT version FROM person WHERE id = $1`, id).Scan(&v)
	if db.IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (r *personRepoPG) list(ctx context.Context, where string, page pagination.Params, args ...interface{}) ([]*Person, int, error) {
	page = page.Normalize()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM person p WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+Columns+` FROM person p WHERE `+where+` ORDER BY p.full_name, p.id `+page.SQL(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Person
	for rows.Next() {
		p, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *personRepoPG) List(ctx context.Context, page pagination.Params) ([]*Person, int, error) {
	return r.list(ctx, `TRUE`, page)
}

func (r *personRepoPG) ListByAgeRange(ctx context.Context, minAge, maxAge int, page pagination.Params) ([]*Person, int, error) {
	return r.list(ctx, `p.age BETWEEN $1 AND $2`, page, minAge, maxAge)
}

func (r *personRepoPG) ListByPostalCode(ctx context.Context, postalCode string, page pagination.Params) ([]*Person, int, error) {
	return r.list(ctx, `p.postal_code = $1`, page, postalCode)
}

func (r *personRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM person`).Scan(&n)
	return n, err
}
