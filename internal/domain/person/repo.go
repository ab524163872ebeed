package person

import (
	"context"

	"github.com/google/uuid"

	"github.com/carelink/carelink/pkg/pagination"
)

// PersonRepository persists the shared person attributes. Every method runs on
// the transaction carried by ctx when there is one.
type PersonRepository interface {
	// Create assigns a new id and version 0.
	Create(ctx context.Context, p *Person) error
	// Update applies p only if the stored version equals p.Version and reports
	// whether it did. On success p.Version holds the new version.
	Update(ctx context.Context, p *Person) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// GetByID and GetByNationalID return nil, nil when nothing matches.
	GetByID(ctx context.Context, id uuid.UUID) (*Person, error)
	GetByNationalID(ctx context.Context, nationalID string) (*Person, error)
	ExistsNationalIDForOther(ctx context.Context, nationalID string, excludeID uuid.UUID) (bool, error)
	CurrentVersion(ctx context.Context, id uuid.UUID) (int64, bool, error)
	List(ctx context.Context, page pagination.Params) ([]*Person, int, error)
	ListByAgeRange(ctx context.Context, minAge, maxAge int, page pagination.Params) ([]*Person, int, error)
	ListByPostalCode(ctx context.Context, postalCode string, page pagination.Params) ([]*Person, int, error)
	Count(ctx context.Context) (int, error)
}
