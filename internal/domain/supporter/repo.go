package supporter

import (
	"context"

	"github.com/google/uuid"

	"github.com/carelink/carelink/pkg/pagination"
)

// Repository writes the person and supporter rows as one unit.
type Repository interface {
	Create(ctx context.Context, s *Supporter) error
	// Update reports false when the person version check misses or the id is
	// not a supporter; nothing is written in that case.
	Update(ctx context.Context, s *Supporter) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Supporter, error)
	GetByNationalID(ctx context.Context, nationalID string) (*Supporter, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, page pagination.Params) ([]*Supporter, int, error)
	ListByJobTitle(ctx context.Context, jobTitle string, page pagination.Params) ([]*Supporter, int, error)
	ListJobTitles(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}
