package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/carelink/carelink/pkg/pagination"
)

// Repository writes the person and patient rows as one unit.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByNationalID(ctx context.Context, nationalID string) (*Patient, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, page pagination.Params) ([]*Patient, int, error)
	ListBySupporter(ctx context.Context, supporterID uuid.UUID, page pagination.Params) ([]*Patient, int, error)
	Count(ctx context.Context) (int, error)

	// SupporterOf returns the linked supporter (nil when unlinked) and whether
	// the patient exists.
	SupporterOf(ctx context.Context, patientID uuid.UUID) (*uuid.UUID, bool, error)
	// SetSupporter writes only supporter_id; the version is left alone.
	SetSupporter(ctx context.Context, patientID uuid.UUID, supporterID *uuid.UUID) (bool, error)
	CountBySupporter(ctx context.Context, supporterID uuid.UUID) (int, error)
}
