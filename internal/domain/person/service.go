package person

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/credential"
	"github.com/carelink/carelink/pkg/pagination"
)

// Service covers every person regardless of role: queries, national id
// availability and credential changes.
type Service struct {
	repo   PersonRepository
	hasher credential.Hasher
	logger zerolog.Logger
}

func NewService(repo PersonRepository, hasher credential.Hasher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		logger: logger.With().Str("component", "person").Logger(),
	}
}

var errWrongCredential = apperr.Validation("current credential incorrect")

func (s *Service) GetPerson(ctx context.Context, id uuid.UUID) (*Person, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get person", err)
	}
	if p == nil {
		return nil, apperr.NotFound(apperr.KindPerson, id)
	}
	return p, nil
}

func (s *Service) GetPersonByNationalID(ctx context.Context, nationalID string) (*Person, error) {
	p, err := s.repo.GetByNationalID(ctx, nationalID)
	if err != nil {
		return nil, apperr.Storage("get person by national id", err)
	}
	if p == nil {
		return nil, apperr.NotFound(apperr.KindPerson, nationalID)
	}
	return p, nil
}

func (s *Service) ListPersons(ctx context.Context, page pagination.Params) ([]*Person, int, error) {
	items, total, err := s.repo.List(ctx, page.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage("list persons", err)
	}
	return items, total, nil
}

func (s *Service) ListByAgeRange(ctx context.Context, minAge, maxAge int, page pagination.Params) ([]*Person, int, error) {
	if minAge < MinAge || maxAge > MaxAge {
		return nil, 0, apperr.Validation("age range must be within %d-%d", MinAge, MaxAge)
	}
	if minAge > maxAge {
		return nil, 0, apperr.Validation("minimum age %d is greater than maximum age %d", minAge, maxAge)
	}
	items, total, err := s.repo.ListByAgeRange(ctx, minAge, maxAge, page.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage("list persons by age", err)
	}
	return items, total, nil
}

func (s *Service) ListByPostalCode(ctx context.Context, postalCode string, page pagination.Params) ([]*Person, int, error) {
	items, total, err := s.repo.ListByPostalCode(ctx, postalCode, page.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage("list persons by postal code", err)
	}
	return items, total, nil
}

func (s *Service) CountPersons(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, apperr.Storage("count persons", err)
	}
	return n, nil
}

// IsNationalIDAvailable reports whether no person holds nationalID yet.
func (s *Service) IsNationalIDAvailable(ctx context.Context, nationalID string) (bool, error) {
	if nationalID == "" {
		return false, apperr.Validation("national id is required")
	}
	taken, err := s.repo.ExistsNationalIDForOther(ctx, nationalID, uuid.Nil)
	if err != nil {
		return false, apperr.Storage("check national id", err)
	}
	return !taken, nil
}

// ChangeCredential replaces the stored credential with next once current
// verifies against it. The write advances the person's version.
func (s *Service) ChangeCredential(ctx context.Context, id uuid.UUID, current, next string) error {
	p, err := s.GetPerson(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(p.Credential, current) {
		s.logger.Warn().Stringer("person_id", id).Msg("credential change rejected")
		return errWrongCredential
	}

	p.Credential = next
	if err := HashCredential(s.hasher, p, true); err != nil {
		return err
	}

	expected := p.Version
	ok, err := s.repo.Update(ctx, p)
	if err != nil {
		s.logger.Error().Err(err).Stringer("person_id", id).Msg("credential change failed")
		return WriteError("change credential", err)
	}
	if !ok {
		s.logger.Warn().Stringer("person_id", id).Int64("expected_version", expected).Msg("person version conflict")
		return VersionConflict(ctx, s.repo, apperr.KindPerson, id, expected)
	}
	s.logger.Info().Stringer("person_id", id).Int64("version", p.Version).Msg("credential changed")
	return nil
}
