package supporter

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/person"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/credential"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/pkg/pagination"
)

// LinkGuard answers questions about the patients linked to a supporter.
type LinkGuard interface {
	CanDeleteSupporter(ctx context.Context, supporterID uuid.UUID) (bool, error)
	LinkedPatientCount(ctx context.Context, supporterID uuid.UUID) (int, error)
}

var errHasPatients = apperr.Validation("supporter has linked patients")

type Service struct {
	repo    Repository
	persons person.PersonRepository
	guard   LinkGuard
	hasher  credential.Hasher
	logger  zerolog.Logger
}

func NewService(repo Repository, persons person.PersonRepository, guard LinkGuard, hasher credential.Hasher, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		persons: persons,
		guard:   guard,
		hasher:  hasher,
		logger:  logger.With().Str("component", "supporter").Logger(),
	}
}

// Register creates the person and supporter rows together.
func (s *Service) Register(ctx context.Context, sup *Supporter) error {
	if err := person.ValidateAge(sup.Age); err != nil {
		return err
	}
	if err := person.EnsureUniqueNationalID(ctx, s.persons, sup.NationalID, uuid.Nil); err != nil {
		return err
	}
	if err := person.HashCredential(s.hasher, &sup.Person, true); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, sup); err != nil {
		s.logger.Error().Err(err).Str("national_id", sup.NationalID).Msg("supporter registration failed")
		return person.WriteError("create supporter", err)
	}
	s.logger.Info().Stringer("supporter_id", sup.ID).Msg("supporter registered")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Supporter, error) {
	sup, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get supporter", err)
	}
	if sup == nil {
		return nil, apperr.NotFound(apperr.KindSupporter, id)
	}
	return sup, nil
}

func (s *Service) GetByNationalID(ctx context.Context, nationalID string) (*Supporter, error) {
	sup, err := s.repo.GetByNationalID(ctx, nationalID)
	if err != nil {
		return nil, apperr.Storage("get supporter by national id", err)
	}
	if sup == nil {
		return nil, apperr.NotFound(apperr.KindSupporter, nationalID)
	}
	return sup, nil
}

// Update applies sup if sup.Version is still current. An empty credential
// keeps the stored one.
func (s *Service) Update(ctx context.Context, sup *Supporter) error {
	if _, err := s.Get(ctx, sup.ID); err != nil {
		return err
	}
	if err := person.ValidateAge(sup.Age); err != nil {
		return err
	}
	if err := person.EnsureUniqueNationalID(ctx, s.persons, sup.NationalID, sup.ID); err != nil {
		return err
	}
	if err := person.HashCredential(s.hasher, &sup.Person, false); err != nil {
		return err
	}

	expected := sup.Version
	ok, err := s.repo.Update(ctx, sup)
	if err != nil {
		s.logger.Error().Err(err).Stringer("supporter_id", sup.ID).Msg("supporter update failed")
		return person.WriteError("update supporter", err)
	}
	if !ok {
		s.logger.Warn().Stringer("supporter_id", sup.ID).Int64("expected_version", expected).Msg("supporter version conflict")
		return person.VersionConflict(ctx, s.persons, apperr.KindSupporter, sup.ID, expected)
	}
	s.logger.Info().Stringer("supporter_id", sup.ID).Int64("version", sup.Version).Msg("supporter updated")
	return nil
}

// Delete refuses while any patient is linked to the supporter.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	canDelete, err := s.guard.CanDeleteSupporter(ctx, id)
	if err != nil {
		return apperr.Storage("check supporter links", err)
	}
	if !canDelete {
		s.logger.Warn().Stringer("supporter_id", id).Msg("supporter delete rejected: linked patients")
		return errHasPatients
	}

	ok, err := s.repo.Delete(ctx, id)
	if errors.Is(err, db.ErrForeignKeyViolation) {
		// a patient was linked after the check
		return errHasPatients
	}
	if err != nil {
		s.logger.Error().Err(err).Stringer("supporter_id", id).Msg("supporter delete failed")
		return apperr.Storage("delete supporter", err)
	}
	if !ok {
		return apperr.NotFound(apperr.KindSupporter, id)
	}
	s.logger.Info().Stringer("supporter_id", id).Msg("supporter deleted")
	return nil
}

func (s *Service) List(ctx context.Context, page pagination.Params) ([]*Supporter, int, error) {
	items, total, err := s.repo.List(ctx, page.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage("list supporters", err)
	}
	return items, total, nil
}

func (s *Service) ListByJobTitle(ctx context.Context, jobTitle string, page pagination.Params) ([]*Supporter, int, error) {
	items, total, err := s.repo.ListByJobTitle(ctx, jobTitle, page.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage("list supporters by job title", err)
	}
	return items, total, nil
}

func (s *Service) ListJobTitles(ctx context.Context) ([]string, error) {
	titles, err := s.repo.ListJobTitles(ctx)
	if err != nil {
		return nil, apperr.Storage("list job titles", err)
	}
	return titles, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, apperr.Storage("count supporters", err)
	}
	return n, nil
}

func (s *Service) CountLinkedPatients(ctx context.Context, id uuid.UUID) (int, error) {
	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return 0, apperr.Storage("check supporter", err)
	}
	if !exists {
		return 0, apperr.NotFound(apperr.KindSupporter, id)
	}
	n, err := s.guard.LinkedPatientCount(ctx, id)
	if err != nil {
		return 0, apperr.Storage("count linked patients", err)
	}
	return n, nil
}

// CanDelete reports whether Delete would pass the linked-patient check.
func (s *Service) CanDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.guard.CanDeleteSupporter(ctx, id)
	if err != nil {
		return false, apperr.Storage("check supporter links", err)
	}
	return ok, nil
}
