package patient

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

// SupporterChecker reports whether a supporter exists.
type SupporterChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Linker changes the supporter a patient is linked to.
type Linker interface {
	Link(ctx context.Context, supporterID, patientID uuid.UUID) error
	Unlink(ctx context.Context, patientID uuid.UUID) error
}

var errHasAppointments = apperr.Validation("patient has appointments")

type Service struct {
	repo       Repository
	persons    person.PersonRepository
	supporters SupporterChecker
	linker     Linker
	hasher     credential.Hasher
	logger     zerolog.Logger
}

func NewService(repo Repository, persons person.PersonRepository, supporters SupporterChecker, linker Linker, hasher credential.Hasher, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		persons:    persons,
		supporters: supporters,
		linker:     linker,
		hasher:     hasher,
		logger:     logger.With().Str("component", "patient").Logger(),
	}
}

func (s *Service) checkSupporter(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	exists, err := s.supporters.Exists(ctx, *id)
	if err != nil {
		return apperr.Storage("check supporter", err)
	}
	if !exists {
		return apperr.NotFound(apperr.KindSupporter, *id)
	}
	return nil
}

// writeError maps role-store write failures; a foreign key violation means
// the linked supporter vanished.
func (s *Service) writeError(op string, p *Patient, err error) error {
	if errors.Is(err, db.ErrForeignKeyViolation) && p.SupporterID != nil {
		return apperr.NotFound(apperr.KindSupporter, *p.SupporterID)
	}
	return person.WriteError(op, err)
}

// Register creates the person and patient rows together.
func (s *Service) Register(ctx context.Context, p *Patient) error {
	if err := person.ValidateAge(p.Age); err != nil {
		return err
	}
	if err := person.EnsureUniqueNationalID(ctx, s.persons, p.NationalID, uuid.Nil); err != nil {
		return err
	}
	if err := s.checkSupporter(ctx, p.SupporterID); err != nil {
		return err
	}
	if err := person.HashCredential(s.hasher, &p.Person, true); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		s.logger.Error().Err(err).Str("national_id", p.NationalID).Msg("patient registration failed")
		return s.writeError("create patient", p, err)
	}
	s.logger.Info().Stringer("patient_id", p.ID).Msg("patient registered")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get patient", err)
	}
	if p == nil {
		return nil, apperr.NotFound(apperr.KindPatient, id)
	}
	return p, nil
}

func (s *Service) GetByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	p, err := s.repo.GetByNationalID(ctx, nationalID)
	if err != nil {
		return nil, apperr.Storage("get patient by national id", err)
	}
	if p == nil {
		return nil, apperr.NotFound(apperr.KindPatient, nationalID)
	}
	return p, nil
}

// Update applies p if p.Version is still current, including its supporter link.
func (s *Service) Update(ctx context.Context, p *Patient) error {
	if _, err := s.Get(ctx, p.ID); err != nil {
		return err
	}
	if err := person.ValidateAge(p.Age); err != nil {
		return err
	}
	if err := person.EnsureUniqueNationalID(ctx, s.persons, p.NationalID, p.ID); err != nil {
		return err
	}
	if err := s.checkSupporter(ctx, p.SupporterID); err != nil {
		return err
	}
	if err := person.HashCredential(s.hasher, &p.Person, false); err != nil {
		return err
	}

	expected := p.Version
	ok, err := s.repo.Update(ctx, p)
	if err != nil {
		s.logger.Error().Err(err).Stringer("patient_id", p.ID).Msg("patient update failed")
		return s.writeError("update patient", p, err)
	}
	if !ok {
		s.logger.Warn().Stringer("patient_id", p.ID).Int64("expected_version", expected).Msg("patient version conflict")
		return person.VersionConflict(ctx, s.persons, apperr.KindPatient, p.ID, expected)
	}
	s.logger.Info().Stringer("patient_id", p.ID).Int64("version", p.Version).Msg("patient updated")
	return nil
}

// Delete removes the patient; patients with appointments are kept.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Delete(ctx, id)
	if errors.Is(err, db.ErrForeignKeyViolation) {
		s.logger.Warn().Stringer("patient_id", id).Msg("patient delete rejected: appointments exist")
		return errHasAppointments
	}
	if err != nil {
		s.logger.Error().Err(err).Stringer("patient_id", id).Msg("patient delete failed")
		return apperr.Storage("delete patient", err)
	}
	if !ok {
		return apperr.NotFound(apperr.KindPatient, id)
	}
	s.logger.Info().Stringer("patient_id", id).Msg("patient deleted")
	return nil
}

func (s *Service) List(ctx context.Context, page pagination.Params) ([]*Patient, int, error) {
	items, total, err := s.repo.List(ctx, page.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage("list patients", err)
	}
	return items, total, nil
}

func (s *Service) ListBySupporter(ctx context.Context, supporterID uuid.UUID, page pagination.Params) ([]*Patient, int, error) {
	if err := s.checkSupporter(ctx, &supporterID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.ListBySupporter(ctx, supporterID, page.Normalize())
	if err != nil {
		return nil, 0, apperr.Storage("list patients by supporter", err)
	}
	return items, total, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, apperr.Storage("count patients", err)
	}
	return n, nil
}

func (s *Service) LinkSupporter(ctx context.Context, patientID, supporterID uuid.UUID) error {
	return s.linker.Link(ctx, supporterID, patientID)
}

func (s *Service) UnlinkSupporter(ctx context.Context, patientID uuid.UUID) error {
	return s.linker.Unlink(ctx, patientID)
}
