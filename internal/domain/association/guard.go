// Package association enforces the rules of the optional supporter-patient
// link: both sides must exist to link, and a supporter cannot be deleted while
// any patient still references it.
//
// Link and Unlink write only the patient's supporter reference. They do not
// advance the patient's version, so a concurrent full update carrying a stale
// supporter id can overwrite a link change.
package association

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/db"
)

type SupporterLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// PatientLinks is the slice of the patient store the guard needs.
type PatientLinks interface {
	SupporterOf(ctx context.Context, patientID uuid.UUID) (*uuid.UUID, bool, error)
	SetSupporter(ctx context.Context, patientID uuid.UUID, supporterID *uuid.UUID) (bool, error)
	CountBySupporter(ctx context.Context, supporterID uuid.UUID) (int, error)
}

type Guard struct {
	supporters SupporterLookup
	patients   PatientLinks
	logger     zerolog.Logger
}

func NewGuard(supporters SupporterLookup, patients PatientLinks, logger zerolog.Logger) *Guard {
	return &Guard{
		supporters: supporters,
		patients:   patients,
		logger:     logger.With().Str("component", "association").Logger(),
	}
}

// Link points the patient at the supporter. Linking to the current supporter
// succeeds without writing.
func (g *Guard) Link(ctx context.Context, supporterID, patientID uuid.UUID) error {
	exists, err := g.supporters.Exists(ctx, supporterID)
	if err != nil {
		return apperr.Storage("check supporter", err)
	}
	if !exists {
		return apperr.NotFound(apperr.KindSupporter, supporterID)
	}

	current, found, err := g.patients.SupporterOf(ctx, patientID)
	if err != nil {
		return apperr.Storage("read patient link", err)
	}
	if !found {
		return apperr.NotFound(apperr.KindPatient, patientID)
	}
	if current != nil && *current == supporterID {
		return nil
	}

	ok, err := g.patients.SetSupporter(ctx, patientID, &supporterID)
	if errors.Is(err, db.ErrForeignKeyViolation) {
		return apperr.NotFound(apperr.KindSupporter, supporterID)
	}
	if err != nil {
		return apperr.Storage("link patient", err)
	}
	if !ok {
		return apperr.NotFound(apperr.KindPatient, patientID)
	}
	g.logger.Info().Stringer("patient_id", patientID).Stringer("supporter_id", supporterID).Msg("patient linked")
	return nil
}

// Unlink clears the patient's supporter. It succeeds when already unlinked.
func (g *Guard) Unlink(ctx context.Context, patientID uuid.UUID) error {
	current, found, err := g.patients.SupporterOf(ctx, patientID)
	if err != nil {
		return apperr.Storage("read patient link", err)
	}
	if !found {
		return apperr.NotFound(apperr.KindPatient, patientID)
	}
	if current == nil {
		return nil
	}

	ok, err := g.patients.SetSupporter(ctx, patientID, nil)
	if err != nil {
		return apperr.Storage("unlink patient", err)
	}
	if !ok {
		return apperr.NotFound(apperr.KindPatient, patientID)
	}
	g.logger.Info().Stringer("patient_id", patientID).Stringer("supporter_id", *current).Msg("patient unlinked")
	return nil
}

// CanDeleteSupporter is false while any patient references the supporter.
func (g *Guard) CanDeleteSupporter(ctx context.Context, supporterID uuid.UUID) (bool, error) {
	n, err := g.LinkedPatientCount(ctx, supporterID)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (g *Guard) LinkedPatientCount(ctx context.Context, supporterID uuid.UUID) (int, error) {
	n, err := g.patients.CountBySupporter(ctx, supporterID)
	if err != nil {
		return 0, apperr.Storage("count linked patients", err)
	}
	return n, nil
}
