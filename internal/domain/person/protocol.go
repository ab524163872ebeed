package person

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/credential"
	"github.com/carelink/carelink/internal/platform/db"
)

// Helpers shared by the role services so supporters and patients follow the
// same uniqueness, credential and versioning rules.

var errDuplicateIdentifier = apperr.Validation("duplicate identifier")

// EnsureUniqueNationalID fails with a ValidationError when another person
// already holds nationalID. Pass uuid.Nil as self for a new person.
func EnsureUniqueNationalID(ctx context.Context, repo PersonRepository, nationalID string, self uuid.UUID) error {
	taken, err := repo.ExistsNationalIDForOther(ctx, nationalID, self)
	if err != nil {
		return apperr.Storage("check national id", err)
	}
	if taken {
		return errDuplicateIdentifier
	}
	return nil
}

// ValidateAge rejects ages outside MinAge-MaxAge.
func ValidateAge(age int) error {
	if age < MinAge || age > MaxAge {
		return apperr.Validation("age must be between %d and %d", MinAge, MaxAge)
	}
	return nil
}

// HashCredential replaces p.Credential with its hash. An empty credential is
// rejected when required and otherwise left empty so the stored hash is kept.
func HashCredential(h credential.Hasher, p *Person, required bool) error {
	if p.Credential == "" {
		if required {
			return apperr.Validation("credential is required")
		}
		return nil
	}
	hash, err := h.Hash(p.Credential)
	if err != nil {
		return apperr.Storage("hash credential", err)
	}
	p.Credential = hash
	return nil
}

// WriteError maps a failed role-store write. A unique violation means the
// national id was claimed concurrently.
func WriteError(op string, err error) error {
	if errors.Is(err, db.ErrUniqueViolation) {
		return errDuplicateIdentifier
	}
	return apperr.Storage(op, err)
}

// VersionConflict builds the ConflictError for a missed compare-and-swap,
// reading the version that won. Actual is -1 when the row is gone.
func VersionConflict(ctx context.Context, repo PersonRepository, kind string, id uuid.UUID, expected int64) error {
	actual, found, err := repo.CurrentVersion(ctx, id)
	if err != nil {
		return apperr.Storage("read current version", err)
	}
	if !found {
		actual = -1
	}
	return apperr.Conflict(kind, id, expected, actual)
}
