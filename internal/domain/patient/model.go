package patient

import (
	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/person"
)

// Patient is a care recipient: a person row plus its patient role row.
// SupporterID is nil while the patient is unlinked.
type Patient struct {
	person.Person
	ContactPhone string     `db:"contact_phone" json:"contact_phone"`
	InsuranceID  *string    `db:"insurance_id" json:"insurance_id,omitempty"`
	SupporterID  *uuid.UUID `db:"supporter_id" json:"supporter_id,omitempty"`
}
