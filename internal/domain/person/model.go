package person

import (
	"time"

	"github.com/google/uuid"
)

// Role tags which role table completes a person row.
type Role string

const (
	RoleSupporter Role = "supporter"
	RolePatient   Role = "patient"
)

const (
	MinAge = 0
	MaxAge = 150
)

// Person maps to the person table. It is embedded by every role record.
type Person struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Version    int64     `db:"version" json:"version"`
	Role       Role      `db:"role" json:"role"`
	FullName   string    `db:"full_name" json:"full_name"`
	Age        int       `db:"age" json:"age"`
	NationalID string    `db:"national_id" json:"national_id"`
	PostalCode string    `db:"postal_code" json:"postal_code"`
	Number     string    `db:"number" json:"number"`
	Complement *string   `db:"complement" json:"complement,omitempty"`
	Phone      string    `db:"phone" json:"phone"`
	// Credential holds the plain value on input and the bcrypt hash once stored.
	Credential string    `db:"credential" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Columns lists the person columns under the alias "p", in ScanDest order.
const Columns = `p.id, p.version, p.role, p.full_name, p.age, p.national_id,
	p.postal_code, p.number, p.complement, p.phone, p.credential,
	p.created_at, p.updated_at`

// ScanDest returns scan targets for Columns.
func ScanDest(p *Person) []interface{} {
	return []interface{}{
		&p.ID, &p.Version, &p.Role, &p.FullName, &p.Age, &p.NationalID,
		&p.PostalCode, &p.Number, &p.Complement, &p.Phone, &p.Credential,
		&p.CreatedAt, &p.UpdatedAt,
	}
}
