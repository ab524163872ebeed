package supporter

import (
	"github.com/carelink/carelink/internal/domain/person"
)

// Supporter is a caregiver: a person row plus its supporter role row.
type Supporter struct {
	person.Person
	JobTitle     string `db:"job_title" json:"job_title"`
	PracticeArea string `db:"practice_area" json:"practice_area"`
}
