// Package records defines the source-of-truth person record and the SQLite
// repository that stores it.
package records

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// DateLayout is the calendar-date layout used wherever a DateOfBirth is
// written as text.
const DateLayout = "2006-01-02"

// Identity is the immutable two-part key naming a Record.
type Identity struct {
	PartitionKey string `json:"partition_key"`
	RowKey       string `json:"row_key"`
}

// ID returns the concatenated identity used as the index document ID.
func (i Identity) ID() string {
	return i.PartitionKey + "-" + i.RowKey
}

// Validate rejects empty keys and the characters table keys may not hold.
func (i Identity) Validate() error {
	if err := validateKey("partition_key", i.PartitionKey); err != nil {
		return err
	}
	return validateKey("row_key", i.RowKey)
}

func validateKey(name, key string) error {
	if key == "" {
		return docerrors.New(docerrors.ErrCodeInvalidIdentity, name+" is empty", nil)
	}
	if strings.ContainsAny(key, `/\#?`) {
		return docerrors.New(docerrors.ErrCodeInvalidIdentity,
			fmt.Sprintf("%s %q contains a forbidden character", name, key), nil).
			WithSuggestion(`keys may not contain / \ # or ?`)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return docerrors.New(docerrors.ErrCodeInvalidIdentity,
				fmt.Sprintf("%s %q contains a control character", name, key), nil)
		}
	}
	return nil
}

// Record is one person entry. Field values may be overwritten by writing the
// same identity again; there is no versioning.
type Record struct {
	Identity

	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	EmailAddress   string    `json:"email_address"`
	Gender         string    `json:"gender"`
	DateOfBirth    time.Time `json:"date_of_birth"`
	YearsAtAddress int       `json:"years_at_address"`
	HeightInInches int       `json:"height_in_inches"`
	IsMarried      bool      `json:"is_married"`
}

// Key returns the record's identity.
func (r Record) Key() Identity {
	return r.Identity
}

// Birthday returns DateOfBirth truncated to a calendar date in UTC.
func (r Record) Birthday() time.Time {
	y, m, d := r.DateOfBirth.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
