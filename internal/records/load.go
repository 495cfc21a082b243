package records

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// fileRecord is the on-disk shape read by Decode. DateOfBirth is text so
// both "1990-04-05" and RFC 3339 timestamps are accepted.
type fileRecord struct {
	PartitionKey   string `yaml:"partition_key"`
	RowKey         string `yaml:"row_key"`
	FirstName      string `yaml:"first_name"`
	LastName       string `yaml:"last_name"`
	EmailAddress   string `yaml:"email_address"`
	Gender         string `yaml:"gender"`
	DateOfBirth    string `yaml:"date_of_birth"`
	YearsAtAddress int    `yaml:"years_at_address"`
	HeightInInches int    `yaml:"height_in_inches"`
	IsMarried      bool   `yaml:"is_married"`
}

// LoadFile reads records from a YAML or JSON file holding a list of records.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, docerrors.ValidationError("failed to open "+path, err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode reads a YAML (or JSON) list of records and validates every
// identity. Errors name the offending entry by position.
func Decode(r io.Reader) ([]Record, error) {
	var raw []fileRecord
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, docerrors.ValidationError("failed to parse records", err).
			WithSuggestion("Expected a list of records with partition_key, row_key, first_name, ...")
	}

	out := make([]Record, 0, len(raw))
	for i, fr := range raw {
		rec := Record{
			Identity:       Identity{PartitionKey: fr.PartitionKey, RowKey: fr.RowKey},
			FirstName:      fr.FirstName,
			LastName:       fr.LastName,
			EmailAddress:   fr.EmailAddress,
			Gender:         fr.Gender,
			YearsAtAddress: fr.YearsAtAddress,
			HeightInInches: fr.HeightInInches,
			IsMarried:      fr.IsMarried,
		}
		if fr.DateOfBirth != "" {
			dob, err := parseDate(fr.DateOfBirth)
			if err != nil {
				return nil, docerrors.ValidationError(fmt.Sprintf("record %d: invalid date_of_birth %q", i, fr.DateOfBirth), err)
			}
			rec.DateOfBirth = dob
		}
		if err := rec.Validate(); err != nil {
			return nil, docerrors.ValidationError(fmt.Sprintf("record %d", i), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
