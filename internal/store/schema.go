package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Aman-CERP/docindex/internal/records"
)

// Index field names.
const (
	FieldID             = "Id"
	FieldPartitionKey   = "PartitionKey"
	FieldRowKey         = "RowKey"
	FieldFirstName      = "FirstName"
	FieldLastName       = "LastName"
	FieldEmailAddress   = "EmailAddress"
	FieldGender         = "Gender"
	FieldFullName       = "FullName"
	FieldDateOfBirth    = "DateOfBirth"
	FieldYearsAtAddress = "YearsAtAddress"
	FieldHeightInInches = "HeightInInches"
	FieldIsMarried      = "IsMarried"
)

// DateLayout is the sortable lexical form of DateOfBirth in the index.
const DateLayout = "20060102"

// FieldKind says how a field is indexed.
type FieldKind int

const (
	// Keyword fields are indexed as one exact token.
	Keyword FieldKind = iota
	// Analyzed fields are tokenized and lowercased for free-text match.
	Analyzed
)

// FieldSpec describes one index field.
type FieldSpec struct {
	Name  string
	Kind  FieldKind
	Store bool
}

// Schema is the explicit shape of an indexed document. It is chosen when a
// catalog is opened and recorded inside the index, so an index built for one
// shape is never silently read as another.
type Schema struct {
	Name   string
	Fields []FieldSpec
}

// PersonSchema is the document shape for records.Record.
var PersonSchema = Schema{
	Name: "person/v1",
	Fields: []FieldSpec{
		{Name: FieldID, Kind: Keyword, Store: true},
		{Name: FieldPartitionKey, Kind: Keyword, Store: true},
		{Name: FieldRowKey, Kind: Keyword, Store: true},
		{Name: FieldFirstName, Kind: Keyword, Store: true},
		{Name: FieldLastName, Kind: Keyword, Store: true},
		{Name: FieldEmailAddress, Kind: Keyword, Store: true},
		{Name: FieldGender, Kind: Keyword, Store: true},
		{Name: FieldFullName, Kind: Analyzed, Store: false},
		{Name: FieldDateOfBirth, Kind: Keyword, Store: true},
		{Name: FieldYearsAtAddress, Kind: Keyword, Store: true},
		{Name: FieldHeightInInches, Kind: Keyword, Store: true},
		{Name: FieldIsMarried, Kind: Keyword, Store: true},
	},
}

// IndexMapping builds the bleve mapping for the schema. Only declared fields
// are indexed.
func (s Schema) IndexMapping() (mapping.IndexMapping, error) {
	if len(s.Fields) == 0 {
		return nil, fmt.Errorf("schema %q declares no fields", s.Name)
	}

	doc := bleve.NewDocumentStaticMapping()
	for _, f := range s.Fields {
		var fm *mapping.FieldMapping
		switch f.Kind {
		case Keyword:
			fm = bleve.NewKeywordFieldMapping()
			fm.Analyzer = keyword.Name
		case Analyzed:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = standard.Name
		default:
			return nil, fmt.Errorf("schema %q: field %s has unknown kind %d", s.Name, f.Name, f.Kind)
		}
		fm.Store = f.Store
		fm.IncludeInAll = false
		fm.IncludeTermVectors = false
		doc.AddFieldMappingsAt(f.Name, fm)
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = keyword.Name
	im.StoreDynamic = false
	im.IndexDynamic = false
	return im, nil
}

// StoredFields lists the names of fields retrievable from a hit.
func (s Schema) StoredFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Store {
			out = append(out, f.Name)
		}
	}
	return out
}

// DocumentID returns the index document ID for an identity.
func DocumentID(id records.Identity) string {
	return id.ID()
}

// FullName is the composite free-text value searched by partial name.
func FullName(rec records.Record) string {
	return rec.FirstName + " " + rec.LastName + " " + rec.EmailAddress
}

// Document converts a record into the field map indexed by bleve.
func Document(rec records.Record) map[string]any {
	doc := map[string]any{
		FieldID:             DocumentID(rec.Identity),
		FieldPartitionKey:   rec.PartitionKey,
		FieldRowKey:         rec.RowKey,
		FieldFirstName:      rec.FirstName,
		FieldLastName:       rec.LastName,
		FieldEmailAddress:   rec.EmailAddress,
		FieldGender:         rec.Gender,
		FieldFullName:       FullName(rec),
		FieldYearsAtAddress: strconv.Itoa(rec.YearsAtAddress),
		FieldHeightInInches: strconv.Itoa(rec.HeightInInches),
		FieldIsMarried:      FormatBool(rec.IsMarried),
	}
	if !rec.DateOfBirth.IsZero() {
		doc[FieldDateOfBirth] = FormatDate(rec.DateOfBirth)
	}
	return doc
}

// RecordFromFields rebuilds a record from the stored fields of a hit.
func RecordFromFields(fields map[string]any) (records.Record, error) {
	str := func(name string) string {
		if v, ok := fields[name].(string); ok {
			return v
		}
		return ""
	}

	rec := records.Record{
		Identity: records.Identity{
			PartitionKey: str(FieldPartitionKey),
			RowKey:       str(FieldRowKey),
		},
		FirstName:    str(FieldFirstName),
		LastName:     str(FieldLastName),
		EmailAddress: str(FieldEmailAddress),
		Gender:       str(FieldGender),
		IsMarried:    str(FieldIsMarried) == FormatBool(true),
	}

	var err error
	if v := str(FieldDateOfBirth); v != "" {
		if rec.DateOfBirth, err = time.Parse(DateLayout, v); err != nil {
			return records.Record{}, fmt.Errorf("stored %s %q: %w", FieldDateOfBirth, v, err)
		}
	}
	if v := str(FieldYearsAtAddress); v != "" {
		if rec.YearsAtAddress, err = strconv.Atoi(v); err != nil {
			return records.Record{}, fmt.Errorf("stored %s %q: %w", FieldYearsAtAddress, v, err)
		}
	}
	if v := str(FieldHeightInInches); v != "" {
		if rec.HeightInInches, err = strconv.Atoi(v); err != nil {
			return records.Record{}, fmt.Errorf("stored %s %q: %w", FieldHeightInInches, v, err)
		}
	}
	return rec, nil
}

// FormatDate renders a date in its indexed form.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatBool renders a boolean in its indexed form.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
