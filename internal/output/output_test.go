package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/records"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("🔍", "Draining queue...")

	// Then: output contains icon and message
	assert.Equal(t, "🔍 Draining queue...\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Status("", "detail")

	assert.Equal(t, "   detail\n", buf.String())
}

func TestWriter_Levels_PrintIcons(t *testing.T) {
	tests := []struct {
		name  string
		print func(*Writer)
		icon  string
		text  string
	}{
		{"success", func(w *Writer) { w.Successf("Queued %d records", 3) }, "✅", "Queued 3 records"},
		{"warning", func(w *Writer) { w.Warningf("%d dead letters", 2) }, "⚠️", "2 dead letters"},
		{"error", func(w *Writer) { w.Errorf("open %s", "queue.db") }, "❌", "open queue.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.print(New(buf))

			assert.Contains(t, buf.String(), tt.icon)
			assert.Contains(t, buf.String(), tt.text)
		})
	}
}

func TestNew_BufferGetsNoColor(t *testing.T) {
	// Given: a writer on a non-terminal
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing styled text
	w.Success("done")

	// Then: no ANSI escapes are emitted
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestWriter_Code_IndentsEachLine(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Code("index:\n  path: x")

	assert.Equal(t, "\n  index:\n    path: x\n\n", buf.String())
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, New(buf).JSON(map[string]int{"count": 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got["count"])
	assert.Contains(t, buf.String(), "\n  ")
}

func TestWriter_Records_RendersTable(t *testing.T) {
	// Given: two records
	recs := []records.Record{
		{
			Identity:       records.Identity{PartitionKey: "Smith", RowKey: "1"},
			FirstName:      "Jane",
			LastName:       "Smith",
			EmailAddress:   "jane@example.com",
			Gender:         "Female",
			DateOfBirth:    time.Date(1990, 4, 5, 0, 0, 0, 0, time.UTC),
			YearsAtAddress: 3,
			HeightInInches: 64,
			IsMarried:      true,
		},
		{
			Identity:  records.Identity{PartitionKey: "Doe", RowKey: "2"},
			FirstName: "John",
			LastName:  "Doe",
		},
	}
	buf := &bytes.Buffer{}

	// When: rendering them with a larger match total
	New(buf).Records(recs, 10)

	// Then: headers, values and the footer appear
	out := buf.String()
	for _, want := range []string{"PARTITION", "HEIGHT", "Jane", "jane@example.com", "1990-04-05", "64", "true", "John"} {
		assert.Contains(t, out, want)
	}
	assert.True(t, strings.HasSuffix(out, "2 of 10 matching records\n"))
}

func TestWriter_Records_Empty(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).Records(nil, 0)

	assert.Equal(t, "No matching records.\n", buf.String())
}

func TestWriter_Newline_PrintsEmptyLine(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).Newline()

	assert.Equal(t, "\n", buf.String())
}
