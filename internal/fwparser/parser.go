// =============================================================================
// EDI Ingest - Fixed-Width Parser Module
// =============================================================================
//
// This module converts positional fixed-width text into the generic document
// tree consumed by the mapping engine.
//
// TREE SHAPE:
//   {
//     header:    {...} | null,
//     records:   [{...}, {...}],
//     trailer:   {...} | null,
//     _metadata: {recordCount, parseTimestamp}
//   }
//
// LINE CLASSIFICATION:
//   A line starting with the header marker ("CLM" by default) is the header,
//   a line starting with the trailer marker ("EOM" by default) is the
//   trailer, anything else is a data record. Blank lines are skipped.
//
// FIELD EXTRACTION:
//   Each field is sliced from [start, end). The end offset is clamped to the
//   line length and a start beyond the line yields an empty string, so short
//   lines never fail.
//
// =============================================================================

package fwparser

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ginjaninja78/edi-ingest/internal/types"
)

const (
	DefaultHeaderMarker  = "CLM"
	DefaultTrailerMarker = "EOM"

	parseTimestampLayout = "2006-01-02T15:04:05.000"
)

var lineSplitter = regexp.MustCompile(`\r?\n`)

// =============================================================================
// OPTIONS
// =============================================================================

// Options controls line classification.
type Options struct {
	// HeaderMarker is the literal prefix of the header line.
	HeaderMarker string

	// TrailerMarker is the literal prefix of the trailer line.
	TrailerMarker string

	// Now supplies the parse timestamp. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the standard CLM/EOM markers.
func DefaultOptions() Options {
	return Options{
		HeaderMarker:  DefaultHeaderMarker,
		TrailerMarker: DefaultTrailerMarker,
		Now:           time.Now,
	}
}

func (o Options) withDefaults() Options {
	if o.HeaderMarker == "" {
		o.HeaderMarker = DefaultHeaderMarker
	}
	if o.TrailerMarker == "" {
		o.TrailerMarker = DefaultTrailerMarker
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// =============================================================================
// ERRORS
// =============================================================================

// FormatError reports a schema that cannot be applied to the input.
type FormatError struct {
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Field == "" {
		return "fixed-width format error: " + e.Reason
	}
	return fmt.Sprintf("fixed-width format error: field %q: %s", e.Field, e.Reason)
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseFile reads a fixed-width file from disk and parses it.
func ParseFile(filePath string, schema *types.Schema) (*types.Node, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(string(data), schema)
}

// Parse converts fixed-width text into a document tree using the default
// CLM/EOM markers.
func Parse(content string, schema *types.Schema) (*types.Node, error) {
	return ParseWithOptions(content, schema, DefaultOptions())
}

// ParseWithOptions converts fixed-width text into a document tree.
//
// PARAMETERS:
//   - content: the raw file text
//   - schema: positional field definitions for header, data and trailer lines
//   - opts: line markers and clock
//
// RETURNS:
//   - the document tree; header and trailer are null when their lines are absent
//   - a FormatError when the schema is missing or has an invalid range
func ParseWithOptions(content string, schema *types.Schema, opts Options) (*types.Node, error) {
	if err := checkSchema(schema); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	var header, trailer *types.Node
	records := types.NewArray()

	for _, line := range lineSplitter.Split(content, -1) {
		if strings.TrimSpace(line) == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, opts.HeaderMarker):
			header = parseLine(line, schema.HeaderFields)
		case strings.HasPrefix(line, opts.TrailerMarker):
			trailer = parseLine(line, schema.TrailerFields)
		default:
			records.Append(parseLine(line, schema.DataFields))
		}
	}

	meta := types.NewObject()
	meta.Set("recordCount", types.NewInt(records.Len()))
	meta.SetString("parseTimestamp", opts.Now().Format(parseTimestampLayout))

	root := types.NewObject()
	root.Set("header", header)
	root.Set("records", records)
	root.Set("trailer", trailer)
	root.Set("_metadata", meta)
	return root, nil
}

func checkSchema(schema *types.Schema) error {
	if schema == nil {
		return &FormatError{Reason: "no schema supplied"}
	}

	sections := [][]types.FieldDef{schema.HeaderFields, schema.DataFields, schema.TrailerFields}
	for _, fields := range sections {
		for _, f := range fields {
			if f.Start < 0 {
				return &FormatError{Field: f.Name, Reason: fmt.Sprintf("negative start %d", f.Start)}
			}
			if f.End < f.Start {
				return &FormatError{Field: f.Name, Reason: fmt.Sprintf("end %d before start %d", f.End, f.Start)}
			}
		}
	}
	return nil
}

// parseLine slices one line into an object keyed by field name.
func parseLine(line string, fields []types.FieldDef) *types.Node {
	node := types.NewObject()
	for _, f := range fields {
		value := ExtractField(line, f.Start, f.End)
		if f.Trim {
			value = strings.TrimSpace(value)
		}
		node.SetString(f.Name, value)
	}
	return node
}

// ExtractField returns line[start:end] with end clamped to the line length.
// A start at or past the end of the line yields "".
func ExtractField(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return line[start:end]
}
