// =============================================================================
// EDI Ingest - CSV Reference Data Parser
// =============================================================================
//
// This module reads reference-data CSV exports (location codes, carrier
// tables, equipment prefixes) so they can be loaded into the tables the
// LOOKUP transform queries. It handles:
//   - Different delimiters (comma, pipe, tab, semicolon)
//   - Multi-line headers
//   - Custom data start rows
//   - A configurable NULL marker
//
// Rows are produced as ordered records keyed by column name, ready for the
// record writer. Header names are turned into column identifiers.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/ginjaninja78/edi-ingest/internal/types"
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings describes the layout of a CSV file.
type Settings struct {
	// Delimiter is the field separator. Accepts a single character or one of
	// "tab", "pipe", "semicolon". Default: ","
	Delimiter string

	// HeaderRows is the number of rows merged into column names. Default: 1
	HeaderRows int

	// DataStartRow is the 1-indexed first data row. Default: HeaderRows+1
	DataStartRow int

	// NullValue marks a cell stored as NULL. Cells are compared after
	// trimming. Default: "NULL"
	NullValue string
}

// DefaultSettings returns comma-separated, single-header settings.
func DefaultSettings() Settings {
	return Settings{Delimiter: ",", HeaderRows: 1, NullValue: "NULL"}
}

func (s Settings) withDefaults() Settings {
	if s.Delimiter == "" {
		s.Delimiter = ","
	}
	if s.HeaderRows <= 0 {
		s.HeaderRows = 1
	}
	if s.DataStartRow <= s.HeaderRows {
		s.DataStartRow = s.HeaderRows + 1
	}
	if s.NullValue == "" {
		s.NullValue = "NULL"
	}
	return s
}

// =============================================================================
// PARSED DATA
// =============================================================================

// Data is a fully read CSV file.
type Data struct {
	Columns []string
	Records []*types.Record
}

// Parse reads every row of r.
func Parse(r io.Reader, settings Settings) (*Data, error) {
	parser, err := NewStreamingParser(r, settings)
	if err != nil {
		return nil, err
	}

	data := &Data{Columns: parser.Columns()}
	for parser.Next() {
		data.Records = append(data.Records, parser.Record())
	}
	if err := parser.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

// ParseFile reads every row of the file at filePath.
func ParseFile(filePath string, settings Settings) (*Data, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return Parse(file, settings)
}

// =============================================================================
// STREAMING PARSER FOR LARGE FILES
// =============================================================================

// StreamingParser reads one row at a time.
//
// USAGE:
//   parser, err := NewStreamingParser(file, settings)
//   if err != nil {
//       return err
//   }
//   for parser.Next() {
//       rec := parser.Record()
//       // ...
//   }
//   if err := parser.Err(); err != nil {
//       return err
//   }
type StreamingParser struct {
	reader    *csv.Reader
	settings  Settings
	columns   []string
	current   *types.Record
	rowNumber int
	err       error
}

// NewStreamingParser reads the header rows of r and positions the parser
// at the first data row.
func NewStreamingParser(r io.Reader, settings Settings) (*StreamingParser, error) {
	settings = settings.withDefaults()

	reader := csv.NewReader(bufio.NewReader(r))
	if err := configureReader(reader, settings); err != nil {
		return nil, err
	}

	p := &StreamingParser{reader: reader, settings: settings}
	if err := p.readHeaders(); err != nil {
		return nil, err
	}
	if err := p.skipToDataStart(); err != nil {
		return nil, err
	}
	return p, nil
}

func configureReader(reader *csv.Reader, settings Settings) error {
	switch settings.Delimiter {
	case "\\t", "\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		runes := []rune(settings.Delimiter)
		if len(runes) != 1 {
			return fmt.Errorf("unsupported delimiter %q", settings.Delimiter)
		}
		reader.Comma = runes[0]
	}

	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	return nil
}

// readHeaders reads and merges the header rows.
func (p *StreamingParser) readHeaders() error {
	rows := make([][]string, 0, p.settings.HeaderRows)
	for i := 0; i < p.settings.HeaderRows; i++ {
		row, err := p.reader.Read()
		if err == io.EOF {
			return fmt.Errorf("unexpected end of file while reading headers")
		}
		if err != nil {
			return fmt.Errorf("error reading header row %d: %w", i+1, err)
		}
		rows = append(rows, row)
		p.rowNumber++
	}

	p.columns = mergeHeaders(rows)
	return nil
}

func (p *StreamingParser) skipToDataStart() error {
	for p.rowNumber < p.settings.DataStartRow-1 {
		_, err := p.reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error skipping to data start: %w", err)
		}
		p.rowNumber++
	}
	return nil
}

// Next advances to the next non-empty row.
func (p *StreamingParser) Next() bool {
	for p.err == nil {
		row, err := p.reader.Read()
		if err == io.EOF {
			return false
		}
		if err != nil {
			p.err = fmt.Errorf("error reading row %d: %w", p.rowNumber+1, err)
			return false
		}
		p.rowNumber++

		if isRowEmpty(row) {
			continue
		}

		rec := types.NewRecord()
		for i, column := range p.columns {
			if i >= len(row) {
				rec.Set(column, nil)
				continue
			}
			value := strings.TrimSpace(row[i])
			if value == p.settings.NullValue {
				rec.Set(column, nil)
				continue
			}
			rec.Set(column, value)
		}
		p.current = rec
		return true
	}
	return false
}

// Record returns the current row. Missing and NULL cells are nil.
func (p *StreamingParser) Record() *types.Record { return p.current }

// Columns returns the column names.
func (p *StreamingParser) Columns() []string { return p.columns }

// RowNumber returns the 1-indexed row last read.
func (p *StreamingParser) RowNumber() int { return p.rowNumber }

// Err returns the first read error.
func (p *StreamingParser) Err() error { return p.err }

// =============================================================================
// HEADER HANDLING
// =============================================================================

var nonIdentifier = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// mergeHeaders joins multi-line headers column by column and turns the
// result into column identifiers.
//
// EXAMPLE:
//   Row 1: "Location", "",     "Country"
//   Row 2: "Code",     "Name", "Code"
//   Result: LOCATION_CODE, NAME, COUNTRY_CODE
func mergeHeaders(rows [][]string) []string {
	maxCols := 0
	for _, row := range rows {
		if len(row) > maxCols {
			maxCols = len(row)
		}
	}

	columns := make([]string, maxCols)
	seen := make(map[string]int, maxCols)
	for col := 0; col < maxCols; col++ {
		var parts []string
		for _, row := range rows {
			if col < len(row) {
				if value := strings.TrimSpace(row[col]); value != "" {
					parts = append(parts, value)
				}
			}
		}

		name := columnName(strings.Join(parts, " "), col)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		columns[col] = name
	}
	return columns
}

// columnName turns a header into an identifier. Empty headers become
// COLUMN_<n>.
func columnName(header string, index int) string {
	name := strings.Trim(nonIdentifier.ReplaceAllString(header, "_"), "_")
	if name == "" {
		return fmt.Sprintf("COLUMN_%d", index+1)
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return strings.ToUpper(name)
}

func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
