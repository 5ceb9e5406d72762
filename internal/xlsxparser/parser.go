// =============================================================================
// EDI Ingest - XLSX Schema Parser Module
// =============================================================================
//
// This module reads fixed-width layouts that business analysts maintain in
// Excel workbooks and turns them into a types.Schema.
//
// WORKBOOK LAYOUT:
//   One sheet per line type, named "header", "data" and "trailer" (case is
//   ignored). Each sheet has a header row followed by one row per field:
//
//     | Name | Start | End | Trim | Required | Description |
//
//   An optional "_schema" sheet holds the schema name in A1/B1 and the
//   version in A2/B2. Other sheets starting with "_" are ignored.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/edi-ingest/internal/types"
)

// Sheet names recognized in a layout workbook.
const (
	SheetHeader  = "header"
	SheetData    = "data"
	SheetTrailer = "trailer"
	SheetInfo    = "_schema"
)

// =============================================================================
// COLUMN CONFIGURATION
// =============================================================================

// LayoutColumns defines which spreadsheet column holds each field property.
// Column indices are 0-based (A=0, B=1, C=2, etc.)
type LayoutColumns struct {
	NameColumn        int
	StartColumn       int
	EndColumn         int
	TrimColumn        int
	RequiredColumn    int
	DescriptionColumn int

	// DataStartRow is the row where field rows begin (0-based).
	DataStartRow int

	// OneBased means Start is a 1-based position and End is inclusive, as
	// positions are usually written in partner layout documents.
	OneBased bool
}

// DefaultLayoutColumns returns the A-F layout with one header row.
func DefaultLayoutColumns() LayoutColumns {
	return LayoutColumns{
		NameColumn:        0, // Column A
		StartColumn:       1, // Column B
		EndColumn:         2, // Column C
		TrimColumn:        3, // Column D
		RequiredColumn:    4, // Column E
		DescriptionColumn: 5, // Column F
		DataStartRow:      1, // Row 2
	}
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseSchema reads a layout workbook using the default columns.
func ParseSchema(workbookPath string) (*types.Schema, error) {
	return ParseSchemaWithConfig(workbookPath, DefaultLayoutColumns())
}

// ParseSchemaWithConfig reads a layout workbook.
//
// PARAMETERS:
//   - workbookPath: path to the XLSX file
//   - columns: where each field property lives on the sheets
//
// RETURNS:
//   - the schema; missing line-type sheets leave that section empty
//   - an error if the workbook cannot be read, a row is malformed, or the
//     workbook defines no fields at all
func ParseSchemaWithConfig(workbookPath string, columns LayoutColumns) (*types.Schema, error) {
	f, err := excelize.OpenFile(workbookPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open layout workbook: %w", err)
	}
	defer f.Close()

	schema := &types.Schema{
		Name: strings.TrimSuffix(filepath.Base(workbookPath), filepath.Ext(workbookPath)),
	}

	for _, sheetName := range f.GetSheetList() {
		var target *[]types.FieldDef

		switch strings.ToLower(strings.TrimSpace(sheetName)) {
		case SheetHeader:
			target = &schema.HeaderFields
		case SheetData:
			target = &schema.DataFields
		case SheetTrailer:
			target = &schema.TrailerFields
		case SheetInfo:
			if err := readInfoSheet(f, sheetName, schema); err != nil {
				return nil, err
			}
			continue
		default:
			continue
		}

		fields, err := parseSheet(f, sheetName, columns)
		if err != nil {
			return nil, fmt.Errorf("error parsing sheet '%s': %w", sheetName, err)
		}
		*target = fields
	}

	if schema.FieldCount() == 0 {
		return nil, fmt.Errorf("layout workbook %s defines no fields", workbookPath)
	}
	return schema, nil
}

// parseSheet reads the field rows of one sheet.
func parseSheet(f *excelize.File, sheetName string, columns LayoutColumns) ([]types.FieldDef, error) {
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	var fields []types.FieldDef
	for i := columns.DataStartRow; i < len(rows); i++ {
		row := rows[i]
		if len(row) == 0 || isRowEmpty(row) {
			continue
		}

		field, err := parseRow(row, columns)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", i+1, err)
		}
		if field.Name == "" {
			continue
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// parseRow extracts a FieldDef from a single row.
func parseRow(row []string, columns LayoutColumns) (types.FieldDef, error) {
	getCell := func(index int) string {
		if index >= 0 && index < len(row) {
			return strings.TrimSpace(row[index])
		}
		return ""
	}

	field := types.FieldDef{
		Name:        getCell(columns.NameColumn),
		Trim:        normalizeFlag(getCell(columns.TrimColumn)),
		Required:    normalizeFlag(getCell(columns.RequiredColumn)),
		Description: getCell(columns.DescriptionColumn),
	}
	if field.Name == "" {
		return field, nil
	}

	start, err := strconv.Atoi(getCell(columns.StartColumn))
	if err != nil {
		return field, fmt.Errorf("field %s: invalid start %q", field.Name, getCell(columns.StartColumn))
	}
	end, err := strconv.Atoi(getCell(columns.EndColumn))
	if err != nil {
		return field, fmt.Errorf("field %s: invalid end %q", field.Name, getCell(columns.EndColumn))
	}

	if columns.OneBased {
		start--
	}
	if start < 0 || end < start {
		return field, fmt.Errorf("field %s: invalid range %d-%d", field.Name, start, end)
	}

	field.Start = start
	field.End = end
	return field, nil
}

// readInfoSheet reads the optional name/version cells.
func readInfoSheet(f *excelize.File, sheetName string, schema *types.Schema) error {
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("failed to read sheet '%s': %w", sheetName, err)
	}
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(row[0])) {
		case "name":
			schema.Name = strings.TrimSpace(row[1])
		case "version":
			schema.Version = strings.TrimSpace(row[1])
		}
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// normalizeFlag interprets the yes/no spellings used in layout sheets.
func normalizeFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "true", "1", "x", "required", "req":
		return true
	default:
		return false
	}
}
