// =============================================================================
// EDI Ingest - XML Writer Module
// =============================================================================
//
// This module renders mapped records as XML, for dry runs and for partners
// that want a copy of what was loaded. It also derives an XSD from a mapping
// config so that rendered output can be checked downstream.
//
// XML STRUCTURE:
//   The generated XML follows this nesting pattern:
//
//   <ediResult success="true">              <!-- Root element -->
//     <errors>                              <!-- Only when validation failed -->
//       <error>Missing required segment: N9</error>
//     </errors>
//     <table name="EDI_315_HEADER">         <!-- One element per target table -->
//       <record n="1">                      <!-- Record element with index -->
//         <CONTROL_NO>0001</CONTROL_NO>     <!-- One element per column -->
//         <EVENT_DATE/>                     <!-- NULL column -->
//       </record>
//     </table>
//   </ediResult>
//
// CUSTOMIZATION:
//   - Modify element names via GenerateOptions
//   - Change the numbering scheme (global vs. per-table)
//   - Add XML namespaces through RootAttributes
//
// =============================================================================

package xmlwriter

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/converter"
	"github.com/ginjaninja78/edi-ingest/internal/expr"
	"github.com/ginjaninja78/edi-ingest/internal/types"
)

// =============================================================================
// XML GENERATION OPTIONS
// =============================================================================

// GenerateOptions contains options for XML generation.
type GenerateOptions struct {
	// Indent is the string used for indentation.
	// Default: "  " (two spaces)
	Indent string

	// IncludeXMLDeclaration determines whether to include the XML declaration.
	IncludeXMLDeclaration bool

	// RootElement, TableElement and RecordElement name the three levels.
	RootElement   string
	TableElement  string
	RecordElement string

	// RootAttributes are additional attributes for the root element.
	// Example: {"xmlns": "http://example.com/edi"}
	RootAttributes map[string]string

	// RecordNumberingGlobal numbers records 1, 2, 3... across all tables.
	// If false, numbering restarts at 1 for each table.
	RecordNumberingGlobal bool

	// TimeLayout renders time.Time column values.
	TimeLayout string
}

// DefaultGenerateOptions returns the default generation options.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Indent:                "  ",
		IncludeXMLDeclaration: true,
		RootElement:           "ediResult",
		TableElement:          "table",
		RecordElement:         "record",
		RootAttributes:        make(map[string]string),
		TimeLayout:            time.RFC3339,
	}
}

// =============================================================================
// XML GENERATION FUNCTIONS
// =============================================================================

// Generate renders a mapping result with the default options.
func Generate(result *converter.MappingResult) ([]byte, error) {
	return GenerateWithOptions(result, DefaultGenerateOptions())
}

// GenerateWithOptions renders a mapping result.
//
// PARAMETERS:
//   - result: the records produced for one document
//   - options: element names, numbering and formatting
//
// RETURNS:
//   - The XML document as a byte slice.
//   - An error if a column name cannot be used as an element name.
func GenerateWithOptions(result *converter.MappingResult, options GenerateOptions) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("no mapping result to render")
	}

	root := element{name: options.RootElement}
	root.attrs = append(root.attrs, attr{"success", fmt.Sprintf("%t", result.Success())})

	keys := make([]string, 0, len(options.RootAttributes))
	for k := range options.RootAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		root.attrs = append(root.attrs, attr{k, options.RootAttributes[k]})
	}

	if errs := result.Errors(); len(errs) > 0 {
		errors := element{name: "errors"}
		for _, msg := range errs {
			errors.children = append(errors.children, element{name: "error", value: msg})
		}
		root.children = append(root.children, errors)
	}

	index := 1
	for _, table := range result.Tables() {
		if !options.RecordNumberingGlobal {
			index = 1
		}

		tableElement := element{name: options.TableElement, attrs: []attr{{"name", table}}}
		for _, rec := range result.Records(table) {
			recordElement, err := buildRecordElement(rec, index, options)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", table, err)
			}
			tableElement.children = append(tableElement.children, recordElement)
			index++
		}
		root.children = append(root.children, tableElement)
	}

	var buffer bytes.Buffer
	if options.IncludeXMLDeclaration {
		buffer.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	}
	writeElement(&buffer, root, options.Indent, 0)
	return buffer.Bytes(), nil
}

// buildRecordElement constructs a record element. NULL columns become empty
// elements so that every column of the record is visible.
//
// STRUCTURE:
//   <record n="1">
//     <CONTROL_NO>0001</CONTROL_NO>
//     <LOCATION/>
//   </record>
func buildRecordElement(rec *types.Record, index int, options GenerateOptions) (element, error) {
	e := element{
		name:  options.RecordElement,
		attrs: []attr{{"n", fmt.Sprintf("%d", index)}},
	}

	for _, col := range rec.Keys() {
		if !isValidName(col) {
			return e, fmt.Errorf("column %q is not a valid XML name", col)
		}
		e.children = append(e.children, element{name: col, value: renderValue(rec.Value(col), options)})
	}
	return e, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

type attr struct {
	name  string
	value string
}

type element struct {
	name     string
	attrs    []attr
	value    string
	children []element
}

func renderValue(v any, options GenerateOptions) string {
	if t, ok := v.(time.Time); ok && options.TimeLayout != "" {
		return t.Format(options.TimeLayout)
	}
	return expr.Stringify(v)
}

// isValidName accepts the subset of XML names that column names use.
func isValidName(name string) bool {
	if name == "" || strings.HasPrefix(strings.ToLower(name), "xml") {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
		case i > 0 && (r == '-' || r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

// writeElement writes an XML element to the buffer with indentation.
func writeElement(buffer *bytes.Buffer, e element, indent string, level int) {
	buffer.WriteString(strings.Repeat(indent, level))

	buffer.WriteString("<")
	buffer.WriteString(e.name)
	for _, a := range e.attrs {
		buffer.WriteString(fmt.Sprintf(" %s=\"%s\"", a.name, escapeXML(a.value)))
	}

	if len(e.children) == 0 && e.value == "" {
		buffer.WriteString("/>\n")
		return
	}

	buffer.WriteString(">")
	if e.value != "" {
		buffer.WriteString(escapeXML(e.value))
	} else {
		buffer.WriteString("\n")
		for _, child := range e.children {
			writeElement(buffer, child, indent, level+1)
		}
		buffer.WriteString(strings.Repeat(indent, level))
	}

	buffer.WriteString("</")
	buffer.WriteString(e.name)
	buffer.WriteString(">\n")
}

// escapeXML escapes special characters for XML.
func escapeXML(s string) string {
	var buffer bytes.Buffer

	for _, r := range s {
		switch r {
		case '&':
			buffer.WriteString("&amp;")
		case '<':
			buffer.WriteString("&lt;")
		case '>':
			buffer.WriteString("&gt;")
		case '"':
			buffer.WriteString("&quot;")
		case '\'':
			buffer.WriteString("&apos;")
		default:
			buffer.WriteRune(r)
		}
	}

	return buffer.String()
}

// =============================================================================
// XSD GENERATION (AUTO-GENERATE FROM MAPPING CONFIG)
// =============================================================================

// GenerateXSD creates an XSD describing the output of a mapping config
// rendered with the default options. Every column is optional because
// conditional fields may be left out of a record.
func GenerateXSD(cfg *config.MappingConfig) ([]byte, error) {
	if cfg == nil || len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("mapping config has no targets")
	}
	opts := DefaultGenerateOptions()

	var buffer bytes.Buffer
	buffer.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
`)
	writeOptionalTypes(&buffer)

	buffer.WriteString(fmt.Sprintf(`  <xs:element name="%s">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="errors" minOccurs="0">
          <xs:complexType>
            <xs:sequence>
              <xs:element name="error" type="xs:string" maxOccurs="unbounded"/>
            </xs:sequence>
          </xs:complexType>
        </xs:element>
        <xs:element name="%s" minOccurs="0" maxOccurs="unbounded">
          <xs:complexType>
            <xs:sequence>
              <xs:element name="%s" minOccurs="0" maxOccurs="unbounded">
                <xs:complexType>
                  <xs:choice minOccurs="0" maxOccurs="unbounded">
`, opts.RootElement, opts.TableElement, opts.RecordElement))

	seen := make(map[string]bool)
	for _, target := range cfg.Targets {
		for _, field := range target.Fields {
			if seen[field.Name] {
				continue
			}
			seen[field.Name] = true
			buffer.WriteString(fmt.Sprintf("                    <xs:element name=\"%s\" type=\"%s\"/>\n",
				field.Name, getXSDType(field.Type)))
		}
		for _, key := range target.ParentKeys {
			if !seen[key] {
				seen[key] = true
				buffer.WriteString(fmt.Sprintf("                    <xs:element name=\"%s\" type=\"xs:string\"/>\n", key))
			}
		}
	}

	buffer.WriteString(`                  </xs:choice>
                  <xs:attribute name="n" type="xs:positiveInteger" use="required"/>
                </xs:complexType>
              </xs:element>
            </xs:sequence>
            <xs:attribute name="name" type="xs:string" use="required"/>
          </xs:complexType>
        </xs:element>
      </xs:sequence>
      <xs:attribute name="success" type="xs:boolean" use="required"/>
    </xs:complexType>
  </xs:element>
</xs:schema>
`)

	return buffer.Bytes(), nil
}

// getXSDType maps mapping config field types to XSD types. NULL columns
// render as empty elements, so typed columns use the optional* unions.
func getXSDType(fieldType string) string {
	switch strings.ToUpper(fieldType) {
	case "INTEGER":
		return "optionalInteger"
	case "DECIMAL":
		return "optionalDecimal"
	case "DATE", "DATETIME", "TIMESTAMP":
		return "optionalDateTime"
	default:
		return "xs:string"
	}
}

// writeOptionalTypes declares the union types used by getXSDType.
func writeOptionalTypes(buffer *bytes.Buffer) {
	for _, t := range []struct{ name, base string }{
		{"optionalInteger", "xs:integer"},
		{"optionalDecimal", "xs:decimal"},
		{"optionalDateTime", "xs:dateTime"},
	} {
		buffer.WriteString(fmt.Sprintf(`  <xs:simpleType name="%s">
    <xs:union memberTypes="%s">
      <xs:simpleType>
        <xs:restriction base="xs:string">
          <xs:length value="0"/>
        </xs:restriction>
      </xs:simpleType>
    </xs:union>
  </xs:simpleType>

`, t.name, t.base))
	}
}
