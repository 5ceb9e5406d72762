package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/edi-ingest/internal/types"
)

// =============================================================================
// MAPPING CONFIGURATION STRUCTURE
// =============================================================================

// SourceFormat is the wire format of the documents a mapping config handles.
type SourceFormat string

const (
	SourceX12        SourceFormat = "X12"
	SourceFixedWidth SourceFormat = "FIXED_WIDTH"
)

// TargetType tells the engine how a target table iterates the document.
type TargetType string

const (
	// TargetHeader maps each transaction once.
	TargetHeader TargetType = "HEADER"

	// TargetDetail maps one record per element of LoopPath.
	TargetDetail TargetType = "DETAIL"
)

// DefaultPartner is the cache-key suffix for configs that are not partner specific.
const DefaultPartner = "DEFAULT"

// MappingConfig declares how one EDI document type becomes table records.
// A loaded config is never modified and may be shared between goroutines.
type MappingConfig struct {
	EDIType      string       `yaml:"ediType"`
	SourceFormat SourceFormat `yaml:"sourceFormat"`
	Version      string       `yaml:"version"`
	Description  string       `yaml:"description,omitempty"`

	// PartnerID marks a config file that only applies to one partner.
	PartnerID string `yaml:"partnerId,omitempty"`

	// Schema is the fixed-width layout file, relative to the configs directory.
	// It may be a YAML file or an XLSX workbook.
	Schema string `yaml:"schema,omitempty"`

	// FilePatterns are filepath.Match globs used to route input files here.
	FilePatterns []string `yaml:"filePatterns,omitempty"`

	Validations      []ValidationRule           `yaml:"validations"`
	Targets          []TargetTableConfig        `yaml:"targets"`
	PartnerOverrides map[string]PartnerOverride `yaml:"partnerOverrides,omitempty"`
}

// TargetTableConfig declares one output table.
type TargetTableConfig struct {
	Table      string         `yaml:"table"`
	Type       TargetType     `yaml:"type"`
	LoopPath   string         `yaml:"loopPath,omitempty"`
	ParentKeys []string       `yaml:"parentKeys,omitempty"`
	Condition  string         `yaml:"condition,omitempty"`
	Fields     []FieldMapping `yaml:"fields"`
}

// FieldMapping declares one output column and how its value is derived.
// Which of the transform parameters are read depends on Transform.
type FieldMapping struct {
	Name      string `yaml:"name"`
	Source    string `yaml:"source,omitempty"`
	Type      string `yaml:"type,omitempty"`
	Format    string `yaml:"format,omitempty"`
	Transform string `yaml:"transform,omitempty"`
	Condition string `yaml:"condition,omitempty"`

	// CONSTANT
	Value string `yaml:"value,omitempty"`

	// CONCAT
	ConcatWith   string   `yaml:"concatWith,omitempty"`
	ConcatFields []string `yaml:"concatFields,omitempty"`

	// BUILD_DATETIME: century, year, month, day, hour, minute -> path
	SourceFields map[string]string `yaml:"sourceFields,omitempty"`

	// LOOKUP
	LookupTable             string `yaml:"lookupTable,omitempty"`
	LookupKeyColumn         string `yaml:"lookupKeyColumn,omitempty"`
	LookupKeyExpr           string `yaml:"lookupKeyExpr,omitempty"`
	LookupColumn            string `yaml:"lookupColumn,omitempty"`
	LookupCondition         string `yaml:"lookupCondition,omitempty"`
	LookupFallbackCondition string `yaml:"lookupFallbackCondition,omitempty"`

	// COALESCE
	Sources []SourceOption `yaml:"sources,omitempty"`

	// SCRIPT: Lua chunk returning the field value.
	Script string `yaml:"script,omitempty"`
}

// SourceOption is one COALESCE candidate: either a concatFields group or a
// single source, optionally routed through QUALIFIED_SEGMENT.
type SourceOption struct {
	Source       string   `yaml:"source,omitempty"`
	Transform    string   `yaml:"transform,omitempty"`
	ConcatFields []string `yaml:"concatFields,omitempty"`
}

// ValidationRule is one declarative structural check.
type ValidationRule struct {
	Rule          string   `yaml:"rule"`
	Field         string   `yaml:"field,omitempty"`
	Segments      []string `yaml:"segments,omitempty"`
	ExpectedField string   `yaml:"expectedField,omitempty"`
	Message       string   `yaml:"message,omitempty"`
}

// PartnerOverride is a partner-specific variation of a mapping config.
type PartnerOverride struct {
	FieldOverrides  []FieldMapping            `yaml:"fieldOverrides,omitempty"`
	SchemaOverrides map[string]types.FieldDef `yaml:"schemaOverrides,omitempty"`
}

// CacheKey builds the "<TYPE>_<partner|DEFAULT>" key used by config caches.
func CacheKey(ediType, partnerID string) string {
	if partnerID == "" {
		partnerID = DefaultPartner
	}
	return strings.ToUpper(ediType) + "_" + partnerID
}

// =============================================================================
// LOADING AND CHECKING
// =============================================================================

// LoadMappingFile reads, schema-checks and decodes one mapping config.
func LoadMappingFile(filePath string) (*MappingConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseMapping(data)
}

// ParseMapping checks YAML bytes against the mapping config schema and
// decodes them.
func ParseMapping(data []byte) (*MappingConfig, error) {
	if err := ValidateMappingYAML(data); err != nil {
		return nil, err
	}

	var cfg MappingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse mapping config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the rules the structural schema cannot express.
func (c *MappingConfig) Validate() error {
	switch c.SourceFormat {
	case SourceX12, SourceFixedWidth:
	default:
		return fmt.Errorf("mapping %s: unsupported sourceFormat %q", c.EDIType, c.SourceFormat)
	}

	if c.SourceFormat == SourceFixedWidth && c.Schema == "" {
		return fmt.Errorf("mapping %s: FIXED_WIDTH configs need a schema", c.EDIType)
	}

	for _, t := range c.Targets {
		if c.SourceFormat == SourceX12 && t.Type == TargetDetail && t.LoopPath == "" {
			return fmt.Errorf("mapping %s: DETAIL target %s has no loopPath", c.EDIType, t.Table)
		}
		seen := make(map[string]bool, len(t.Fields))
		for _, f := range t.Fields {
			if seen[f.Name] {
				return fmt.Errorf("mapping %s: table %s declares field %s twice", c.EDIType, t.Table, f.Name)
			}
			seen[f.Name] = true
		}
	}
	return nil
}

// LoadSchemaFile reads a YAML fixed-width schema.
func LoadSchemaFile(filePath string) (*types.Schema, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var schema types.Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if schema.FieldCount() == 0 {
		return nil, fmt.Errorf("schema %s defines no fields", filePath)
	}
	return &schema, nil
}
