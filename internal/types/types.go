// =============================================================================
// EDI Ingest - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - x12parser / fwparser (produce Node trees)
//   - xlsxparser / config (produce Schema values)
//   - expr, validation, converter (read trees, build Records)
//   - storage, xmlwriter (consume Records)
//
// =============================================================================

package types

import (
	"time"
)

// =============================================================================
// FIXED-WIDTH SCHEMA
// =============================================================================

// FieldDef describes one positional field of a fixed-width line.
// Start is inclusive and End is exclusive, both zero-based byte offsets.
type FieldDef struct {
	Name        string `yaml:"name"`
	Start       int    `yaml:"start"`
	End         int    `yaml:"end"`
	Trim        bool   `yaml:"trim"`
	Required    bool   `yaml:"required,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Schema is the positional layout of a fixed-width document.
// Header, data and trailer lines each have their own field list.
type Schema struct {
	Name          string     `yaml:"name"`
	Version       string     `yaml:"version"`
	HeaderFields  []FieldDef `yaml:"headerFields"`
	DataFields    []FieldDef `yaml:"dataFields"`
	TrailerFields []FieldDef `yaml:"trailerFields"`
}

// FieldCount returns the total number of field definitions in the schema.
func (s *Schema) FieldCount() int {
	if s == nil {
		return 0
	}
	return len(s.HeaderFields) + len(s.DataFields) + len(s.TrailerFields)
}

// =============================================================================
// PROCESSING CONTEXT
// =============================================================================

// Context keys understood by ProcessingContext.Value.
const (
	ContextPartnerID = "partnerId"
	ContextFileName  = "fileName"
	ContextEDIType   = "ediType"
	ContextTimestamp = "timestamp"
)

// ProcessingContext carries per-document values that field expressions can
// reference as "context.<key>". It is filled in before mapping starts and is
// only read afterwards.
type ProcessingContext struct {
	PartnerID  string
	FileName   string
	EDIType    string
	Timestamp  time.Time
	Additional map[string]any
}

// NewProcessingContext creates a context stamped with the current time.
func NewProcessingContext(partnerID, fileName, ediType string) *ProcessingContext {
	return &ProcessingContext{
		PartnerID:  partnerID,
		FileName:   fileName,
		EDIType:    ediType,
		Timestamp:  time.Now(),
		Additional: make(map[string]any),
	}
}

// Set stores an additional value. Call it before mapping begins.
func (c *ProcessingContext) Set(key string, value any) {
	if c.Additional == nil {
		c.Additional = make(map[string]any)
	}
	c.Additional[key] = value
}

// Value returns the named context value. The well-known keys map to the
// struct fields; anything else is looked up in Additional.
func (c *ProcessingContext) Value(key string) (any, bool) {
	if c == nil {
		return nil, false
	}

	switch key {
	case ContextPartnerID:
		return c.PartnerID, true
	case ContextFileName:
		return c.FileName, true
	case ContextEDIType:
		return c.EDIType, true
	case ContextTimestamp:
		if c.Timestamp.IsZero() {
			return nil, false
		}
		return c.Timestamp, true
	}

	v, ok := c.Additional[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
