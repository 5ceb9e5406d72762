// =============================================================================
// EDI Ingest - Transformation Engine
// =============================================================================
//
// This module derives one output value for one field mapping. Each mapping
// names a transform; the transform reads path expressions through the
// expression resolver and returns a value, or nil when there is nothing to
// write.
//
// TRANSFORMATION TYPES:
//   - Extraction:   DIRECT, QUALIFIED_SEGMENT, COALESCE
//   - Constants:    CONSTANT, CURRENT_TIMESTAMP
//   - Strings:      CONCAT, TRIM_OR_NULL, UPPERCASE
//   - Numbers:      DIVIDE_100
//   - Dates:        BUILD_DATETIME
//   - Reference:    LOOKUP
//   - Flags:        BOOKNO_FLAG, ID_MAP_FLAG
//   - Scripted:     SCRIPT (Lua)
//
// ERROR HANDLING:
//   A transform never fails the record. Unparseable input yields nil and an
//   unknown transform name falls back to DIRECT with a warning.
//
// =============================================================================

package converter

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/expr"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/lookup"
)

// =============================================================================
// TRANSFORM KINDS
// =============================================================================

// TransformKind is the closed set of field transforms.
type TransformKind int

const (
	TransformUnknown TransformKind = iota
	TransformDirect
	TransformConstant
	TransformCurrentTimestamp
	TransformConcat
	TransformBuildDatetime
	TransformDivide100
	TransformTrimOrNull
	TransformUppercase
	TransformLookup
	TransformQualifiedSegment
	TransformCoalesce
	TransformBooknoFlag
	TransformIDMapFlag
	TransformScript
)

var transformNames = [...]string{
	TransformUnknown:          "UNKNOWN",
	TransformDirect:           "DIRECT",
	TransformConstant:         "CONSTANT",
	TransformCurrentTimestamp: "CURRENT_TIMESTAMP",
	TransformConcat:           "CONCAT",
	TransformBuildDatetime:    "BUILD_DATETIME",
	TransformDivide100:        "DIVIDE_100",
	TransformTrimOrNull:       "TRIM_OR_NULL",
	TransformUppercase:        "UPPERCASE",
	TransformLookup:           "LOOKUP",
	TransformQualifiedSegment: "QUALIFIED_SEGMENT",
	TransformCoalesce:         "COALESCE",
	TransformBooknoFlag:       "BOOKNO_FLAG",
	TransformIDMapFlag:        "ID_MAP_FLAG",
	TransformScript:           "SCRIPT",
}

func (k TransformKind) String() string {
	if k >= 0 && int(k) < len(transformNames) {
		return transformNames[k]
	}
	return "UNKNOWN"
}

// ParseTransformKind maps a config transform name to its kind. An empty name
// means DIRECT; an unrecognized name is TransformUnknown.
func ParseTransformKind(name string) TransformKind {
	if name == "" {
		return TransformDirect
	}
	for i, n := range transformNames {
		if TransformKind(i) != TransformUnknown && n == name {
			return TransformKind(i)
		}
	}
	return TransformUnknown
}

// Field names of BUILD_DATETIME sourceFields, in concatenation order.
var datetimeParts = []string{"century", "year", "month", "day", "hour"}

// =============================================================================
// TRANSFORM CONTEXT
// =============================================================================

// TransformContext is everything a transform may read for one field.
type TransformContext struct {
	*expr.Resolver

	// Ctx bounds lookups and scripts.
	Ctx context.Context

	// Field is the mapping being evaluated.
	Field *config.FieldMapping
}

// =============================================================================
// TRANSFORMER
// =============================================================================

// Transformer applies field transforms. It is safe for concurrent use when
// its lookup service is.
type Transformer struct {
	lookup  lookup.Service
	scripts *ScriptRunner
	logger  logging.Logger
	now     func() time.Time
}

// NewTransformer creates a Transformer. lookupService may be nil, in which
// case LOOKUP fields resolve to nil.
func NewTransformer(lookupService lookup.Service, scripts *ScriptRunner, logger logging.Logger) *Transformer {
	logger = logging.OrNop(logger)
	if scripts == nil {
		scripts = NewScriptRunner(DefaultScriptTimeout, logger)
	}
	return &Transformer{
		lookup:  lookupService,
		scripts: scripts,
		logger:  logger,
		now:     time.Now,
	}
}

// Apply derives the value for tc.Field.
//
// PARAMETERS:
//   - tc: the field mapping plus the document position it is evaluated at
//
// RETURNS:
//   - the derived value, or nil when nothing should be written
//
// CUSTOMIZATION:
//   Add new transform types by extending TransformKind and this switch.
func (t *Transformer) Apply(tc *TransformContext) any {
	f := tc.Field
	kind := ParseTransformKind(f.Transform)

	switch kind {

	// =========================================================================
	// EXTRACTION
	// =========================================================================

	case TransformDirect:
		return tc.Value(f.Source)

	case TransformQualifiedSegment:
		return qualified(tc, f.Source)

	case TransformCoalesce:
		return t.coalesce(tc)

	// =========================================================================
	// CONSTANTS
	// =========================================================================

	case TransformConstant:
		if f.Value == "" {
			return nil
		}
		return f.Value

	case TransformCurrentTimestamp:
		return t.now()

	// =========================================================================
	// STRING MANIPULATIONS
	// =========================================================================

	case TransformConcat:
		// EXAMPLE:
		//   source: B4.07, concatWith: B4.08  =>  "MSCU" + "1234567"
		var b strings.Builder
		b.WriteString(valueOrEmpty(tc, f.Source))
		if f.ConcatWith != "" {
			b.WriteString(valueOrEmpty(tc, f.ConcatWith))
		}
		for _, field := range f.ConcatFields {
			b.WriteString(valueOrEmpty(tc, field))
		}
		return strings.TrimSpace(b.String())

	case TransformTrimOrNull:
		v, ok := tc.StringValue(f.Source)
		if !ok {
			return nil
		}
		if v = strings.TrimSpace(v); v == "" {
			return nil
		}
		return v

	case TransformUppercase:
		v, ok := tc.StringValue(f.Source)
		if !ok {
			return nil
		}
		return strings.ToUpper(v)

	// =========================================================================
	// NUMERIC AND DATE
	// =========================================================================

	case TransformDivide100:
		// Implied two-decimal amounts: "004550" => 45.5
		v, ok := tc.StringValue(f.Source)
		if !ok || v == "" {
			return nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			t.logger.Debug("DIVIDE_100 on non-numeric value %q for field %s", v, f.Name)
			return nil
		}
		return d.Div(decimal.NewFromInt(100))

	case TransformBuildDatetime:
		return t.buildDatetime(tc)

	// =========================================================================
	// REFERENCE DATA
	// =========================================================================

	case TransformLookup:
		return t.lookupValue(tc)

	// =========================================================================
	// FLAGS
	// =========================================================================

	case TransformBooknoFlag, TransformIDMapFlag:
		return flagFuncs[kind](tc.Resolver, f.Source)

	// =========================================================================
	// SCRIPTED
	// =========================================================================

	case TransformScript:
		return t.scripts.Run(tc)

	default:
		t.logger.Warn("Unknown transform: %s, using DIRECT", f.Transform)
		return tc.Value(f.Source)
	}
}

// =============================================================================
// TRANSFORM HELPERS
// =============================================================================

func valueOrEmpty(tc *TransformContext, path string) string {
	v, _ := tc.StringValue(path)
	return v
}

func qualified(tc *TransformContext, source string) any {
	v, ok := tc.Qualified(source)
	if !ok {
		return nil
	}
	return v
}

// coalesce returns the first candidate that yields a non-empty value.
func (t *Transformer) coalesce(tc *TransformContext) any {
	for _, src := range tc.Field.Sources {
		var value string

		switch {
		case len(src.ConcatFields) > 0:
			var b strings.Builder
			for _, field := range src.ConcatFields {
				if v, ok := tc.StringValue(field); ok {
					b.WriteString(v)
				}
			}
			value = b.String()
		case src.Source != "":
			if ParseTransformKind(src.Transform) == TransformQualifiedSegment {
				value, _ = tc.Qualified(src.Source)
			} else {
				value, _ = tc.StringValue(src.Source)
			}
		}

		if value != "" {
			return value
		}
	}
	return nil
}

// buildDatetime concatenates century, year, month, day, hour and minute
// parts and parses the result. A configured minute that resolves to nothing
// becomes "00".
func (t *Transformer) buildDatetime(tc *TransformContext) any {
	parts := tc.Field.SourceFields
	if parts == nil {
		return nil
	}

	var b strings.Builder
	for _, name := range datetimeParts {
		if path, ok := parts[name]; ok {
			b.WriteString(valueOrEmpty(tc, path))
		}
	}
	if path, ok := parts["minute"]; ok {
		if v, found := tc.StringValue(path); found {
			b.WriteString(v)
		} else {
			b.WriteString("00")
		}
	}

	parsed, err := parseDate(formatOr(tc.Field.Format, defaultDateTimeFormat), b.String())
	if err != nil {
		t.logger.Debug("BUILD_DATETIME for field %s could not parse %q: %v", tc.Field.Name, b.String(), err)
		return nil
	}
	return parsed
}

// lookupValue runs a LOOKUP in condition mode (lookupCondition, with an
// optional fallback condition) or key mode (lookupKeyExpr).
func (t *Transformer) lookupValue(tc *TransformContext) any {
	if t.lookup == nil {
		return nil
	}
	f := tc.Field

	if f.LookupCondition != "" {
		where := tc.ResolvePlaceholders(f.LookupCondition)
		result := t.lookup.LookupWithCondition(tc.Ctx, f.LookupTable, where, f.LookupColumn)
		if result == nil && f.LookupFallbackCondition != "" {
			where = tc.ResolvePlaceholders(f.LookupFallbackCondition)
			result = t.lookup.LookupWithCondition(tc.Ctx, f.LookupTable, where, f.LookupColumn)
		}
		return result
	}

	if f.LookupKeyExpr == "" {
		t.logger.Warn("LOOKUP field %s has neither lookupCondition nor lookupKeyExpr", f.Name)
		return nil
	}
	key := tc.ResolvePlaceholders(f.LookupKeyExpr)
	return t.lookup.Lookup(tc.Ctx, f.LookupTable, f.LookupKeyColumn, key, f.LookupColumn)
}
