// =============================================================================
// EDI Ingest - Validation Engine
// =============================================================================
//
// This module evaluates the declarative validation rules of a mapping config
// against a parsed document tree, before any records are produced.
//
// SUPPORTED RULES:
//   - HEADER_REQUIRED:     the header node exists and contains the field
//   - TRAILER_REQUIRED:    the trailer node exists
//   - RECORD_COUNT_MATCH:  _metadata.recordCount equals a trailer field
//   - REQUIRED_SEGMENT:    every transaction contains every listed segment
//
// ERROR HANDLING:
//   - Errors are collected, not thrown; every rule is evaluated
//   - Unknown rule names are logged and skipped
//   - A document with any error produces no records
//
// =============================================================================

package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/types"
)

// =============================================================================
// RULE KINDS
// =============================================================================

// RuleKind is the closed set of validation rules.
type RuleKind int

const (
	RuleUnknown RuleKind = iota
	RuleHeaderRequired
	RuleTrailerRequired
	RuleRecordCountMatch
	RuleRequiredSegment
)

var ruleNames = map[string]RuleKind{
	"HEADER_REQUIRED":    RuleHeaderRequired,
	"TRAILER_REQUIRED":   RuleTrailerRequired,
	"RECORD_COUNT_MATCH": RuleRecordCountMatch,
	"REQUIRED_SEGMENT":   RuleRequiredSegment,
}

// ParseRuleKind maps a config rule name to its kind. Names are matched
// exactly; anything else is RuleUnknown.
func ParseRuleKind(name string) RuleKind {
	if kind, ok := ruleNames[name]; ok {
		return kind
	}
	return RuleUnknown
}

func (k RuleKind) String() string {
	for name, kind := range ruleNames {
		if kind == k {
			return name
		}
	}
	return "UNKNOWN"
}

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single failed rule.
type ValidationError struct {
	// Rule is the rule that was violated.
	Rule RuleKind

	// Field is the header or trailer field the rule checked, if any.
	Field string

	// Segment is the missing segment for REQUIRED_SEGMENT.
	Segment string

	// TransactionIndex is the position of the offending transaction, or -1.
	TransactionIndex int

	// Message is the human-readable error reported to callers.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// Errors contains every failed rule in evaluation order.
	Errors []*ValidationError

	// RulesEvaluated counts known rules that ran.
	RulesEvaluated int

	// RulesSkipped counts unknown rule names.
	RulesSkipped int
}

// IsValid is true if no rule failed.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Messages returns the error messages in order.
func (r *ValidationResult) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Message
	}
	return out
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator evaluates rules against document trees. It holds no per-document
// state and may be shared.
type Validator struct {
	logger logging.Logger
}

// NewValidator creates a new Validator instance.
func NewValidator(logger logging.Logger) *Validator {
	return &Validator{logger: logging.OrNop(logger)}
}

// Validate evaluates rules against doc and returns the error messages.
//
// PARAMETERS:
//   - doc: a tree produced by x12parser or fwparser
//   - rules: the validations block of a mapping config
//
// RETURNS:
//   - the messages of all failed rules, empty when the document is valid
func Validate(doc *types.Node, rules []config.ValidationRule) []string {
	return NewValidator(nil).ValidateAll(doc, rules).Messages()
}

// ValidateAll evaluates every rule and returns a detailed result.
func (v *Validator) ValidateAll(doc *types.Node, rules []config.ValidationRule) *ValidationResult {
	result := &ValidationResult{Errors: make([]*ValidationError, 0)}

	for _, rule := range rules {
		kind := ParseRuleKind(rule.Rule)

		var errs []*ValidationError
		switch kind {
		case RuleHeaderRequired:
			errs = checkHeaderRequired(doc, rule)
		case RuleTrailerRequired:
			errs = checkTrailerRequired(doc, rule)
		case RuleRecordCountMatch:
			errs = checkRecordCount(doc, rule)
		case RuleRequiredSegment:
			errs = checkRequiredSegments(doc, rule)
		case RuleUnknown:
			v.logger.Warn("Unknown validation rule %q skipped", rule.Rule)
			result.RulesSkipped++
			continue
		}

		result.RulesEvaluated++
		result.Errors = append(result.Errors, errs...)
	}

	if len(result.Errors) > 0 {
		v.logger.Debug("Validation failed with %d error(s)", len(result.Errors))
	}
	return result
}

// =============================================================================
// RULE CHECKS
// =============================================================================

func checkHeaderRequired(doc *types.Node, rule config.ValidationRule) []*ValidationError {
	field := strings.TrimPrefix(rule.Field, "header.")
	header := doc.Get("header")
	if header == nil || header.IsNull() || !header.Has(field) {
		return []*ValidationError{{
			Rule:             RuleHeaderRequired,
			Field:            field,
			TransactionIndex: -1,
			Message:          messageOr(rule, fmt.Sprintf("Header field %s is required", field)),
		}}
	}
	return nil
}

// checkTrailerRequired treats an explicit null trailer the same as a missing one.
func checkTrailerRequired(doc *types.Node, rule config.ValidationRule) []*ValidationError {
	trailer := doc.Get("trailer")
	if trailer == nil || trailer.IsNull() {
		return []*ValidationError{{
			Rule:             RuleTrailerRequired,
			TransactionIndex: -1,
			Message:          messageOr(rule, "Trailer record is required"),
		}}
	}
	return nil
}

// checkRecordCount compares the parsed data line count with the count the
// trailer declares. It only runs when metadata, trailer and the expected
// trailer field all exist; a non-numeric value counts as 0.
func checkRecordCount(doc *types.Node, rule config.ValidationRule) []*ValidationError {
	metadata := doc.Get("_metadata")
	trailer := doc.Get("trailer")
	if metadata == nil || metadata.IsNull() || trailer == nil || trailer.IsNull() {
		return nil
	}

	field := strings.TrimPrefix(rule.ExpectedField, "trailer.")
	if !trailer.Has(field) {
		return nil
	}
	actual := intValue(metadata.Get("recordCount"))
	expected := intValue(trailer.Get(field))
	if actual == expected {
		return nil
	}

	return []*ValidationError{{
		Rule:             RuleRecordCountMatch,
		Field:            field,
		TransactionIndex: -1,
		Message: fmt.Sprintf("%s: actual=%d, expected=%d",
			messageOr(rule, "Record count mismatch"), actual, expected),
	}}
}

func checkRequiredSegments(doc *types.Node, rule config.ValidationRule) []*ValidationError {
	var errs []*ValidationError
	for i, tx := range doc.Get("transactions").Items() {
		for _, seg := range rule.Segments {
			if !tx.Has(seg) {
				errs = append(errs, &ValidationError{
					Rule:             RuleRequiredSegment,
					Segment:          seg,
					TransactionIndex: i,
					Message:          "Missing required segment: " + seg,
				})
			}
		}
	}
	return errs
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func messageOr(rule config.ValidationRule, fallback string) string {
	if rule.Message != "" {
		return rule.Message
	}
	return fallback
}

// intValue reads a node as an integer the lenient way: anything that is not
// a plain integer is 0.
func intValue(n *types.Node) int {
	if n == nil {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(n.Text()))
	if err != nil {
		return 0
	}
	return v
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Validation completed with %d error(s):\n\n", len(errors)))
	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, err.Rule, err.Message))
	}
	return builder.String()
}
