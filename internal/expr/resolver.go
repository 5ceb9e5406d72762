// =============================================================================
// EDI Ingest - Expression Resolver
// =============================================================================
//
// This package resolves the path expressions used throughout mapping configs
// against a document tree and a processing context.
//
// PATH PRECEDENCE (first matching form wins):
//   1. 'literal'            the quoted text, quotes removed
//   2. context.<key>        a ProcessingContext value
//   3. output.<column>      a column already produced for the current record
//   4. header.<field>       a header field (fixed-width documents)
//   5. envelope.<a>.<b>     dotted walk into the X12 envelope
//   6. <SEG>.<ELEM>         an element of a transaction-level segment
//   7. <field>              a field of the current record
//
// Leaf reads are trimmed; null and empty values are reported as absent.
//
// =============================================================================

package expr

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ginjaninja78/edi-ingest/internal/types"
)

const (
	contextPrefix  = "context."
	outputPrefix   = "output."
	headerPrefix   = "header."
	envelopePrefix = "envelope."

	// TimestampLayout renders time values produced by context and transforms.
	TimestampLayout = "2006-01-02T15:04:05"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolver holds everything a path expression can refer to while one field
// is being mapped. Document is required; every other member may be nil.
type Resolver struct {
	// Document is the whole parsed tree.
	Document *types.Node

	// Transaction is the current X12 transaction. For fixed-width documents
	// it is the current data line.
	Transaction *types.Node

	// Record is the current loop element, or the transaction itself for
	// header targets.
	Record *types.Node

	// Context holds per-document values.
	Context *types.ProcessingContext

	// Output is the record built so far for the current row.
	Output *types.Record

	// LoopIndex is the position of Record in its loop, or -1 outside a loop.
	LoopIndex int
}

// StringValue resolves a path expression. The boolean is false when the
// value is absent.
func (r *Resolver) StringValue(path string) (string, bool) {
	if path == "" {
		return "", false
	}

	if len(path) >= 2 && strings.HasPrefix(path, "'") && strings.HasSuffix(path, "'") {
		return path[1 : len(path)-1], true
	}

	if strings.HasPrefix(path, contextPrefix) {
		v, ok := r.Context.Value(strings.TrimPrefix(path, contextPrefix))
		if !ok {
			return "", false
		}
		return Stringify(v), true
	}

	if strings.HasPrefix(path, outputPrefix) {
		v, ok := r.Output.Get(strings.TrimPrefix(path, outputPrefix))
		if !ok || v == nil {
			return "", false
		}
		s := strings.TrimSpace(Stringify(v))
		return s, s != ""
	}

	if strings.HasPrefix(path, headerPrefix) && r.Document.Has("header") {
		return NodeText(r.Document.Get("header"), strings.TrimPrefix(path, headerPrefix))
	}

	if strings.HasPrefix(path, envelopePrefix) && r.Document.Has("envelope") {
		parts := strings.Split(strings.TrimPrefix(path, envelopePrefix), ".")
		node := r.Document.Get("envelope").Path(parts...)
		if node == nil || node.IsNull() {
			return "", false
		}
		return strings.TrimSpace(node.Text()), true
	}

	if r.Transaction != nil && strings.Contains(path, ".") {
		segmentID, elementID, _ := strings.Cut(path, ".")
		if segment := r.Transaction.Get(segmentID); segment != nil {
			return NodeText(segment, elementID)
		}
	}

	return NodeText(r.Record, path)
}

// Value is StringValue with absence reported as nil, for transforms that
// return values to the engine.
func (r *Resolver) Value(path string) any {
	s, ok := r.StringValue(path)
	if !ok {
		return nil
	}
	return s
}

// ResolvePlaceholders replaces every ${path} in expr with StringValue(path).
// Absent values become empty strings.
func (r *Resolver) ResolvePlaceholders(expr string) string {
	return placeholderPattern.ReplaceAllStringFunc(expr, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		s, _ := r.StringValue(path)
		return s
	})
}

// SearchNode is where qualified segment lookups look: the transaction when
// there is one, otherwise the current record.
func (r *Resolver) SearchNode() *types.Node {
	if r.Transaction != nil {
		return r.Transaction
	}
	return r.Record
}

// Qualified extracts a SEG[qualifier].POS value from the search node.
func (r *Resolver) Qualified(source string) (string, bool) {
	return QualifiedValue(source, r.SearchNode(), r.LoopIndex)
}

// NodeText reads a named field of an object node. Missing, null and empty
// values are absent; present values are trimmed.
func NodeText(node *types.Node, field string) (string, bool) {
	if node == nil || !node.Has(field) {
		return "", false
	}
	value := node.Get(field)
	if value.IsNull() {
		return "", false
	}
	text := value.Text()
	if text == "" {
		return "", false
	}
	return strings.TrimSpace(text), true
}

// Stringify renders a resolved or transformed value as text.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(TimestampLayout)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
