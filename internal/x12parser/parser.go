// =============================================================================
// EDI Ingest - X12 Parser Module
// =============================================================================
//
// This module converts ANSI X12 interchange text into the generic document
// tree consumed by the mapping engine.
//
// TREE SHAPE:
//   {
//     envelope:     {ISA: {...}, GS: {...}, GE: {...}, IEA: {...}},
//     transactions: [{ST: {...}, B4: {...}, N9: [{...}, {...}], SE: {...}}],
//     _metadata:    {transactionCount, elementSeparator, segmentTerminator}
//   }
//
// Each segment becomes an object whose keys are the two-digit element
// positions ("01", "02", ...). A segment id seen twice in one transaction is
// promoted from an object to an array.
//
// DELIMITERS:
//   X12 delimiters are self-defining. The element separator is the character
//   at offset 3 of the ISA segment and the segment terminator is the character
//   at offset 105. Both are read before any splitting happens.
//
// =============================================================================

package x12parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/ginjaninja78/edi-ingest/internal/types"
)

const (
	elementSeparatorOffset  = 3
	segmentTerminatorOffset = 105

	// DefaultSegmentTerminator is used when the content is too short to hold
	// a full ISA preamble.
	DefaultSegmentTerminator = "~"
)

// Envelope segment ids.
const (
	SegmentISA = "ISA"
	SegmentGS  = "GS"
	SegmentST  = "ST"
	SegmentSE  = "SE"
	SegmentGE  = "GE"
	SegmentIEA = "IEA"
)

// =============================================================================
// ERRORS
// =============================================================================

// FormatError is returned when the raw text cannot be turned into a tree.
type FormatError struct {
	Reason string
	Length int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("x12 format error: %s (content length %d)", e.Reason, e.Length)
}

// =============================================================================
// DELIMITERS
// =============================================================================

// Delimiters holds the separators discovered from the ISA preamble.
type Delimiters struct {
	ElementSeparator  string
	SegmentTerminator string
}

// DetectDelimiters reads the element separator at offset 3 and the segment
// terminator at offset 105.
func DetectDelimiters(content string) (Delimiters, error) {
	if len(content) <= elementSeparatorOffset {
		return Delimiters{}, &FormatError{
			Reason: "content too short to contain an ISA element separator",
			Length: len(content),
		}
	}

	d := Delimiters{
		ElementSeparator:  content[elementSeparatorOffset : elementSeparatorOffset+1],
		SegmentTerminator: DefaultSegmentTerminator,
	}
	if len(content) > segmentTerminatorOffset {
		d.SegmentTerminator = content[segmentTerminatorOffset : segmentTerminatorOffset+1]
	}
	return d, nil
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseFile reads an X12 file from disk and parses it.
func ParseFile(filePath string) (*types.Node, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(string(data))
}

// Parse converts X12 text into a document tree.
//
// PARSING PROCESS:
//  1. Discover the delimiters from the ISA preamble
//  2. Strip line endings and split on the segment terminator
//  3. Split each segment on the element separator, keeping trailing empties
//  4. Route envelope segments to "envelope" and everything between ST and SE
//     into a transaction
//
// Segments that appear outside an ST/SE pair are dropped. A transaction that
// is opened by ST but never closed by SE is discarded.
func Parse(content string) (*types.Node, error) {
	delims, err := DetectDelimiters(content)
	if err != nil {
		return nil, err
	}

	envelope := types.NewObject()
	transactions := types.NewArray()
	var current *types.Node

	for _, raw := range splitSegments(content, delims.SegmentTerminator) {
		if strings.TrimSpace(raw) == "" {
			continue
		}

		elements := strings.Split(raw, delims.ElementSeparator)
		segmentID := strings.TrimSpace(elements[0])
		segment := buildSegment(elements)

		switch segmentID {
		case SegmentISA, SegmentGS, SegmentGE, SegmentIEA:
			envelope.Set(segmentID, segment)
		case SegmentST:
			current = types.NewObject()
			current.Set(SegmentST, segment)
		case SegmentSE:
			if current != nil {
				current.Set(SegmentSE, segment)
				transactions.Append(current)
				current = nil
			}
		default:
			if current != nil {
				addSegment(current, segmentID, segment)
			}
		}
	}

	meta := types.NewObject()
	meta.Set("transactionCount", types.NewInt(transactions.Len()))
	meta.SetString("elementSeparator", delims.ElementSeparator)
	meta.SetString("segmentTerminator", delims.SegmentTerminator)

	root := types.NewObject()
	root.Set("envelope", envelope)
	root.Set("transactions", transactions)
	root.Set("_metadata", meta)
	return root, nil
}

// splitSegments removes line-ending noise and splits on the terminator. When
// the terminator itself is a line ending, lines are the segments.
func splitSegments(content, terminator string) []string {
	if terminator == "\n" || terminator == "\r" {
		normalized := strings.ReplaceAll(content, "\r\n", "\n")
		normalized = strings.ReplaceAll(normalized, "\r", "\n")
		return strings.Split(normalized, "\n")
	}

	normalized := strings.NewReplacer("\r", "", "\n", "").Replace(content)
	return strings.Split(normalized, terminator)
}

// buildSegment keys every element after the segment id by its two-digit
// position. Values are trimmed.
func buildSegment(elements []string) *types.Node {
	node := types.NewObject()
	for i := 1; i < len(elements); i++ {
		node.SetString(fmt.Sprintf("%02d", i), strings.TrimSpace(elements[i]))
	}
	return node
}

// addSegment stores a segment on the transaction, promoting to an array on
// the second occurrence of the same id.
func addSegment(transaction *types.Node, segmentID string, segment *types.Node) {
	existing := transaction.Get(segmentID)
	switch {
	case existing == nil:
		transaction.Set(segmentID, segment)
	case existing.IsArray():
		existing.Append(segment)
	default:
		transaction.Set(segmentID, types.NewArray(existing, segment))
	}
}
