package expr

import (
	"regexp"
	"strings"

	"github.com/ginjaninja78/edi-ingest/internal/types"
)

// IndexQualifier selects the segment occurrence at the current loop index
// instead of matching on an element value.
const IndexQualifier = "_index"

var qualifiedPattern = regexp.MustCompile(`^(\w+)\[([^\]]+)\]\.(\d+)$`)

// QualifiedValue evaluates SEG[QUAL].POS against search, where QUAL is either
// "ELEM=VALUE" (first occurrence whose ELEM equals VALUE) or "_index" (the
// occurrence at loopIndex). Malformed expressions and misses are absent.
//
// Examples:
//
//	N9[01=BM].02   reference number of the first N9 with qualifier BM
//	R4[_index].03  R4 element 03 at the current loop position
func QualifiedValue(expr string, search *types.Node, loopIndex int) (string, bool) {
	m := qualifiedPattern.FindStringSubmatch(expr)
	if m == nil {
		return "", false
	}
	segmentID, qualifier, position := m[1], m[2], m[3]

	segments := search.Get(segmentID)
	if segments == nil {
		return "", false
	}

	if qualifier == IndexQualifier {
		if !segments.IsArray() || loopIndex < 0 || loopIndex >= segments.Len() {
			return "", false
		}
		return elementText(segments.Index(loopIndex), position)
	}

	parts := strings.Split(qualifier, "=")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	qualPos, qualValue := parts[0], parts[1]

	if segments.IsArray() {
		for _, segment := range segments.Items() {
			if matchesQualifier(segment, qualPos, qualValue) {
				return elementText(segment, position)
			}
		}
		return "", false
	}

	if matchesQualifier(segments, qualPos, qualValue) {
		return elementText(segments, position)
	}
	return "", false
}

// elementText returns an element's raw text. A present empty element is
// returned as "" with ok set.
func elementText(segment *types.Node, pos string) (string, bool) {
	value := segment.Get(pos)
	if value == nil || value.IsNull() {
		return "", false
	}
	return value.Text(), true
}

func matchesQualifier(segment *types.Node, pos, value string) bool {
	q := segment.Get(pos)
	return q != nil && q.IsScalar() && q.Text() == value
}
