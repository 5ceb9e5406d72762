package expr

import (
	"regexp"
	"strings"

	"github.com/ginjaninja78/edi-ingest/internal/types"
)

var conditionPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// EvaluateCondition applies the weak presence test used by target and field
// conditions. Every ${field} is replaced with the record's raw text for that
// field ("null" for an explicit null, "" when missing). The condition holds
// when the result is non-empty and contains neither "null" nor "''".
//
// An empty condition always holds.
func EvaluateCondition(condition string, record *types.Node) bool {
	if condition == "" {
		return true
	}

	resolved := conditionPattern.ReplaceAllStringFunc(condition, func(match string) string {
		field := conditionPattern.FindStringSubmatch(match)[1]
		if !record.Has(field) {
			return ""
		}
		value := record.Get(field)
		if value.IsNull() {
			return "null"
		}
		return value.Text()
	})

	return resolved != "" &&
		!strings.Contains(resolved, "null") &&
		!strings.Contains(resolved, "''")
}
