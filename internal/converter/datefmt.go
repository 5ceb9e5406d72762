package converter

import (
	"strings"
	"time"
)

// dateTokens maps the date pattern letters used in mapping configs to Go
// layout elements. Longer tokens are listed first.
var dateTokens = []struct {
	pattern string
	layout  string
}{
	{"yyyy", "2006"},
	{"SSS", "000"},
	{"yy", "06"},
	{"MM", "01"},
	{"dd", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
}

// goLayout converts a pattern such as "yyyyMMddHHmm" into a Go time layout.
// A pattern that already contains "2006" is returned unchanged, so configs
// may use Go layouts directly.
func goLayout(pattern string) string {
	if strings.Contains(pattern, "2006") {
		return pattern
	}

	var b strings.Builder
	for i := 0; i < len(pattern); {
		matched := false
		for _, tok := range dateTokens {
			if strings.HasPrefix(pattern[i:], tok.pattern) {
				b.WriteString(tok.layout)
				i += len(tok.pattern)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}

// shortYear reports whether pattern carries a two-digit year token.
func shortYear(pattern string) bool {
	if strings.Contains(pattern, "2006") {
		return false
	}
	return strings.Contains(strings.ReplaceAll(pattern, "yyyy", ""), "yy")
}

// parseDate parses value with a config date pattern. Two-digit years land
// in the century window from 80 years before now to 20 years after it.
func parseDate(pattern, value string) (time.Time, error) {
	return parseDateAt(pattern, value, time.Now())
}

func parseDateAt(pattern, value string, now time.Time) (time.Time, error) {
	t, err := time.Parse(goLayout(pattern), value)
	if err != nil || !shortYear(pattern) {
		return t, err
	}

	start := now.AddDate(-80, 0, 0)
	year := start.Year() - start.Year()%100 + t.Year()%100
	pivoted := t.AddDate(year-t.Year(), 0, 0)
	if pivoted.Before(start) {
		pivoted = pivoted.AddDate(100, 0, 0)
	}
	return pivoted, nil
}
