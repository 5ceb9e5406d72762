package converter

import (
	"github.com/ginjaninja78/edi-ingest/internal/expr"
)

// =============================================================================
// DERIVED FLAGS
// =============================================================================
//
// Flag transforms compute a code from what the document contains rather than
// copying a value. Each flag is its own function, registered by kind.

// FlagFunc derives a flag for the current document position. source is the
// field's configured source, which a flag may ignore.
type FlagFunc func(r *expr.Resolver, source string) any

var flagFuncs = map[TransformKind]FlagFunc{
	TransformBooknoFlag: booknoFlag,
	TransformIDMapFlag:  idMapFlag,
}

// booknoFlag reports how the booking was identified: "" when an N9 carries a
// BM (bill of lading) reference, "X" when only a BN (booking) reference is
// present, nil otherwise.
func booknoFlag(r *expr.Resolver, _ string) any {
	if v, ok := r.Qualified("N9[01=BM].02"); ok && v != "" {
		return ""
	}
	if v, ok := r.Qualified("N9[01=BN].02"); ok && v != "" {
		return "X"
	}
	return nil
}

// idMapFlag maps the source value: absent or "Y" to "T", "1" to "D", any
// other value passes through.
func idMapFlag(r *expr.Resolver, source string) any {
	v, ok := r.StringValue(source)
	switch {
	case !ok || v == "":
		return "T"
	case v == "1":
		return "D"
	case v == "Y":
		return "T"
	}
	return v
}
