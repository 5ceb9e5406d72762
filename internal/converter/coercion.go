package converter

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/edi-ingest/internal/expr"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
)

const (
	defaultDateFormat     = "yyyyMMdd"
	defaultDateTimeFormat = "yyyyMMddHHmm"
)

// convertType coerces a transformed value to the field's declared type. A
// value that cannot be converted is returned unchanged; coercion never fails
// a record.
//
// SUPPORTED TYPES:
//   - STRING:               text rendering of the value
//   - INTEGER:              int
//   - DECIMAL:              decimal.Decimal
//   - DATE:                 time.Time at midnight
//   - DATETIME, TIMESTAMP:  time.Time
//
// Any other type name leaves the value as is.
func convertType(value any, fieldType, format string, logger logging.Logger) any {
	if value == nil || fieldType == "" {
		return value
	}

	converted, err := coerce(value, strings.ToUpper(fieldType), format)
	if err != nil {
		logger.Debug("Type conversion failed for value: %v, type: %s: %v", value, fieldType, err)
		return value
	}
	return converted
}

func coerce(value any, fieldType, format string) (any, error) {
	switch fieldType {
	case "STRING":
		return expr.Stringify(value), nil

	case "INTEGER":
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		case decimal.Decimal:
			return int(v.IntPart()), nil
		}
		return strconv.Atoi(strings.TrimSpace(expr.Stringify(value)))

	case "DECIMAL":
		switch v := value.(type) {
		case decimal.Decimal:
			return v, nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case float64:
			return decimal.NewFromFloat(v), nil
		}
		return decimal.NewFromString(strings.TrimSpace(expr.Stringify(value)))

	case "DATE":
		if t, ok := value.(time.Time); ok {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), nil
		}
		return parseDate(formatOr(format, defaultDateFormat), expr.Stringify(value))

	case "DATETIME", "TIMESTAMP":
		if t, ok := value.(time.Time); ok {
			return t, nil
		}
		return parseDate(formatOr(format, defaultDateTimeFormat), expr.Stringify(value))
	}
	return value, nil
}

func formatOr(format, fallback string) string {
	if format == "" {
		return fallback
	}
	return format
}
