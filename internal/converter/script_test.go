package converter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/types"
)

func TestScriptTransform(t *testing.T) {
	cfg := x12Config(headerTarget(
		config.FieldMapping{Name: "CONTROL_NO", Source: "ST.02"},
		config.FieldMapping{Name: "PADDED", Transform: "SCRIPT", Source: "B4.09", Script: `"C-" .. value`},
		config.FieldMapping{Name: "FROM_RECORD", Transform: "SCRIPT", Script: `
			local n = tonumber(record.CONTROL_NO)
			return n * 10`},
		config.FieldMapping{Name: "COUNT", Transform: "SCRIPT", Script: "1 + 1", Type: "INTEGER"},
		config.FieldMapping{Name: "PARTNER", Transform: "SCRIPT", Script: "string.lower(context.partnerId)"},
		config.FieldMapping{Name: "NIL_VALUE", Transform: "SCRIPT", Source: "ZZ.01", Script: "value == nil"},
		config.FieldMapping{Name: "HALF", Transform: "SCRIPT", Script: "3 / 2"},
		config.FieldMapping{Name: "TABLE", Transform: "SCRIPT", Script: "{1, 2}"},
		config.FieldMapping{Name: "RETURN_TEXT", Transform: "SCRIPT", Script: `"no return"`},
		config.FieldMapping{Name: "RETURN_IDENT", Transform: "SCRIPT", Script: `context.partnerId .. "_returned"`},
		config.FieldMapping{Name: "STATEMENT", Transform: "SCRIPT", Script: `if value == nil then return "none" end return value`},
	))

	rec := transform(t, x12Tree(transaction("0001")), cfg, nil).Records("EDI_315_HEADER")[0]
	assert.Equal(t, "C-1234567", rec.Value("PADDED"))
	assert.Equal(t, 10, rec.Value("FROM_RECORD"))
	assert.Equal(t, 2, rec.Value("COUNT"))
	assert.Equal(t, "acme", rec.Value("PARTNER"))
	assert.Equal(t, true, rec.Value("NIL_VALUE"))
	assert.Equal(t, 1.5, rec.Value("HALF"))
	assert.Nil(t, rec.Value("TABLE"))
	assert.Equal(t, "no return", rec.Value("RETURN_TEXT"))
	assert.Equal(t, "ACME_returned", rec.Value("RETURN_IDENT"))
	assert.Equal(t, "none", rec.Value("STATEMENT"))
}

func TestScriptFailuresYieldNil(t *testing.T) {
	cfg := x12Config(headerTarget(
		config.FieldMapping{Name: "SYNTAX", Transform: "SCRIPT", Script: "return ("},
		config.FieldMapping{Name: "RUNTIME", Transform: "SCRIPT", Script: "error('boom')"},
		config.FieldMapping{Name: "EMPTY", Transform: "SCRIPT"},
		config.FieldMapping{Name: "SANDBOX", Transform: "SCRIPT", Script: "os.getenv('HOME')"},
	))

	rec := transform(t, x12Tree(transaction("0001")), cfg, nil).Records("EDI_315_HEADER")[0]
	for _, name := range []string{"SYNTAX", "RUNTIME", "EMPTY", "SANDBOX"} {
		assert.True(t, rec.Has(name), name)
		assert.Nil(t, rec.Value(name), name)
	}
}

func TestScriptTimeout(t *testing.T) {
	runner := NewScriptRunner(20*time.Millisecond, nil)
	engine := NewEngine(nil, nil, WithScriptRunner(runner))
	cfg := x12Config(headerTarget(
		config.FieldMapping{Name: "SPIN", Transform: "SCRIPT", Script: "while true do end return 1"},
	))

	start := time.Now()
	result := engine.Transform(t.Context(), x12Tree(transaction("0001")), cfg, "", types.NewProcessingContext("", "", "315"))
	require.True(t, result.Success())
	assert.Nil(t, result.Records("EDI_315_HEADER")[0].Value("SPIN"))
	assert.Less(t, time.Since(start), 5*time.Second)
}
