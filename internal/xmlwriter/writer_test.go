package xmlwriter

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/converter"
	"github.com/ginjaninja78/edi-ingest/internal/types"
)

func sampleResult() *converter.MappingResult {
	result := converter.NewMappingResult()

	header := types.NewRecord()
	header.Set("CONTROL_NO", "0001")
	header.Set("EVENT_DATE", time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC))
	result.AddRecords("EDI_315_HEADER", []*types.Record{header})

	first := types.NewRecord()
	first.Set("LOCATION", "R&D <yard>")
	first.Set("SEQ", 1)
	second := types.NewRecord()
	second.Set("LOCATION", nil)
	second.Set("SEQ", 2)
	result.AddRecords("EDI_315_EVENT", []*types.Record{first, second})
	return result
}

func TestGenerate(t *testing.T) {
	out, err := Generate(sampleResult())
	require.NoError(t, err)

	want := `<?xml version="1.0" encoding="UTF-8"?>
<ediResult success="true">
  <table name="EDI_315_HEADER">
    <record n="1">
      <CONTROL_NO>0001</CONTROL_NO>
      <EVENT_DATE>2024-01-02T08:30:00Z</EVENT_DATE>
    </record>
  </table>
  <table name="EDI_315_EVENT">
    <record n="1">
      <LOCATION>R&amp;D &lt;yard&gt;</LOCATION>
      <SEQ>1</SEQ>
    </record>
    <record n="2">
      <LOCATION/>
      <SEQ>2</SEQ>
    </record>
  </table>
</ediResult>
`
	assert.Equal(t, want, string(out))
}

func TestGenerateGlobalNumberingAndAttributes(t *testing.T) {
	opts := DefaultGenerateOptions()
	opts.RecordNumberingGlobal = true
	opts.IncludeXMLDeclaration = false
	opts.RootAttributes = map[string]string{"xmlns": "urn:edi", "file": "a\"b"}

	out, err := GenerateWithOptions(sampleResult(), opts)
	require.NoError(t, err)

	s := string(out)
	assert.True(t, strings.HasPrefix(s, `<ediResult success="true" file="a&quot;b" xmlns="urn:edi">`))
	assert.Contains(t, s, `<record n="3">`)
	assert.NotContains(t, s, "<?xml")
}

func TestGenerateFailedResult(t *testing.T) {
	out, err := Generate(converter.FailedResult([]string{"Trailer record is required"}))
	require.NoError(t, err)

	var doc struct {
		Success bool     `xml:"success,attr"`
		Errors  []string `xml:"errors>error"`
	}
	require.NoError(t, xml.Unmarshal(out, &doc))
	assert.False(t, doc.Success)
	assert.Equal(t, []string{"Trailer record is required"}, doc.Errors)
}

func TestGenerateRejectsBadColumnNames(t *testing.T) {
	result := converter.NewMappingResult()
	rec := types.NewRecord()
	rec.Set("1ST", "x")
	result.AddRecords("T", []*types.Record{rec})

	_, err := Generate(result)
	require.Error(t, err)

	_, err = Generate(nil)
	require.Error(t, err)
}

func TestIsValidName(t *testing.T) {
	for _, name := range []string{"CONTROL_NO", "_x", "a-b.c1"} {
		assert.True(t, isValidName(name), name)
	}
	for _, name := range []string{"", "1A", "A B", "xmlThing", "a<b"} {
		assert.False(t, isValidName(name), name)
	}
}

func TestGenerateXSD(t *testing.T) {
	cfg := &config.MappingConfig{
		EDIType:      "315",
		SourceFormat: config.SourceX12,
		Targets: []config.TargetTableConfig{
			{Table: "EDI_315_HEADER", Type: config.TargetHeader, Fields: []config.FieldMapping{
				{Name: "CONTROL_NO"},
				{Name: "EVENT_DATE", Type: "DATE"},
			}},
			{Table: "EDI_315_EVENT", Type: config.TargetDetail, LoopPath: "R4", ParentKeys: []string{"CONTROL_NO", "RUN_ID"},
				Fields: []config.FieldMapping{
					{Name: "SEQ", Type: "integer"},
					{Name: "AMOUNT", Type: "DECIMAL"},
				}},
		},
	}

	out, err := GenerateXSD(cfg)
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `<xs:element name="EVENT_DATE" type="optionalDateTime"/>`)
	assert.Contains(t, s, `<xs:element name="SEQ" type="optionalInteger"/>`)
	assert.Contains(t, s, `<xs:element name="AMOUNT" type="optionalDecimal"/>`)
	assert.Contains(t, s, `<xs:element name="RUN_ID" type="xs:string"/>`)
	assert.Equal(t, 1, strings.Count(s, `name="CONTROL_NO"`))

	var parsed struct{}
	require.NoError(t, xml.Unmarshal(out, &parsed))

	_, err = GenerateXSD(&config.MappingConfig{})
	require.Error(t, err)
}
