package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/types"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type staticConfigs struct {
	cfg    *config.MappingConfig
	schema *types.Schema
	err    error
	panics bool
}

func (s *staticConfigs) Config(string, string) (*config.MappingConfig, error) {
	if s.panics {
		panic("config cache corrupted")
	}
	return s.cfg, s.err
}

func (s *staticConfigs) Schema(*config.MappingConfig) (*types.Schema, error) {
	return s.schema, nil
}

type recordingPersister struct {
	counts map[string]int
	err    error
	saved  []string
}

func (p *recordingPersister) SaveResult(_ context.Context, tables types.TableSet) (map[string]int, error) {
	for _, table := range tables.Tables() {
		p.saved = append(p.saved, fmt.Sprintf("%s:%d", table, len(tables.Records(table))))
	}
	return p.counts, p.err
}

// =============================================================================
// FIXTURES
// =============================================================================

func isa() string {
	fields := []string{
		"ISA", "00", strings.Repeat(" ", 10), "00", strings.Repeat(" ", 10),
		"ZZ", fmt.Sprintf("%-15s", "SENDER"), "ZZ", fmt.Sprintf("%-15s", "RECEIVER"),
		"240101", "1200", "U", "00401", "000000001", "0", "P", ">",
	}
	return strings.Join(fields, "*") + "~"
}

func x12Content() string {
	segs := []string{
		"GS*QO*SENDER*RECEIVER*20240101*1200*1*X*004010",
		"ST*315*0001",
		"B4***VA*20240101*1200**MSCU*1234567",
		"R4*L*UN*USNYC",
		"R4*D*UN*NLRTM",
		"SE*5*0001",
		"GE*1*1",
		"IEA*1*000000001",
	}
	return isa() + strings.Join(segs, "~") + "~"
}

func processorConfig() *config.MappingConfig {
	return x12Config(
		headerTarget(config.FieldMapping{Name: "CONTROL_NO", Source: "ST.02"}),
		detailTarget(
			config.FieldMapping{Name: "LOCATION", Source: "03"},
			config.FieldMapping{Name: "RUN_ID", Source: "context.runId"},
		),
	)
}

func document() Document {
	return Document{Content: x12Content(), PartnerID: "ACME", FileName: "acme.315", EDIType: "315"}
}

// =============================================================================
// PROCESSOR
// =============================================================================

func TestProcessMapsAndPersists(t *testing.T) {
	persister := &recordingPersister{counts: map[string]int{"EDI_315_HEADER": 1, "EDI_315_EVENT": 2}}
	p := NewProcessor(&staticConfigs{cfg: processorConfig()}, NewEngine(nil, nil), WithPersister(persister))

	result := p.Process(context.Background(), document())

	assert.Equal(t, StatusSuccess, result.Status, result.ErrorMessage)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.RecordCount)
	assert.Equal(t, persister.counts, result.InsertCounts)
	assert.Equal(t, []string{"EDI_315_HEADER:1", "EDI_315_EVENT:2"}, persister.saved)
	assert.Equal(t, "ACME", result.PartnerID)

	events := result.Mapping.Records("EDI_315_EVENT")
	require.Len(t, events, 2)
	assert.Equal(t, "NLRTM", events[1].Value("LOCATION"))
	assert.Equal(t, result.RunID, events[0].Value("RUN_ID"))
	assert.Equal(t, "0001", events[1].Value("CONTROL_NO"))
}

func TestProcessWithoutPersisterOnlyMaps(t *testing.T) {
	p := NewProcessor(&staticConfigs{cfg: processorConfig()}, NewEngine(nil, nil))

	result := p.Process(context.Background(), document())
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Nil(t, result.InsertCounts)
	assert.Equal(t, 3, result.Mapping.TotalRecords())
}

func TestProcessValidationFailed(t *testing.T) {
	cfg := processorConfig()
	cfg.Validations = []config.ValidationRule{{Rule: "REQUIRED_SEGMENT", Segments: []string{"N9", "B4"}}}
	persister := &recordingPersister{}
	p := NewProcessor(&staticConfigs{cfg: cfg}, NewEngine(nil, nil), WithPersister(persister))

	result := p.Process(context.Background(), document())
	assert.Equal(t, StatusValidationFailed, result.Status)
	assert.Equal(t, []string{"Missing required segment: N9"}, result.ValidationErrors)
	assert.Zero(t, result.RecordCount)
	assert.Empty(t, persister.saved)
}

func TestProcessPersistFailures(t *testing.T) {
	t.Run("some tables written", func(t *testing.T) {
		persister := &recordingPersister{
			counts: map[string]int{"EDI_315_HEADER": 1},
			err:    errors.New("EDI_315_EVENT: constraint failed"),
		}
		p := NewProcessor(&staticConfigs{cfg: processorConfig()}, NewEngine(nil, nil), WithPersister(persister))

		result := p.Process(context.Background(), document())
		assert.Equal(t, StatusPartialSuccess, result.Status)
		assert.Equal(t, "EDI_315_EVENT: constraint failed", result.ErrorMessage)
		assert.Equal(t, 1, result.InsertCounts["EDI_315_HEADER"])
	})

	t.Run("nothing written", func(t *testing.T) {
		persister := &recordingPersister{err: errors.New("database is locked")}
		p := NewProcessor(&staticConfigs{cfg: processorConfig()}, NewEngine(nil, nil), WithPersister(persister))

		result := p.Process(context.Background(), document())
		assert.Equal(t, StatusError, result.Status)
		assert.Contains(t, result.ErrorMessage, "database is locked")
	})
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name    string
		configs *staticConfigs
		content string
		want    string
	}{
		{"config missing", &staticConfigs{err: config.ErrConfigNotFound}, x12Content(), "failed to load mapping config"},
		{"short ISA", &staticConfigs{cfg: processorConfig()}, "ISA*00*", "failed to parse X12"},
		{"unsupported format", &staticConfigs{cfg: &config.MappingConfig{EDIType: "315", SourceFormat: "CSV"}}, x12Content(), "unsupported source format"},
		{"panic", &staticConfigs{panics: true}, x12Content(), "panic while processing: config cache corrupted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := document()
			doc.Content = tt.content
			p := NewProcessor(tt.configs, NewEngine(nil, nil))

			result := p.Process(context.Background(), doc)
			assert.Equal(t, StatusError, result.Status)
			assert.Contains(t, result.ErrorMessage, tt.want)
			assert.Equal(t, "acme.315", result.FileName)
		})
	}
}

func TestProcessFixedWidth(t *testing.T) {
	schema := &types.Schema{
		Name: "railinc",
		HeaderFields: []types.FieldDef{
			{Name: "recordType", Start: 0, End: 3, Trim: true},
			{Name: "railroadCode", Start: 3, End: 7, Trim: true},
		},
		DataFields: []types.FieldDef{
			{Name: "equipmentInitial", Start: 0, End: 4, Trim: true},
		},
	}
	cfg := fixedWidthConfig(
		config.FieldMapping{Name: "EQUIP", Source: "equipmentInitial"},
		config.FieldMapping{Name: "RAILROAD", Source: "header.railroadCode"},
	)
	p := NewProcessor(&staticConfigs{cfg: cfg, schema: schema}, NewEngine(nil, nil))

	result := p.Process(context.Background(), Document{
		Content:  "CLMCSXT\nTTX \nGATX\n",
		FileName: "OECGROUP_CLM.txt",
		EDIType:  "RAILINC",
	})
	require.Equal(t, StatusSuccess, result.Status, result.ErrorMessage)

	recs := result.Mapping.Records("RAILINC_EVENT")
	require.Len(t, recs, 2)
	assert.Equal(t, "GATX", recs[1].Value("EQUIP"))
	assert.Equal(t, "CSXT", recs[1].Value("RAILROAD"))
}

// =============================================================================
// MAPPING RESULT
// =============================================================================

func TestMappingResultJSON(t *testing.T) {
	result := NewMappingResult()
	header := types.NewRecord()
	header.Set("CONTROL_NO", "0001")
	header.Set("COUNT", 2)
	result.AddRecords("EDI_315_HEADER", []*types.Record{header})
	result.AddRecords("EDI_315_EVENT", nil)

	out, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"success":true,"errors":[],"tables":{"EDI_315_HEADER":[{"CONTROL_NO":"0001","COUNT":2}],"EDI_315_EVENT":[]}}`,
		string(out))

	failed, err := json.Marshal(FailedResult([]string{"Trailer record is required"}))
	require.NoError(t, err)
	assert.Equal(t, `{"success":false,"errors":["Trailer record is required"],"tables":{}}`, string(failed))
}
