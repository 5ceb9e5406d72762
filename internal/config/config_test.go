package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const x12Mapping = `
ediType: "315"
sourceFormat: X12
version: "1.0"
filePatterns: ["*.315", "315_*"]
validations:
  - rule: REQUIRED_SEGMENT
    segments: [B4]
targets:
  - table: EDI_315_HEADER
    type: HEADER
    fields:
      - name: CONTROL_NO
        source: ST.02
  - table: EDI_315_EVENT
    type: DETAIL
    loopPath: R4
    parentKeys: [CONTROL_NO]
    fields:
      - name: LOCATION
        source: "03"
      - name: BOOKING
        transform: COALESCE
        sources:
          - source: "N9[01=BM].02"
            transform: QUALIFIED_SEGMENT
          - concatFields: [B4.07, B4.08]
partnerOverrides:
  ACME:
    fieldOverrides:
      - name: LOCATION
        source: "04"
`

const fixedWidthMapping = `
ediType: RAILINC
sourceFormat: FIXED_WIDTH
version: 2
schema: schemas/railinc.yaml
filePatterns: ["*_CLM.*"]
targets:
  - table: RAILINC_EVENT
    type: DETAIL
    condition: "${equipmentInitial}"
    fields:
      - name: EQUIP
        source: equipmentInitial
      - name: QTY
        source: qty
        transform: DIVIDE_100
        type: DECIMAL
`

const railincSchemaYAML = `
name: railinc
version: "1"
headerFields:
  - {name: recordType, start: 0, end: 3, trim: true}
dataFields:
  - {name: equipmentInitial, start: 0, end: 4, trim: true}
  - {name: qty, start: 4, end: 10, trim: true}
trailerFields:
  - {name: recordCount, start: 3, end: 9, trim: true}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// =============================================================================
// MAIN CONFIG
// =============================================================================

func TestLoadMainConfigMergesFileEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
input_dir: `+filepath.Join(dir, "in")+`
output_dir: `+filepath.Join(dir, "out")+`
input_archive_dir: `+filepath.Join(dir, "archive")+`
configs_dir: `+filepath.Join(dir, "configs")+`
max_concurrency: 8
database:
  dsn: file:from-file.db
`)
	t.Setenv("EDI_DATABASE__DSN", "file:from-env.db")
	t.Setenv("EDI_LOG_LEVEL", "debug")

	cfg, err := LoadMainConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, "file:from-env.db", cfg.Database.DSN)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.LookupTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.ContinueOnError)
	assert.Equal(t, "{type}_{timestamp}_{uuid}", cfg.OutputFileFormat)

	assert.DirExists(t, filepath.Join(dir, "in"))
	assert.DirExists(t, filepath.Join(dir, "configs"))
}

func TestLoadMainConfigMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EDI_INPUT_DIR", filepath.Join(dir, "in"))
	t.Setenv("EDI_OUTPUT_DIR", filepath.Join(dir, "out"))
	t.Setenv("EDI_INPUT_ARCHIVE_DIR", filepath.Join(dir, "arch"))
	t.Setenv("EDI_CONFIGS_DIR", filepath.Join(dir, "cfg"))

	cfg, err := LoadMainConfig(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, "edi-ingest", cfg.Tracing.ServiceName)
}

func TestLoadMainConfigRejectsBadConcurrency(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "max_concurrency: -1\n")

	_, err := LoadMainConfig(path)
	require.Error(t, err)
}

// =============================================================================
// MAPPING CONFIG
// =============================================================================

func TestParseMappingDecodesEveryParameter(t *testing.T) {
	cfg, err := ParseMapping([]byte(x12Mapping))
	require.NoError(t, err)

	assert.Equal(t, "315", cfg.EDIType)
	assert.Equal(t, SourceX12, cfg.SourceFormat)
	require.Len(t, cfg.Targets, 2)

	detail := cfg.Targets[1]
	assert.Equal(t, TargetDetail, detail.Type)
	assert.Equal(t, "R4", detail.LoopPath)
	assert.Equal(t, []string{"CONTROL_NO"}, detail.ParentKeys)

	booking := detail.Fields[1]
	require.Len(t, booking.Sources, 2)
	assert.Equal(t, "QUALIFIED_SEGMENT", booking.Sources[0].Transform)
	assert.Equal(t, []string{"B4.07", "B4.08"}, booking.Sources[1].ConcatFields)

	require.Contains(t, cfg.PartnerOverrides, "ACME")
	assert.Equal(t, "04", cfg.PartnerOverrides["ACME"].FieldOverrides[0].Source)
}

func TestParseMappingStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing sourceFormat", "ediType: X\ntargets: [{table: T, type: HEADER, fields: []}]\n"},
		{"unknown sourceFormat", "ediType: X\nsourceFormat: CSV\ntargets: [{table: T, type: HEADER, fields: []}]\n"},
		{"bad target type", "ediType: X\nsourceFormat: X12\ntargets: [{table: T, type: LOOP, fields: []}]\n"},
		{"no targets", "ediType: X\nsourceFormat: X12\ntargets: []\n"},
		{"field without name", "ediType: X\nsourceFormat: X12\ntargets: [{table: T, type: HEADER, fields: [{source: A}]}]\n"},
		{"not a mapping", "- just\n- a list\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMapping([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid mapping config")
		})
	}
}

func TestMappingValidateSemanticRules(t *testing.T) {
	_, err := ParseMapping([]byte("ediType: X\nsourceFormat: X12\ntargets: [{table: T, type: DETAIL, fields: []}]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no loopPath")

	_, err = ParseMapping([]byte("ediType: X\nsourceFormat: FIXED_WIDTH\ntargets: [{table: T, type: DETAIL, fields: []}]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")

	_, err = ParseMapping([]byte("ediType: X\nsourceFormat: X12\ntargets: [{table: T, type: HEADER, fields: [{name: A}, {name: A}]}]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice")
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "315_DEFAULT", CacheKey("315", ""))
	assert.Equal(t, "RAILINC_ACME", CacheKey("railinc", "ACME"))
}

// =============================================================================
// LOADER
// =============================================================================

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "edi315.yaml", x12Mapping)
	writeFile(t, dir, "railinc.yml", fixedWidthMapping)
	writeFile(t, dir, "schemas/railinc.yaml", railincSchemaYAML)
	writeFile(t, dir, "notes.yaml", "owner: integration team\n")

	l, err := NewLoader(dir, nil)
	require.NoError(t, err)
	return l, dir
}

func TestLoaderCachesConfigs(t *testing.T) {
	l, _ := newTestLoader(t)

	first, err := l.Config("315", "")
	require.NoError(t, err)
	second, err := l.Config("315", "DEFAULT")
	require.NoError(t, err)
	assert.Same(t, first, second)

	partner, err := l.Config("315", "ACME")
	require.NoError(t, err)
	assert.Same(t, first, partner)

	assert.Len(t, l.Files(), 2)
}

func TestLoaderPrefersPartnerSpecificFile(t *testing.T) {
	l, dir := newTestLoader(t)
	writeFile(t, dir, "edi315_globex.yaml", `
ediType: "315"
partnerId: GLOBEX
sourceFormat: X12
targets:
  - table: GLOBEX_315
    type: HEADER
    fields: [{name: A, source: ST.01}]
`)
	require.NoError(t, l.Reload())

	cfg, err := l.Config("315", "GLOBEX")
	require.NoError(t, err)
	assert.Equal(t, "GLOBEX_315", cfg.Targets[0].Table)

	def, err := l.Config("315", "")
	require.NoError(t, err)
	assert.Equal(t, "EDI_315_HEADER", def.Targets[0].Table)
}

func TestLoaderUnknownType(t *testing.T) {
	l, _ := newTestLoader(t)

	_, err := l.Config("214", "ACME")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestLoaderSchemaAndMatch(t *testing.T) {
	l, _ := newTestLoader(t)

	cfg, err := l.Config("RAILINC", "")
	require.NoError(t, err)

	schema, err := l.Schema(cfg)
	require.NoError(t, err)
	assert.Equal(t, "railinc", schema.Name)
	assert.Len(t, schema.DataFields, 2)

	again, err := l.Schema(cfg)
	require.NoError(t, err)
	assert.Same(t, schema, again)

	ediType, ok := l.MatchFile("/in/OECGROUP_CLM.multiple_records.txt")
	assert.True(t, ok)
	assert.Equal(t, "RAILINC", ediType)

	ediType, ok = l.MatchFile("315_20240101.edi")
	assert.True(t, ok)
	assert.Equal(t, "315", ediType)

	_, ok = l.MatchFile("readme.md")
	assert.False(t, ok)
}

func TestLoaderRejectsDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", x12Mapping)
	writeFile(t, dir, "b.yaml", x12Mapping)

	_, err := NewLoader(dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "315_DEFAULT")
}
