package converter

import (
	"context"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/expr"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/lookup"
	"github.com/ginjaninja78/edi-ingest/internal/types"
	"github.com/ginjaninja78/edi-ingest/internal/validation"
)

// =============================================================================
// MAPPING ENGINE
// =============================================================================
//
// The engine turns a parsed document tree into table records as declared by
// a mapping config:
//
//   X12:          for each transaction, for each target in order
//                   HEADER  one record from the transaction
//                   DETAIL  one record per element of loopPath, with
//                           parentKeys copied from the last HEADER record
//   FIXED_WIDTH:  for each target, one record per data line that passes
//                 the target condition
//
// Validation runs first; a document that fails it produces no records.
//
// =============================================================================

// Engine maps document trees to records. It holds no per-document state and
// may be shared between goroutines.
type Engine struct {
	transformer *Transformer
	validator   *validation.Validator
	logger      logging.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	scripts *ScriptRunner
}

// WithScriptRunner replaces the default SCRIPT runner.
func WithScriptRunner(r *ScriptRunner) EngineOption {
	return func(o *engineOptions) { o.scripts = r }
}

// NewEngine creates an Engine. lookupService may be nil.
func NewEngine(lookupService lookup.Service, logger logging.Logger, opts ...EngineOption) *Engine {
	logger = logging.OrNop(logger)
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		transformer: NewTransformer(lookupService, o.scripts, logger),
		validator:   validation.NewValidator(logger),
		logger:      logger,
	}
}

// Transform validates doc against cfg and maps it to records.
//
// PARAMETERS:
//   - ctx: bounds lookups and scripts
//   - doc: a tree from x12parser or fwparser
//   - cfg: the mapping config for the document type
//   - partnerID: the sending partner, used to select overrides
//   - pctx: values available to "context." expressions
//
// RETURNS:
//   - a failed result carrying validation errors, or the mapped records
func (e *Engine) Transform(ctx context.Context, doc *types.Node, cfg *config.MappingConfig, partnerID string, pctx *types.ProcessingContext) *MappingResult {
	effective := e.applyPartnerOverrides(cfg, partnerID)

	if errs := e.validator.ValidateAll(doc, effective.Validations); !errs.IsValid() {
		e.logger.Warn("Validation failed for %s: %d error(s)", effective.EDIType, len(errs.Errors))
		return FailedResult(errs.Messages())
	}

	result := NewMappingResult()
	switch effective.SourceFormat {
	case config.SourceX12:
		for _, tx := range doc.Get("transactions").Items() {
			e.processTargets(ctx, tx, doc, effective, pctx, result)
		}
	case config.SourceFixedWidth:
		e.processFixedWidthRecords(ctx, doc, effective, pctx, result)
	default:
		e.logger.Warn("Unsupported source format %q for %s", effective.SourceFormat, effective.EDIType)
	}

	e.logger.Debug("Mapped %s into %d record(s) across %d table(s)",
		effective.EDIType, result.TotalRecords(), len(result.Tables()))
	return result
}

// applyPartnerOverrides selects the partner's override block. Merging it
// into the config is not implemented; the config is returned unchanged.
// TODO: merge fieldOverrides by output name and schemaOverrides by field name once partner layouts are confirmed.
func (e *Engine) applyPartnerOverrides(cfg *config.MappingConfig, partnerID string) *config.MappingConfig {
	if partnerID == "" || cfg.PartnerOverrides == nil {
		return cfg
	}
	if _, ok := cfg.PartnerOverrides[partnerID]; !ok {
		return cfg
	}
	e.logger.Warn("Partner overrides for %s on %s are declared but NOT applied; using the base mapping", partnerID, cfg.EDIType)
	return cfg
}

// processTargets maps one X12 transaction. Target conditions are not
// evaluated for X12 documents.
func (e *Engine) processTargets(ctx context.Context, tx, doc *types.Node, cfg *config.MappingConfig, pctx *types.ProcessingContext, result *MappingResult) {
	var headerRecord *types.Record

	for i := range cfg.Targets {
		target := &cfg.Targets[i]

		switch target.Type {
		case config.TargetHeader:
			headerRecord = e.mapFields(ctx, tx, nil, target.Fields, doc, pctx, -1)
			result.AddRecords(target.Table, []*types.Record{headerRecord})

		case config.TargetDetail:
			result.AddRecords(target.Table, e.mapDetailRecords(ctx, tx, target, doc, pctx, headerRecord))

		default:
			e.logger.Warn("Unknown target type %q for table %s", target.Type, target.Table)
		}
	}
}

// mapDetailRecords maps each element of the target's loop. A loop segment
// that occurs once is a single element.
func (e *Engine) mapDetailRecords(ctx context.Context, tx *types.Node, target *config.TargetTableConfig, doc *types.Node, pctx *types.ProcessingContext, headerRecord *types.Record) []*types.Record {
	loop := tx.Get(target.LoopPath)
	if loop == nil {
		return nil
	}

	elements := []*types.Node{loop}
	if loop.IsArray() {
		elements = loop.Items()
	}

	records := make([]*types.Record, 0, len(elements))
	for i, element := range elements {
		record := e.mapFields(ctx, element, tx, target.Fields, doc, pctx, i)
		addParentKeys(record, headerRecord, target.ParentKeys)
		records = append(records, record)
	}
	return records
}

func (e *Engine) processFixedWidthRecords(ctx context.Context, doc *types.Node, cfg *config.MappingConfig, pctx *types.ProcessingContext, result *MappingResult) {
	lines := doc.Get("records")
	if !lines.IsArray() {
		return
	}

	for i := range cfg.Targets {
		target := &cfg.Targets[i]
		records := make([]*types.Record, 0, lines.Len())

		for idx, line := range lines.Items() {
			if !expr.EvaluateCondition(target.Condition, line) {
				continue
			}
			records = append(records, e.mapFields(ctx, line, nil, target.Fields, doc, pctx, idx))
		}
		result.AddRecords(target.Table, records)
	}
}

// mapFields builds one output record. record is the node field paths are
// read from; transaction defaults to record. Fields whose condition fails
// are left out of the record.
func (e *Engine) mapFields(ctx context.Context, record, transaction *types.Node, fields []config.FieldMapping, doc *types.Node, pctx *types.ProcessingContext, loopIndex int) *types.Record {
	out := types.NewRecord()
	if transaction == nil {
		transaction = record
	}

	resolver := &expr.Resolver{
		Document:    doc,
		Transaction: transaction,
		Record:      record,
		Context:     pctx,
		Output:      out,
		LoopIndex:   loopIndex,
	}

	for i := range fields {
		field := &fields[i]
		if !expr.EvaluateCondition(field.Condition, record) {
			continue
		}

		value := e.transformer.Apply(&TransformContext{Resolver: resolver, Ctx: ctx, Field: field})
		value = convertType(value, field.Type, field.Format, e.logger)
		out.Set(field.Name, value)
	}
	return out
}

// addParentKeys copies the named columns of the header record that exist.
func addParentKeys(record, header *types.Record, keys []string) {
	if header == nil {
		return
	}
	for _, key := range keys {
		if v, ok := header.Get(key); ok {
			record.Set(key, v)
		}
	}
}
