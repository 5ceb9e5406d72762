// =============================================================================
// EDI Ingest - Converter Module
// =============================================================================
//
// This module contains the document processing pipeline. It orchestrates the
// work for a single inbound document, from raw text to persisted records.
//
// PROCESSING PIPELINE:
//   1. Load the mapping config for the document type and partner
//   2. Parse the raw text into a document tree (X12 or fixed-width)
//   3. Validate and map the tree into table records
//   4. Persist the records, one transaction per table
//
// CONCURRENCY:
//   Each document is processed synchronously by the calling goroutine. A
//   Processor holds no per-document state and can process many documents
//   concurrently.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/fwparser"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/types"
	"github.com/ginjaninja78/edi-ingest/internal/x12parser"
)

var tracer = otel.Tracer("github.com/ginjaninja78/edi-ingest/internal/converter")

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Status is the outcome of processing one document.
type Status string

const (
	StatusSuccess          Status = "SUCCESS"
	StatusValidationFailed Status = "VALIDATION_FAILED"
	StatusPartialSuccess   Status = "PARTIAL_SUCCESS"
	StatusError            Status = "ERROR"
)

// Document is one inbound document.
type Document struct {
	Content   string
	PartnerID string
	FileName  string
	EDIType   string
}

// ProcessingResult represents the outcome of processing a single document.
// It is always returned, whatever went wrong.
type ProcessingResult struct {
	RunID     string `json:"runId"`
	Status    Status `json:"status"`
	EDIType   string `json:"ediType"`
	FileName  string `json:"fileName"`
	PartnerID string `json:"partnerId"`

	// RecordCount is the number of records the mapping produced.
	RecordCount int `json:"recordCount"`

	// InsertCounts is the number of rows written per table.
	InsertCounts map[string]int `json:"insertCounts,omitempty"`

	ValidationErrors []string      `json:"validationErrors,omitempty"`
	ErrorMessage     string        `json:"errorMessage,omitempty"`
	Duration         time.Duration `json:"duration"`

	// Mapping is the mapped output, kept for dry runs and rendering.
	Mapping *MappingResult `json:"-"`
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// ConfigSource supplies mapping configs and fixed-width schemas.
// *config.Loader implements it.
type ConfigSource interface {
	Config(ediType, partnerID string) (*config.MappingConfig, error)
	Schema(cfg *config.MappingConfig) (*types.Schema, error)
}

// Persister writes mapped tables. It returns the rows written per table and
// an error describing every table that failed.
type Persister interface {
	SaveResult(ctx context.Context, tables types.TableSet) (map[string]int, error)
}

// =============================================================================
// PROCESSOR STRUCTURE
// =============================================================================

// Processor runs the pipeline for one document at a time.
type Processor struct {
	configs   ConfigSource
	engine    *Engine
	persister Persister
	fixed     fwparser.Options
	logger    logging.Logger
	now       func() time.Time
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithPersister sets where records are written. Without one the processor
// maps documents but writes nothing.
func WithPersister(p Persister) ProcessorOption {
	return func(pr *Processor) { pr.persister = p }
}

// WithFixedWidthOptions sets the header and trailer markers.
func WithFixedWidthOptions(opts fwparser.Options) ProcessorOption {
	return func(pr *Processor) { pr.fixed = opts }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) ProcessorOption {
	return func(pr *Processor) { pr.logger = logging.OrNop(l) }
}

// NewProcessor creates a Processor.
//
// PARAMETERS:
//   - configs: where mapping configs and schemas come from
//   - engine: the mapping engine
//   - opts: persister, fixed-width markers and logger
func NewProcessor(configs ConfigSource, engine *Engine, opts ...ProcessorOption) *Processor {
	p := &Processor{
		configs: configs,
		engine:  engine,
		fixed:   fwparser.DefaultOptions(),
		logger:  logging.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Process runs the pipeline for doc.
//
// RETURNS:
//   - a ProcessingResult; failures are reported through Status and
//     ErrorMessage, never by panicking
func (p *Processor) Process(ctx context.Context, doc Document) (result ProcessingResult) {
	start := p.now()
	result = ProcessingResult{
		RunID:     uuid.NewString(),
		EDIType:   doc.EDIType,
		FileName:  doc.FileName,
		PartnerID: doc.PartnerID,
	}

	ctx, span := tracer.Start(ctx, "process-document", trace.WithAttributes(
		attribute.String("edi.type", doc.EDIType),
		attribute.String("edi.partner", doc.PartnerID),
		attribute.String("edi.file", doc.FileName),
		attribute.String("edi.run_id", result.RunID),
	))

	defer func() {
		if r := recover(); r != nil {
			result.Status = StatusError
			result.ErrorMessage = fmt.Sprintf("panic while processing: %v", r)
			p.logger.Error("Panic processing %s: %v", doc.FileName, r)
		}
		result.Duration = time.Since(start)

		span.SetAttributes(
			attribute.String("edi.status", string(result.Status)),
			attribute.Int("edi.record_count", result.RecordCount),
		)
		if result.Status == StatusError {
			span.SetStatus(codes.Error, result.ErrorMessage)
		} else {
			span.SetStatus(codes.Ok, string(result.Status))
		}
		span.End()
	}()

	p.logger.Info("Processing %s document %s from %s", doc.EDIType, doc.FileName, doc.PartnerID)

	// =========================================================================
	// STEP 1: LOAD MAPPING CONFIG
	// =========================================================================

	cfg, err := p.configs.Config(doc.EDIType, doc.PartnerID)
	if err != nil {
		return p.fail(result, fmt.Errorf("failed to load mapping config: %w", err))
	}

	// =========================================================================
	// STEP 2: PARSE DOCUMENT
	// =========================================================================

	tree, err := p.parse(ctx, cfg, doc.Content)
	if err != nil {
		return p.fail(result, err)
	}

	// =========================================================================
	// STEP 3: VALIDATE AND MAP
	// =========================================================================

	pctx := types.NewProcessingContext(doc.PartnerID, doc.FileName, doc.EDIType)
	pctx.Timestamp = start
	pctx.Set("runId", result.RunID)

	mapCtx, mapSpan := tracer.Start(ctx, "map-document")
	mapping := p.engine.Transform(mapCtx, tree, cfg, doc.PartnerID, pctx)
	mapSpan.SetAttributes(attribute.Int("edi.record_count", mapping.TotalRecords()))
	mapSpan.End()

	result.Mapping = mapping
	result.RecordCount = mapping.TotalRecords()

	if !mapping.Success() {
		result.Status = StatusValidationFailed
		result.ValidationErrors = mapping.Errors()
		p.logger.Warn("Rejected %s: %d validation error(s)", doc.FileName, len(result.ValidationErrors))
		return result
	}

	p.logger.Debug("Mapped %d record(s) into %d table(s)", result.RecordCount, len(mapping.Tables()))

	// =========================================================================
	// STEP 4: PERSIST
	// =========================================================================

	if p.persister == nil {
		result.Status = StatusSuccess
		return result
	}

	saveCtx, saveSpan := tracer.Start(ctx, "persist-records")
	counts, err := p.persister.SaveResult(saveCtx, mapping)
	saveSpan.End()

	result.InsertCounts = counts
	switch {
	case err == nil:
		result.Status = StatusSuccess
	case len(counts) > 0:
		result.Status = StatusPartialSuccess
		result.ErrorMessage = err.Error()
		p.logger.Warn("Partially persisted %s: %v", doc.FileName, err)
	default:
		return p.fail(result, fmt.Errorf("failed to persist records: %w", err))
	}

	p.logger.Info("Processed %s: %s, %d record(s)", doc.FileName, result.Status, result.RecordCount)
	return result
}

// parse picks the parser for the config's source format.
func (p *Processor) parse(ctx context.Context, cfg *config.MappingConfig, content string) (*types.Node, error) {
	_, span := tracer.Start(ctx, "parse-document", trace.WithAttributes(
		attribute.String("edi.source_format", string(cfg.SourceFormat)),
	))
	defer span.End()

	switch cfg.SourceFormat {
	case config.SourceX12:
		tree, err := x12parser.Parse(content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse X12: %w", err)
		}
		return tree, nil

	case config.SourceFixedWidth:
		schema, err := p.configs.Schema(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema: %w", err)
		}
		tree, err := fwparser.ParseWithOptions(content, schema, p.fixed)
		if err != nil {
			return nil, fmt.Errorf("failed to parse fixed-width: %w", err)
		}
		return tree, nil
	}
	return nil, fmt.Errorf("unsupported source format %q", cfg.SourceFormat)
}

func (p *Processor) fail(result ProcessingResult, err error) ProcessingResult {
	result.Status = StatusError
	result.ErrorMessage = err.Error()

	var x12Err *x12parser.FormatError
	var fwErr *fwparser.FormatError
	switch {
	case errors.As(err, &x12Err), errors.As(err, &fwErr):
		p.logger.Error("Format error in %s: %v", result.FileName, err)
	default:
		p.logger.Error("Processing %s failed: %v", result.FileName, err)
	}
	return result
}
