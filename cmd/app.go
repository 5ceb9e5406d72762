package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/converter"
	"github.com/ginjaninja78/edi-ingest/internal/csvparser"
	"github.com/ginjaninja78/edi-ingest/internal/fwparser"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/lookup"
	"github.com/ginjaninja78/edi-ingest/internal/storage"
	"github.com/ginjaninja78/edi-ingest/internal/telemetry"
)

// pipeline is everything one processing run needs, wired from the main
// configuration.
type pipeline struct {
	loader    *config.Loader
	lookups   *lookup.CachedService
	processor *converter.Processor
	db        *sqlx.DB
	shutdown  telemetry.ShutdownFunc
}

// newPipeline opens the database, loads the mapping configs and builds the
// processor. With persist false records are mapped but not written.
//
// references maps lookup tables to CSV files. When set, lookups are served
// from memory and no database is opened, so persist must be false.
func newPipeline(ctx context.Context, cfg *config.MainConfig, log logging.Logger, persist bool, references map[string]string) (*pipeline, error) {
	if persist && len(references) > 0 {
		return nil, fmt.Errorf("reference files can only be used without persisting")
	}

	shutdown, err := telemetry.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.Enabled, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	p := &pipeline{shutdown: shutdown}

	p.loader, err = config.NewLoader(cfg.ConfigsDir, log)
	if err != nil {
		p.Close(ctx)
		return nil, fmt.Errorf("failed to load mapping configs: %w", err)
	}

	var backend lookup.Backend
	if len(references) > 0 {
		if backend, err = loadReferences(references, log); err != nil {
			p.Close(ctx)
			return nil, err
		}
	} else {
		if p.db, err = storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN); err != nil {
			p.Close(ctx)
			return nil, err
		}
		backend = storage.NewLookupBackend(p.db)
	}

	p.lookups = lookup.NewCachedService(
		backend,
		lookup.WithLogger(log),
		lookup.WithTimeout(cfg.Database.LookupTimeout),
	)

	opts := []converter.ProcessorOption{
		converter.WithLogger(log),
		converter.WithFixedWidthOptions(fwparser.Options{
			HeaderMarker:  cfg.FixedWidth.HeaderMarker,
			TrailerMarker: cfg.FixedWidth.TrailerMarker,
		}),
	}
	if persist {
		opts = append(opts, converter.WithPersister(storage.NewRecordWriter(p.db, log)))
	}

	p.processor = converter.NewProcessor(p.loader, converter.NewEngine(p.lookups, log), opts...)
	return p, nil
}

// loadReferences reads each CSV into an in-memory lookup table.
func loadReferences(references map[string]string, log logging.Logger) (*lookup.MemoryBackend, error) {
	backend := lookup.NewMemoryBackend()
	for table, path := range references {
		data, err := csvparser.ParseFile(path, csvparser.DefaultSettings())
		if err != nil {
			return nil, fmt.Errorf("failed to load reference table %s: %w", table, err)
		}

		rows := make([]map[string]any, len(data.Records))
		for i, rec := range data.Records {
			row := make(map[string]any, rec.Len())
			for _, col := range rec.Keys() {
				row[col] = rec.Value(col)
			}
			rows[i] = row
		}
		backend.Register(table, rows)
		log.Info("Loaded reference table %s: %d row(s) from %s", table, len(rows), path)
	}
	return backend, nil
}

// Close flushes spans and closes the database.
func (p *pipeline) Close(ctx context.Context) {
	if p.db != nil {
		p.db.Close()
	}
	if p.shutdown != nil {
		_ = p.shutdown(ctx)
	}
}
