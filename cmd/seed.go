// =============================================================================
// EDI Ingest - Seed Command
// =============================================================================
//
// The 'seed' command loads a reference-data CSV into a database table so the
// LOOKUP transform can query it.
//
// COMMAND USAGE:
//   edi-ingest seed <table> <file.csv> [flags]
//
// FLAGS:
//   --delimiter      : Field separator (",", "tab", "pipe", "semicolon")
//   --header-rows    : Rows merged into column names
//   --data-start-row : 1-indexed first data row
//   --null           : Cell value stored as NULL
//   --create         : Create the table (TEXT columns) if it does not exist
//   --batch-size     : Rows per transaction
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/csvparser"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/storage"
	"github.com/ginjaninja78/edi-ingest/internal/types"
)

type seedOptions struct {
	csv       csvparser.Settings
	create    bool
	batchSize int
}

var seedOpts = seedOptions{csv: csvparser.DefaultSettings(), batchSize: 500}

var seedCmd = &cobra.Command{
	Use:   "seed <table> <file.csv>",
	Short: "Load a reference-data CSV into a lookup table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context(), mainConfig, logger, args[0], args[1], cmd.OutOrStdout(), seedOpts)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	flags := seedCmd.Flags()
	flags.StringVar(&seedOpts.csv.Delimiter, "delimiter", seedOpts.csv.Delimiter, "Field separator")
	flags.IntVar(&seedOpts.csv.HeaderRows, "header-rows", seedOpts.csv.HeaderRows, "Number of header rows")
	flags.IntVar(&seedOpts.csv.DataStartRow, "data-start-row", 0, "1-indexed first data row (default: after the headers)")
	flags.StringVar(&seedOpts.csv.NullValue, "null", seedOpts.csv.NullValue, "Cell value stored as NULL")
	flags.BoolVar(&seedOpts.create, "create", false, "Create the table if it does not exist")
	flags.IntVar(&seedOpts.batchSize, "batch-size", seedOpts.batchSize, "Rows per transaction")
}

func runSeed(ctx context.Context, cfg *config.MainConfig, log logging.Logger, table, csvPath string, out io.Writer, opts seedOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log = logging.OrNop(log)
	if opts.batchSize < 1 {
		opts.batchSize = 1
	}
	start := time.Now()

	file, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", csvPath, err)
	}
	defer file.Close()

	parser, err := csvparser.NewStreamingParser(file, opts.csv)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", csvPath, err)
	}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	writer := storage.NewRecordWriter(db, log)
	if opts.create {
		if err := writer.EnsureTable(ctx, table, parser.Columns()); err != nil {
			return err
		}
	}

	total := 0
	batch := make([]*types.Record, 0, opts.batchSize)
	flush := func() error {
		n, err := writer.SaveRecords(ctx, table, batch)
		if err != nil {
			return fmt.Errorf("failed to load rows ending at line %d: %w", parser.RowNumber(), err)
		}
		total += n
		batch = batch[:0]
		return nil
	}

	for parser.Next() {
		batch = append(batch, parser.Record())
		if len(batch) == opts.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := parser.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	log.Info("Seeded %s with %d row(s) from %s", table, total, csvPath)
	fmt.Fprintf(out, "Loaded %d row(s) into %s in %s\n", total, table, time.Since(start).Round(time.Millisecond))
	return nil
}
