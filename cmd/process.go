// =============================================================================
// EDI Ingest - Process Command
// =============================================================================
//
// This file defines the 'process' command, the main command for loading EDI
// documents. It orchestrates the pipeline over a batch of files.
//
// COMMAND USAGE:
//   edi-ingest process [flags]
//
// FLAGS:
//   --file      : Process a single file instead of scanning the input directory
//   --stdin     : Read one document (plain text or JSON envelope) from stdin
//   --type      : EDI type; otherwise taken from the mapping filePatterns
//   --partner   : Sending partner id
//   --pattern   : Only consider input files matching these globs
//   --dry-run   : Map without writing to the database; render the records
//   --format    : Rendering format for --dry-run, xml or json
//   --reference : Serve lookups from CSV files during a dry run
//
// PROCESSING PIPELINE:
//   1. Wire the pipeline (mapping configs, database, lookups, tracing)
//   2. Collect the documents to process
//   3. Process documents concurrently, at most max_concurrency at once
//   4. Archive loaded files, render dry runs
//   5. Write the error log and run summary
//
// =============================================================================

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/converter"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/xmlwriter"
	"github.com/ginjaninja78/edi-ingest/pkg/utils"
)

// errStopped is returned when continue_on_error is off and a file failed.
var errStopped = errors.New("processing stopped after a failed file (continue_on_error is false)")

// =============================================================================
// COMMAND FLAGS
// =============================================================================

type processOptions struct {
	file       string
	stdin      bool
	ediType    string
	partner    string
	patterns   []string
	dryRun     bool
	format     string
	retention  time.Duration
	references map[string]string
}

var procOpts processOptions

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Parse, validate and load EDI documents",
	Long: `The process command scans the input directory for EDI files, matches each
one to a mapping config by its filePatterns, and loads the mapped records into
the configured database.

Each file is processed independently; errors in one file do not affect the
processing of others unless continue_on_error is false.

On success:
  - The records are written, one transaction per target table
  - The original file is moved to the input archive

On validation failure or error:
  - The file remains in the input directory
  - An error log is created in the output directory`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd.Context(), mainConfig, logger, cmd.InOrStdin(), cmd.OutOrStdout(), procOpts)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	flags := processCmd.Flags()
	flags.StringVar(&procOpts.file, "file", "", "Path to a single file to process")
	flags.BoolVar(&procOpts.stdin, "stdin", false, "Read one document from stdin (requires --type)")
	flags.StringVar(&procOpts.ediType, "type", "", "EDI type, e.g. 315 or RAILINC")
	flags.StringVar(&procOpts.partner, "partner", "", "Sending partner id")
	flags.StringSliceVar(&procOpts.patterns, "pattern", nil, "Only process input files matching these globs")
	flags.BoolVar(&procOpts.dryRun, "dry-run", false, "Map documents without writing to the database")
	flags.StringVar(&procOpts.format, "format", "xml", "Dry-run rendering format: xml or json")
	flags.StringToStringVar(&procOpts.references, "reference", nil, "Serve lookups from CSV instead of the database, TABLE=file.csv (requires --dry-run)")
	flags.DurationVar(&procOpts.retention, "archive-retention", 0, "Remove archived inputs older than this (0 keeps everything)")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// job is one document to process. Path is empty for stdin documents.
type job struct {
	path string
	doc  converter.Document
}

type fileResult struct {
	job     job
	result  converter.ProcessingResult
	skipped bool
}

func runProcess(ctx context.Context, cfg *config.MainConfig, log logging.Logger, in io.Reader, out io.Writer, opts processOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log = logging.OrNop(log)
	startTime := time.Now()

	opts.format = strings.ToLower(opts.format)
	if opts.format != "xml" && opts.format != "json" {
		return fmt.Errorf("unsupported format %q, use xml or json", opts.format)
	}

	// =========================================================================
	// STEP 1: WIRE THE PIPELINE
	// =========================================================================

	if len(opts.references) > 0 && !opts.dryRun {
		return fmt.Errorf("--reference requires --dry-run")
	}

	p, err := newPipeline(ctx, cfg, log, !opts.dryRun, opts.references)
	if err != nil {
		return err
	}
	defer p.Close(ctx)

	fm := utils.NewFileManager(cfg.InputDir, cfg.OutputDir, cfg.InputArchiveDir)

	// =========================================================================
	// STEP 2: COLLECT DOCUMENTS
	// =========================================================================

	jobs, err := collectJobs(in, cfg, p.loader, fm, opts, log)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No EDI files found in the input directory.")
		return nil
	}
	fmt.Fprintf(out, "Found %d document(s) to process\n", len(jobs))

	// =========================================================================
	// STEP 3: PROCESS CONCURRENTLY
	// =========================================================================

	var wg sync.WaitGroup
	var stopped atomic.Bool
	sem := make(chan struct{}, cfg.MaxConcurrency)
	results := make(chan fileResult, len(jobs))

	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if stopped.Load() {
				results <- fileResult{job: j, skipped: true}
				return
			}

			res := processJob(ctx, p.processor, j)
			if failed(res.Status) && !cfg.ContinueOnError {
				stopped.Store(true)
			}
			results <- fileResult{job: j, result: res}
		}(j)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// =========================================================================
	// STEP 4: COLLECT RESULTS, ARCHIVE AND RENDER
	// =========================================================================

	summary := utils.ProcessingSummary{
		StartTime:    startTime,
		TotalFiles:   len(jobs),
		InsertCounts: make(map[string]int),
	}
	var errorEntries []utils.ErrorLogEntry

	for fr := range results {
		name := fr.job.doc.FileName
		if fr.skipped {
			fmt.Fprintf(out, "  - %s: skipped\n", name)
			continue
		}
		res := fr.result
		summary.TotalRecords += res.RecordCount
		for table, n := range res.InsertCounts {
			summary.InsertCounts[table] += n
		}

		info := utils.ProcessedFileInfo{
			InputFile:   name,
			Status:      string(res.Status),
			Records:     res.RecordCount,
			ProcessTime: res.Duration,
		}

		if opts.dryRun && res.Mapping != nil {
			outputFile, err := writeRendering(fm, cfg.OutputFileFormat, res, opts.format)
			if err != nil {
				log.Error("Failed to render %s: %v", name, err)
			}
			info.OutputFile = outputFile
		}

		switch res.Status {
		case converter.StatusSuccess, converter.StatusPartialSuccess:
			if res.Status == converter.StatusSuccess {
				summary.SuccessfulFiles++
			} else {
				summary.PartialFiles++
			}
			if !opts.dryRun && fr.job.path != "" {
				archived, err := fm.ArchiveInputFile(fr.job.path)
				if err != nil {
					log.Error("Failed to archive %s: %v", fr.job.path, err)
				}
				info.ArchivePath = archived
			}
			summary.ProcessedFiles = append(summary.ProcessedFiles, info)
			fmt.Fprintf(out, "  ✓ %s: %s, %d record(s)\n", name, res.Status, res.RecordCount)

		default:
			if res.Status == converter.StatusValidationFailed {
				summary.RejectedFiles++
			} else {
				summary.FailedFiles++
			}
			message := res.ErrorMessage
			if message == "" {
				message = strings.Join(res.ValidationErrors, "; ")
			}
			summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
				InputFile:    name,
				Status:       string(res.Status),
				ErrorMessage: message,
			})
			errorEntries = append(errorEntries, utils.ErrorLogEntry{
				Timestamp:        time.Now(),
				FileName:         name,
				RunID:            res.RunID,
				Status:           string(res.Status),
				ErrorMessage:     res.ErrorMessage,
				ValidationErrors: res.ValidationErrors,
			})
			fmt.Fprintf(out, "  ✗ %s: %s %s\n", name, res.Status, message)
		}
	}
	summary.EndTime = time.Now()

	// =========================================================================
	// STEP 5: LOGS AND SUMMARY
	// =========================================================================

	fmt.Fprintln(out, "\n=== Processing Complete ===")
	fmt.Fprintf(out, "Total documents: %d\n", summary.TotalFiles)
	fmt.Fprintf(out, "Successful:      %d\n", summary.SuccessfulFiles)
	fmt.Fprintf(out, "Partial:         %d\n", summary.PartialFiles)
	fmt.Fprintf(out, "Rejected:        %d\n", summary.RejectedFiles)
	fmt.Fprintf(out, "Errors:          %d\n", summary.FailedFiles)
	fmt.Fprintf(out, "Time elapsed:    %s\n", summary.EndTime.Sub(startTime))

	if path, err := utils.WriteErrorLog(errorEntries, cfg.OutputDir); err != nil {
		log.Error("Failed to write error log: %v", err)
	} else if path != "" {
		fmt.Fprintf(out, "\nErrors have been logged to %s\n", path)
	}
	if _, err := utils.WriteSummaryLog(summary, cfg.OutputDir); err != nil {
		log.Error("Failed to write summary: %v", err)
	}

	if opts.retention > 0 {
		removed, err := utils.CleanOldArchives(cfg.InputArchiveDir, opts.retention)
		if err != nil {
			log.Warn("Archive cleanup failed: %v", err)
		}
		log.Info("Removed %d archived file(s) older than %s", removed, opts.retention)
	}

	stats := p.lookups.Stats()
	log.Debug("Lookup cache: %d hit(s), %d miss(es), %d entries", stats.Hits, stats.Misses, stats.Entries)

	if stopped.Load() {
		return errStopped
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// collectJobs builds the list of documents from stdin, --file, or the input
// directory. Directory files without a matching mapping config are skipped.
func collectJobs(in io.Reader, cfg *config.MainConfig, loader *config.Loader, fm *utils.FileManager, opts processOptions, log logging.Logger) ([]job, error) {
	partner := opts.partner
	if partner == "" {
		partner = cfg.DefaultPartner
	}

	if opts.stdin {
		if opts.ediType == "" {
			return nil, fmt.Errorf("--stdin requires --type")
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		doc, err := converter.ParseMessage(converter.Message{Value: data, Key: partner, Source: "stdin"}, opts.ediType, time.Now())
		if err != nil {
			return nil, err
		}
		return []job{{doc: doc}}, nil
	}

	var files []string
	if opts.file != "" {
		files = []string{opts.file}
	} else {
		var err error
		if files, err = fm.DiscoverInputFiles(opts.patterns...); err != nil {
			return nil, fmt.Errorf("failed to discover input files: %w", err)
		}
	}

	jobs := make([]job, 0, len(files))
	for _, file := range files {
		ediType := opts.ediType
		if ediType == "" {
			var ok bool
			if ediType, ok = loader.MatchFile(file); !ok {
				if opts.file != "" {
					return nil, fmt.Errorf("no mapping config matches %s; use --type", filepath.Base(file))
				}
				log.Warn("No mapping config matches %s, skipping", filepath.Base(file))
				continue
			}
		}
		jobs = append(jobs, job{
			path: file,
			doc: converter.Document{
				PartnerID: partner,
				FileName:  filepath.Base(file),
				EDIType:   ediType,
			},
		})
	}
	return jobs, nil
}

// processJob reads the file of a job, if any, and runs the pipeline.
func processJob(ctx context.Context, processor *converter.Processor, j job) converter.ProcessingResult {
	doc := j.doc
	if j.path != "" {
		start := time.Now()
		data, err := os.ReadFile(j.path)
		if err != nil {
			return converter.ProcessingResult{
				RunID:        uuid.NewString(),
				Duration:     time.Since(start),
				Status:       converter.StatusError,
				EDIType:      doc.EDIType,
				FileName:     doc.FileName,
				PartnerID:    doc.PartnerID,
				ErrorMessage: fmt.Sprintf("failed to read file: %v", err),
			}
		}
		doc.Content = string(data)
	}
	return processor.Process(ctx, doc)
}

func failed(status converter.Status) bool {
	return status == converter.StatusError || status == converter.StatusValidationFailed
}

// writeRendering writes the mapped records of a dry run to the output
// directory and returns the file path.
func writeRendering(fm *utils.FileManager, nameFormat string, res converter.ProcessingResult, format string) (string, error) {
	var data []byte
	var err error

	switch format {
	case "json":
		data, err = json.MarshalIndent(struct {
			Result  converter.ProcessingResult `json:"result"`
			Mapping *converter.MappingResult   `json:"mapping"`
		}{res, res.Mapping}, "", "  ")
	default:
		data, err = xmlwriter.Generate(res.Mapping)
	}
	if err != nil {
		return "", err
	}

	name := utils.GenerateOutputFileName(nameFormat, map[string]string{
		"type":    res.EDIType,
		"partner": res.PartnerID,
		"file":    strings.TrimSuffix(res.FileName, filepath.Ext(res.FileName)),
	}, "."+format)
	path := filepath.Join(fm.OutputDir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
