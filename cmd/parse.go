// =============================================================================
// EDI Ingest - Parse Command
// =============================================================================
//
// The 'parse' command prints the document tree of one EDI file as JSON. It is
// the quickest way to find the paths a mapping config should use.
//
// COMMAND USAGE:
//   edi-ingest parse <file> [--type TYPE] [--schema layout.yaml|layout.xlsx]
//
// X12 files need no flags. Fixed-width files need a schema, taken from
// --schema or from the mapping config of --type (or the one whose
// filePatterns match the file).
//
// =============================================================================

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/fwparser"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/types"
	"github.com/ginjaninja78/edi-ingest/internal/x12parser"
	"github.com/ginjaninja78/edi-ingest/internal/xlsxparser"
)

var (
	parseType   string
	parseSchema string
	parseX12    bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Print the document tree of an EDI file as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := parseDocument(args[0], mainConfig, logger, parseType, parseSchema, parseX12)
		if err != nil {
			return err
		}
		return writeTree(cmd.OutOrStdout(), tree)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parseType, "type", "", "EDI type whose mapping config supplies the format and schema")
	parseCmd.Flags().StringVar(&parseSchema, "schema", "", "Fixed-width schema file (.yaml or .xlsx)")
	parseCmd.Flags().BoolVar(&parseX12, "x12", false, "Parse as X12 without consulting mapping configs")
}

// parseDocument picks the parser for filePath. An explicit schema means
// fixed-width; otherwise the mapping config decides, and X12 is assumed when
// no config matches.
func parseDocument(filePath string, cfg *config.MainConfig, log logging.Logger, ediType, schemaPath string, forceX12 bool) (*types.Node, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	content := string(data)

	markers := fwparser.Options{
		HeaderMarker:  cfg.FixedWidth.HeaderMarker,
		TrailerMarker: cfg.FixedWidth.TrailerMarker,
	}

	if forceX12 {
		return x12parser.Parse(content)
	}

	if schemaPath != "" {
		schema, err := loadSchema(schemaPath)
		if err != nil {
			return nil, err
		}
		return fwparser.ParseWithOptions(content, schema, markers)
	}

	loader, err := config.NewLoader(cfg.ConfigsDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping configs: %w", err)
	}

	if ediType == "" {
		var ok bool
		if ediType, ok = loader.MatchFile(filePath); !ok {
			return x12parser.Parse(content)
		}
	}

	mapping, err := loader.Config(ediType, cfg.DefaultPartner)
	if err != nil {
		return nil, err
	}
	if mapping.SourceFormat != config.SourceFixedWidth {
		return x12parser.Parse(content)
	}

	schema, err := loader.Schema(mapping)
	if err != nil {
		return nil, err
	}
	return fwparser.ParseWithOptions(content, schema, markers)
}

func loadSchema(path string) (*types.Schema, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return xlsxparser.ParseSchema(path)
	}
	return config.LoadSchemaFile(path)
}

func writeTree(w io.Writer, tree *types.Node) error {
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
