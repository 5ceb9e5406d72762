// =============================================================================
// EDI Ingest - Validate Command
// =============================================================================
//
// The 'validate' command checks every mapping config in the configs
// directory without processing any documents:
//
//   1. Each file is checked against the mapping config schema
//   2. Fixed-width configs must reference a loadable schema
//   3. Optionally, an XSD describing each config's output is written
//
// COMMAND USAGE:
//   edi-ingest validate [--xsd DIR]
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/xmlwriter"
)

var validateXSDDir string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the mapping configs in the configs directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(mainConfig.ConfigsDir, validateXSDDir, logger, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateXSDDir, "xsd", "", "Write an XSD for each mapping config into this directory")
}

// runValidate reports every problem it finds and fails if there was any.
func runValidate(configsDir, xsdDir string, log logging.Logger, out io.Writer) error {
	loader, err := config.NewLoader(configsDir, log)
	if err != nil {
		return fmt.Errorf("failed to load mapping configs: %w", err)
	}

	files := loader.Files()
	keys := make([]string, 0, len(files))
	for key := range files {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if xsdDir != "" {
		if err := os.MkdirAll(xsdDir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", xsdDir, err)
		}
	}

	var problems []error
	for _, key := range keys {
		path := files[key]

		cfg, err := config.LoadMappingFile(path)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", path, err))
			fmt.Fprintf(out, "  ✗ %s (%s)\n", key, filepath.Base(path))
			continue
		}

		if cfg.SourceFormat == config.SourceFixedWidth {
			if _, err := loader.Schema(cfg); err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", path, err))
				fmt.Fprintf(out, "  ✗ %s (%s)\n", key, filepath.Base(path))
				continue
			}
		}

		if xsdDir != "" {
			xsd, err := xmlwriter.GenerateXSD(cfg)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", path, err))
				continue
			}
			target := filepath.Join(xsdDir, key+".xsd")
			if err := os.WriteFile(target, xsd, 0644); err != nil {
				problems = append(problems, fmt.Errorf("failed to write %s: %w", target, err))
				continue
			}
		}

		fmt.Fprintf(out, "  ✓ %s (%s, %d target(s))\n", key, filepath.Base(path), len(cfg.Targets))
	}

	fmt.Fprintf(out, "%d mapping config(s), %d problem(s)\n", len(keys), len(problems))
	return errors.Join(problems...)
}
