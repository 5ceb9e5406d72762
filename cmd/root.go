// =============================================================================
// EDI Ingest - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (edi-ingest)
//   ├── processCmd  (edi-ingest process)
//   ├── parseCmd    (edi-ingest parse)
//   ├── validateCmd (edi-ingest validate)
//   ├── seedCmd     (edi-ingest seed)
//   └── versionCmd  (edi-ingest version)
//
// CONFIGURATION:
//   Before any subcommand runs, the root command:
//   1. Loads a .env file into the environment, if present
//   2. Loads the main configuration (config.yaml + EDI_* variables)
//   3. Sets up logging
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/edi-ingest/internal/config"
	"github.com/ginjaninja78/edi-ingest/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// envFile is loaded into the environment before the configuration.
var envFile string

// verbose enables debug logging when set to true.
var verbose bool

// mainConfig and logger are set up by the root command before a subcommand runs.
var (
	mainConfig *config.MainConfig
	logger     *logging.ZapLogger
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "edi-ingest",
	Short: "EDI Ingest - Load X12 and fixed-width EDI documents into relational tables",
	Long: `EDI Ingest parses inbound EDI documents (ANSI X12 and fixed-width layouts),
validates them, and maps them into table records as declared by per-type YAML
mapping configs.

Key Features:
  - X12 envelope and transaction parsing with delimiter detection
  - Fixed-width parsing from YAML or XLSX layouts
  - Declarative field mapping with lookups, coalescing and Lua scripts
  - Structural validation before anything is written
  - Concurrent processing with automatic archival

Example Usage:
  edi-ingest process                         # Process all files in the input directory
  edi-ingest process --file 315_ACME.edi     # Process a single file
  edi-ingest process --dry-run --format json # Map without writing to the database
  edi-ingest validate                        # Check mapping configs without processing
  edi-ingest seed LOCATIONS locations.csv    # Load reference data for lookups`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initApp()
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().StringVar(
		&envFile,
		"env-file",
		".env",
		"Environment file loaded before the configuration, if it exists",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// initApp loads the environment file, the main configuration and the logger.
func initApp() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load main config: %w", err)
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	l, err := logging.New(level, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	mainConfig = cfg
	logger = l
	return nil
}
