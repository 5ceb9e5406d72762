// =============================================================================
// EDI Ingest - Main Entry Point
// =============================================================================
//
// USAGE:
//   edi-ingest process       - Process all EDI files in the input directory
//   edi-ingest parse         - Print the document tree of one file
//   edi-ingest validate      - Validate mapping configs without processing
//   edi-ingest seed          - Load reference data for lookups from CSV
//   edi-ingest version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : parsers, mapping engine, lookups, validation, storage
//   - pkg/           : shared file utilities
//   - configs/       : per-type YAML mapping configs and fixed-width schemas
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/edi-ingest/cmd"
)

func main() {
	cmd.Execute()
}
