package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/types"
	"github.com/ginjaninja78/edi-ingest/internal/xlsxparser"
)

// ErrConfigNotFound is returned when no mapping config exists for a type.
var ErrConfigNotFound = errors.New("mapping config not found")

// =============================================================================
// CONFIG LOADER
// =============================================================================

// Loader finds mapping configs in a directory and caches them per
// "<TYPE>_<partner|DEFAULT>" key. Each config and schema is parsed at most
// once until Reload; concurrent first requests may both parse, and the first
// stored value wins.
type Loader struct {
	configsDir string
	logger     logging.Logger

	mu    sync.RWMutex
	index map[string]string // cache key -> file path
	order []indexEntry

	configs sync.Map // cache key -> *MappingConfig
	schemas sync.Map // schema path -> *types.Schema
}

type indexEntry struct {
	ediType  string
	patterns []string
}

// configHeader is the part of a mapping file needed to index it.
type configHeader struct {
	EDIType      string   `yaml:"ediType"`
	PartnerID    string   `yaml:"partnerId"`
	FilePatterns []string `yaml:"filePatterns"`
}

// NewLoader indexes the mapping configs in configsDir.
func NewLoader(configsDir string, logger logging.Logger) (*Loader, error) {
	l := &Loader{
		configsDir: configsDir,
		logger:     logging.OrNop(logger),
	}
	if err := l.scan(); err != nil {
		return nil, err
	}
	return l, nil
}

// scan finds every *.yaml / *.yml file at the top level of the configs
// directory that declares an ediType.
func (l *Loader) scan() error {
	files, err := filepath.Glob(filepath.Join(l.configsDir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to list config files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(l.configsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to list config files: %w", err)
	}
	files = append(files, ymlFiles...)
	sort.Strings(files)

	index := make(map[string]string)
	var order []indexEntry

	for _, file := range files {
		var header configHeader
		if err := readYAML(file, &header); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
		if header.EDIType == "" {
			l.logger.Debug("Skipping %s: no ediType", file)
			continue
		}

		key := CacheKey(header.EDIType, header.PartnerID)
		if prev, dup := index[key]; dup {
			return fmt.Errorf("mapping configs %s and %s both declare %s", prev, file, key)
		}
		index[key] = file
		order = append(order, indexEntry{
			ediType:  strings.ToUpper(header.EDIType),
			patterns: header.FilePatterns,
		})
	}

	l.mu.Lock()
	l.index = index
	l.order = order
	l.mu.Unlock()

	l.logger.Debug("Indexed %d mapping configs in %s", len(order), l.configsDir)
	return nil
}

// Reload drops every cached config and schema and re-indexes the directory.
func (l *Loader) Reload() error {
	l.configs.Range(func(k, _ any) bool {
		l.configs.Delete(k)
		return true
	})
	l.schemas.Range(func(k, _ any) bool {
		l.schemas.Delete(k)
		return true
	})
	return l.scan()
}

// Config returns the mapping config for a document type and partner. A
// partner-specific file wins over the type's default file.
func (l *Loader) Config(ediType, partnerID string) (*MappingConfig, error) {
	key := CacheKey(ediType, partnerID)
	if cached, ok := l.configs.Load(key); ok {
		return cached.(*MappingConfig), nil
	}

	l.mu.RLock()
	path, ok := l.index[key]
	l.mu.RUnlock()

	if !ok {
		defaultKey := CacheKey(ediType, "")
		if key == defaultKey {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, key)
		}
		cfg, err := l.Config(ediType, "")
		if err != nil {
			return nil, err
		}
		actual, _ := l.configs.LoadOrStore(key, cfg)
		return actual.(*MappingConfig), nil
	}

	cfg, err := LoadMappingFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	l.logger.Info("Loaded mapping config %s from %s", key, path)
	actual, _ := l.configs.LoadOrStore(key, cfg)
	return actual.(*MappingConfig), nil
}

// Schema returns the fixed-width schema referenced by cfg.
func (l *Loader) Schema(cfg *MappingConfig) (*types.Schema, error) {
	if cfg.Schema == "" {
		return nil, fmt.Errorf("mapping %s has no schema", cfg.EDIType)
	}

	path := cfg.Schema
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.configsDir, path)
	}

	if cached, ok := l.schemas.Load(path); ok {
		return cached.(*types.Schema), nil
	}

	var (
		schema *types.Schema
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		schema, err = xlsxparser.ParseSchema(path)
	default:
		schema, err = LoadSchemaFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", path, err)
	}

	l.logger.Info("Loaded schema %s (%d fields)", path, schema.FieldCount())
	actual, _ := l.schemas.LoadOrStore(path, schema)
	return actual.(*types.Schema), nil
}

// MatchFile returns the document type whose filePatterns match the file's
// base name. Files are checked in directory order.
func (l *Loader) MatchFile(filePath string) (string, bool) {
	fileName := filepath.Base(filePath)

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, entry := range l.order {
		for _, pattern := range entry.patterns {
			if matched, _ := filepath.Match(pattern, fileName); matched {
				return entry.ediType, true
			}
		}
	}
	return "", false
}

// Files returns the indexed mapping config paths keyed by cache key.
func (l *Loader) Files() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]string, len(l.index))
	for k, v := range l.index {
		out[k] = v
	}
	return out
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse file: %w", err)
	}
	return nil
}
