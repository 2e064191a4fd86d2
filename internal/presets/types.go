package presets

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/frame-sentinel/internal/store"
)

// Kind selects what an input file contains
type Kind string

const (
	KindKeywords Kind = "keywords"
	KindRules    Kind = "rules"
)

// ParseKind validates a kind name
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindKeywords, KindRules:
		return k, true
	}
	return "", false
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
	FormatUnknown FileFormat = "unknown"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// KeywordRecord is one row of a flat keyword file
type KeywordRecord struct {
	Name    string `csv:"name" parquet:"name" json:"name"`
	Keyword string `csv:"keyword" parquet:"keyword" json:"keyword"`
}

// KeywordListRecord is one JSON keyword list
type KeywordListRecord struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// RuleRecord is one row of a flat blur-rule file
type RuleRecord struct {
	Name     string `csv:"name" parquet:"name" json:"name"`
	Category string `csv:"category" parquet:"category" json:"category"`
	Method   string `csv:"method" parquet:"method" json:"method"`
}

// RulePresetRecord is one JSON blur-rule preset
type RulePresetRecord struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Rules       map[string]string `json:"rules"`
}

// DetectionRow is the exported form of a logged detection
type DetectionRow struct {
	ID           int64   `parquet:"id"`
	SessionID    int64   `parquet:"session_id"`
	ObjectType   string  `parquet:"object_type"`
	BlurMethod   string  `parquet:"blur_method"`
	Confidence   float64 `parquet:"confidence"`
	DetectedAtMS int64   `parquet:"detected_at_ms"`
}

// Result reports the outcome of an import
type Result struct {
	Kind              Kind          `json:"kind"`
	Format            FileFormat    `json:"format"`
	TotalRecords      int64         `json:"total_records"`
	Accepted          int64         `json:"accepted"`
	Rejected          int64         `json:"rejected"`
	Written           int           `json:"written"`
	Names             []string      `json:"names"`
	UnknownCategories []string      `json:"unknown_categories,omitempty"`
	Duration          time.Duration `json:"duration"`
	Errors            []string      `json:"errors,omitempty"`
}

// Config contains importer configuration
type Config struct {
	BatchSize    int  `yaml:"batch_size" mapstructure:"batch_size"`
	DryRun       bool `yaml:"dry_run" mapstructure:"dry_run"`
	ValidateOnly bool `yaml:"validate_only" mapstructure:"validate_only"`
}

// Writer persists imported presets. *store.Store implements it.
type Writer interface {
	SaveKeywordLists(ctx context.Context, lists []store.KeywordList) (int, error)
	SaveBlurRulePresets(ctx context.Context, presets []store.BlurRulePreset) (int, error)
}

// DetectionSource lists logged detections. *store.Store implements it.
type DetectionSource interface {
	RecentDetections(ctx context.Context, sessionID int64, limit int) ([]store.DetectionRecord, error)
}
