// Package presets imports keyword lists and blur-rule presets from CSV,
// Parquet and JSON files and exports logged detections to Parquet.
package presets

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/frame"
	"github.com/raaihank/frame-sentinel/internal/policy"
	"github.com/raaihank/frame-sentinel/internal/store"
)

const defaultBatchSize = 100

// ErrInvalidInput is returned in validate-only mode when records were rejected
var ErrInvalidInput = errors.New("input contains invalid records")

// Importer reads preset files, validates them and writes them in batches
type Importer struct {
	writer Writer
	config Config
	logger *zap.Logger
}

// NewImporter creates an importer. writer may be nil in dry-run and
// validate-only modes.
func NewImporter(writer Writer, config Config, logger *zap.Logger) *Importer {
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	return &Importer{writer: writer, config: config, logger: logger}
}

// Import loads filePath as the given kind
func (im *Importer) Import(ctx context.Context, filePath string, kind Kind) (*Result, error) {
	start := time.Now()
	format := DetectFileFormat(filePath)
	result := &Result{Kind: kind, Format: format}

	im.logger.Info("Starting preset import",
		zap.String("file", filePath),
		zap.String("kind", string(kind)),
		zap.String("format", string(format)))

	var err error
	switch kind {
	case KindKeywords:
		err = im.importKeywords(ctx, filePath, format, result)
	case KindRules:
		err = im.importRules(ctx, filePath, format, result)
	default:
		err = fmt.Errorf("unsupported preset kind: %q", kind)
	}
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	im.logger.Info("Preset import completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("accepted", result.Accepted),
		zap.Int64("rejected", result.Rejected),
		zap.Int("written", result.Written),
		zap.Strings("unknown_categories", result.UnknownCategories),
		zap.Duration("duration", result.Duration))

	if im.config.ValidateOnly && result.Rejected > 0 {
		return result, fmt.Errorf("%d of %d records rejected: %w", result.Rejected, result.TotalRecords, ErrInvalidInput)
	}
	return result, nil
}

func (im *Importer) importKeywords(ctx context.Context, filePath string, format FileFormat, result *Result) error {
	var lists []KeywordListRecord

	switch format {
	case FormatCSV, FormatParquet:
		read := readCSVKeywords
		if format == FormatParquet {
			read = readParquet[KeywordRecord]
		}
		rows, err := read(filePath)
		if err != nil {
			return err
		}
		lists = groupKeywords(rows)
	case FormatJSON:
		var err error
		if lists, err = readJSON[KeywordListRecord](filePath); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported file format: %s", format)
	}

	var out []store.KeywordList
	for i, l := range lists {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := strings.TrimSpace(l.Name)
		result.TotalRecords += int64(max(1, len(l.Keywords)))
		if name == "" {
			im.reject(result, max(1, len(l.Keywords)), fmt.Sprintf("list %d: empty name", i+1))
			continue
		}

		var words []string
		for _, w := range l.Keywords {
			if strings.TrimSpace(w) == "" {
				im.reject(result, 1, fmt.Sprintf("list %q: empty keyword", name))
				continue
			}
			words = append(words, w)
			result.Accepted++
		}
		if len(l.Keywords) == 0 {
			im.reject(result, 1, fmt.Sprintf("list %q: no keywords", name))
		}
		if len(words) == 0 {
			continue
		}
		out = append(out, store.KeywordList{
			Name:        name,
			Description: strings.TrimSpace(l.Description),
			Keywords:    store.WordList(policy.NewKeywordSet(words).Words()),
		})
		result.Names = append(result.Names, name)
	}

	return im.write(ctx, len(out), result, func(from, to int) (int, error) {
		return im.writer.SaveKeywordLists(ctx, out[from:to])
	})
}

func (im *Importer) importRules(ctx context.Context, filePath string, format FileFormat, result *Result) error {
	var presets []RulePresetRecord

	switch format {
	case FormatCSV, FormatParquet:
		read := readCSVRules
		if format == FormatParquet {
			read = readParquet[RuleRecord]
		}
		rows, err := read(filePath)
		if err != nil {
			return err
		}
		presets = groupRules(rows)
	case FormatJSON:
		var err error
		if presets, err = readJSON[RulePresetRecord](filePath); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported file format: %s", format)
	}

	unknown := map[string]bool{}
	var out []store.BlurRulePreset
	for i, p := range presets {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := strings.TrimSpace(p.Name)
		result.TotalRecords += int64(max(1, len(p.Rules)))
		if name == "" {
			im.reject(result, max(1, len(p.Rules)), fmt.Sprintf("preset %d: empty name", i+1))
			continue
		}

		rules := store.RuleMap{}
		for _, key := range sortedKeys(p.Rules) {
			c := frame.Category(strings.ToLower(strings.TrimSpace(key)))
			if !c.Known() {
				unknown[key] = true
				im.reject(result, 1, fmt.Sprintf("preset %q: unknown category %q", name, key))
				continue
			}
			method, ok := policy.ParseMethod(p.Rules[key])
			if !ok {
				im.reject(result, 1, fmt.Sprintf("preset %q: invalid method %q for %s", name, p.Rules[key], c))
				continue
			}
			rules[string(c)] = string(method)
			result.Accepted++
		}
		if len(p.Rules) == 0 {
			im.reject(result, 1, fmt.Sprintf("preset %q: no rules", name))
		}
		if len(rules) == 0 {
			continue
		}
		out = append(out, store.BlurRulePreset{
			Name:        name,
			Description: strings.TrimSpace(p.Description),
			Rules:       rules,
		})
		result.Names = append(result.Names, name)
	}
	for key := range unknown {
		result.UnknownCategories = append(result.UnknownCategories, key)
	}
	sort.Strings(result.UnknownCategories)

	return im.write(ctx, len(out), result, func(from, to int) (int, error) {
		return im.writer.SaveBlurRulePresets(ctx, out[from:to])
	})
}

// write saves n validated items in batches. Failed batches are recorded
// and the remaining batches still run.
func (im *Importer) write(ctx context.Context, n int, result *Result, save func(from, to int) (int, error)) error {
	if im.config.DryRun || im.config.ValidateOnly {
		im.logger.Info("Skipping write", zap.Int("items", n),
			zap.Bool("dry_run", im.config.DryRun),
			zap.Bool("validate_only", im.config.ValidateOnly))
		return nil
	}
	if n > 0 && im.writer == nil {
		return errors.New("no preset writer configured")
	}

	for from := 0; from < n; from += im.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		to := min(from+im.config.BatchSize, n)
		written, err := save(from, to)
		if err != nil {
			im.logger.Error("Batch write failed", zap.Error(err), zap.Int("from", from), zap.Int("to", to))
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Written += written
	}
	return nil
}

func (im *Importer) reject(result *Result, n int, msg string) {
	result.Rejected += int64(n)
	result.Errors = append(result.Errors, msg)
	im.logger.Debug("Record rejected", zap.String("reason", msg))
}

// groupKeywords folds flat rows into lists, keeping first-seen order
func groupKeywords(rows []KeywordRecord) []KeywordListRecord {
	index := map[string]int{}
	var lists []KeywordListRecord
	for _, r := range rows {
		name := strings.TrimSpace(r.Name)
		i, ok := index[name]
		if !ok {
			i = len(lists)
			index[name] = i
			lists = append(lists, KeywordListRecord{Name: name})
		}
		lists[i].Keywords = append(lists[i].Keywords, r.Keyword)
	}
	return lists
}

// groupRules folds flat rows into presets, keeping first-seen order. A
// repeated category keeps its last method.
func groupRules(rows []RuleRecord) []RulePresetRecord {
	index := map[string]int{}
	var presets []RulePresetRecord
	for _, r := range rows {
		name := strings.TrimSpace(r.Name)
		i, ok := index[name]
		if !ok {
			i = len(presets)
			index[name] = i
			presets = append(presets, RulePresetRecord{Name: name, Rules: map[string]string{}})
		}
		presets[i].Rules[r.Category] = r.Method
	}
	return presets
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// readCSV returns the data rows of a CSV file with the given width. A
// first row whose first cell is "name" is treated as a header.
func readCSV(filePath string, width int) ([][]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = width
	reader.TrimLeadingSpace = true

	var rows [][]string
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "name") {
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func readCSVKeywords(filePath string) ([]KeywordRecord, error) {
	rows, err := readCSV(filePath, 2)
	if err != nil {
		return nil, err
	}
	out := make([]KeywordRecord, len(rows))
	for i, r := range rows {
		out[i] = KeywordRecord{Name: r[0], Keyword: r[1]}
	}
	return out, nil
}

func readCSVRules(filePath string) ([]RuleRecord, error) {
	rows, err := readCSV(filePath, 3)
	if err != nil {
		return nil, err
	}
	out := make([]RuleRecord, len(rows))
	for i, r := range rows {
		out[i] = RuleRecord{Name: r[0], Category: r[1], Method: r[2]}
	}
	return out, nil
}

func readParquet[T any](filePath string) ([]T, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var rows []T
	for {
		var row T
		err := reader.Read(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Parquet record: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readJSON accepts either a JSON array or a stream of objects
func readJSON[T any](filePath string) ([]T, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	br := bufio.NewReader(file)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}

	decoder := json.NewDecoder(br)
	if first == '[' {
		var out []T
		if err := decoder.Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode JSON array: %w", err)
		}
		return out, nil
	}

	var out []T
	for {
		var v T
		err := decoder.Decode(&v)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode JSON record %d: %w", len(out)+1, err)
		}
		out = append(out, v)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
