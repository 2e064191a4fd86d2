package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const presetColumns = `id, name, description, rules, is_default, created_at`
const keywordColumns = `id, name, description, keywords, is_default, created_at`

// BlurRulePresets lists all blur-rule presets
func (s *Store) BlurRulePresets(ctx context.Context) ([]BlurRulePreset, error) {
	var presets []BlurRulePreset
	err := s.db.SelectContext(ctx, &presets,
		`SELECT `+presetColumns+` FROM blur_rule_presets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blur rule presets: %w", err)
	}
	return presets, nil
}

// BlurRulePreset returns the preset called name
func (s *Store) BlurRulePreset(ctx context.Context, name string) (*BlurRulePreset, error) {
	var p BlurRulePreset
	err := s.db.GetContext(ctx, &p,
		`SELECT `+presetColumns+` FROM blur_rule_presets WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blur rule preset %q: %w", name, ErrPresetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blur rule preset: %w", err)
	}
	return &p, nil
}

// DefaultBlurRulePreset returns the preset flagged as default
func (s *Store) DefaultBlurRulePreset(ctx context.Context) (*BlurRulePreset, error) {
	var p BlurRulePreset
	err := s.db.GetContext(ctx, &p,
		`SELECT `+presetColumns+` FROM blur_rule_presets WHERE is_default ORDER BY id LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("default blur rule preset: %w", ErrPresetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default blur rule preset: %w", err)
	}
	return &p, nil
}

// SaveBlurRulePreset inserts or replaces the preset with p's name
func (s *Store) SaveBlurRulePreset(ctx context.Context, p BlurRulePreset) error {
	_, err := s.SaveBlurRulePresets(ctx, []BlurRulePreset{p})
	return err
}

// SaveBlurRulePresets upserts presets in one transaction
func (s *Store) SaveBlurRulePresets(ctx context.Context, presets []BlurRulePreset) (int, error) {
	return s.upsert(ctx, "blur rule presets", len(presets), `
		INSERT INTO blur_rule_presets (name, description, rules, is_default)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description, rules = EXCLUDED.rules`,
		func(i int) []interface{} {
			p := presets[i]
			return []interface{}{p.Name, p.Description, p.Rules, p.IsDefault}
		})
}

// KeywordLists lists all keyword lists
func (s *Store) KeywordLists(ctx context.Context) ([]KeywordList, error) {
	var lists []KeywordList
	err := s.db.SelectContext(ctx, &lists,
		`SELECT `+keywordColumns+` FROM keyword_lists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keyword lists: %w", err)
	}
	return lists, nil
}

// KeywordList returns the list called name
func (s *Store) KeywordList(ctx context.Context, name string) (*KeywordList, error) {
	var l KeywordList
	err := s.db.GetContext(ctx, &l,
		`SELECT `+keywordColumns+` FROM keyword_lists WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("keyword list %q: %w", name, ErrPresetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get keyword list: %w", err)
	}
	return &l, nil
}

// SaveKeywordList inserts or replaces the list with l's name
func (s *Store) SaveKeywordList(ctx context.Context, l KeywordList) error {
	_, err := s.SaveKeywordLists(ctx, []KeywordList{l})
	return err
}

// SaveKeywordLists upserts keyword lists in one transaction
func (s *Store) SaveKeywordLists(ctx context.Context, lists []KeywordList) (int, error) {
	return s.upsert(ctx, "keyword lists", len(lists), `
		INSERT INTO keyword_lists (name, description, keywords, is_default)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description, keywords = EXCLUDED.keywords`,
		func(i int) []interface{} {
			l := lists[i]
			return []interface{}{l.Name, l.Description, l.Keywords, l.IsDefault}
		})
}

// upsert runs query once per row inside a transaction
func (s *Store) upsert(ctx context.Context, what string, n int, query string, args func(int) []interface{}) (int, error) {
	if n == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < n; i++ {
		if _, err := tx.ExecContext(ctx, query, args(i)...); err != nil {
			return 0, fmt.Errorf("failed to save %s: %w", what, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", what, err)
	}
	s.logger.Info("Presets saved", zap.String("kind", what), zap.Int("count", n))
	return n, nil
}
