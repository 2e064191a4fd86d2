package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPresetNotFound is returned when a named preset does not exist
	ErrPresetNotFound = errors.New("preset not found")
	// ErrSessionNotFound is returned when ending an unknown session
	ErrSessionNotFound = errors.New("session not found")
)

// Config contains database configuration
type Config struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
}

// BlurRulePreset is a named category to method mapping
type BlurRulePreset struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Rules       RuleMap   `db:"rules" json:"rules"`
	IsDefault   bool      `db:"is_default" json:"is_default"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// KeywordList is a named list of sensitive keywords
type KeywordList struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Keywords    WordList  `db:"keywords" json:"keywords"`
	IsDefault   bool      `db:"is_default" json:"is_default"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DetectionRecord is one logged detection
type DetectionRecord struct {
	ID         int64     `db:"id" json:"id"`
	SessionID  int64     `db:"session_id" json:"session_id"`
	ObjectType string    `db:"object_type" json:"object_type"`
	BlurMethod string    `db:"blur_method" json:"blur_method"`
	Confidence float64   `db:"confidence" json:"confidence"`
	DetectedAt time.Time `db:"detected_at" json:"detected_at"`
}

// RuleMap is stored as a JSONB object
type RuleMap map[string]string

// Value implements driver.Valuer
func (m RuleMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *RuleMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// WordList is stored as a JSONB array
type WordList []string

// Value implements driver.Valuer
func (w WordList) Value() (driver.Value, error) {
	if w == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(w)
}

// Scan implements sql.Scanner
func (w *WordList) Scan(src interface{}) error {
	return scanJSON(src, w)
}

func scanJSON(src interface{}, dst interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode JSON column: %w", err)
	}
	return nil
}
