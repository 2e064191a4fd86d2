// Package store persists detection sessions, detections and the named
// blur-rule and keyword presets in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/events"
)

const (
	anonymousUser    = "anonymous"
	defaultBatchSize = 500
)

// Store handles PostgreSQL persistence
type Store struct {
	db        *sqlx.DB
	batchSize int
	logger    *zap.Logger
}

// NewStore connects to the database described by config
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	s := New(db, config.BatchSize, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Database store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return s, nil
}

// New wraps an open connection
func New(db *sqlx.DB, batchSize int, logger *zap.Logger) *Store {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Store{db: db, batchSize: batchSize, logger: logger}
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	s.logger.Info("Database schema ready", zap.Int("statements", len(schema)))
	return nil
}

// SeedDefaults inserts the built-in presets, leaving existing rows alone
func (s *Store) SeedDefaults(ctx context.Context) error {
	for _, p := range DefaultBlurRulePresets() {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO blur_rule_presets (name, description, rules, is_default)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO NOTHING`,
			p.Name, p.Description, p.Rules, p.IsDefault)
		if err != nil {
			return fmt.Errorf("failed to seed blur rule preset %q: %w", p.Name, err)
		}
	}
	for _, l := range DefaultKeywordLists() {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO keyword_lists (name, description, keywords, is_default)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO NOTHING`,
			l.Name, l.Description, l.Keywords, l.IsDefault)
		if err != nil {
			return fmt.Errorf("failed to seed keyword list %q: %w", l.Name, err)
		}
	}
	s.logger.Info("Default presets seeded")
	return nil
}

// EnsureAnonymousUser returns the id of the anonymous user, creating it
// on first use
func (s *Store) EnsureAnonymousUser(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, last_login) VALUES ($1, NOW())
		ON CONFLICT (username) DO UPDATE SET last_login = NOW()
		RETURNING id`, anonymousUser).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure anonymous user: %w", err)
	}
	return id, nil
}

// StartSession opens a detection session. A zero userID uses the
// anonymous user.
func (s *Store) StartSession(ctx context.Context, userID int64) (int64, error) {
	if userID == 0 {
		id, err := s.EnsureAnonymousUser(ctx)
		if err != nil {
			return 0, err
		}
		userID = id
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO detection_sessions (user_id) VALUES ($1) RETURNING id`, userID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to start session: %w", err)
	}
	s.logger.Info("Detection session started", zap.Int64("session_id", id), zap.Int64("user_id", userID))
	return id, nil
}

// EndSession closes a session and returns its duration
func (s *Store) EndSession(ctx context.Context, sessionID int64) (time.Duration, error) {
	var seconds float64
	err := s.db.QueryRowContext(ctx, `
		UPDATE detection_sessions
		SET end_time = NOW(), duration_seconds = EXTRACT(EPOCH FROM (NOW() - start_time))
		WHERE id = $1
		RETURNING duration_seconds`, sessionID).Scan(&seconds)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to end session: %w", err)
	}
	d := time.Duration(seconds * float64(time.Second))
	s.logger.Info("Detection session ended", zap.Int64("session_id", sessionID), zap.Duration("duration", d))
	return d, nil
}

// LogDetection records one detection
func (s *Store) LogDetection(ctx context.Context, sessionID int64, category, method string, confidence float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO detections (session_id, object_type, blur_method, confidence)
		VALUES ($1, $2, $3, $4)`,
		sessionID, category, method, confidence)
	if err != nil {
		return fmt.Errorf("failed to log detection: %w", err)
	}
	return nil
}

// LogDetections records many detections using multi-row inserts
func (s *Store) LogDetections(ctx context.Context, records []DetectionRecord) (int64, error) {
	var inserted int64
	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))
		batch := records[start:end]

		valueStrings := make([]string, 0, len(batch))
		valueArgs := make([]interface{}, 0, len(batch)*4)
		for i, r := range batch {
			valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4))
			valueArgs = append(valueArgs, r.SessionID, r.ObjectType, r.BlurMethod, r.Confidence)
		}
		query := fmt.Sprintf(`
			INSERT INTO detections (session_id, object_type, blur_method, confidence)
			VALUES %s`, strings.Join(valueStrings, ","))

		res, err := s.db.ExecContext(ctx, query, valueArgs...)
		if err != nil {
			return inserted, fmt.Errorf("batch insert failed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(batch))
		}
		inserted += n
	}
	return inserted, nil
}

// ConsumeDetection logs one row per detected region. Events without a
// session are ignored.
func (s *Store) ConsumeDetection(ctx context.Context, e events.Detection) error {
	if e.SessionID == 0 || e.Count <= 0 {
		return nil
	}
	records := make([]DetectionRecord, e.Count)
	for i := range records {
		records[i] = DetectionRecord{
			SessionID:  e.SessionID,
			ObjectType: e.Category,
			BlurMethod: e.Method,
			Confidence: e.Confidence,
		}
	}
	_, err := s.LogDetections(ctx, records)
	return err
}

// DetectionStats counts detections per object type. A zero sessionID
// counts across all sessions.
func (s *Store) DetectionStats(ctx context.Context, sessionID int64) (map[string]int64, error) {
	query := `SELECT object_type, COUNT(*) AS count FROM detections`
	var args []interface{}
	if sessionID != 0 {
		query += ` WHERE session_id = $1`
		args = append(args, sessionID)
	}
	query += ` GROUP BY object_type`

	var rows []struct {
		ObjectType string `db:"object_type"`
		Count      int64  `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get detection stats: %w", err)
	}

	stats := make(map[string]int64, len(rows))
	for _, r := range rows {
		stats[r.ObjectType] = r.Count
	}
	return stats, nil
}

// RecentDetections returns up to limit detections of a session, newest first
func (s *Store) RecentDetections(ctx context.Context, sessionID int64, limit int) ([]DetectionRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	var records []DetectionRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, session_id, object_type, COALESCE(blur_method, '') AS blur_method,
			COALESCE(confidence, 0) AS confidence, detected_at
		FROM detections
		WHERE session_id = $1
		ORDER BY detected_at DESC, id DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	return records, nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL hides the password of a database URL for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
