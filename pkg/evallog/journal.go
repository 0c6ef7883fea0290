// Package evallog keeps an append-only SQLite journal of evaluations and a
// small metric sink next to the per-user profile files.
package evallog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dotsetgreg/dotpersona/pkg/evaluation"
)

// Journal is safe for concurrent use.
type Journal struct {
	db *sql.DB
}

// Entry is one journaled evaluation.
type Entry struct {
	ID               string    `json:"id" yaml:"id"`
	UserID           string    `json:"user_id" yaml:"user_id"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	Overall          float64   `json:"overall" yaml:"overall"`
	Category         string    `json:"category" yaml:"category"`
	Relevance        float64   `json:"relevance" yaml:"relevance"`
	Engagement       float64   `json:"engagement" yaml:"engagement"`
	PersonalityMatch float64   `json:"personality_match" yaml:"personality_match"`
	TechnicalQuality float64   `json:"technical_quality" yaml:"technical_quality"`
	ResponseTime     float64   `json:"response_time" yaml:"response_time"`
	Degraded         bool      `json:"degraded" yaml:"degraded"`
}

type Metric struct {
	Metric    string            `json:"metric" yaml:"metric"`
	Value     float64           `json:"value" yaml:"value"`
	Labels    map[string]string `json:"labels" yaml:"labels"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One shared connection keeps SQLite writers from contending.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS evaluations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			overall REAL NOT NULL,
			category TEXT NOT NULL,
			relevance REAL NOT NULL,
			engagement REAL NOT NULL,
			personality_match REAL NOT NULL,
			technical_quality REAL NOT NULL,
			response_time REAL NOT NULL DEFAULT 0,
			degraded INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS evaluations_user_idx ON evaluations(user_id, created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			labels_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS metrics_name_idx ON metrics(metric, created_at_ms DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("init journal schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

// RecordEvaluation appends r to the journal.
func (j *Journal) RecordEvaluation(ctx context.Context, r evaluation.Result) error {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	at := r.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO evaluations(id, user_id, created_at_ms, overall, category, relevance, engagement, personality_match, technical_quality, response_time, degraded)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.UserID, at.UnixMilli(), r.OverallQualityScore, r.QualityCategory,
		r.RelevanceScore, r.EngagementScore, r.PersonalityMatchScore, r.TechnicalQualityScore,
		r.ResponseTime, boolToInt(r.Degraded))
	if err != nil {
		return fmt.Errorf("record evaluation: %w", err)
	}
	return nil
}

// ListEvaluations returns up to limit newest entries for userID, newest first.
func (j *Journal) ListEvaluations(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, user_id, created_at_ms, overall, category, relevance, engagement, personality_match, technical_quality, response_time, degraded
FROM evaluations
WHERE user_id = ?
ORDER BY created_at_ms DESC, rowid DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			atMS     int64
			degraded int
		)
		if err := rows.Scan(&e.ID, &e.UserID, &atMS, &e.Overall, &e.Category, &e.Relevance, &e.Engagement,
			&e.PersonalityMatch, &e.TechnicalQuality, &e.ResponseTime, &degraded); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		e.CreatedAt = time.UnixMilli(atMS).UTC()
		e.Degraded = degraded != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// CategoryCounts tallies journaled evaluations for userID by quality category.
func (j *Journal) CategoryCounts(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT category, COUNT(*)
FROM evaluations
WHERE user_id = ?
GROUP BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		out[category] = n
	}
	return out, rows.Err()
}

func (j *Journal) AddMetric(ctx context.Context, metric string, value float64, labels map[string]string) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO metrics(metric, value, labels_json, created_at_ms)
VALUES(?, ?, ?, ?)`, metric, value, encodeMap(labels), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("add metric: %w", err)
	}
	return nil
}

// ListMetrics returns up to limit newest samples of metric.
func (j *Journal) ListMetrics(ctx context.Context, metric string, limit int) ([]Metric, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT metric, value, labels_json, created_at_ms
FROM metrics
WHERE metric = ?
ORDER BY created_at_ms DESC, rowid DESC
LIMIT ?`, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	out := []Metric{}
	for rows.Next() {
		var (
			m    Metric
			raw  string
			atMS int64
		)
		if err := rows.Scan(&m.Metric, &m.Value, &raw, &atMS); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Labels = decodeMap(raw)
		m.CreatedAt = time.UnixMilli(atMS).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func encodeMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMap(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]string{}
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func trimSQL(stmt string) string {
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(stmt) > 60 {
		return stmt[:60] + "..."
	}
	return stmt
}
