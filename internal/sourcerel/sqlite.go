package sourcerel

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/factlens/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS source_scores (
	domain TEXT PRIMARY KEY,
	score REAL NOT NULL,
	confidence REAL NOT NULL,
	consensus INTEGER NOT NULL DEFAULT 0,
	models TEXT NOT NULL DEFAULT '[]',
	reasoning TEXT NOT NULL DEFAULT '',
	low_confidence INTEGER NOT NULL DEFAULT 0,
	evaluated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_source_scores_expires ON source_scores(expires_at);
`

// SQLiteStore keeps scores in a local SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at path.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open source store: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize source store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the stored score for domain
func (s *SQLiteStore) Get(ctx context.Context, domain string) (model.CachedScore, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT domain, score, confidence, consensus, models, reasoning, low_confidence, evaluated_at, expires_at
		 FROM source_scores WHERE domain = ?`, domain)

	var (
		score                    model.CachedScore
		consensus, lowConfidence int
		models                   string
		evaluatedAt, expiresAt   int64
	)
	err := row.Scan(&score.Domain, &score.Score, &score.Confidence, &consensus, &models,
		&score.Reasoning, &lowConfidence, &evaluatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CachedScore{}, false, nil
	}
	if err != nil {
		return model.CachedScore{}, false, fmt.Errorf("query score for %s: %w", domain, err)
	}

	score.Consensus = consensus != 0
	score.LowConfidence = lowConfidence != 0
	score.EvaluatedAt = fromNanos(evaluatedAt)
	score.ExpiresAt = fromNanos(expiresAt)
	if err := json.Unmarshal([]byte(models), &score.Models); err != nil {
		return model.CachedScore{}, false, fmt.Errorf("decode models for %s: %w", domain, err)
	}
	return score, true, nil
}

// Put upserts a score
func (s *SQLiteStore) Put(ctx context.Context, score model.CachedScore) error {
	models, err := json.Marshal(score.Models)
	if err != nil {
		return fmt.Errorf("encode models: %w", err)
	}
	if score.Models == nil {
		models = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO source_scores (domain, score, confidence, consensus, models, reasoning, low_confidence, evaluated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET
		 score = excluded.score,
		 confidence = excluded.confidence,
		 consensus = excluded.consensus,
		 models = excluded.models,
		 reasoning = excluded.reasoning,
		 low_confidence = excluded.low_confidence,
		 evaluated_at = excluded.evaluated_at,
		 expires_at = excluded.expires_at`,
		score.Domain, score.Score, score.Confidence, boolInt(score.Consensus), string(models),
		score.Reasoning, boolInt(score.LowConfidence), toNanos(score.EvaluatedAt), toNanos(score.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("upsert score for %s: %w", score.Domain, err)
	}
	return nil
}

// Delete removes a domain's score
func (s *SQLiteStore) Delete(ctx context.Context, domain string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM source_scores WHERE domain = ?`, domain); err != nil {
		return fmt.Errorf("delete score for %s: %w", domain, err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
