// Package history persists completed fact checks in SQLite and serves
// full-text lookups so repeated claims skip the pipeline.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/veracity/internal/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS fact_checks (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	claim          TEXT NOT NULL,
	normalized     TEXT NOT NULL UNIQUE,
	category       TEXT NOT NULL,
	confidence     REAL NOT NULL,
	verdict_json   TEXT NOT NULL,
	human_reviewed INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS fact_checks_fts USING fts5(
	claim,
	content='fact_checks',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS fact_checks_ai AFTER INSERT ON fact_checks BEGIN
	INSERT INTO fact_checks_fts(rowid, claim) VALUES (new.id, new.claim);
END;

CREATE TRIGGER IF NOT EXISTS fact_checks_ad AFTER DELETE ON fact_checks BEGIN
	INSERT INTO fact_checks_fts(fact_checks_fts, rowid, claim) VALUES ('delete', old.id, old.claim);
END;

CREATE TRIGGER IF NOT EXISTS fact_checks_au AFTER UPDATE ON fact_checks BEGIN
	INSERT INTO fact_checks_fts(fact_checks_fts, rowid, claim) VALUES ('delete', old.id, old.claim);
	INSERT INTO fact_checks_fts(rowid, claim) VALUES (new.id, new.claim);
END;
`

// Store is the historical claim store. Safe for concurrent use; writes
// are serialized through a mutex since SQLite allows one writer.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	similarityCut float64
	maxResults    int
}

// Stats summarizes the store contents.
type Stats struct {
	Total         int64            `json:"total"`
	HumanReviewed int64            `json:"human_reviewed"`
	ByCategory    map[string]int64 `json:"by_category"`
}

// Open opens or creates the store at path and applies the schema.
// Parent directories are created as needed.
func Open(cfg model.HistoryConfig) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	cut := cfg.SimilarityCut
	if cut >= 0 {
		cut = -1.5
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Store{db: db, similarityCut: cut, maxResults: maxResults}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the verdict for a claim, keyed by its normalized form.
// A re-check of the same claim replaces the stored verdict.
func (s *Store) Save(ctx context.Context, claim model.Claim, verdict *model.Verdict, humanReviewed bool) error {
	if verdict == nil {
		return errors.New("verdict is nil")
	}
	payload, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fact_checks(claim, normalized, category, confidence, verdict_json, human_reviewed, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(normalized) DO UPDATE SET
			claim = excluded.claim,
			category = excluded.category,
			confidence = excluded.confidence,
			verdict_json = excluded.verdict_json,
			human_reviewed = excluded.human_reviewed,
			created_at = excluded.created_at`,
		claim.Text, claim.Normalized, string(verdict.Category), verdict.Confidence,
		payload, boolInt(humanReviewed), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save fact check: %w", err)
	}
	return nil
}

// FindExact returns the stored record whose normalized claim matches
// exactly, or nil when none exists.
func (s *Store) FindExact(ctx context.Context, normalized string) (*model.HistoricalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, claim, normalized, verdict_json, human_reviewed, created_at
		 FROM fact_checks WHERE normalized = ? LIMIT 1`,
		normalized,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find exact: %w", err)
	}
	return rec, nil
}

// FindSimilar runs a full-text query over stored claims and returns
// records whose BM25 rank clears the similarity cutoff, best first.
func (s *Store) FindSimilar(ctx context.Context, claimText string) ([]*model.HistoricalRecord, error) {
	query := ftsQuery(claimText)
	if query == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT fc.id, fc.claim, fc.normalized, fc.verdict_json, fc.human_reviewed, fc.created_at,
		        bm25(fact_checks_fts) AS rank
		 FROM fact_checks_fts
		 JOIN fact_checks fc ON fc.id = fact_checks_fts.rowid
		 WHERE fact_checks_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		query, s.maxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	defer rows.Close()

	var list []*model.HistoricalRecord
	for rows.Next() {
		var (
			rec         model.HistoricalRecord
			verdictJSON string
			reviewed    int
			createdAt   string
		)
		if err := rows.Scan(&rec.ID, &rec.Claim, &rec.Normalized, &verdictJSON, &reviewed, &createdAt, &rec.Rank); err != nil {
			return nil, fmt.Errorf("scan fact check: %w", err)
		}
		if rec.Rank > s.similarityCut {
			continue
		}
		if err := fillRecord(&rec, verdictJSON, reviewed, createdAt); err != nil {
			return nil, err
		}
		list = append(list, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	return list, nil
}

// Recent returns the latest records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*model.HistoricalRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, claim, normalized, verdict_json, human_reviewed, created_at
		 FROM fact_checks ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()

	var list []*model.HistoricalRecord
	for rows.Next() {
		var (
			rec         model.HistoricalRecord
			verdictJSON string
			reviewed    int
			createdAt   string
		)
		if err := rows.Scan(&rec.ID, &rec.Claim, &rec.Normalized, &verdictJSON, &reviewed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fact check: %w", err)
		}
		if err := fillRecord(&rec, verdictJSON, reviewed, createdAt); err != nil {
			return nil, err
		}
		list = append(list, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	return list, nil
}

// SetHumanReviewed marks the stored record for a normalized claim as
// human reviewed.
func (s *Store) SetHumanReviewed(ctx context.Context, normalized string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		"UPDATE fact_checks SET human_reviewed = 1 WHERE normalized = ?", normalized,
	)
	if err != nil {
		return fmt.Errorf("mark reviewed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark reviewed: no record for claim")
	}
	return nil
}

// GetStats aggregates counts over the stored checks.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByCategory: make(map[string]int64)}
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(human_reviewed), 0) FROM fact_checks",
	).Scan(&st.Total, &st.HumanReviewed)
	if err != nil {
		return nil, fmt.Errorf("count fact checks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT category, COUNT(*) FROM fact_checks GROUP BY category",
	)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		st.ByCategory[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.HistoricalRecord, error) {
	var (
		rec         model.HistoricalRecord
		verdictJSON string
		reviewed    int
		createdAt   string
	)
	if err := row.Scan(&rec.ID, &rec.Claim, &rec.Normalized, &verdictJSON, &reviewed, &createdAt); err != nil {
		return nil, err
	}
	if err := fillRecord(&rec, verdictJSON, reviewed, createdAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func fillRecord(rec *model.HistoricalRecord, verdictJSON string, reviewed int, createdAt string) error {
	if err := json.Unmarshal([]byte(verdictJSON), &rec.Verdict); err != nil {
		return fmt.Errorf("unmarshal verdict: %w", err)
	}
	rec.HumanReviewed = reviewed != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}
	return nil
}

// ftsQuery turns free claim text into an OR query of quoted terms.
// FTS5 treats bare punctuation as syntax, so every term is quoted.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'.,:;!?()`)
		if len(f) < 3 {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, "")+`"`)
	}
	return strings.Join(terms, " OR ")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
