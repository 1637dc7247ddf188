package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pavelanni/smartquiz/internal/model"

	_ "modernc.org/sqlite"
)

// Store persists summaries and the generation audit log. Quiz answers and
// scores are never written here.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		hash TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		summary_id INTEGER NOT NULL,
		format TEXT NOT NULL DEFAULT 'text',
		model TEXT NOT NULL DEFAULT '',
		raw TEXT NOT NULL DEFAULT '',
		questions INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (summary_id) REFERENCES summaries(id)
	);

	CREATE INDEX IF NOT EXISTS idx_generations_summary ON generations(summary_id);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// HashSummary returns the hex sha256 of a summary text.
func HashSummary(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// SaveSummary stores a summary, returning the existing row when the same
// text was saved before.
func (s *Store) SaveSummary(text string) (model.Summary, error) {
	hash := HashSummary(text)
	_, err := s.db.Exec(
		`INSERT INTO summaries (text, hash, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		text, hash, time.Now(),
	)
	if err != nil {
		return model.Summary{}, err
	}
	return s.getSummaryByHash(hash)
}

func (s *Store) getSummaryByHash(hash string) (model.Summary, error) {
	var sum model.Summary
	err := s.db.QueryRow(
		`SELECT id, text, hash, created_at FROM summaries WHERE hash = ?`, hash,
	).Scan(&sum.ID, &sum.Text, &sum.Hash, &sum.CreatedAt)
	return sum, err
}

// GetSummary returns a summary by ID.
func (s *Store) GetSummary(id int64) (model.Summary, error) {
	var sum model.Summary
	err := s.db.QueryRow(
		`SELECT id, text, hash, created_at FROM summaries WHERE id = ?`, id,
	).Scan(&sum.ID, &sum.Text, &sum.Hash, &sum.CreatedAt)
	return sum, err
}

// ListSummaries returns the most recent summaries, newest first.
func (s *Store) ListSummaries(limit int) ([]model.Summary, error) {
	rows, err := s.db.Query(
		`SELECT id, text, hash, created_at FROM summaries ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var summaries []model.Summary
	for rows.Next() {
		var sum model.Summary
		if err := rows.Scan(&sum.ID, &sum.Text, &sum.Hash, &sum.CreatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// RecordGeneration appends a generation call to the audit log.
func (s *Store) RecordGeneration(g model.Generation) (int64, error) {
	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO generations (summary_id, format, model, raw, questions, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.SummaryID, g.Format, g.Model, g.Raw, g.Questions, g.Error, g.Duration.Milliseconds(), createdAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const generationColumns = `id, summary_id, format, model, raw, questions, error, duration_ms, created_at`

func scanGeneration(sc interface{ Scan(...any) error }) (model.Generation, error) {
	var g model.Generation
	var ms int64
	err := sc.Scan(&g.ID, &g.SummaryID, &g.Format, &g.Model, &g.Raw, &g.Questions, &g.Error, &ms, &g.CreatedAt)
	g.Duration = time.Duration(ms) * time.Millisecond
	return g, err
}

// GetGeneration returns a generation by ID.
func (s *Store) GetGeneration(id int64) (model.Generation, error) {
	return scanGeneration(s.db.QueryRow(
		`SELECT `+generationColumns+` FROM generations WHERE id = ?`, id,
	))
}

// ListGenerations returns the most recent generations, newest first.
// A limit of 0 or less returns all rows.
func (s *Store) ListGenerations(limit int) ([]model.Generation, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT `+generationColumns+` FROM generations ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var gens []model.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

// GenerationCount returns the number of recorded generations.
func (s *Store) GenerationCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM generations`).Scan(&count)
	return count, err
}
