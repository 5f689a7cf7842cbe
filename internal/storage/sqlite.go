package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/toi/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not
// exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		topic TEXT,
		type TEXT,
		paper_id TEXT,
		content_hash TEXT,
		metadata TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_questions_topic ON questions(topic);
	CREATE INDEX IF NOT EXISTS idx_questions_paper_id ON questions(paper_id);
	CREATE INDEX IF NOT EXISTS idx_questions_content_hash ON questions(content_hash);

	CREATE TABLE IF NOT EXISTS ingestion_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		received INTEGER NOT NULL,
		processed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertQuestion inserts a question record, replacing any existing record
// with the same ID.
func (s *SQLiteStorage) UpsertQuestion(ctx context.Context, meta models.QuestionMetadata) error {
	metadataJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (id, text, topic, type, paper_id, content_hash, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			topic = excluded.topic,
			type = excluded.type,
			paper_id = excluded.paper_id,
			content_hash = excluded.content_hash,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		meta.ExternalID(), meta.Text, meta.Topic, meta.Type, meta.PaperID, meta.ContentHash,
		string(metadataJSON), now, now,
	)
	return err
}

// GetQuestion returns a question record by ID.
func (s *SQLiteStorage) GetQuestion(ctx context.Context, id string) (*models.QuestionMetadata, error) {
	var metadataJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM questions WHERE id = ?`, id,
	).Scan(&metadataJSON)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("question not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	var meta models.QuestionMetadata
	if err := json.Unmarshal([]byte(metadataJSON), &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// ListQuestions returns question records with offset and limit, newest first.
func (s *SQLiteStorage) ListQuestions(ctx context.Context, offset, limit int) ([]models.QuestionMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metadata FROM questions ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []models.QuestionMetadata
	for rows.Next() {
		var metadataJSON string
		if err := rows.Scan(&metadataJSON); err != nil {
			return nil, err
		}
		var meta models.QuestionMetadata
		if err := json.Unmarshal([]byte(metadataJSON), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		questions = append(questions, meta)
	}
	return questions, rows.Err()
}

// CountQuestions returns the total number of archived questions.
func (s *SQLiteStorage) CountQuestions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// DeleteAllQuestions removes every question record.
func (s *SQLiteStorage) DeleteAllQuestions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM questions`)
	return err
}

// LogIngestion appends one row to the ingestion log.
func (s *SQLiteStorage) LogIngestion(ctx context.Context, received, processed, skipped int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestion_log (received, processed, skipped, created_at) VALUES (?, ?, ?, ?)`,
		received, processed, skipped, time.Now(),
	)
	return err
}

// GetIngestionStats returns cumulative totals from the ingestion log.
func (s *SQLiteStorage) GetIngestionStats(ctx context.Context) (*IngestionStats, error) {
	stats := &IngestionStats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(processed), 0), COALESCE(SUM(skipped), 0) FROM ingestion_log`,
	).Scan(&stats.TotalIngestions, &stats.TotalProcessed, &stats.TotalSkipped)
	if err != nil {
		return nil, err
	}

	var last time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT created_at FROM ingestion_log ORDER BY id DESC LIMIT 1`,
	).Scan(&last)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	default:
		stats.LastIngestionAt = &last
	}
	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
