// Package storage persists the question archive and ingestion log in SQLite.
// The vector index is the retrieval surface; this archive is the durable
// record of every question the system has accepted.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/toi/internal/models"
)

// IngestionStats summarizes the ingestion log.
type IngestionStats struct {
	TotalIngestions int64      `json:"total_ingestions"`
	TotalProcessed  int64      `json:"total_processed"`
	TotalSkipped    int64      `json:"total_skipped"`
	LastIngestionAt *time.Time `json:"last_ingestion_at,omitempty"`
}

// Storage defines question archive and ingestion log operations.
type Storage interface {
	UpsertQuestion(ctx context.Context, meta models.QuestionMetadata) error
	GetQuestion(ctx context.Context, id string) (*models.QuestionMetadata, error)
	ListQuestions(ctx context.Context, offset, limit int) ([]models.QuestionMetadata, error)
	CountQuestions(ctx context.Context) (int64, error)
	DeleteAllQuestions(ctx context.Context) error

	LogIngestion(ctx context.Context, received, processed, skipped int) error
	GetIngestionStats(ctx context.Context) (*IngestionStats, error)

	Close() error
}
