// Package pipeline orchestrates retrieval: ingestion (clean, chunk, embed,
// index, archive), querying, and stats.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/toi/internal/embedding"
	"github.com/hyperjump/toi/internal/ingest"
	"github.com/hyperjump/toi/internal/models"
	"github.com/hyperjump/toi/internal/storage"
	"github.com/hyperjump/toi/internal/vector"
)

// Options configures a Pipeline.
type Options struct {
	// ChunkingStrategy is one of the ingest.Strategy* values.
	ChunkingStrategy string
	// MaxChunkSize caps chunk length in characters; <= 0 uses the default.
	MaxChunkSize int
	// ModelName is reported in stats.
	ModelName string
	// DiskPaths are included in the stats disk usage figure (database file,
	// index directory).
	DiskPaths []string
}

// Pipeline wires the embedder, vector index, and question archive together.
type Pipeline struct {
	embedder  embedding.Embedder
	index     *vector.Index
	store     storage.Storage
	chunker   *ingest.Chunker
	strategy  string
	modelName string
	diskPaths []string
	logger    *zap.Logger
}

// New creates a pipeline. store may be nil, in which case archival and
// ingestion logging are skipped.
func New(embedder embedding.Embedder, index *vector.Index, store storage.Storage, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		embedder:  embedder,
		index:     index,
		store:     store,
		chunker:   ingest.NewChunker(opts.MaxChunkSize),
		strategy:  opts.ChunkingStrategy,
		modelName: opts.ModelName,
		diskPaths: opts.DiskPaths,
		logger:    logger,
	}
}

// Ingest runs questions through the full path: clean and normalize, chunk,
// embed, add to the index, then archive. A vector.PersistenceError from the
// index is returned alongside the response: the documents are in memory and
// searchable, but the on-disk index may be stale.
func (p *Pipeline) Ingest(ctx context.Context, questions []models.QuestionDocument, deduplicate bool) (*models.IngestResponse, error) {
	start := time.Now()

	processed, skipped := ingest.Process(questions)
	if len(processed) == 0 {
		p.logIngestion(ctx, len(questions), 0, skipped)
		return &models.IngestResponse{
			Status:    "warning",
			Message:   "no valid documents to ingest",
			IndexSize: p.index.Size(),
		}, nil
	}

	chunks, err := p.chunker.Chunk(processed, p.strategy)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	metas := make([]models.QuestionMetadata, len(chunks))
	for i, c := range chunks {
		meta := c.Metadata
		meta.ID = c.ID
		meta.SourceID = c.SourceID
		meta.Text = c.Text
		metas[i] = meta
	}

	added, addErr := p.index.AddDocuments(embeddings, metas, deduplicate)
	var persistErr *vector.PersistenceError
	if addErr != nil && !errors.As(addErr, &persistErr) {
		return nil, addErr
	}

	p.archive(ctx, processed)
	p.logIngestion(ctx, len(questions), len(processed), skipped)

	resp := &models.IngestResponse{
		Status:             "success",
		DocumentsIngested:  added,
		DocumentsProcessed: len(processed),
		ChunksCreated:      len(chunks),
		IndexSize:          p.index.Size(),
		ProcessingTimeMS:   time.Since(start).Milliseconds(),
	}
	if addErr != nil {
		resp.Status = "warning"
		resp.Message = "documents indexed in memory but saving the index failed"
		p.logger.Error("index persistence failed", zap.Error(addErr))
	}
	return resp, addErr
}

func (p *Pipeline) archive(ctx context.Context, processed []ingest.ProcessedDocument) {
	if p.store == nil {
		return
	}
	for _, doc := range processed {
		if err := p.store.UpsertQuestion(ctx, doc.Metadata); err != nil {
			p.logger.Warn("failed to archive question", zap.String("id", doc.ID), zap.Error(err))
		}
	}
}

func (p *Pipeline) logIngestion(ctx context.Context, received, processed, skipped int) {
	if p.store == nil {
		return
	}
	if err := p.store.LogIngestion(ctx, received, processed, skipped); err != nil {
		p.logger.Warn("failed to log ingestion", zap.Error(err))
	}
}

// IngestFile reads a JSON file of questions and ingests it. The file holds
// either an object with a "questions" array or a bare array of questions.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*models.IngestResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var questions []models.QuestionDocument
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		if err := json.Unmarshal(data, &questions); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		var req models.IngestRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		questions = req.Questions
	}
	return p.Ingest(ctx, questions, true)
}

// Query embeds the query text and searches the index.
func (p *Pipeline) Query(ctx context.Context, query string, topK int, filter *models.MetadataFilter) (*models.QueryResponse, error) {
	start := time.Now()

	if p.index.Size() == 0 {
		return &models.QueryResponse{
			Results: []models.QueryResult{},
			Message: "index is empty, ingest documents first",
		}, nil
	}

	queryVec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	matches, err := p.index.Search(queryVec, topK, filter)
	if err != nil {
		return nil, err
	}

	results := make([]models.QueryResult, len(matches))
	for i, m := range matches {
		// Callers know questions by their source ID; chunk IDs are internal.
		id := m.Metadata.SourceID
		if id == "" {
			id = m.Metadata.ID
		}
		results[i] = models.QueryResult{
			ID:                 id,
			Text:               m.Metadata.Text,
			Topic:              m.Metadata.Topic,
			Type:               m.Metadata.Type,
			Marks:              m.Metadata.Marks,
			PaperID:            m.Metadata.PaperID,
			Score:              m.Score,
			PageNumber:         m.Metadata.PageNumber,
			MainQuestionNumber: m.Metadata.MainQuestionNumber,
			SubQuestionLabel:   m.Metadata.SubQuestionLabel,
		}
	}

	return &models.QueryResponse{
		Results:        results,
		QueryTimeMS:    float64(time.Since(start).Microseconds()) / 1000.0,
		TotalDocuments: p.index.Size(),
	}, nil
}

// Context retrieves the top matches for query and formats them as a numbered
// context block suitable for prompting a generator.
func (p *Pipeline) Context(ctx context.Context, query string, topK int, filter *models.MetadataFilter) (string, error) {
	resp, err := p.Query(ctx, query, topK, filter)
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, r := range resp.Results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		marks := "N/A"
		if r.Marks != nil {
			marks = strconv.Itoa(*r.Marks)
		}
		fmt.Fprintf(&b, "[%d] Topic: %s | Type: %s | Marks: %s\nQuestion: %s",
			i+1, r.Topic, r.Type, marks, r.Text)
	}
	return b.String(), nil
}

// Stats reports index, archive, and ingestion statistics.
func (p *Pipeline) Stats(ctx context.Context) (*models.StatsResponse, error) {
	idx := p.index.Stats()
	resp := &models.StatsResponse{
		TotalDocuments: idx.Size,
		IndexKind:      idx.Kind,
		Dimension:      idx.Dimension,
		Trained:        idx.Trained,
		EmbeddingModel: p.modelName,
	}

	if p.store != nil {
		archived, err := p.store.CountQuestions(ctx)
		if err != nil {
			return nil, err
		}
		resp.ArchivedQuestion = archived

		ingestion, err := p.store.GetIngestionStats(ctx)
		if err != nil {
			return nil, err
		}
		resp.TotalIngestions = ingestion.TotalIngestions
	}

	if len(p.diskPaths) > 0 {
		if usage, err := storage.DiskUsageBytes(p.diskPaths...); err == nil {
			resp.DiskUsageBytes = &usage
		} else {
			p.logger.Warn("failed to compute disk usage", zap.Error(err))
		}
	}
	return resp, nil
}

// Clear removes everything: the in-memory index, its persisted artifacts, and
// the question archive.
func (p *Pipeline) Clear(ctx context.Context) error {
	if err := p.index.Clear(); err != nil {
		return err
	}
	if p.store != nil {
		if err := p.store.DeleteAllQuestions(ctx); err != nil {
			return err
		}
	}
	return nil
}

// IndexSize returns the number of documents in the vector index.
func (p *Pipeline) IndexSize() int {
	return p.index.Size()
}
