package models

import "fmt"

// IngestRequest is the payload for POST /api/v1/ingest.
type IngestRequest struct {
	Questions []QuestionDocument `json:"questions"`
}

// Validate checks the ingest request and normalizes each question.
func (r *IngestRequest) Validate() error {
	if len(r.Questions) == 0 {
		return fmt.Errorf("no questions provided")
	}
	for i := range r.Questions {
		r.Questions[i].Normalize()
		if r.Questions[i].Text == "" {
			return fmt.Errorf("question %d has empty text", i)
		}
	}
	return nil
}

// IngestResponse is the payload returned by POST /api/v1/ingest.
type IngestResponse struct {
	Status             string `json:"status"`
	DocumentsIngested  int    `json:"documents_ingested"`
	DocumentsProcessed int    `json:"documents_processed"`
	ChunksCreated      int    `json:"chunks_created"`
	IndexSize          int    `json:"index_size"`
	ProcessingTimeMS   int64  `json:"processing_time_ms"`
	Message            string `json:"message,omitempty"`
}

// QueryRequest is the payload for POST /api/v1/query.
type QueryRequest struct {
	Query   string          `json:"query"`
	TopK    int             `json:"top_k,omitempty"`
	Filters *MetadataFilter `json:"filters,omitempty"`
}

// Validate ensures the query is non-empty and clamps TopK into [1, maxTopK].
// A zero TopK gets defaultTopK.
func (r *QueryRequest) Validate(defaultTopK, maxTopK int) error {
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.TopK <= 0 {
		r.TopK = defaultTopK
	}
	if r.TopK > maxTopK {
		r.TopK = maxTopK
	}
	return nil
}

// QueryResult is a single ranked hit.
type QueryResult struct {
	ID                 string  `json:"id"`
	Text               string  `json:"text"`
	Topic              string  `json:"topic"`
	Type               string  `json:"type"`
	Marks              *int    `json:"marks,omitempty"`
	PaperID            string  `json:"paper_id,omitempty"`
	Score              float64 `json:"score"`
	PageNumber         *int    `json:"page_number,omitempty"`
	MainQuestionNumber string  `json:"main_question_number,omitempty"`
	SubQuestionLabel   string  `json:"sub_question_label,omitempty"`
}

// QueryResponse is the payload returned by POST /api/v1/query.
type QueryResponse struct {
	Results        []QueryResult `json:"results"`
	QueryTimeMS    float64       `json:"query_time_ms"`
	TotalDocuments int           `json:"total_documents"`
	Message        string        `json:"message,omitempty"`
}

// StatsResponse is the payload returned by GET /api/v1/stats.
type StatsResponse struct {
	TotalDocuments   int    `json:"total_documents"`
	IndexKind        string `json:"index_kind"`
	Dimension        int    `json:"dimension"`
	Trained          bool   `json:"trained"`
	ArchivedQuestion int64  `json:"archived_questions"`
	TotalIngestions  int64  `json:"total_ingestions"`
	DiskUsageBytes   *int64 `json:"disk_usage_bytes,omitempty"`
	EmbeddingModel   string `json:"embedding_model,omitempty"`
}
