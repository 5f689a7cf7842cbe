// Package models defines core data structures for questions, filters, and API payloads.
package models

// QuestionDocument is the ingestion input for a single exam question.
// Both snake_case and the frontend's camelCase field names are accepted.
type QuestionDocument struct {
	ID                 string `json:"id"`
	Text               string `json:"text"`
	Topic              string `json:"topic,omitempty"`
	Type               string `json:"type,omitempty"`
	Marks              *int   `json:"marks,omitempty"`
	PaperID            string `json:"paper_id,omitempty"`
	PageNumber         *int   `json:"page_number,omitempty"`
	MainQuestionNumber string `json:"main_question_number,omitempty"`
	SubQuestionLabel   string `json:"sub_question_label,omitempty"`

	// Frontend aliases; Normalize folds them into the canonical fields.
	FullText      string `json:"fullText,omitempty"`
	SourcePaperID string `json:"sourcePaperId,omitempty"`
	PageNumberAlt *int   `json:"pageNumber,omitempty"`
}

// Normalize folds alias fields into canonical ones and applies defaults.
func (q *QuestionDocument) Normalize() {
	if q.Text == "" && q.FullText != "" {
		q.Text = q.FullText
	}
	if q.PaperID == "" && q.SourcePaperID != "" {
		q.PaperID = q.SourcePaperID
	}
	if q.PageNumber == nil && q.PageNumberAlt != nil {
		q.PageNumber = q.PageNumberAlt
	}
	if q.Topic == "" {
		q.Topic = "General"
	}
	if q.Type == "" {
		q.Type = "Unknown"
	}
}

// QuestionMetadata is the per-vector metadata record stored position-aligned
// with the vector index. Fields that may legitimately be absent are pointers.
type QuestionMetadata struct {
	ID                 string `json:"id"`
	SourceID           string `json:"source_id,omitempty"`
	Text               string `json:"text"`
	Topic              string `json:"topic"`
	Type               string `json:"type"`
	Marks              *int   `json:"marks,omitempty"`
	PaperID            string `json:"paper_id,omitempty"`
	PageNumber         *int   `json:"page_number,omitempty"`
	MainQuestionNumber string `json:"main_question_number,omitempty"`
	SubQuestionLabel   string `json:"sub_question_label,omitempty"`
	ContentHash        string `json:"content_hash,omitempty"`
	IngestedAt         string `json:"ingested_at,omitempty"`
}

// ExternalID returns the identifier used for deduplication: the record ID,
// falling back to the source document ID, falling back to empty.
func (m *QuestionMetadata) ExternalID() string {
	if m.ID != "" {
		return m.ID
	}
	return m.SourceID
}
