// Package ingest prepares exam question documents for embedding: text
// cleanup, content hashing, and chunking.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/hyperjump/toi/internal/models"
)

// ProcessedDocument is a cleaned question ready for chunking.
type ProcessedDocument struct {
	ID          string
	Text        string
	ContentHash string
	Metadata    models.QuestionMetadata
}

// CleanText trims, collapses whitespace runs to single spaces, and strips
// control characters.
func CleanText(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r):
			// drop
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

// ContentHash returns a short deterministic hash of the cleaned text, used
// for content-level deduplication.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// Process cleans and normalizes documents. Documents whose text is empty
// after cleaning are skipped; the second return value is the skip count.
// Documents without an ID are assigned one.
func Process(documents []models.QuestionDocument) ([]ProcessedDocument, int) {
	processed := make([]ProcessedDocument, 0, len(documents))
	skipped := 0
	now := time.Now().UTC().Format(time.RFC3339)

	for _, doc := range documents {
		doc.Normalize()
		cleaned := CleanText(doc.Text)
		if cleaned == "" {
			skipped++
			continue
		}
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		processed = append(processed, ProcessedDocument{
			ID:          id,
			Text:        cleaned,
			ContentHash: ContentHash(cleaned),
			Metadata: models.QuestionMetadata{
				ID:                 id,
				SourceID:           id,
				Text:               cleaned,
				Topic:              doc.Topic,
				Type:               doc.Type,
				Marks:              doc.Marks,
				PaperID:            doc.PaperID,
				PageNumber:         doc.PageNumber,
				MainQuestionNumber: doc.MainQuestionNumber,
				SubQuestionLabel:   doc.SubQuestionLabel,
				ContentHash:        ContentHash(cleaned),
				IngestedAt:         now,
			},
		})
	}
	return processed, skipped
}
