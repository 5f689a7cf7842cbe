package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/toi/internal/models"
	"github.com/hyperjump/toi/pkg/utils"
)

// Chunking strategies. Question-based is the default: exam questions are
// short and self-contained, so one chunk per question preserves exact
// matching.
const (
	StrategyQuestion = "question"
	StrategyTopic    = "topic"
	StrategyHybrid   = "hybrid"
)

// Chunk is a unit of text to embed, with the metadata that travels with it
// into the vector index.
type Chunk struct {
	ID       string
	Text     string
	SourceID string
	Metadata models.QuestionMetadata
}

// Chunker turns processed documents into embedding-ready chunks.
type Chunker struct {
	maxChunkSize int
}

// NewChunker creates a chunker. maxChunkSize caps chunk length in characters;
// values <= 0 use 512.
func NewChunker(maxChunkSize int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 512
	}
	return &Chunker{maxChunkSize: maxChunkSize}
}

// Chunk applies the named strategy to the documents.
func (c *Chunker) Chunk(docs []ProcessedDocument, strategy string) ([]Chunk, error) {
	switch strategy {
	case StrategyQuestion, "":
		return c.chunkByQuestion(docs), nil
	case StrategyTopic:
		return c.chunkByTopic(docs), nil
	case StrategyHybrid:
		return c.chunkHybrid(docs), nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy: %q", strategy)
	}
}

// chunkByQuestion emits one chunk per question.
func (c *Chunker) chunkByQuestion(docs []ProcessedDocument) []Chunk {
	chunks := make([]Chunk, 0, len(docs))
	for _, doc := range docs {
		chunks = append(chunks, Chunk{
			ID:       "chunk_" + doc.ID,
			Text:     utils.Truncate(doc.Text, c.maxChunkSize-3),
			SourceID: doc.ID,
			Metadata: doc.Metadata,
		})
	}
	return chunks
}

// chunkByTopic combines questions sharing a topic into larger chunks,
// splitting when a chunk would exceed the size cap.
func (c *Chunker) chunkByTopic(docs []ProcessedDocument) []Chunk {
	groups := make(map[string][]ProcessedDocument)
	var order []string
	for _, doc := range docs {
		topic := doc.Metadata.Topic
		if topic == "" {
			topic = "General"
		}
		if _, ok := groups[topic]; !ok {
			order = append(order, topic)
		}
		groups[topic] = append(groups[topic], doc)
	}

	var chunks []Chunk
	emit := func(topic, text string, ids []string) {
		if text == "" {
			return
		}
		sourceID := strings.Join(ids, ",")
		chunks = append(chunks, Chunk{
			ID:       "topic_" + topic + "_" + strconv.Itoa(len(chunks)),
			Text:     strings.Trim(text, " |"),
			SourceID: sourceID,
			Metadata: models.QuestionMetadata{
				ID:       "topic_" + topic + "_" + strconv.Itoa(len(chunks)),
				SourceID: sourceID,
				Topic:    topic,
				Text:     strings.Trim(text, " |"),
			},
		})
	}

	for _, topic := range order {
		combined := ""
		var ids []string
		for _, doc := range groups[topic] {
			if len(combined)+len(doc.Text)+3 > c.maxChunkSize && combined != "" {
				emit(topic, combined, ids)
				combined = ""
				ids = nil
			}
			combined += doc.Text + " | "
			ids = append(ids, doc.ID)
		}
		emit(topic, combined, ids)
	}
	return chunks
}

// chunkHybrid prefixes each question with its metadata so the embedding
// captures topic, type, and marks alongside the text.
func (c *Chunker) chunkHybrid(docs []ProcessedDocument) []Chunk {
	chunks := make([]Chunk, 0, len(docs))
	for _, doc := range docs {
		var parts []string
		if doc.Metadata.Topic != "" {
			parts = append(parts, "Topic: "+doc.Metadata.Topic)
		}
		if doc.Metadata.Type != "" {
			parts = append(parts, "Type: "+doc.Metadata.Type)
		}
		if doc.Metadata.Marks != nil {
			parts = append(parts, "Marks: "+strconv.Itoa(*doc.Metadata.Marks))
		}
		text := doc.Text
		if len(parts) > 0 {
			text = "[" + strings.Join(parts, " | ") + "] " + text
		}
		chunks = append(chunks, Chunk{
			ID:       "hybrid_" + doc.ID,
			Text:     utils.Truncate(text, c.maxChunkSize-3),
			SourceID: doc.ID,
			Metadata: doc.Metadata,
		})
	}
	return chunks
}
