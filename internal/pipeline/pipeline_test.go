package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/toi/internal/embedding"
	"github.com/hyperjump/toi/internal/ingest"
	"github.com/hyperjump/toi/internal/models"
	"github.com/hyperjump/toi/internal/storage"
	"github.com/hyperjump/toi/internal/vector"
)

const testDim = 32

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	index, err := vector.New(vector.Options{Dimension: testDim, Kind: vector.KindFlat})
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(embedding.NewMockEmbedder(testDim), index, store, Options{
		ChunkingStrategy: ingest.StrategyQuestion,
		ModelName:        "mock",
	}, nil)
}

func question(id, text, topic string) models.QuestionDocument {
	return models.QuestionDocument{ID: id, Text: text, Topic: topic}
}

func TestPipeline_IngestAndQuery(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	resp, err := p.Ingest(ctx, []models.QuestionDocument{
		question("q1", "Define entropy and state its SI unit.", "Thermo"),
		question("q2", "State Ohm's law for a metallic conductor.", "Electricity"),
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "success" || resp.DocumentsIngested != 2 {
		t.Errorf("ingest response = %+v", resp)
	}
	if resp.IndexSize != 2 {
		t.Errorf("index size = %d", resp.IndexSize)
	}

	qresp, err := p.Query(ctx, "Define entropy and state its SI unit.", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(qresp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(qresp.Results))
	}
	// Exact text match embeds identically, so q1 must rank first.
	if qresp.Results[0].ID != "q1" {
		t.Errorf("top result = %s, want q1", qresp.Results[0].ID)
	}
	if qresp.TotalDocuments != 2 {
		t.Errorf("total documents = %d", qresp.TotalDocuments)
	}
}

func TestPipeline_IngestDeduplicates(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	docs := []models.QuestionDocument{question("q1", "Define entropy.", "Thermo")}
	if _, err := p.Ingest(ctx, docs, true); err != nil {
		t.Fatal(err)
	}
	resp, err := p.Ingest(ctx, docs, true)
	if err != nil {
		t.Fatal(err)
	}
	if resp.DocumentsIngested != 0 {
		t.Errorf("re-ingest added %d, want 0", resp.DocumentsIngested)
	}
	if p.IndexSize() != 1 {
		t.Errorf("index size = %d, want 1", p.IndexSize())
	}
}

func TestPipeline_IngestAllInvalid(t *testing.T) {
	p := newTestPipeline(t)
	resp, err := p.Ingest(context.Background(), []models.QuestionDocument{
		{ID: "q1", Text: "   "},
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "warning" || resp.DocumentsIngested != 0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestPipeline_QueryEmptyIndex(t *testing.T) {
	p := newTestPipeline(t)
	resp, err := p.Query(context.Background(), "anything", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 || resp.Message == "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestPipeline_QueryWithFilter(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, []models.QuestionDocument{
		question("q1", "Define entropy.", "Thermo"),
		question("q2", "State Ohm's law.", "Electricity"),
	}, true); err != nil {
		t.Fatal(err)
	}

	resp, err := p.Query(ctx, "Define entropy.", 5, &models.MetadataFilter{Topics: []string{"Electricity"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "q2" {
		t.Errorf("filtered results = %+v", resp.Results)
	}
}

func TestPipeline_Context(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, []models.QuestionDocument{
		question("q1", "Define entropy.", "Thermo"),
	}, true); err != nil {
		t.Fatal(err)
	}

	out, err := p.Context(ctx, "Define entropy.", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "[1] Topic: Thermo") {
		t.Errorf("context = %q", out)
	}
	if !strings.Contains(out, "Marks: N/A") {
		t.Errorf("missing marks fallback: %q", out)
	}
	if !strings.Contains(out, "Question: Define entropy.") {
		t.Errorf("missing question line: %q", out)
	}

	empty := newTestPipeline(t)
	out, err = empty.Context(ctx, "anything", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Errorf("empty index context = %q", out)
	}
}

func TestPipeline_IngestFile(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()

	wrapped := filepath.Join(dir, "wrapped.json")
	if err := os.WriteFile(wrapped, []byte(`{"questions":[{"id":"q1","text":"Define entropy.","topic":"Thermo"}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	resp, err := p.IngestFile(ctx, wrapped)
	if err != nil {
		t.Fatal(err)
	}
	if resp.DocumentsIngested != 1 {
		t.Errorf("wrapped file ingested %d, want 1", resp.DocumentsIngested)
	}

	bare := filepath.Join(dir, "bare.json")
	if err := os.WriteFile(bare, []byte(`[{"id":"q2","text":"State Ohm's law."}]`), 0644); err != nil {
		t.Fatal(err)
	}
	resp, err = p.IngestFile(ctx, bare)
	if err != nil {
		t.Fatal(err)
	}
	if resp.DocumentsIngested != 1 || p.IndexSize() != 2 {
		t.Errorf("bare file ingested %d, index size %d", resp.DocumentsIngested, p.IndexSize())
	}

	if _, err := p.IngestFile(ctx, filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := p.IngestFile(ctx, bad); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestPipeline_StatsAndClear(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, []models.QuestionDocument{
		question("q1", "Define entropy.", "Thermo"),
	}, true); err != nil {
		t.Fatal(err)
	}

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 1 || stats.ArchivedQuestion != 1 || stats.TotalIngestions != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.IndexKind != vector.KindFlat || stats.Dimension != testDim {
		t.Errorf("index stats = %+v", stats)
	}

	if err := p.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	stats, err = p.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 0 || stats.ArchivedQuestion != 0 {
		t.Errorf("stats after clear = %+v", stats)
	}
}
