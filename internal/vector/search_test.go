package vector

import (
	"math"
	"testing"

	"github.com/hyperjump/toi/internal/models"
)

func intPtr(v int) *int { return &v }

func TestSearch_EmptyIndex(t *testing.T) {
	idx := newFlatIndex(t, 2)
	for _, k := range []int{1, 5, 100} {
		results, err := idx.Search([]float32{1, 0}, k, nil)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		if len(results) != 0 {
			t.Errorf("k=%d: empty index returned %d results", k, len(results))
		}
	}
}

func TestSearch_InvalidK(t *testing.T) {
	idx := newFlatIndex(t, 2)
	if _, err := idx.Search([]float32{1, 0}, 0, nil); err == nil {
		t.Error("k=0 should be rejected")
	}
}

func TestSearch_SelfSimilarityRankZero(t *testing.T) {
	idx := newFlatIndex(t, 2)
	vecs := [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}}
	metas := []models.QuestionMetadata{meta("a"), meta("b"), meta("c")}
	if _, err := idx.AddDocuments(vecs, metas, false); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search([]float32{0.6, 0.8}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Metadata.ID != "c" {
		t.Errorf("rank 0 = %s, want c", results[0].Metadata.ID)
	}
	if math.Abs(results[0].Score-1.0) > 1e-5 {
		t.Errorf("self-similarity = %f, want ~1.0", results[0].Score)
	}
	for _, r := range results[1:] {
		if r.Score > results[0].Score {
			t.Errorf("ranking not descending: %v", results)
		}
	}
}

// The worked two-record scenario: an unfiltered query returns the nearest
// record; a marks filter excludes it and surfaces the lower-ranked survivor.
func TestSearch_ExampleScenario(t *testing.T) {
	idx := newFlatIndex(t, 2)
	vecs := [][]float32{{1, 0}, {0, 1}}
	metas := []models.QuestionMetadata{
		{ID: "q1", Topic: "Thermo", Marks: intPtr(5)},
		{ID: "q2", Topic: "Optics", Marks: intPtr(10)},
	}
	if _, err := idx.AddDocuments(vecs, metas, true); err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search([]float32{1, 0}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Metadata.ID != "q1" {
		t.Fatalf("unfiltered: %+v", results)
	}
	if math.Abs(results[0].Score-1.0) > 1e-5 {
		t.Errorf("q1 score = %f", results[0].Score)
	}

	results, err = idx.Search([]float32{1, 0}, 1, &models.MetadataFilter{MinMarks: intPtr(8)})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Metadata.ID != "q2" {
		t.Fatalf("filtered: %+v", results)
	}
	if math.Abs(results[0].Score) > 1e-5 {
		t.Errorf("q2 score = %f, want ~0.0", results[0].Score)
	}
}

func TestSearch_FilterConjunction(t *testing.T) {
	idx := newFlatIndex(t, 2)
	vecs := [][]float32{{1, 0}, {0, 1}}
	metas := []models.QuestionMetadata{
		{ID: "m", Topic: "Mechanics", Type: "MCQ", Marks: intPtr(7)},
		{ID: "n", Topic: "Mechanics", Type: "Long Answer"},
	}
	if _, err := idx.AddDocuments(vecs, metas, true); err != nil {
		t.Fatal(err)
	}

	// Record without marks passes a marks filter; type clause still applies.
	results, err := idx.Search([]float32{1, 0}, 2, &models.MetadataFilter{
		Topics:   []string{"mech"},
		MinMarks: intPtr(8),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Metadata.ID != "n" {
		t.Fatalf("marks-absent record should survive, marks=7 should not: %+v", results)
	}
}

// Post-filtering over a fixed 3k over-fetch can miss matching records that
// rank below the candidate window. This documents the boundary rather than
// asserting exact recall.
func TestSearch_PostFilterRecallGap(t *testing.T) {
	idx := newFlatIndex(t, 2)

	// 30 near-query records without the wanted topic, then one matching
	// record nearly orthogonal to the query.
	var vecs [][]float32
	var metas []models.QuestionMetadata
	for i := 0; i < 30; i++ {
		angle := 0.001 * float64(i+1)
		vecs = append(vecs, []float32{float32(math.Cos(angle)), float32(math.Sin(angle))})
		metas = append(metas, models.QuestionMetadata{ID: "near-" + string(rune('a'+i)), Topic: "Common"})
	}
	vecs = append(vecs, []float32{0, 1})
	metas = append(metas, models.QuestionMetadata{ID: "rare", Topic: "Rare"})
	if _, err := idx.AddDocuments(vecs, metas, false); err != nil {
		t.Fatal(err)
	}

	// k=1 fetches min(3, size)=3 raw candidates; all three are Common, so
	// the matching Rare record is never seen even though it exists.
	results, err := idx.Search([]float32{1, 0}, 1, &models.MetadataFilter{Topics: []string{"Rare"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected the recall gap to hide the rare record, got %+v", results)
	}

	// A wider k brings it back into the candidate window.
	results, err = idx.Search([]float32{1, 0}, 15, &models.MetadataFilter{Topics: []string{"Rare"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Metadata.ID != "rare" {
		t.Fatalf("wider over-fetch should find the record: %+v", results)
	}
}

func TestSearch_KLargerThanSize(t *testing.T) {
	idx := newFlatIndex(t, 2)
	if _, err := idx.AddDocuments([][]float32{{1, 0}}, []models.QuestionMetadata{meta("only")}, false); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search([]float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	idx := newFlatIndex(t, 3)
	if _, err := idx.Search([]float32{1, 0}, 1, nil); err == nil {
		t.Error("wrong-dimension query should be rejected")
	}
}
