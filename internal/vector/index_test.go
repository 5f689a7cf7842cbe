package vector

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/hyperjump/toi/internal/models"
)

func newFlatIndex(t *testing.T, dim int) *Index {
	t.Helper()
	idx, err := New(Options{Dimension: dim, Kind: KindFlat})
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func meta(id string) models.QuestionMetadata {
	return models.QuestionMetadata{ID: id, Text: "question " + id}
}

// unitVec returns a random unit-normalized vector.
func unitVec(dim int, rng *rand.Rand) []float32 {
	v := make([]float32, dim)
	var sum float64
	for i := range v {
		v[i] = float32(rng.NormFloat64())
		sum += float64(v[i] * v[i])
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}

func TestAddDocuments_ShapeMismatch(t *testing.T) {
	idx := newFlatIndex(t, 2)
	_, err := idx.AddDocuments([][]float32{{1, 0}}, nil, false)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if idx.Size() != 0 {
		t.Error("rejected call must have no side effects")
	}
}

func TestAddDocuments_EmptyInput(t *testing.T) {
	idx := newFlatIndex(t, 2)
	n, err := idx.AddDocuments(nil, nil, true)
	if err != nil || n != 0 {
		t.Fatalf("empty input: n=%d err=%v", n, err)
	}
}

func TestAddDocuments_AlignmentInvariant(t *testing.T) {
	idx := newFlatIndex(t, 2)
	batches := [][]string{{"a", "b"}, {"c"}, {"d", "e", "f"}}
	want := []string{}
	for _, ids := range batches {
		vecs := make([][]float32, len(ids))
		metas := make([]models.QuestionMetadata, len(ids))
		for i, id := range ids {
			vecs[i] = []float32{1, 0}
			metas[i] = meta(id)
			want = append(want, id)
		}
		if _, err := idx.AddDocuments(vecs, metas, false); err != nil {
			t.Fatal(err)
		}
	}
	if idx.Size() != len(want) {
		t.Fatalf("size = %d, want %d", idx.Size(), len(want))
	}
	all := idx.AllMetadata()
	if len(all) != len(want) {
		t.Fatalf("metadata count = %d", len(all))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("metadata[%d].ID = %s, want %s", i, all[i].ID, id)
		}
	}
	if len(idx.vectors) != idx.Size()*idx.dim {
		t.Errorf("vectors length %d misaligned with size %d", len(idx.vectors), idx.Size())
	}
}

func TestAddDocuments_DedupIdempotence(t *testing.T) {
	idx := newFlatIndex(t, 2)
	vecs := [][]float32{{1, 0}, {0, 1}}
	metas := []models.QuestionMetadata{meta("q1"), meta("q2")}

	n, err := idx.AddDocuments(vecs, metas, true)
	if err != nil || n != 2 {
		t.Fatalf("first add: n=%d err=%v", n, err)
	}
	n, err = idx.AddDocuments(vecs, metas, true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second add returned %d, want 0", n)
	}
	if idx.Size() != 2 {
		t.Errorf("size after duplicate ingest = %d, want 2", idx.Size())
	}
}

func TestAddDocuments_DedupWithinBatch(t *testing.T) {
	idx := newFlatIndex(t, 2)
	vecs := [][]float32{{1, 0}, {1, 0}, {0, 1}}
	metas := []models.QuestionMetadata{meta("dup"), meta("dup"), meta("other")}
	n, err := idx.AddDocuments(vecs, metas, true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2 (in-batch duplicate skipped)", n)
	}
	// Registration must reflect final committed positions: "other" survived
	// the skip and must resolve to its own metadata.
	pos, ok := idx.meta.lookup("other")
	if !ok {
		t.Fatal("other not registered")
	}
	if idx.meta.get(pos).ID != "other" {
		t.Errorf("identity map points at %q, want other", idx.meta.get(pos).ID)
	}
}

func TestAddDocuments_DedupSourceIDFallback(t *testing.T) {
	idx := newFlatIndex(t, 2)
	m := models.QuestionMetadata{SourceID: "src-7", Text: "t"}
	if _, err := idx.AddDocuments([][]float32{{1, 0}}, []models.QuestionMetadata{m}, true); err != nil {
		t.Fatal(err)
	}
	n, err := idx.AddDocuments([][]float32{{1, 0}}, []models.QuestionMetadata{m}, true)
	if err != nil || n != 0 {
		t.Errorf("source_id dedup failed: n=%d err=%v", n, err)
	}
}

func TestAddDocuments_DimensionMismatch(t *testing.T) {
	idx := newFlatIndex(t, 3)
	_, err := idx.AddDocuments([][]float32{{1, 0}}, []models.QuestionMetadata{meta("a")}, false)
	if err == nil {
		t.Fatal("wrong-dimension vector should be rejected")
	}
	if idx.Size() != 0 {
		t.Error("no partial effect on rejection")
	}
}

func TestTrainingFallback_Determinism(t *testing.T) {
	const minSamples = 8
	idx, err := New(Options{Dimension: 4, Kind: KindClustered, MinTrainingSamples: minSamples, NProbe: 2})
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))

	// Undersized first batch: permanent downgrade to flat.
	small := batchOf(t, rng, 4, minSamples-1, "s")
	if _, err := idx.AddDocuments(small.vecs, small.metas, false); err != nil {
		t.Fatal(err)
	}
	if idx.Stats().Kind != KindFlat {
		t.Fatalf("kind after undersized batch = %s, want flat", idx.Stats().Kind)
	}

	// A later large batch must not revert the state to clustered.
	large := batchOf(t, rng, 4, minSamples*2, "l")
	if _, err := idx.AddDocuments(large.vecs, large.metas, false); err != nil {
		t.Fatal(err)
	}
	st := idx.Stats()
	if st.Kind != KindFlat || !st.Trained {
		t.Errorf("stats after large batch = %+v, want flat/trained", st)
	}
}

func TestTraining_SufficientFirstBatch(t *testing.T) {
	const minSamples = 8
	idx, err := New(Options{Dimension: 4, Kind: KindClustered, MinTrainingSamples: minSamples, NProbe: minSamples})
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(2))
	b := batchOf(t, rng, 4, minSamples*3, "q")
	if _, err := idx.AddDocuments(b.vecs, b.metas, false); err != nil {
		t.Fatal(err)
	}
	st := idx.Stats()
	if st.Kind != KindClustered || !st.Trained {
		t.Fatalf("stats = %+v, want clustered/trained", st)
	}
	// With nprobe == cluster count the partitioned search is exhaustive:
	// an indexed vector must come back at rank 0 with score ~1.
	results, err := idx.Search(b.vecs[5], 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || results[0].Metadata.ID != b.metas[5].ID {
		t.Errorf("self-query rank 0 = %+v", results)
	}
	if math.Abs(results[0].Score-1.0) > 1e-5 {
		t.Errorf("self-similarity score = %f, want ~1.0", results[0].Score)
	}
}

type batch struct {
	vecs  [][]float32
	metas []models.QuestionMetadata
}

func batchOf(t *testing.T, rng *rand.Rand, dim, n int, prefix string) batch {
	t.Helper()
	b := batch{vecs: make([][]float32, n), metas: make([]models.QuestionMetadata, n)}
	for i := 0; i < n; i++ {
		b.vecs[i] = unitVec(dim, rng)
		b.metas[i] = meta(prefix + string(rune('0'+i%10)) + "-" + string(rune('a'+i/10)))
	}
	return b
}

func TestClear(t *testing.T) {
	idx := newFlatIndex(t, 2)
	if _, err := idx.AddDocuments([][]float32{{1, 0}}, []models.QuestionMetadata{meta("a")}, true); err != nil {
		t.Fatal(err)
	}
	if err := idx.Clear(); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 0 {
		t.Errorf("size after clear = %d", idx.Size())
	}
	if _, ok := idx.meta.lookup("a"); ok {
		t.Error("identity map should be empty after clear")
	}
	// The identity map no longer knows "a", so it can be re-added.
	n, err := idx.AddDocuments([][]float32{{1, 0}}, []models.QuestionMetadata{meta("a")}, true)
	if err != nil || n != 1 {
		t.Errorf("re-add after clear: n=%d err=%v", n, err)
	}
}
