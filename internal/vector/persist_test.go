package vector

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestPersistence_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Dimension: 4, Kind: KindFlat, Dir: dir}
	idx, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(3))
	b := batchOf(t, rng, 4, 12, "p")
	if _, err := idx.AddDocuments(b.vecs, b.metas, true); err != nil {
		t.Fatal(err)
	}
	probe := unitVec(4, rng)
	before, err := idx.Search(probe, 5, nil)
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != idx.Size() {
		t.Fatalf("size = %d, want %d", loaded.Size(), idx.Size())
	}
	for _, m := range b.metas {
		lp, ok := loaded.meta.lookup(m.ID)
		op, _ := idx.meta.lookup(m.ID)
		if !ok || lp != op {
			t.Errorf("identity map entry %q = %d,%v, want %d", m.ID, lp, ok, op)
		}
	}
	after, err := loaded.Search(probe, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("result count %d != %d", len(after), len(before))
	}
	for i := range before {
		if after[i].Metadata.ID != before[i].Metadata.ID {
			t.Errorf("rank %d: %s != %s", i, after[i].Metadata.ID, before[i].Metadata.ID)
		}
		if math.Abs(after[i].Score-before[i].Score) > 1e-5 {
			t.Errorf("rank %d score drift: %f vs %f", i, after[i].Score, before[i].Score)
		}
	}
}

func TestPersistence_ClusteredRoundTrip(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Dimension: 4, Kind: KindClustered, MinTrainingSamples: 4, NProbe: 4, Dir: dir}
	idx, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(4))
	b := batchOf(t, rng, 4, 16, "c")
	if _, err := idx.AddDocuments(b.vecs, b.metas, false); err != nil {
		t.Fatal(err)
	}

	loaded, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	st := loaded.Stats()
	if st.Kind != KindClustered || !st.Trained {
		t.Fatalf("stats after load = %+v", st)
	}
	results, err := loaded.Search(b.vecs[3], 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Metadata.ID != b.metas[3].ID {
		t.Errorf("self-query after load: %+v", results)
	}
}

func TestPersistence_DowngradeSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Dimension: 4, Kind: KindClustered, MinTrainingSamples: 100, Dir: dir}
	idx, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(5))
	b := batchOf(t, rng, 4, 3, "d")
	if _, err := idx.AddDocuments(b.vecs, b.metas, false); err != nil {
		t.Fatal(err)
	}
	if idx.Stats().Kind != KindFlat {
		t.Fatal("expected downgrade to flat")
	}

	// Reopening with the clustered config must keep the persisted flat kind.
	loaded, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Stats().Kind != KindFlat {
		t.Errorf("kind after restart = %s, want flat", loaded.Stats().Kind)
	}
}

func TestPersistence_NoPriorIndex(t *testing.T) {
	idx, err := Open(Options{Dimension: 4, Kind: KindFlat, Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 0 {
		t.Errorf("size = %d", idx.Size())
	}
}

func TestPersistence_TornPairIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Dimension: 4, Kind: KindFlat, Dir: dir}
	idx, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(6))
	b := batchOf(t, rng, 4, 2, "t")
	if _, err := idx.AddDocuments(b.vecs, b.metas, false); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, blobFile)); err != nil {
		t.Fatal(err)
	}

	_, err = Open(opts)
	var corrupt *CorruptIndexError
	if !errors.As(err, &corrupt) {
		t.Fatalf("torn pair must surface CorruptIndexError, got %v", err)
	}
}

func TestPersistence_MalformedSidecarIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Dimension: 4, Kind: KindFlat, Dir: dir}
	idx, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(7))
	b := batchOf(t, rng, 4, 2, "m")
	if _, err := idx.AddDocuments(b.vecs, b.metas, false); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, sidecarFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(opts)
	var corrupt *CorruptIndexError
	if !errors.As(err, &corrupt) {
		t.Fatalf("malformed sidecar must surface CorruptIndexError, got %v", err)
	}
}

func TestPersistence_DimensionMismatchIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	writeOpts := Options{Dimension: 4, Kind: KindFlat, Dir: dir}
	idx, err := New(writeOpts)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(8))
	b := batchOf(t, rng, 4, 2, "x")
	if _, err := idx.AddDocuments(b.vecs, b.metas, false); err != nil {
		t.Fatal(err)
	}

	_, err = Open(Options{Dimension: 8, Kind: KindFlat, Dir: dir})
	var corrupt *CorruptIndexError
	if !errors.As(err, &corrupt) {
		t.Fatalf("dimension mismatch must surface CorruptIndexError, got %v", err)
	}
}

func TestClear_RemovesArtifacts(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Dimension: 4, Kind: KindFlat, Dir: dir}
	idx, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(9))
	b := batchOf(t, rng, 4, 2, "r")
	if _, err := idx.AddDocuments(b.vecs, b.metas, false); err != nil {
		t.Fatal(err)
	}
	if err := idx.Clear(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{blobFile, sidecarFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s still present after clear", name)
		}
	}
	// A fresh open after clear starts empty, not corrupt.
	loaded, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 0 {
		t.Errorf("size = %d", loaded.Size())
	}
}
