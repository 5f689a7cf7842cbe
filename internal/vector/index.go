// Package vector implements the vector similarity index: incremental mutation
// with deduplication, exact or clustered nearest-neighbor search with metadata
// post-filtering, and crash-safe persistence.
package vector

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/toi/internal/models"
)

// Index kinds.
const (
	KindFlat      = "flat"
	KindClustered = "clustered"
)

// State is the lifecycle state of the index. Transitions are one-directional:
// a clustered index that cannot train on its first batch downgrades to flat
// for the lifetime of the instance and never re-clusters.
type State int

const (
	StateUninitialized State = iota
	StateFlat
	StateClusteredUntrained
	StateClusteredTrained
)

func (s State) String() string {
	switch s {
	case StateFlat:
		return "flat"
	case StateClusteredUntrained:
		return "clustered-untrained"
	case StateClusteredTrained:
		return "clustered-trained"
	default:
		return "uninitialized"
	}
}

// ErrShapeMismatch is returned when the vectors and metadata arguments to
// AddDocuments have different lengths. The call has no effect.
var ErrShapeMismatch = errors.New("vectors and metadata count mismatch")

// PersistenceError wraps an I/O failure while saving the index after a
// mutation. The in-memory mutation is NOT rolled back: callers must treat the
// index as at-least-applied-in-memory and re-read Size() for the committed
// count.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "index persistence failed: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// CorruptIndexError indicates unreadable or inconsistent persisted state at
// load time. It is fatal for that startup; loading never silently falls back
// to an empty index when artifacts are present.
type CorruptIndexError struct {
	Reason string
	Err    error
}

func (e *CorruptIndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt index: %s: %v", e.Reason, e.Err)
	}
	return "corrupt index: " + e.Reason
}

func (e *CorruptIndexError) Unwrap() error { return e.Err }

// Options configures an Index.
type Options struct {
	// Dimension is the embedding dimension D. Required.
	Dimension int
	// Kind is KindFlat (exact search) or KindClustered (partitioned search).
	Kind string
	// MinTrainingSamples is the cluster count and the minimum first-batch
	// size required to train a clustered index.
	MinTrainingSamples int
	// NProbe is how many clusters a clustered search probes.
	NProbe int
	// Dir is the directory for persisted artifacts.
	Dir string
}

// Match is a single ranked search hit.
type Match struct {
	Metadata models.QuestionMetadata
	Score    float64
}

// Stats describes the index for status reporting.
type Stats struct {
	Size      int
	Kind      string
	Dimension int
	Trained   bool
}

// Index owns the vector collection and its position-aligned metadata.
// All mutation happens under an exclusive lock; searches take a read lock
// because a concurrent write may reallocate vector storage and rotate the
// training state mid-flight.
type Index struct {
	mu   sync.RWMutex
	dim  int
	kind string
	dir  string

	minTrainingSamples int
	nprobe             int

	state     State
	vectors   []float32 // flattened, len == size*dim
	meta      *metadataStore
	centroids []float32 // k*dim when trained
	clusters  [][]int   // positions per centroid when trained
}

// New creates an empty index with the given options.
func New(opts Options) (*Index, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}
	kind := opts.Kind
	if kind == "" {
		kind = KindFlat
	}
	if kind != KindFlat && kind != KindClustered {
		return nil, fmt.Errorf("unknown index kind: %s (supported: %s, %s)", kind, KindFlat, KindClustered)
	}
	minTrain := opts.MinTrainingSamples
	if minTrain <= 0 {
		minTrain = 100
	}
	nprobe := opts.NProbe
	if nprobe <= 0 {
		nprobe = 10
	}
	return &Index{
		dim:                opts.Dimension,
		kind:               kind,
		dir:                opts.Dir,
		minTrainingSamples: minTrain,
		nprobe:             nprobe,
		state:              StateUninitialized,
		meta:               newMetadataStore(),
	}, nil
}

// Open creates an index and restores persisted state from opts.Dir if
// present. A missing artifact pair means no prior index; a torn or malformed
// pair is a *CorruptIndexError.
func Open(opts Options) (*Index, error) {
	idx, err := New(opts)
	if err != nil {
		return nil, err
	}
	if idx.dir == "" {
		return idx, nil
	}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

// AddDocuments appends vectors with their position-aligned metadata and
// persists the index. With deduplicate, pairs whose external ID (metadata ID,
// falling back to source ID, falling back to empty) already occupies a
// position are skipped; surviving IDs are registered to their final committed
// positions before the batch is appended, so skips within the same batch
// never invalidate a registration.
//
// The first sufficient batch trains a clustered index; an undersized first
// batch permanently downgrades the instance to flat. Buffering records until
// enough accumulate would avoid the downgrade for small initial ingests, but
// that changes observable state transitions; the downgrade is kept.
//
// Returns the number of vectors appended. On persistence failure the count
// and a *PersistenceError are both returned; in-memory state is not rolled
// back.
func (x *Index) AddDocuments(vecs [][]float32, metas []models.QuestionMetadata, deduplicate bool) (int, error) {
	if len(vecs) != len(metas) {
		return 0, fmt.Errorf("%w: %d vectors, %d metadata", ErrShapeMismatch, len(vecs), len(metas))
	}
	if len(vecs) == 0 {
		return 0, nil
	}
	for i, v := range vecs {
		if len(v) != x.dim {
			return 0, fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), x.dim)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.materializeLocked()

	base := x.meta.len()
	survivors := make([]int, 0, len(vecs))
	for i := range metas {
		extID := metas[i].ExternalID()
		if deduplicate {
			if _, exists := x.meta.lookup(extID); exists {
				continue
			}
		}
		// Prospective position: current size plus offset within survivors.
		x.meta.register(extID, base+len(survivors))
		survivors = append(survivors, i)
	}
	if len(survivors) == 0 {
		return 0, nil
	}

	flat := make([]float32, 0, len(survivors)*x.dim)
	for _, i := range survivors {
		flat = append(flat, vecs[i]...)
	}

	if x.state == StateClusteredUntrained {
		if len(survivors) >= x.minTrainingSamples {
			x.centroids = trainCentroids(flat, x.dim, x.minTrainingSamples, kmeansMaxIterations)
			x.clusters = make([][]int, x.minTrainingSamples)
			x.state = StateClusteredTrained
		} else {
			// Not enough samples to ever serve clustered queries; fall back
			// to exact search for the lifetime of this instance.
			x.kind = KindFlat
			x.state = StateFlat
			x.centroids = nil
			x.clusters = nil
		}
	}

	x.vectors = append(x.vectors, flat...)
	for n, i := range survivors {
		pos := base + n
		x.meta.append(metas[i])
		if x.state == StateClusteredTrained {
			c := assignCluster(x.vectors[pos*x.dim:(pos+1)*x.dim], x.centroids, x.dim)
			x.clusters[c] = append(x.clusters[c], pos)
		}
	}

	count := len(survivors)
	if x.dir != "" {
		if err := x.saveLocked(); err != nil {
			return count, &PersistenceError{Err: err}
		}
	}
	return count, nil
}

// materializeLocked moves an uninitialized index into its working state on
// first mutation.
func (x *Index) materializeLocked() {
	if x.state != StateUninitialized {
		return
	}
	if x.kind == KindClustered {
		x.state = StateClusteredUntrained
	} else {
		x.state = StateFlat
	}
}

// Size returns the number of indexed vectors.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.meta.len()
}

// Stats returns index statistics.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return Stats{
		Size:      x.meta.len(),
		Kind:      x.kind,
		Dimension: x.dim,
		Trained:   x.state == StateFlat || x.state == StateClusteredTrained,
	}
}

// AllMetadata returns a copy of every metadata record in position order.
func (x *Index) AllMetadata() []models.QuestionMetadata {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]models.QuestionMetadata, x.meta.len())
	copy(out, x.meta.records)
	return out
}

// Clear resets the index to uninitialized, empties vectors, metadata, and the
// identity map, and deletes persisted artifacts. Irreversible.
func (x *Index) Clear() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.state = StateUninitialized
	x.vectors = nil
	x.centroids = nil
	x.clusters = nil
	x.meta = newMetadataStore()
	if x.dir == "" {
		return nil
	}
	return x.removeArtifacts()
}
