package vector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/hyperjump/toi/internal/models"
)

// Persisted artifacts: a zstd-compressed vector blob and a JSON sidecar with
// metadata, the identity map, the declared index kind, and the dimension.
// Both are written to temporary paths and renamed into place so a load never
// observes a torn pair.
const (
	blobFile    = "questions.index"
	sidecarFile = "questions_metadata.json"
	tmpSuffix   = ".tmp"
)

const blobMagic uint32 = 0x544f4931 // "TOI1"

type sidecar struct {
	Metadata    []models.QuestionMetadata `json:"metadata"`
	IdentityMap map[string]int            `json:"identity_map"`
	IndexKind   string                    `json:"index_kind"`
	Dimension   int                       `json:"dimension"`
}

// saveLocked writes both artifacts. Caller holds the write lock.
func (x *Index) saveLocked() error {
	if err := os.MkdirAll(x.dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	blobPath := filepath.Join(x.dir, blobFile)
	if err := x.writeBlob(blobPath + tmpSuffix); err != nil {
		return err
	}
	if err := os.Rename(blobPath+tmpSuffix, blobPath); err != nil {
		return fmt.Errorf("commit vector blob: %w", err)
	}

	sidecarPath := filepath.Join(x.dir, sidecarFile)
	if err := x.writeSidecar(sidecarPath + tmpSuffix); err != nil {
		return err
	}
	if err := os.Rename(sidecarPath+tmpSuffix, sidecarPath); err != nil {
		return fmt.Errorf("commit metadata sidecar: %w", err)
	}
	return nil
}

func (x *Index) writeBlob(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vector blob: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create compressor: %w", err)
	}
	w := bufio.NewWriter(zw)

	count := x.meta.len()
	ncentroids := len(x.centroids) / x.dim
	for _, v := range []uint32{blobMagic, uint32(x.dim), uint32(count), uint32(ncentroids)} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write blob header: %w", err)
		}
	}
	if err := writeFloat32s(w, x.centroids); err != nil {
		return fmt.Errorf("write centroids: %w", err)
	}
	if err := writeFloat32s(w, x.vectors); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush blob: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync blob: %w", err)
	}
	return nil
}

func (x *Index) writeSidecar(path string) error {
	sc := sidecar{
		Metadata:    x.meta.records,
		IdentityMap: x.meta.byID,
		IndexKind:   x.kind,
		Dimension:   x.dim,
	}
	data, err := json.Marshal(&sc)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

// load restores persisted state. Both artifacts missing means no prior index
// (the index stays empty). Anything else inconsistent is a *CorruptIndexError.
func (x *Index) load() error {
	blobPath := filepath.Join(x.dir, blobFile)
	sidecarPath := filepath.Join(x.dir, sidecarFile)

	_, blobErr := os.Stat(blobPath)
	_, sidecarErr := os.Stat(sidecarPath)
	blobMissing := os.IsNotExist(blobErr)
	sidecarMissing := os.IsNotExist(sidecarErr)

	if blobMissing && sidecarMissing {
		return nil
	}
	if blobMissing != sidecarMissing {
		return &CorruptIndexError{Reason: "torn artifact pair: one of vector blob and metadata sidecar is missing"}
	}

	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return &CorruptIndexError{Reason: "read metadata sidecar", Err: err}
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return &CorruptIndexError{Reason: "parse metadata sidecar", Err: err}
	}
	if sc.Dimension != x.dim {
		return &CorruptIndexError{Reason: fmt.Sprintf("dimension mismatch: sidecar has %d, expected %d", sc.Dimension, x.dim)}
	}
	if sc.IndexKind != KindFlat && sc.IndexKind != KindClustered {
		return &CorruptIndexError{Reason: "unknown index kind in sidecar: " + sc.IndexKind}
	}

	dim, count, centroids, vectors, err := x.readBlob(blobPath)
	if err != nil {
		return err
	}
	if dim != x.dim {
		return &CorruptIndexError{Reason: fmt.Sprintf("dimension mismatch: blob has %d, expected %d", dim, x.dim)}
	}
	if count != len(sc.Metadata) {
		return &CorruptIndexError{Reason: fmt.Sprintf("blob holds %d vectors but sidecar holds %d metadata records", count, len(sc.Metadata))}
	}
	for id, pos := range sc.IdentityMap {
		if pos < 0 || pos >= count {
			return &CorruptIndexError{Reason: fmt.Sprintf("identity map entry %q points at invalid position %d", id, pos)}
		}
	}
	if sc.IndexKind == KindClustered && len(centroids) == 0 && count > 0 {
		return &CorruptIndexError{Reason: "clustered index persisted without centroids"}
	}

	// The persisted kind wins over the configured kind: a downgraded-to-flat
	// index stays flat across restarts.
	x.kind = sc.IndexKind
	x.vectors = vectors
	x.centroids = centroids
	x.meta = &metadataStore{records: sc.Metadata, byID: sc.IdentityMap}
	if x.meta.byID == nil {
		x.meta.byID = make(map[string]int)
	}

	switch {
	case x.kind == KindFlat:
		x.state = StateFlat
	case len(centroids) > 0:
		x.state = StateClusteredTrained
		k := len(centroids) / x.dim
		x.clusters = make([][]int, k)
		for pos := 0; pos < count; pos++ {
			c := assignCluster(x.vectors[pos*x.dim:(pos+1)*x.dim], x.centroids, x.dim)
			x.clusters[c] = append(x.clusters[c], pos)
		}
	default:
		x.state = StateClusteredUntrained
	}
	return nil
}

func (x *Index) readBlob(path string) (dim, count int, centroids, vectors []float32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, nil, &CorruptIndexError{Reason: "open vector blob", Err: err}
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return 0, 0, nil, nil, &CorruptIndexError{Reason: "decompress vector blob", Err: err}
	}
	defer zr.Close()
	r := bufio.NewReader(zr)

	var header [4]uint32
	for i := range header {
		if err := binary.Read(r, binary.LittleEndian, &header[i]); err != nil {
			return 0, 0, nil, nil, &CorruptIndexError{Reason: "read blob header", Err: err}
		}
	}
	if header[0] != blobMagic {
		return 0, 0, nil, nil, &CorruptIndexError{Reason: "vector blob has wrong magic"}
	}
	dim = int(header[1])
	count = int(header[2])
	ncentroids := int(header[3])
	if dim <= 0 || count < 0 || ncentroids < 0 {
		return 0, 0, nil, nil, &CorruptIndexError{Reason: "vector blob header out of range"}
	}

	centroids, err = readFloat32s(r, ncentroids*dim)
	if err != nil {
		return 0, 0, nil, nil, &CorruptIndexError{Reason: "read centroids", Err: err}
	}
	vectors, err = readFloat32s(r, count*dim)
	if err != nil {
		return 0, 0, nil, nil, &CorruptIndexError{Reason: "read vectors", Err: err}
	}
	return dim, count, centroids, vectors, nil
}

func (x *Index) removeArtifacts() error {
	for _, name := range []string{blobFile, sidecarFile} {
		path := filepath.Join(x.dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

func writeFloat32s(w *bufio.Writer, vals []float32) error {
	var buf [4]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func readFloat32s(r *bufio.Reader, n int) ([]float32, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4 : (i+1)*4]))
	}
	return out, nil
}
