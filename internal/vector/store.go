package vector

import "github.com/hyperjump/toi/internal/models"

// metadataStore keeps per-vector metadata position-aligned with the vector
// collection, plus the identity map from external IDs to positions.
// records[i] describes vector position i; out-of-range access is a
// programming-contract violation and panics.
type metadataStore struct {
	records []models.QuestionMetadata
	byID    map[string]int
}

func newMetadataStore() *metadataStore {
	return &metadataStore{byID: make(map[string]int)}
}

// append adds a record and returns its position.
func (s *metadataStore) append(m models.QuestionMetadata) int {
	s.records = append(s.records, m)
	return len(s.records) - 1
}

// get returns the record at pos.
func (s *metadataStore) get(pos int) *models.QuestionMetadata {
	return &s.records[pos]
}

// lookup returns the position occupied by the external ID, if any.
func (s *metadataStore) lookup(extID string) (int, bool) {
	pos, ok := s.byID[extID]
	return pos, ok
}

// register maps an external ID to a position. Called exactly once per newly
// accepted record; never for rejected duplicates.
func (s *metadataStore) register(extID string, pos int) {
	s.byID[extID] = pos
}

func (s *metadataStore) len() int {
	return len(s.records)
}
