package models

import "strings"

// MetadataFilter restricts query results by structured metadata. All clauses
// are optional; an omitted clause is vacuously satisfied. Values within one
// clause are OR conditions; clauses combine with AND.
type MetadataFilter struct {
	Topics   []string `json:"topics,omitempty"`
	Types    []string `json:"types,omitempty"`
	PaperIDs []string `json:"paper_ids,omitempty"`
	MinMarks *int     `json:"min_marks,omitempty"`
	MaxMarks *int     `json:"max_marks,omitempty"`
}

// IsZero reports whether no clause is set.
func (f *MetadataFilter) IsZero() bool {
	if f == nil {
		return true
	}
	return len(f.Topics) == 0 && len(f.Types) == 0 && len(f.PaperIDs) == 0 &&
		f.MinMarks == nil && f.MaxMarks == nil
}

// Matches reports whether the metadata record passes every set clause.
// A record with no marks value is never excluded by the marks range.
func (f *MetadataFilter) Matches(m *QuestionMetadata) bool {
	if f == nil {
		return true
	}
	if len(f.Topics) > 0 {
		topic := strings.ToLower(m.Topic)
		found := false
		for _, t := range f.Topics {
			if strings.Contains(topic, strings.ToLower(t)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Types) > 0 && !containsString(f.Types, m.Type) {
		return false
	}
	if len(f.PaperIDs) > 0 && !containsString(f.PaperIDs, m.PaperID) {
		return false
	}
	if m.Marks != nil {
		if f.MinMarks != nil && *m.Marks < *f.MinMarks {
			return false
		}
		if f.MaxMarks != nil && *m.Marks > *f.MaxMarks {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
