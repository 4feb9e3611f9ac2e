package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt/internal/domain"
)

// Journal is an in-memory submission journal, unique by attempt ID.
type Journal struct {
	mu      sync.RWMutex
	records map[string]domain.SubmissionRecord
}

func NewJournal() *Journal {
	return &Journal{records: make(map[string]domain.SubmissionRecord)}
}

// Record stores rec unless the attempt already has a record.
func (j *Journal) Record(_ context.Context, rec domain.SubmissionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.records[rec.AttemptID]; ok {
		return nil
	}
	j.records[rec.AttemptID] = rec.Clone()
	return nil
}

// List returns the newest records first, at most limit of them (all when limit <= 0).
func (j *Journal) List(_ context.Context, limit int) ([]domain.SubmissionRecord, error) {
	j.mu.RLock()
	out := make([]domain.SubmissionRecord, 0, len(j.records))
	for _, rec := range j.records {
		out = append(out, rec.Clone())
	}
	j.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if !out[i].SubmittedAt.Equal(out[k].SubmittedAt) {
			return out[i].SubmittedAt.After(out[k].SubmittedAt)
		}
		return out[i].AttemptID < out[k].AttemptID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
