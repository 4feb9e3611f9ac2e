package memory

import (
	"context"
	"sync"

	"quiz-attempt/internal/domain"
)

// CheckpointStore is an in-memory implementation of app.CheckpointStore.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]domain.Checkpoint
}

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		checkpoints: make(map[string]domain.Checkpoint),
	}
}

// Save keeps the newest revision; an older revision never overwrites a newer one.
func (s *CheckpointStore) Save(_ context.Context, cp domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.checkpoints[cp.AttemptID]; ok && existing.Revision > cp.Revision {
		return nil
	}
	s.checkpoints[cp.AttemptID] = cloneCheckpoint(cp)
	return nil
}

func (s *CheckpointStore) Load(_ context.Context, attemptID string) (domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[attemptID]
	if !ok {
		return domain.Checkpoint{}, domain.ErrCheckpointNotFound
	}
	return cloneCheckpoint(cp), nil
}

func (s *CheckpointStore) Delete(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, attemptID)
	return nil
}

func cloneCheckpoint(cp domain.Checkpoint) domain.Checkpoint {
	out := cp
	out.Quiz = cp.Quiz.Clone()
	out.Answers = append([]domain.AnswerEntry(nil), cp.Answers...)
	if cp.Frozen != nil {
		frozen := *cp.Frozen
		frozen.Answers = append([]domain.AnswerEntry(nil), cp.Frozen.Answers...)
		out.Frozen = &frozen
	}
	return out
}
