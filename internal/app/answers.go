package app

import (
	"sync"

	"quiz-attempt/internal/domain"
)

// AnswerStore maps question IDs to the student's current answer. It does not validate;
// the controller does that before calling Set.
type AnswerStore struct {
	mu      sync.RWMutex
	answers map[string]domain.Answer
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[string]domain.Answer)}
}

// Set overwrites any previous answer for questionID.
func (s *AnswerStore) Set(questionID string, answer domain.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[questionID] = answer
}

// Get returns the answer for questionID, if any.
func (s *AnswerStore) Get(questionID string) (domain.Answer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answer, ok := s.answers[questionID]
	return answer, ok
}

// AnsweredCount is the number of questions with an answer.
func (s *AnswerStore) AnsweredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers)
}

// Snapshot returns an immutable copy of the current answers.
func (s *AnswerStore) Snapshot() AnswerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make(map[string]domain.Answer, len(s.answers))
	for id, answer := range s.answers {
		copied[id] = answer
	}
	return AnswerSnapshot{answers: copied}
}

// AnswerSnapshot is a read-only copy of an AnswerStore.
type AnswerSnapshot struct {
	answers map[string]domain.Answer
}

func (s AnswerSnapshot) Len() int { return len(s.answers) }

func (s AnswerSnapshot) Get(questionID string) (domain.Answer, bool) {
	answer, ok := s.answers[questionID]
	return answer, ok
}

// Entries converts the snapshot to wire entries ordered like questions.
// Unanswered questions are absent.
func (s AnswerSnapshot) Entries(questions []domain.Question) []domain.AnswerEntry {
	entries := make([]domain.AnswerEntry, 0, len(s.answers))
	for _, q := range questions {
		if answer, ok := s.answers[q.ID]; ok {
			entries = append(entries, domain.AnswerEntry{QuestionID: q.ID, Answer: answer.Wire()})
		}
	}
	return entries
}
