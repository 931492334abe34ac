package memory

import (
	"context"
	"sync"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/storage"
)

// QuestionStore is an in-memory implementation of storage.QuestionStore.
type QuestionStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.Question // keyed by question_id
	order []string                    // insertion order
}

// NewQuestionStore creates a new in-memory question store.
func NewQuestionStore() *QuestionStore {
	return &QuestionStore{
		data: make(map[string]*domain.Question),
	}
}

// Insert adds a new question. Returns ErrDuplicateKey if question_id exists.
func (s *QuestionStore) Insert(_ context.Context, q *domain.Question) error {
	if q == nil || q.QuestionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[q.QuestionID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	questionCopy := *q
	s.data[q.QuestionID] = &questionCopy
	s.order = append(s.order, q.QuestionID)
	return nil
}

// GetByID retrieves a question by its ID. Returns ErrNotFound if not exists.
func (s *QuestionStore) GetByID(_ context.Context, questionID string) (*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, exists := s.data[questionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	questionCopy := *q
	return &questionCopy, nil
}

// GetAll retrieves all questions in insertion order.
func (s *QuestionStore) GetAll(_ context.Context) ([]*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Question, 0, len(s.order))
	for _, id := range s.order {
		questionCopy := *s.data[id]
		result = append(result, &questionCopy)
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.QuestionStore = (*QuestionStore)(nil)
