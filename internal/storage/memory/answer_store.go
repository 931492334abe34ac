package memory

import (
	"context"
	"sync"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/storage"
)

// AnswerStore is an in-memory implementation of storage.AnswerStore.
type AnswerStore struct {
	mu         sync.RWMutex
	data       map[string]*domain.Answer // keyed by answer_id
	byQuestion map[string][]string       // question_id -> answer_ids in insertion order
	experts    map[string]struct{}       // question_id|expert
	order      []string
}

// NewAnswerStore creates a new in-memory answer store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{
		data:       make(map[string]*domain.Answer),
		byQuestion: make(map[string][]string),
		experts:    make(map[string]struct{}),
	}
}

// Insert adds a new answer. Returns ErrDuplicateKey if answer_id exists
// or the expert already answered the question.
func (s *AnswerStore) Insert(_ context.Context, a *domain.Answer) error {
	if a == nil || a.AnswerID == "" || a.QuestionID == "" || a.Expert == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expertKey := a.QuestionID + "|" + a.Expert
	if _, exists := s.data[a.AnswerID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.experts[expertKey]; exists {
		return storage.ErrDuplicateKey
	}

	answerCopy := *a
	s.data[a.AnswerID] = &answerCopy
	s.byQuestion[a.QuestionID] = append(s.byQuestion[a.QuestionID], a.AnswerID)
	s.experts[expertKey] = struct{}{}
	s.order = append(s.order, a.AnswerID)
	return nil
}

// GetByID retrieves an answer by its ID. Returns ErrNotFound if not exists.
func (s *AnswerStore) GetByID(_ context.Context, answerID string) (*domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[answerID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	answerCopy := *a
	return &answerCopy, nil
}

// GetByQuestionID retrieves all answers for a question in insertion order.
func (s *AnswerStore) GetByQuestionID(_ context.Context, questionID string) ([]*domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byQuestion[questionID]
	result := make([]*domain.Answer, 0, len(ids))
	for _, id := range ids {
		answerCopy := *s.data[id]
		result = append(result, &answerCopy)
	}
	return result, nil
}

// GetAll retrieves all answers in insertion order.
func (s *AnswerStore) GetAll(_ context.Context) ([]*domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Answer, 0, len(s.order))
	for _, id := range s.order {
		answerCopy := *s.data[id]
		result = append(result, &answerCopy)
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.AnswerStore = (*AnswerStore)(nil)
