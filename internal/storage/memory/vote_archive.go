package memory

import (
	"context"
	"sort"
	"sync"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/storage"
)

// VoteArchive is an in-memory implementation of storage.VoteArchive.
type VoteArchive struct {
	mu   sync.RWMutex
	data map[string]map[string]*domain.Vote // answer_id -> validator -> vote
}

// NewVoteArchive creates a new in-memory vote archive.
func NewVoteArchive() *VoteArchive {
	return &VoteArchive{
		data: make(map[string]map[string]*domain.Vote),
	}
}

// Compile-time interface check.
var _ storage.VoteArchive = (*VoteArchive)(nil)

// Append adds a vote. Returns ErrDuplicateKey if (answer_id, validator) exists.
func (s *VoteArchive) Append(_ context.Context, v *domain.Vote) error {
	if v == nil || v.AnswerID == "" || v.Validator == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byValidator, ok := s.data[v.AnswerID]
	if !ok {
		byValidator = make(map[string]*domain.Vote)
		s.data[v.AnswerID] = byValidator
	}
	if _, exists := byValidator[v.Validator]; exists {
		return storage.ErrDuplicateKey
	}

	voteCopy := *v
	byValidator[v.Validator] = &voteCopy
	return nil
}

// GetByAnswerID retrieves archived votes ordered by cast time, then validator.
func (s *VoteArchive) GetByAnswerID(_ context.Context, answerID string) ([]*domain.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Vote, 0, len(s.data[answerID]))
	for _, v := range s.data[answerID] {
		voteCopy := *v
		result = append(result, &voteCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CastAt != result[j].CastAt {
			return result[i].CastAt < result[j].CastAt
		}
		return result[i].Validator < result[j].Validator
	})
	return result, nil
}
