package memory

import (
	"context"
	"sync"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/storage"
)

// answerVotes is the lockable unit: one answer's voter set and tally.
type answerVotes struct {
	mu     sync.Mutex
	voters map[string]struct{}
	log    []*domain.Vote
	tally  domain.Tally
}

// VoteStore is an in-memory implementation of storage.VoteStore.
// The outer lock only guards the answer index; vote checks and counter
// increments happen under the per-answer lock.
type VoteStore struct {
	mu      sync.RWMutex
	answers map[string]*answerVotes // keyed by answer_id
}

// NewVoteStore creates a new in-memory vote store.
func NewVoteStore() *VoteStore {
	return &VoteStore{
		answers: make(map[string]*answerVotes),
	}
}

// entry returns the per-answer state, creating it when create is set.
func (s *VoteStore) entry(answerID string, create bool) *answerVotes {
	s.mu.RLock()
	av, ok := s.answers[answerID]
	s.mu.RUnlock()
	if ok || !create {
		return av
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if av, ok = s.answers[answerID]; ok {
		return av
	}
	av = &answerVotes{
		voters: make(map[string]struct{}),
		tally:  domain.Tally{AnswerID: answerID, Disposition: domain.DispositionPending},
	}
	s.answers[answerID] = av
	return av
}

// HasVoted reports whether a vote exists for (answerID, validator).
func (s *VoteStore) HasVoted(_ context.Context, answerID, validator string) (bool, error) {
	av := s.entry(answerID, false)
	if av == nil {
		return false, nil
	}

	av.mu.Lock()
	defer av.mu.Unlock()
	_, voted := av.voters[validator]
	return voted, nil
}

// RecordVote appends the vote and increments the counter atomically.
func (s *VoteStore) RecordVote(_ context.Context, v *domain.Vote) (domain.Tally, error) {
	if v == nil || v.AnswerID == "" || v.Validator == "" {
		return domain.Tally{}, storage.ErrInvalidInput
	}

	av := s.entry(v.AnswerID, true)
	av.mu.Lock()
	defer av.mu.Unlock()

	if _, voted := av.voters[v.Validator]; voted {
		return av.tally, storage.ErrDuplicateKey
	}
	if av.tally.Finalized {
		return av.tally, storage.ErrFinalized
	}

	voteCopy := *v
	av.voters[v.Validator] = struct{}{}
	av.log = append(av.log, &voteCopy)
	av.tally = av.tally.Apply(v.Verdict)
	return av.tally, nil
}

// GetTally returns the current tally for an answer.
func (s *VoteStore) GetTally(_ context.Context, answerID string) (domain.Tally, error) {
	av := s.entry(answerID, false)
	if av == nil {
		return domain.Tally{AnswerID: answerID, Disposition: domain.DispositionPending}, nil
	}

	av.mu.Lock()
	defer av.mu.Unlock()
	return av.tally, nil
}

// GetVotes retrieves the vote log for an answer in cast order.
func (s *VoteStore) GetVotes(_ context.Context, answerID string) ([]*domain.Vote, error) {
	av := s.entry(answerID, false)
	if av == nil {
		return nil, nil
	}

	av.mu.Lock()
	defer av.mu.Unlock()

	result := make([]*domain.Vote, 0, len(av.log))
	for _, v := range av.log {
		voteCopy := *v
		result = append(result, &voteCopy)
	}
	return result, nil
}

// Finalize marks the answer finalized. First writer wins.
func (s *VoteStore) Finalize(_ context.Context, answerID string) (domain.Tally, bool, error) {
	if answerID == "" {
		return domain.Tally{}, false, storage.ErrInvalidInput
	}

	av := s.entry(answerID, true)
	av.mu.Lock()
	defer av.mu.Unlock()

	if av.tally.Finalized {
		return av.tally, false, nil
	}
	av.tally.Finalized = true
	av.tally.Disposition = domain.DecideDisposition(av.tally.Upvotes, av.tally.Downvotes)
	return av.tally, true, nil
}

// MarkSettled records the escrow settlement of a finalized answer.
func (s *VoteStore) MarkSettled(_ context.Context, answerID string) error {
	av := s.entry(answerID, false)
	if av == nil {
		return storage.ErrNotFound
	}

	av.mu.Lock()
	defer av.mu.Unlock()
	if !av.tally.Finalized {
		return storage.ErrNotFound
	}
	av.tally.Settled = true
	return nil
}

// Verify interface compliance at compile time.
var _ storage.VoteStore = (*VoteStore)(nil)
