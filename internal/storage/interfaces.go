package storage

import (
	"context"

	"bounty-qa/internal/domain"
)

// QuestionStore provides access to questions storage.
type QuestionStore interface {
	// Insert adds a new question. Returns ErrDuplicateKey if question_id exists.
	Insert(ctx context.Context, q *domain.Question) error

	// GetByID retrieves a question by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, questionID string) (*domain.Question, error)

	// GetAll retrieves all questions in insertion order.
	GetAll(ctx context.Context) ([]*domain.Question, error)
}

// AnswerStore provides access to answers storage.
type AnswerStore interface {
	// Insert adds a new answer. Returns ErrDuplicateKey if answer_id exists
	// or the expert already answered the question.
	Insert(ctx context.Context, a *domain.Answer) error

	// GetByID retrieves an answer by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, answerID string) (*domain.Answer, error)

	// GetByQuestionID retrieves all answers for a question in insertion order.
	GetByQuestionID(ctx context.Context, questionID string) ([]*domain.Answer, error)

	// GetAll retrieves all answers in insertion order.
	GetAll(ctx context.Context) ([]*domain.Answer, error)
}

// VoteStore provides access to the per-answer vote ledger.
// Implementations serialize writes per answer; different answers never block
// each other.
type VoteStore interface {
	// HasVoted reports whether a vote exists for (answerID, validator).
	HasVoted(ctx context.Context, answerID, validator string) (bool, error)

	// RecordVote appends the vote and increments the answer's counter as one
	// atomic step. Returns ErrDuplicateKey if the pair already voted and
	// ErrFinalized if the answer is finalized; neither applies any effect.
	RecordVote(ctx context.Context, v *domain.Vote) (domain.Tally, error)

	// GetTally returns the current tally. Answers without votes return a zero,
	// pending tally.
	GetTally(ctx context.Context, answerID string) (domain.Tally, error)

	// GetVotes retrieves the vote log for an answer in cast order.
	GetVotes(ctx context.Context, answerID string) ([]*domain.Vote, error)

	// Finalize marks the answer finalized with the disposition decided from
	// the tally it holds at that moment (domain.DecideDisposition).
	// First writer wins: an already finalized answer keeps its disposition and
	// the stored tally is returned with first=false.
	Finalize(ctx context.Context, answerID string) (tally domain.Tally, first bool, err error)

	// MarkSettled records that the answer's escrow was settled on the ledger.
	// Idempotent. Returns ErrNotFound unless the answer is finalized.
	MarkSettled(ctx context.Context, answerID string) error
}

// VoteArchive is an append-only copy of the vote log used for audits.
type VoteArchive interface {
	// Append adds a vote. Returns ErrDuplicateKey if (answer_id, validator) exists.
	Append(ctx context.Context, v *domain.Vote) error

	// GetByAnswerID retrieves archived votes for an answer in cast order.
	GetByAnswerID(ctx context.Context, answerID string) ([]*domain.Vote, error)
}
