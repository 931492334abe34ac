package domain

import "errors"

// Errors surfaced by the voting core. Callers match them with errors.Is.
var (
	ErrNotAValidator       = errors.New("account is not a validator")
	ErrAlreadyVoted        = errors.New("validator already voted on this answer")
	ErrVotingClosed        = errors.New("voting window is closed")
	ErrVotingOpen          = errors.New("voting window is still open")
	ErrAnswerNotFound      = errors.New("answer not found")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrDuplicateAnswer     = errors.New("expert already answered this question")
	ErrRegistryUnavailable = errors.New("validator registry unavailable")
	ErrUpstreamTimeout     = errors.New("upstream call timed out")
	ErrInvalidIdentifier   = errors.New("invalid identifier")
	ErrInvalidBounty       = errors.New("bounty must be a finite non-negative amount")
)

// Retryable reports whether err may be retried by the caller.
// Only upstream timeouts qualify; every other kind is final.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout)
}
