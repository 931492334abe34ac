// Package voting implements the time-boxed answer voting protocol: the
// voting window policy and the per-answer vote ledger state machine
// (Open -> Closed -> Finalized).
package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/observability"
	"bounty-qa/internal/storage"
)

// DefaultStoreTimeout bounds every store call made by the ledger.
const DefaultStoreTimeout = 5 * time.Second

// Registry is the read side of the validator registry used by the ledger.
// Implementations return domain.ErrRegistryUnavailable or
// domain.ErrUpstreamTimeout on failure, never a silent false.
type Registry interface {
	IsEligibleVoter(ctx context.Context, account string) (bool, error)
	VotingWindow(ctx context.Context) (time.Duration, error)
}

// Options configures a Ledger.
type Options struct {
	Answers  storage.AnswerStore
	Votes    storage.VoteStore
	Registry Registry

	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Quorum finalizes an answer as soon as this many votes are counted and
	// they are not tied. Zero disables the rule.
	Quorum int64
	// StoreTimeout bounds each store call. Defaults to DefaultStoreTimeout.
	StoreTimeout time.Duration
	Notifier     Notifier
	Logger       *slog.Logger
}

// Ledger is the vote ledger state machine.
type Ledger struct {
	answers      storage.AnswerStore
	votes        storage.VoteStore
	registry     Registry
	clock        clockwork.Clock
	quorum       int64
	storeTimeout time.Duration
	notifier     Notifier
	logger       *slog.Logger
}

// NewLedger creates a vote ledger.
func NewLedger(opts Options) (*Ledger, error) {
	if opts.Answers == nil || opts.Votes == nil || opts.Registry == nil {
		return nil, errors.New("voting: answers, votes and registry are required")
	}
	if opts.Quorum < 0 {
		return nil, fmt.Errorf("voting: negative quorum %d", opts.Quorum)
	}

	l := &Ledger{
		answers:      opts.Answers,
		votes:        opts.Votes,
		registry:     opts.Registry,
		clock:        opts.Clock,
		quorum:       opts.Quorum,
		storeTimeout: opts.StoreTimeout,
		notifier:     opts.Notifier,
		logger:       opts.Logger,
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	if l.storeTimeout <= 0 {
		l.storeTimeout = DefaultStoreTimeout
	}
	if l.notifier == nil {
		l.notifier = nopNotifier{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "voting")
	return l, nil
}

// CastVote records a validator's verdict on an answer.
//
// Preconditions are checked in order and the first failure wins: the account
// must be an eligible validator, must not have voted on the answer before,
// and the answer's window must be open at the instant the call started.
// The duplicate check and the counter increment commit as one step in the
// vote store, so concurrent retries by the same validator count once.
func (l *Ledger) CastVote(ctx context.Context, answerID, account string, verdict bool) (*domain.VoteReceipt, error) {
	now := l.clock.Now().Unix()

	validator, err := domain.NormalizeAccount(account)
	if err != nil {
		return nil, l.reject(ctx, "invalid_account", answerID, account, err)
	}

	eligible, err := l.registry.IsEligibleVoter(ctx, validator)
	if err != nil {
		return nil, l.reject(ctx, "registry_error", answerID, validator, err)
	}
	if !eligible {
		return nil, l.reject(ctx, "not_a_validator", answerID, validator, domain.ErrNotAValidator)
	}

	answer, err := l.answer(ctx, answerID)
	if err != nil {
		return nil, l.reject(ctx, "answer_lookup", answerID, validator, err)
	}

	voted, err := l.hasVoted(ctx, answerID, validator)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, l.reject(ctx, "already_voted", answerID, validator, domain.ErrAlreadyVoted)
	}

	tally, err := l.tally(ctx, answerID)
	if err != nil {
		return nil, err
	}
	if tally.Finalized {
		return nil, l.reject(ctx, "voting_closed", answerID, validator, domain.ErrVotingClosed)
	}

	window, err := l.registry.VotingWindow(ctx)
	if err != nil {
		return nil, l.reject(ctx, "registry_error", answerID, validator, err)
	}
	if !IsOpen(answer.CreatedAt, window, now) {
		if _, err := l.finalize(ctx, answerID); err != nil {
			l.logger.WarnContext(ctx, "lazy finalization failed", "answer_id", answerID, "error", err)
		}
		return nil, l.reject(ctx, "voting_closed", answerID, validator, domain.ErrVotingClosed)
	}

	vote := &domain.Vote{
		AnswerID:  answerID,
		Validator: validator,
		Verdict:   verdict,
		CastAt:    now,
	}
	tally, err = l.recordVote(ctx, vote)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		return nil, l.reject(ctx, "already_voted", answerID, validator, domain.ErrAlreadyVoted)
	case errors.Is(err, storage.ErrFinalized):
		return nil, l.reject(ctx, "voting_closed", answerID, validator, domain.ErrVotingClosed)
	case err != nil:
		return nil, err
	}

	receipt := &domain.VoteReceipt{
		AnswerID:  answerID,
		Validator: validator,
		Verdict:   verdict,
		CastAt:    now,
		Upvotes:   tally.Upvotes,
		Downvotes: tally.Downvotes,
	}
	observability.RecordVoteCast(verdict)
	l.logger.DebugContext(ctx, "vote recorded",
		"answer_id", answerID, "validator", validator, "verdict", verdict,
		"upvotes", tally.Upvotes, "downvotes", tally.Downvotes)
	l.notifier.VoteRecorded(ctx, *receipt)

	if l.quorumReached(tally) {
		if _, err := l.finalize(ctx, answerID); err != nil {
			l.logger.WarnContext(ctx, "quorum finalization failed", "answer_id", answerID, "error", err)
		}
	}
	return receipt, nil
}

// Status returns the answer's voting state at the current instant.
// A closed window is finalized on the spot, so callers observe either
// open or finalized.
func (l *Ledger) Status(ctx context.Context, answerID string) (*domain.VotingState, error) {
	now := l.clock.Now().Unix()

	answer, err := l.answer(ctx, answerID)
	if err != nil {
		return nil, err
	}
	window, err := l.registry.VotingWindow(ctx)
	if err != nil {
		return nil, err
	}
	tally, err := l.tally(ctx, answerID)
	if err != nil {
		return nil, err
	}

	state := &domain.VotingState{
		AnswerID: answerID,
		Status:   Evaluate(answer.CreatedAt, window, tally, now),
		ClosesAt: ClosesAt(answer.CreatedAt, window),
		Tally:    tally,
	}
	if state.Status == domain.VotingClosed {
		result, err := l.finalize(ctx, answerID)
		if err != nil {
			return nil, err
		}
		state.Status = domain.VotingFinalized
		state.Tally = domain.Tally{
			AnswerID:    answerID,
			Upvotes:     result.Upvotes,
			Downvotes:   result.Downvotes,
			Finalized:   true,
			Disposition: result.Disposition,
		}
	}
	return state, nil
}

// Finalize is the administrative finalize operation. It is idempotent: an
// already finalized answer returns its original disposition with
// FirstTime=false. Finalizing while the window is still open fails with
// domain.ErrVotingOpen.
func (l *Ledger) Finalize(ctx context.Context, answerID string) (*domain.FinalizationResult, error) {
	now := l.clock.Now().Unix()

	answer, err := l.answer(ctx, answerID)
	if err != nil {
		return nil, err
	}
	tally, err := l.tally(ctx, answerID)
	if err != nil {
		return nil, err
	}
	if tally.Finalized {
		return resultOf(tally, false), nil
	}

	window, err := l.registry.VotingWindow(ctx)
	if err != nil {
		return nil, err
	}
	if IsOpen(answer.CreatedAt, window, now) {
		return nil, fmt.Errorf("finalize %s: %w", answerID, domain.ErrVotingOpen)
	}
	return l.finalize(ctx, answerID)
}

// Votes returns the vote log of an answer in cast order.
func (l *Ledger) Votes(ctx context.Context, answerID string) ([]*domain.Vote, error) {
	if _, err := l.answer(ctx, answerID); err != nil {
		return nil, err
	}
	sctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	votes, err := l.votes.GetVotes(sctx, answerID)
	if err != nil {
		return nil, storeError("get votes", err)
	}
	return votes, nil
}

// Replay re-derives the finalization outcome of an answer from its vote log.
// It is a pure function of the log.
func Replay(answerID string, votes []*domain.Vote) domain.FinalizationResult {
	tally := domain.TallyVotes(answerID, votes)
	return domain.FinalizationResult{
		AnswerID:    answerID,
		Upvotes:     tally.Upvotes,
		Downvotes:   tally.Downvotes,
		Disposition: domain.DecideDisposition(tally.Upvotes, tally.Downvotes),
	}
}

// Evaluate returns the lifecycle state implied by a tally and the window at
// now, without side effects.
func Evaluate(createdAt int64, window time.Duration, tally domain.Tally, now int64) domain.VotingStatus {
	switch {
	case tally.Finalized:
		return domain.VotingFinalized
	case IsOpen(createdAt, window, now):
		return domain.VotingOpen
	default:
		return domain.VotingClosed
	}
}

// finalize commits the finalized flag and publishes the first transition.
// The store call is detached from caller cancellation.
func (l *Ledger) finalize(ctx context.Context, answerID string) (*domain.FinalizationResult, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storeTimeout)
	defer cancel()

	tally, first, err := l.votes.Finalize(sctx, answerID)
	if err != nil {
		return nil, storeError("finalize", err)
	}

	result := resultOf(tally, first)
	if first {
		observability.RecordFinalization(result.Disposition.String())
		l.logger.InfoContext(ctx, "answer finalized",
			"answer_id", answerID, "upvotes", result.Upvotes,
			"downvotes", result.Downvotes, "disposition", result.Disposition)
		l.notifier.AnswerFinalized(ctx, *result)
	}
	return result, nil
}

func (l *Ledger) quorumReached(t domain.Tally) bool {
	return l.quorum > 0 && t.Total() >= l.quorum && t.Upvotes != t.Downvotes
}

func (l *Ledger) answer(ctx context.Context, answerID string) (*domain.Answer, error) {
	sctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	a, err := l.answers.GetByID(sctx, answerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("answer %s: %w", answerID, domain.ErrAnswerNotFound)
	}
	if err != nil {
		return nil, storeError("get answer", err)
	}
	return a, nil
}

func (l *Ledger) hasVoted(ctx context.Context, answerID, validator string) (bool, error) {
	sctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	voted, err := l.votes.HasVoted(sctx, answerID, validator)
	if err != nil {
		return false, storeError("has voted", err)
	}
	return voted, nil
}

func (l *Ledger) tally(ctx context.Context, answerID string) (domain.Tally, error) {
	sctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	t, err := l.votes.GetTally(sctx, answerID)
	if err != nil {
		return domain.Tally{}, storeError("get tally", err)
	}
	return t, nil
}

// recordVote runs the atomic compare-and-append. Once started it is not
// cancelled by the caller; only the store timeout bounds it.
func (l *Ledger) recordVote(ctx context.Context, v *domain.Vote) (domain.Tally, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storeTimeout)
	defer cancel()

	t, err := l.votes.RecordVote(sctx, v)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) && !errors.Is(err, storage.ErrFinalized) {
		return t, storeError("record vote", err)
	}
	return t, err
}

func (l *Ledger) reject(ctx context.Context, reason, answerID, account string, err error) error {
	observability.RecordVoteRejected(reason)
	l.logger.DebugContext(ctx, "vote rejected",
		"answer_id", answerID, "validator", account, "reason", reason, "error", err)
	return err
}

// storeError maps a store deadline to the retryable timeout kind.
func storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, domain.ErrUpstreamTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func resultOf(t domain.Tally, first bool) *domain.FinalizationResult {
	return &domain.FinalizationResult{
		AnswerID:    t.AnswerID,
		Upvotes:     t.Upvotes,
		Downvotes:   t.Downvotes,
		Disposition: t.Disposition,
		FirstTime:   first,
	}
}
