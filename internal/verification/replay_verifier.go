package verification

import (
	"context"
	"errors"
	"fmt"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/observability"
	"bounty-qa/internal/storage"
)

// ReplayVerifier implements Verifier interface.
type ReplayVerifier struct {
	answerStore storage.AnswerStore
	voteStore   storage.VoteStore

	// archive is optional; nil skips the archive comparison.
	archive storage.VoteArchive
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	AnswerStore storage.AnswerStore
	VoteStore   storage.VoteStore
	Archive     storage.VoteArchive
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		answerStore: opts.AnswerStore,
		voteStore:   opts.VoteStore,
		archive:     opts.Archive,
	}
}

// Compile-time interface check.
var _ Verifier = (*ReplayVerifier)(nil)

// VerifyAnswer verifies a single answer by replaying its vote log.
func (v *ReplayVerifier) VerifyAnswer(ctx context.Context, answerID string) (*VerificationResult, error) {
	// 1. Answer must exist
	if _, err := v.answerStore.GetByID(ctx, answerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrAnswerNotFound
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}

	// 2. Load stored tally and log
	stored, err := v.voteStore.GetTally(ctx, answerID)
	if err != nil {
		return nil, fmt.Errorf("get tally: %w", err)
	}
	votes, err := v.voteStore.GetVotes(ctx, answerID)
	if err != nil {
		return nil, fmt.Errorf("get votes: %w", err)
	}

	// 3. Replay and compare
	replayed := ReplayTally(answerID, votes, stored.Finalized)
	divergences := CompareTallies(stored, replayed)

	// 4. Archive copy, if configured
	if v.archive != nil {
		archived, err := v.archive.GetByAnswerID(ctx, answerID)
		if err != nil {
			return nil, fmt.Errorf("get archived votes: %w", err)
		}
		divergences = append(divergences, CompareVoteLogs(votes, archived)...)
	}

	if len(divergences) > 0 {
		observability.RecordReplayMismatch()
	}

	return &VerificationResult{
		AnswerID:    answerID,
		Match:       len(divergences) == 0,
		Divergences: divergences,
		Stored:      stored,
		Replayed:    replayed,
	}, nil
}

// VerifyAll verifies all stored answers.
func (v *ReplayVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	answers, err := v.answerStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		TotalAnswers: len(answers),
		Results:      make([]VerificationResult, 0, len(answers)),
	}

	for _, a := range answers {
		result, err := v.VerifyAnswer(ctx, a.AnswerID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Record error as divergence
			report.Results = append(report.Results, VerificationResult{
				AnswerID: a.AnswerID,
				Match:    false,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentAnswers++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedAnswers++
		} else {
			report.DivergentAnswers++
		}
	}

	return report, nil
}
