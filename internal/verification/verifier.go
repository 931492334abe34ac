// Package verification audits stored vote tallies by replaying the vote log.
// A tally matches when the counters and, once finalized, the disposition are
// exactly what the log implies. The optional archive must hold the same votes.
package verification

import (
	"context"
	"fmt"
	"sort"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/voting"
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single answer.
type VerificationResult struct {
	AnswerID    string            // verified answer ID
	Match       bool              // true if all fields match
	Divergences []FieldDivergence // list of divergent fields
	Stored      domain.Tally      // tally held by the vote store
	Replayed    domain.Tally      // tally re-derived from the vote log
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalAnswers     int                  // total answers verified
	MatchedAnswers   int                  // answers that matched exactly
	DivergentAnswers int                  // answers with divergences
	Results          []VerificationResult // individual results
}

// Verifier interface for vote replay verification.
type Verifier interface {
	// VerifyAnswer replays one answer's vote log and compares it to the
	// stored tally.
	VerifyAnswer(ctx context.Context, answerID string) (*VerificationResult, error)

	// VerifyAll verifies every stored answer.
	VerifyAll(ctx context.Context) (*VerificationReport, error)
}

// ReplayTally rebuilds the tally implied by a vote log. finalized carries
// the stored flag over, since finalization is not itself a logged vote.
func ReplayTally(answerID string, votes []*domain.Vote, finalized bool) domain.Tally {
	t := domain.TallyVotes(answerID, votes)
	if finalized {
		t.Finalized = true
		t.Disposition = voting.Replay(answerID, votes).Disposition
	}
	return t
}

// CompareTallies compares a stored tally to its replay.
func CompareTallies(stored, replayed domain.Tally) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.Upvotes != replayed.Upvotes {
		divergences = append(divergences, FieldDivergence{
			Field:    "Upvotes",
			Expected: stored.Upvotes,
			Actual:   replayed.Upvotes,
		})
	}

	if stored.Downvotes != replayed.Downvotes {
		divergences = append(divergences, FieldDivergence{
			Field:    "Downvotes",
			Expected: stored.Downvotes,
			Actual:   replayed.Downvotes,
		})
	}

	if stored.Disposition != replayed.Disposition {
		divergences = append(divergences, FieldDivergence{
			Field:    "Disposition",
			Expected: stored.Disposition,
			Actual:   replayed.Disposition,
		})
	}

	return divergences
}

// CompareVoteLogs compares the primary vote log to its archived copy by
// validator. Order is not compared; the archive sorts by cast time.
func CompareVoteLogs(primary, archived []*domain.Vote) []FieldDivergence {
	index := func(votes []*domain.Vote) map[string]*domain.Vote {
		m := make(map[string]*domain.Vote, len(votes))
		for _, v := range votes {
			if v != nil {
				m[v.Validator] = v
			}
		}
		return m
	}
	want, got := index(primary), index(archived)

	keys := make([]string, 0, len(want)+len(got))
	for k := range want {
		keys = append(keys, k)
	}
	for k := range got {
		if _, ok := want[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var divergences []FieldDivergence
	for _, k := range keys {
		w, g := want[k], got[k]
		field := fmt.Sprintf("Archive[%s]", k)
		switch {
		case g == nil:
			divergences = append(divergences, FieldDivergence{Field: field, Expected: w.Verdict, Actual: nil})
		case w == nil:
			divergences = append(divergences, FieldDivergence{Field: field, Expected: nil, Actual: g.Verdict})
		case w.Verdict != g.Verdict || w.CastAt != g.CastAt:
			divergences = append(divergences, FieldDivergence{
				Field:    field,
				Expected: fmt.Sprintf("%t@%d", w.Verdict, w.CastAt),
				Actual:   fmt.Sprintf("%t@%d", g.Verdict, g.CastAt),
			})
		}
	}
	return divergences
}
