package verification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/storage"
	"bounty-qa/internal/storage/memory"
)

// skewedVotes reports a tally that drifted from the log.
type skewedVotes struct {
	storage.VoteStore
	extraUp int64
}

func (s skewedVotes) GetTally(ctx context.Context, answerID string) (domain.Tally, error) {
	t, err := s.VoteStore.GetTally(ctx, answerID)
	t.Upvotes += s.extraUp
	return t, err
}

type fixture struct {
	answers *memory.AnswerStore
	votes   *memory.VoteStore
	archive *memory.VoteArchive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		answers: memory.NewAnswerStore(),
		votes:   memory.NewVoteStore(),
		archive: memory.NewVoteArchive(),
	}
	ctx := context.Background()
	for _, id := range []string{"a1", "a2"} {
		require.NoError(t, f.answers.Insert(ctx, &domain.Answer{AnswerID: id, QuestionID: "q1", Body: "b", Expert: "e-" + id}))
	}
	return f
}

func (f *fixture) vote(t *testing.T, answerID, validator string, verdict bool, castAt int64) {
	t.Helper()
	v := &domain.Vote{AnswerID: answerID, Validator: validator, Verdict: verdict, CastAt: castAt}
	_, err := f.votes.RecordVote(context.Background(), v)
	require.NoError(t, err)
	require.NoError(t, f.archive.Append(context.Background(), v))
}

func TestCompareTallies(t *testing.T) {
	stored := domain.Tally{AnswerID: "a1", Upvotes: 2, Downvotes: 1, Finalized: true, Disposition: domain.DispositionFavorYes}

	assert.Empty(t, CompareTallies(stored, stored))

	replayed := stored
	replayed.Downvotes = 3
	replayed.Disposition = domain.DispositionFavorNo

	divergences := CompareTallies(stored, replayed)
	require.Len(t, divergences, 2)
	assert.Equal(t, "Downvotes", divergences[0].Field)
	assert.Equal(t, int64(1), divergences[0].Expected)
	assert.Equal(t, int64(3), divergences[0].Actual)
	assert.Equal(t, "Disposition", divergences[1].Field)
}

func TestReplayTally(t *testing.T) {
	votes := []*domain.Vote{
		{AnswerID: "a1", Validator: "v1", Verdict: false},
		{AnswerID: "a1", Validator: "v2", Verdict: false},
		{AnswerID: "a1", Validator: "v3", Verdict: true},
	}

	open := ReplayTally("a1", votes, false)
	assert.Equal(t, domain.DispositionPending, open.Disposition)
	assert.False(t, open.Finalized)

	final := ReplayTally("a1", votes, true)
	assert.True(t, final.Finalized)
	assert.Equal(t, domain.DispositionFavorNo, final.Disposition)
	assert.Equal(t, int64(1), final.Upvotes)
	assert.Equal(t, int64(2), final.Downvotes)
}

func TestCompareVoteLogs(t *testing.T) {
	primary := []*domain.Vote{
		{AnswerID: "a1", Validator: "v1", Verdict: true, CastAt: 1},
		{AnswerID: "a1", Validator: "v2", Verdict: false, CastAt: 2},
	}
	archived := []*domain.Vote{
		{AnswerID: "a1", Validator: "v2", Verdict: true, CastAt: 2},
		{AnswerID: "a1", Validator: "v3", Verdict: true, CastAt: 3},
	}

	divergences := CompareVoteLogs(primary, archived)
	require.Len(t, divergences, 3)
	assert.Equal(t, "Archive[v1]", divergences[0].Field)
	assert.Nil(t, divergences[0].Actual)
	assert.Equal(t, "Archive[v2]", divergences[1].Field)
	assert.Equal(t, "false@2", divergences[1].Expected)
	assert.Equal(t, "Archive[v3]", divergences[2].Field)
	assert.Nil(t, divergences[2].Expected)

	assert.Empty(t, CompareVoteLogs(primary, primary))
}

func TestReplayVerifier_VerifyAnswerMatch(t *testing.T) {
	f := newFixture(t)
	f.vote(t, "a1", "v1", true, 10)
	f.vote(t, "a1", "v2", true, 11)
	f.vote(t, "a1", "v3", false, 12)
	_, _, err := f.votes.Finalize(context.Background(), "a1")
	require.NoError(t, err)

	v := NewReplayVerifier(ReplayVerifierOptions{AnswerStore: f.answers, VoteStore: f.votes, Archive: f.archive})

	result, err := v.VerifyAnswer(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, result.Match, "divergences: %+v", result.Divergences)
	assert.Equal(t, domain.DispositionFavorYes, result.Replayed.Disposition)
	assert.Equal(t, result.Stored, result.Replayed)
}

func TestReplayVerifier_DetectsTallyDrift(t *testing.T) {
	f := newFixture(t)
	f.vote(t, "a1", "v1", false, 10)

	v := NewReplayVerifier(ReplayVerifierOptions{
		AnswerStore: f.answers,
		VoteStore:   skewedVotes{VoteStore: f.votes, extraUp: 2},
	})

	result, err := v.VerifyAnswer(context.Background(), "a1")
	require.NoError(t, err)
	assert.False(t, result.Match)
	require.Len(t, result.Divergences, 1)
	assert.Equal(t, "Upvotes", result.Divergences[0].Field)
	assert.Equal(t, int64(2), result.Divergences[0].Expected)
	assert.Equal(t, int64(0), result.Divergences[0].Actual)
}

func TestReplayVerifier_DetectsMissingArchiveEntry(t *testing.T) {
	f := newFixture(t)
	f.vote(t, "a1", "v1", true, 10)
	_, err := f.votes.RecordVote(context.Background(), &domain.Vote{AnswerID: "a1", Validator: "v2", Verdict: true, CastAt: 11})
	require.NoError(t, err)

	v := NewReplayVerifier(ReplayVerifierOptions{AnswerStore: f.answers, VoteStore: f.votes, Archive: f.archive})

	result, err := v.VerifyAnswer(context.Background(), "a1")
	require.NoError(t, err)
	assert.False(t, result.Match)
	require.Len(t, result.Divergences, 1)
	assert.Equal(t, "Archive[v2]", result.Divergences[0].Field)
}

func TestReplayVerifier_UnknownAnswer(t *testing.T) {
	f := newFixture(t)
	v := NewReplayVerifier(ReplayVerifierOptions{AnswerStore: f.answers, VoteStore: f.votes})

	_, err := v.VerifyAnswer(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrAnswerNotFound))
}

func TestReplayVerifier_VerifyAll(t *testing.T) {
	f := newFixture(t)
	f.vote(t, "a1", "v1", true, 10)
	f.vote(t, "a2", "v1", false, 10)

	v := NewReplayVerifier(ReplayVerifierOptions{
		AnswerStore: f.answers,
		VoteStore:   skewedVotes{VoteStore: f.votes, extraUp: 1},
		Archive:     f.archive,
	})

	report, err := v.VerifyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalAnswers)
	assert.Equal(t, 0, report.MatchedAnswers)
	assert.Equal(t, 2, report.DivergentAnswers)

	clean := NewReplayVerifier(ReplayVerifierOptions{AnswerStore: f.answers, VoteStore: f.votes, Archive: f.archive})
	report, err = clean.VerifyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.MatchedAnswers)
	assert.Len(t, report.Results, 2)
}
