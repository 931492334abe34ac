package qa

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/idcodec"
	"bounty-qa/internal/ranking"
	"bounty-qa/internal/storage/memory"
)

const (
	now    = int64(1_700_000_000)
	author = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	expert = "0x1111111111111111111111111111111111111111"
)

func newTestService(t *testing.T) (*Service, *memory.VoteStore) {
	t.Helper()
	votes := memory.NewVoteStore()
	engine, err := ranking.NewEngine(ranking.DefaultDecayConstant)
	require.NoError(t, err)

	s, err := NewService(Options{
		Questions: memory.NewQuestionStore(),
		Answers:   memory.NewAnswerStore(),
		Votes:     votes,
		Engine:    engine,
		Clock:     clockwork.NewFakeClockAt(time.Unix(now, 0)),
	})
	require.NoError(t, err)
	return s, votes
}

func TestCreateQuestion(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	q, err := s.CreateQuestion(ctx, NewQuestion{Title: "Why?", Body: "Because.", Author: author, Bounty: 10})
	require.NoError(t, err)
	assert.NoError(t, idcodec.ValidateKey(q.QuestionID))
	assert.Equal(t, now, q.PostedAt)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", q.Author)

	got, err := s.GetQuestion(ctx, q.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, q, got)
}

func TestCreateQuestion_Validation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.CreateQuestion(ctx, NewQuestion{Title: " ", Author: author})
	assert.ErrorIs(t, err, ErrMissingField)

	for _, bounty := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err = s.CreateQuestion(ctx, NewQuestion{Title: "t", Author: author, Bounty: bounty})
		assert.ErrorIs(t, err, domain.ErrInvalidBounty)
	}

	_, err = s.CreateQuestion(ctx, NewQuestion{Title: "t", Author: "bob"})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestGetQuestion_Errors(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.GetQuestion(ctx, "65f1c2a9e4b0b2d3c4a5e6f7")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)

	_, err = s.GetQuestion(ctx, idcodec.NewKey())
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestListRanked(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	old := now - 13863
	fresh := now
	_, err := s.CreateQuestion(ctx, NewQuestion{Title: "old big", Author: author, Bounty: 100, PostedAt: &old})
	require.NoError(t, err)
	_, err = s.CreateQuestion(ctx, NewQuestion{Title: "fresh small", Author: author, Bounty: 60, PostedAt: &fresh})
	require.NoError(t, err)
	_, err = s.CreateQuestion(ctx, NewQuestion{Title: "free", Author: author, Bounty: 0})
	require.NoError(t, err)

	ranked, err := s.ListRanked(ctx)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "fresh small", ranked[0].Question.Title)
	assert.Equal(t, "old big", ranked[1].Question.Title)
	assert.InDelta(t, 50.0, ranked[1].Score, 0.01)
	assert.Equal(t, "free", ranked[2].Question.Title)
}

func TestCreateAnswer(t *testing.T) {
	s, votes := newTestService(t)
	ctx := context.Background()

	q, err := s.CreateQuestion(ctx, NewQuestion{Title: "q", Author: author, Bounty: 1})
	require.NoError(t, err)

	a, err := s.CreateAnswer(ctx, NewAnswer{QuestionID: q.QuestionID, Body: "42", Expert: expert, RewardEscrow: 1})
	require.NoError(t, err)
	assert.Equal(t, now, a.CreatedAt)

	// same expert again
	_, err = s.CreateAnswer(ctx, NewAnswer{QuestionID: q.QuestionID, Body: "43", Expert: expert})
	assert.ErrorIs(t, err, domain.ErrDuplicateAnswer)

	// another expert is allowed, with an independent tally
	b, err := s.CreateAnswer(ctx, NewAnswer{QuestionID: q.QuestionID, Body: "44", Expert: author})
	require.NoError(t, err)

	_, err = votes.RecordVote(ctx, &domain.Vote{AnswerID: a.AnswerID, Validator: "v", Verdict: true})
	require.NoError(t, err)

	views, err := s.ListAnswers(ctx, q.QuestionID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, a.AnswerID, views[0].AnswerID)
	assert.Equal(t, int64(1), views[0].Tally.Upvotes)
	assert.Equal(t, b.AnswerID, views[1].AnswerID)
	assert.Equal(t, int64(0), views[1].Tally.Total())
}

func TestCreateAnswer_Errors(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.CreateAnswer(ctx, NewAnswer{QuestionID: idcodec.NewKey(), Body: "x", Expert: expert})
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)

	_, err = s.CreateAnswer(ctx, NewAnswer{QuestionID: idcodec.NewKey(), Body: "", Expert: expert})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = s.GetAnswer(ctx, idcodec.NewKey())
	assert.ErrorIs(t, err, domain.ErrAnswerNotFound)
}

// stalledQuestions blocks every read until the context ends.
type stalledQuestions struct {
	*memory.QuestionStore
}

func (stalledQuestions) GetAll(ctx context.Context) ([]*domain.Question, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledQuestions) GetByID(ctx context.Context, _ string) (*domain.Question, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStoreCallsAreBounded(t *testing.T) {
	s, err := NewService(Options{
		Questions:    stalledQuestions{memory.NewQuestionStore()},
		Answers:      memory.NewAnswerStore(),
		Votes:        memory.NewVoteStore(),
		Clock:        clockwork.NewFakeClockAt(time.Unix(now, 0)),
		StoreTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.ListRanked(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
		assert.True(t, domain.Retryable(err))
	case <-time.After(2 * time.Second):
		t.Fatal("ListRanked did not honor the store timeout")
	}

	_, err = s.GetQuestion(context.Background(), idcodec.NewKey())
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)

	_, err = s.CreateAnswer(context.Background(), NewAnswer{QuestionID: idcodec.NewKey(), Body: "b", Expert: expert})
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestCallerDeadlineIsUpstreamTimeout(t *testing.T) {
	s, err := NewService(Options{
		Questions: stalledQuestions{memory.NewQuestionStore()},
		Answers:   memory.NewAnswerStore(),
		Votes:     memory.NewVoteStore(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.ListRanked(ctx)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}
