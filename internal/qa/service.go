// Package qa is the question and answer service: it validates and stores
// questions and answers and serves the decay-ranked question list.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/idcodec"
	"bounty-qa/internal/observability"
	"bounty-qa/internal/ranking"
	"bounty-qa/internal/storage"
)

// ErrMissingField is returned when a required text field is empty.
var ErrMissingField = errors.New("required field is empty")

// NewQuestion is the input to CreateQuestion.
type NewQuestion struct {
	Title  string
	Body   string
	Author string
	Bounty float64
	// PostedAt overrides the creation timestamp. Nil means now.
	PostedAt *int64
}

// NewAnswer is the input to CreateAnswer.
type NewAnswer struct {
	QuestionID   string
	Body         string
	Expert       string
	RewardEscrow float64
}

// DefaultStoreTimeout bounds each store call when Options.StoreTimeout is unset.
const DefaultStoreTimeout = 5 * time.Second

// Options configures a Service.
type Options struct {
	Questions storage.QuestionStore
	Answers   storage.AnswerStore
	Votes     storage.VoteStore
	Engine    *ranking.Engine
	Clock     clockwork.Clock

	// StoreTimeout bounds each store call.
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// Service implements question and answer operations.
type Service struct {
	questions    storage.QuestionStore
	answers      storage.AnswerStore
	votes        storage.VoteStore
	engine       *ranking.Engine
	clock        clockwork.Clock
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewService creates a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Questions == nil || opts.Answers == nil || opts.Votes == nil {
		return nil, errors.New("qa: questions, answers and votes stores are required")
	}
	s := &Service{
		questions:    opts.Questions,
		answers:      opts.Answers,
		votes:        opts.Votes,
		engine:       opts.Engine,
		clock:        opts.Clock,
		storeTimeout: opts.StoreTimeout,
		logger:       opts.Logger,
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = DefaultStoreTimeout
	}
	if s.engine == nil {
		engine, err := ranking.NewEngine(ranking.DefaultDecayConstant)
		if err != nil {
			return nil, err
		}
		s.engine = engine
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "qa")
	return s, nil
}

// CreateQuestion validates and stores a new question.
func (s *Service) CreateQuestion(ctx context.Context, in NewQuestion) (*domain.Question, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title: %w", ErrMissingField)
	}
	if err := checkAmount(in.Bounty); err != nil {
		return nil, err
	}
	author, err := domain.NormalizeAccount(in.Author)
	if err != nil {
		return nil, fmt.Errorf("author: %w", err)
	}

	postedAt := s.clock.Now().Unix()
	if in.PostedAt != nil {
		postedAt = *in.PostedAt
	}

	q := &domain.Question{
		QuestionID: idcodec.NewKey(),
		Title:      in.Title,
		Body:       in.Body,
		Bounty:     in.Bounty,
		Author:     author,
		PostedAt:   postedAt,
	}
	if err := s.exec(ctx, "insert question", func(ctx context.Context) error {
		return s.questions.Insert(ctx, q)
	}); err != nil {
		return nil, err
	}

	observability.RecordQuestionCreated()
	s.logger.InfoContext(ctx, "question created",
		"question_id", q.QuestionID, "author", author, "bounty", q.Bounty)
	return q, nil
}

// GetQuestion returns a question by ID.
func (s *Service) GetQuestion(ctx context.Context, questionID string) (*domain.Question, error) {
	if err := idcodec.ValidateKey(questionID); err != nil {
		return nil, err
	}
	q, err := bounded(ctx, s, "get question", func(ctx context.Context) (*domain.Question, error) {
		return s.questions.GetByID(ctx, questionID)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("question %s: %w", questionID, domain.ErrQuestionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListRanked returns all questions ordered by decayed bounty at the current
// instant, highest first.
func (s *Service) ListRanked(ctx context.Context) ([]ranking.Ranked, error) {
	questions, err := bounded(ctx, s, "list questions", s.questions.GetAll)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ranked := s.engine.Rank(questions, s.clock.Now().Unix())
	observability.RecordRankingLatency(time.Since(start).Seconds())
	return ranked, nil
}

// CreateAnswer stores an expert's answer. The question must exist and the
// expert must not have answered it before.
func (s *Service) CreateAnswer(ctx context.Context, in NewAnswer) (*domain.Answer, error) {
	if strings.TrimSpace(in.Body) == "" {
		return nil, fmt.Errorf("body: %w", ErrMissingField)
	}
	if err := checkAmount(in.RewardEscrow); err != nil {
		return nil, err
	}
	expert, err := domain.NormalizeAccount(in.Expert)
	if err != nil {
		return nil, fmt.Errorf("expert: %w", err)
	}
	if _, err := s.GetQuestion(ctx, in.QuestionID); err != nil {
		return nil, err
	}

	a := &domain.Answer{
		AnswerID:     idcodec.NewKey(),
		QuestionID:   in.QuestionID,
		Body:         in.Body,
		Expert:       expert,
		RewardEscrow: in.RewardEscrow,
		CreatedAt:    s.clock.Now().Unix(),
	}
	err = s.exec(ctx, "insert answer", func(ctx context.Context) error {
		return s.answers.Insert(ctx, a)
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("question %s, expert %s: %w", in.QuestionID, expert, domain.ErrDuplicateAnswer)
	}
	if err != nil {
		return nil, err
	}

	observability.RecordAnswerCreated()
	s.logger.InfoContext(ctx, "answer created",
		"answer_id", a.AnswerID, "question_id", a.QuestionID, "expert", expert)
	return a, nil
}

// GetAnswer returns an answer with its current tally.
func (s *Service) GetAnswer(ctx context.Context, answerID string) (*domain.AnswerView, error) {
	if err := idcodec.ValidateKey(answerID); err != nil {
		return nil, err
	}
	a, err := bounded(ctx, s, "get answer", func(ctx context.Context) (*domain.Answer, error) {
		return s.answers.GetByID(ctx, answerID)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("answer %s: %w", answerID, domain.ErrAnswerNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.view(ctx, a)
}

// ListAnswers returns the answers of a question in creation order.
func (s *Service) ListAnswers(ctx context.Context, questionID string) ([]*domain.AnswerView, error) {
	if _, err := s.GetQuestion(ctx, questionID); err != nil {
		return nil, err
	}
	answers, err := bounded(ctx, s, "list answers", func(ctx context.Context) ([]*domain.Answer, error) {
		return s.answers.GetByQuestionID(ctx, questionID)
	})
	if err != nil {
		return nil, err
	}

	views := make([]*domain.AnswerView, 0, len(answers))
	for _, a := range answers {
		v, err := s.view(ctx, a)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// AllAnswers returns every stored answer.
func (s *Service) AllAnswers(ctx context.Context) ([]*domain.Answer, error) {
	return bounded(ctx, s, "list all answers", s.answers.GetAll)
}

func (s *Service) view(ctx context.Context, a *domain.Answer) (*domain.AnswerView, error) {
	tally, err := bounded(ctx, s, "get tally", func(ctx context.Context) (domain.Tally, error) {
		return s.votes.GetTally(ctx, a.AnswerID)
	})
	if err != nil {
		return nil, err
	}
	return &domain.AnswerView{Answer: *a, Tally: tally}, nil
}

// bounded runs one store call under the store timeout. A deadline, whether
// the store's own or the caller's, surfaces as domain.ErrUpstreamTimeout.
func bounded[T any](ctx context.Context, s *Service, op string, fn func(context.Context) (T, error)) (T, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	v, err := fn(sctx)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return v, fmt.Errorf("%s: %w", op, domain.ErrUpstreamTimeout)
	}
	return v, fmt.Errorf("%s: %w", op, err)
}

func (s *Service) exec(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := bounded(ctx, s, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func checkAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidBounty, v)
	}
	return nil
}
