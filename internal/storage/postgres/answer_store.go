package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/storage"
)

// AnswerStore implements storage.AnswerStore using PostgreSQL.
type AnswerStore struct {
	pool *Pool
}

// NewAnswerStore creates a new AnswerStore.
func NewAnswerStore(pool *Pool) *AnswerStore {
	return &AnswerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AnswerStore = (*AnswerStore)(nil)

const answerColumns = `answer_id, question_id, body, expert, reward_escrow, created_at`

// Insert adds a new answer. Returns ErrDuplicateKey if answer_id exists or
// the expert already answered the question (answers_question_expert_key).
func (s *AnswerStore) Insert(ctx context.Context, a *domain.Answer) (err error) {
	defer observe("insert_answer", time.Now(), &err)

	query := `
		INSERT INTO answers (` + answerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.pool.Exec(ctx, query,
		a.AnswerID,
		a.QuestionID,
		a.Body,
		a.Expert,
		a.RewardEscrow,
		a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

// GetByID retrieves an answer by its ID. Returns ErrNotFound if not exists.
func (s *AnswerStore) GetByID(ctx context.Context, answerID string) (*domain.Answer, error) {
	query := `SELECT ` + answerColumns + ` FROM answers WHERE answer_id = $1`

	a, err := scanAnswer(s.pool.QueryRow(ctx, query, answerID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get answer by id: %w", err)
	}
	return a, nil
}

// GetByQuestionID retrieves all answers for a question in insertion order.
func (s *AnswerStore) GetByQuestionID(ctx context.Context, questionID string) ([]*domain.Answer, error) {
	query := `SELECT ` + answerColumns + ` FROM answers WHERE question_id = $1 ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("get answers by question: %w", err)
	}
	defer rows.Close()

	return scanAnswers(rows)
}

// GetAll retrieves all answers in insertion order.
func (s *AnswerStore) GetAll(ctx context.Context) ([]*domain.Answer, error) {
	query := `SELECT ` + answerColumns + ` FROM answers ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all answers: %w", err)
	}
	defer rows.Close()

	return scanAnswers(rows)
}

// scanAnswer scans a single row into an Answer.
func scanAnswer(row pgx.Row) (*domain.Answer, error) {
	var a domain.Answer
	err := row.Scan(
		&a.AnswerID,
		&a.QuestionID,
		&a.Body,
		&a.Expert,
		&a.RewardEscrow,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// scanAnswers scans multiple rows into Answers.
func scanAnswers(rows pgx.Rows) ([]*domain.Answer, error) {
	var result []*domain.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
