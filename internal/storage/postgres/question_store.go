package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/storage"
)

// QuestionStore implements storage.QuestionStore using PostgreSQL.
type QuestionStore struct {
	pool *Pool
}

// NewQuestionStore creates a new QuestionStore.
func NewQuestionStore(pool *Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.QuestionStore = (*QuestionStore)(nil)

// Insert adds a new question. Returns ErrDuplicateKey if question_id exists.
func (s *QuestionStore) Insert(ctx context.Context, q *domain.Question) (err error) {
	defer observe("insert_question", time.Now(), &err)

	query := `
		INSERT INTO questions (question_id, title, body, bounty, author, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.pool.Exec(ctx, query,
		q.QuestionID,
		q.Title,
		q.Body,
		q.Bounty,
		q.Author,
		q.PostedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

// GetByID retrieves a question by its ID. Returns ErrNotFound if not exists.
func (s *QuestionStore) GetByID(ctx context.Context, questionID string) (*domain.Question, error) {
	query := `
		SELECT question_id, title, body, bounty, author, posted_at
		FROM questions
		WHERE question_id = $1
	`

	q, err := scanQuestion(s.pool.QueryRow(ctx, query, questionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get question by id: %w", err)
	}
	return q, nil
}

// GetAll retrieves all questions in insertion order.
func (s *QuestionStore) GetAll(ctx context.Context) ([]*domain.Question, error) {
	query := `
		SELECT question_id, title, body, bounty, author, posted_at
		FROM questions
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all questions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		result = append(result, q)
	}
	return result, rows.Err()
}

// scanQuestion scans a single row into a Question.
func scanQuestion(row pgx.Row) (*domain.Question, error) {
	var q domain.Question
	err := row.Scan(
		&q.QuestionID,
		&q.Title,
		&q.Body,
		&q.Bounty,
		&q.Author,
		&q.PostedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}
