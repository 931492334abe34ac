package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/storage"
)

// VoteStore implements storage.VoteStore using PostgreSQL.
// Every mutation locks the answer's answer_tallies row, which serializes
// votes per answer while different answers proceed in parallel.
type VoteStore struct {
	pool *Pool
}

// NewVoteStore creates a new VoteStore.
func NewVoteStore(pool *Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VoteStore = (*VoteStore)(nil)

// HasVoted reports whether a vote exists for (answerID, validator).
func (s *VoteStore) HasVoted(ctx context.Context, answerID, validator string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM votes WHERE answer_id = $1 AND validator = $2)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, answerID, validator).Scan(&exists); err != nil {
		return false, fmt.Errorf("check vote exists: %w", err)
	}
	return exists, nil
}

// RecordVote appends the vote and increments the counter in one transaction.
func (s *VoteStore) RecordVote(ctx context.Context, v *domain.Vote) (tally domain.Tally, err error) {
	defer observe("record_vote", time.Now(), &err)

	if v == nil || v.AnswerID == "" || v.Validator == "" {
		return domain.Tally{}, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tally, err = lockTally(ctx, tx, v.AnswerID)
	if err != nil {
		return domain.Tally{}, err
	}

	var voted bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM votes WHERE answer_id = $1 AND validator = $2)`,
		v.AnswerID, v.Validator,
	).Scan(&voted)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("check vote exists: %w", err)
	}
	if voted {
		return tally, storage.ErrDuplicateKey
	}
	if tally.Finalized {
		return tally, storage.ErrFinalized
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO votes (answer_id, validator, verdict, cast_at)
		VALUES ($1, $2, $3, $4)
	`, v.AnswerID, v.Validator, v.Verdict, v.CastAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return tally, storage.ErrDuplicateKey
		}
		return domain.Tally{}, fmt.Errorf("insert vote: %w", err)
	}

	up, down := int64(0), int64(0)
	if v.Verdict {
		up = 1
	} else {
		down = 1
	}
	err = tx.QueryRow(ctx, `
		UPDATE answer_tallies
		SET upvotes = upvotes + $2, downvotes = downvotes + $3
		WHERE answer_id = $1
		RETURNING upvotes, downvotes
	`, v.AnswerID, up, down).Scan(&tally.Upvotes, &tally.Downvotes)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("increment tally: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Tally{}, fmt.Errorf("commit vote: %w", err)
	}
	return tally, nil
}

// GetTally returns the current tally for an answer.
func (s *VoteStore) GetTally(ctx context.Context, answerID string) (domain.Tally, error) {
	query := `
		SELECT upvotes, downvotes, finalized, disposition, settled_at IS NOT NULL
		FROM answer_tallies
		WHERE answer_id = $1
	`

	t, err := scanTally(s.pool.QueryRow(ctx, query, answerID), answerID)
	if err != nil {
		if isNotFoundError(err) {
			return domain.Tally{AnswerID: answerID, Disposition: domain.DispositionPending}, nil
		}
		return domain.Tally{}, fmt.Errorf("get tally: %w", err)
	}
	return t, nil
}

// GetVotes retrieves the vote log for an answer in cast order.
func (s *VoteStore) GetVotes(ctx context.Context, answerID string) ([]*domain.Vote, error) {
	query := `
		SELECT answer_id, validator, verdict, cast_at
		FROM votes
		WHERE answer_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, answerID)
	if err != nil {
		return nil, fmt.Errorf("get votes: %w", err)
	}
	defer rows.Close()

	var result []*domain.Vote
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.AnswerID, &v.Validator, &v.Verdict, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		result = append(result, &v)
	}
	return result, rows.Err()
}

// Finalize marks the answer finalized. First writer wins.
func (s *VoteStore) Finalize(ctx context.Context, answerID string) (tally domain.Tally, first bool, err error) {
	defer observe("finalize", time.Now(), &err)

	if answerID == "" {
		return domain.Tally{}, false, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Tally{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tally, err = lockTally(ctx, tx, answerID)
	if err != nil {
		return domain.Tally{}, false, err
	}
	if tally.Finalized {
		return tally, false, nil
	}

	tally.Finalized = true
	tally.Disposition = domain.DecideDisposition(tally.Upvotes, tally.Downvotes)
	_, err = tx.Exec(ctx, `
		UPDATE answer_tallies
		SET finalized = TRUE, disposition = $2, finalized_at = now()
		WHERE answer_id = $1
	`, answerID, string(tally.Disposition))
	if err != nil {
		return domain.Tally{}, false, fmt.Errorf("finalize tally: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Tally{}, false, fmt.Errorf("commit finalize: %w", err)
	}
	return tally, true, nil
}

// MarkSettled records the escrow settlement of a finalized answer. The first
// settlement time is kept.
func (s *VoteStore) MarkSettled(ctx context.Context, answerID string) (err error) {
	defer observe("mark_settled", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `
		UPDATE answer_tallies
		SET settled_at = COALESCE(settled_at, now())
		WHERE answer_id = $1 AND finalized
	`, answerID)
	if err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// lockTally ensures the tally row exists and locks it for the transaction.
func lockTally(ctx context.Context, tx pgx.Tx, answerID string) (domain.Tally, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO answer_tallies (answer_id) VALUES ($1) ON CONFLICT (answer_id) DO NOTHING`,
		answerID,
	)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("ensure tally row: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT upvotes, downvotes, finalized, disposition, settled_at IS NOT NULL
		FROM answer_tallies
		WHERE answer_id = $1
		FOR UPDATE
	`, answerID)
	t, err := scanTally(row, answerID)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("lock tally: %w", err)
	}
	return t, nil
}

// scanTally scans a single row into a Tally.
func scanTally(row pgx.Row, answerID string) (domain.Tally, error) {
	t := domain.Tally{AnswerID: answerID}
	var disposition string
	if err := row.Scan(&t.Upvotes, &t.Downvotes, &t.Finalized, &disposition, &t.Settled); err != nil {
		return domain.Tally{}, err
	}
	t.Disposition = domain.Disposition(disposition)
	return t, nil
}
