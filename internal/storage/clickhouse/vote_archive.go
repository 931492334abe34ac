package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/observability"
	"bounty-qa/internal/storage"
)

// VoteArchive implements storage.VoteArchive using ClickHouse.
// ReplacingMergeTree collapses rows that slip past the exists check; reads
// use FINAL so duplicates never reach callers.
type VoteArchive struct {
	conn *Conn
}

// NewVoteArchive creates a new VoteArchive.
func NewVoteArchive(conn *Conn) *VoteArchive {
	return &VoteArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.VoteArchive = (*VoteArchive)(nil)

// Append adds a vote. Returns ErrDuplicateKey if (answer_id, validator) exists.
func (s *VoteArchive) Append(ctx context.Context, v *domain.Vote) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "append_vote", time.Since(start).Seconds(), err)
	}()

	if v == nil || v.AnswerID == "" || v.Validator == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, v.AnswerID, v.Validator)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO vote_events (answer_id, validator, verdict, cast_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(v.AnswerID, v.Validator, boolToUint8(v.Verdict), v.CastAt); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByAnswerID retrieves archived votes for an answer in cast order.
func (s *VoteArchive) GetByAnswerID(ctx context.Context, answerID string) ([]*domain.Vote, error) {
	query := `
		SELECT answer_id, validator, verdict, cast_at
		FROM vote_events FINAL
		WHERE answer_id = ?
		ORDER BY cast_at ASC, validator ASC
	`

	rows, err := s.conn.Query(ctx, query, answerID)
	if err != nil {
		return nil, fmt.Errorf("query by answer id: %w", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// exists checks if a vote with the given key exists.
func (s *VoteArchive) exists(ctx context.Context, answerID, validator string) (bool, error) {
	query := `
		SELECT count(*) FROM vote_events
		WHERE answer_id = ? AND validator = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, answerID, validator).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanVotes scans rows into Vote slice.
func scanVotes(rows driver.Rows) ([]*domain.Vote, error) {
	var result []*domain.Vote
	for rows.Next() {
		var (
			v       domain.Vote
			verdict uint8
		)
		if err := rows.Scan(&v.AnswerID, &v.Validator, &verdict, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		v.Verdict = verdict == 1
		result = append(result, &v)
	}
	return result, rows.Err()
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
