package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/storage"
)

// Key layout per answer. The {answerID} hash tag keeps all keys of one
// answer on the same cluster slot so scripts and transactions can span them.
func votersKey(answerID string) string { return "vote:{" + answerID + "}:voters" }
func tallyKey(answerID string) string { return "vote:{" + answerID + "}:tally" }
func logKey(answerID string) string { return "vote:{" + answerID + "}:log" }

// Status codes returned by recordVoteScript.
const (
	statusRecorded  = 0
	statusDuplicate = -1
	statusFinalized = -2
)

// recordVoteScript is the compare-and-append step: uniqueness check,
// finalized check, voter insertion, counter increment and log append.
// KEYS: [1]=voters set, [2]=tally hash, [3]=log list
// ARGV: [1]=validator, [2]=counter field ("up"|"down"), [3]=log entry JSON
// Returns {status, up, down}.
var recordVoteScript = goredis.NewScript(`
local function counters()
  local up = tonumber(redis.call('HGET', KEYS[2], 'up')) or 0
  local down = tonumber(redis.call('HGET', KEYS[2], 'down')) or 0
  return up, down
end
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
  local up, down = counters()
  return {-1, up, down}
end
if redis.call('HGET', KEYS[2], 'finalized') == '1' then
  local up, down = counters()
  return {-2, up, down}
end
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('HINCRBY', KEYS[2], ARGV[2], 1)
redis.call('RPUSH', KEYS[3], ARGV[3])
local up, down = counters()
return {0, up, down}
`)

// markSettledScript sets the settled flag only on a finalized tally.
// KEYS: [1]=tally hash. Returns 1 when finalized, 0 otherwise.
var markSettledScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'finalized') ~= '1' then
  return 0
end
redis.call('HSET', KEYS[1], 'settled', '1')
return 1
`)

// maxFinalizeAttempts bounds optimistic transaction retries in Finalize.
const maxFinalizeAttempts = 16

// logEntry is the JSON form of a vote in the per-answer log list.
type logEntry struct {
	Validator string `json:"validator"`
	Verdict   bool   `json:"verdict"`
	CastAt    int64  `json:"cast_at"`
}

// VoteStore implements storage.VoteStore on Redis.
type VoteStore struct {
	rdb *goredis.Client
}

// NewVoteStore creates a new VoteStore.
func NewVoteStore(rdb *goredis.Client) *VoteStore {
	return &VoteStore{rdb: rdb}
}

// Compile-time interface check.
var _ storage.VoteStore = (*VoteStore)(nil)

// HasVoted reports whether a vote exists for (answerID, validator).
func (s *VoteStore) HasVoted(ctx context.Context, answerID, validator string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, votersKey(answerID), validator).Result()
	if err != nil {
		return false, fmt.Errorf("check voter: %w", err)
	}
	return ok, nil
}

// RecordVote runs the compare-and-append script.
func (s *VoteStore) RecordVote(ctx context.Context, v *domain.Vote) (domain.Tally, error) {
	if v == nil || v.AnswerID == "" || v.Validator == "" {
		return domain.Tally{}, storage.ErrInvalidInput
	}

	entry, err := json.Marshal(logEntry{Validator: v.Validator, Verdict: v.Verdict, CastAt: v.CastAt})
	if err != nil {
		return domain.Tally{}, fmt.Errorf("encode vote: %w", err)
	}

	field := "down"
	if v.Verdict {
		field = "up"
	}

	res, err := recordVoteScript.Run(ctx, s.rdb,
		[]string{votersKey(v.AnswerID), tallyKey(v.AnswerID), logKey(v.AnswerID)},
		v.Validator, field, string(entry),
	).Int64Slice()
	if err != nil {
		return domain.Tally{}, fmt.Errorf("record vote script: %w", err)
	}
	if len(res) != 3 {
		return domain.Tally{}, fmt.Errorf("record vote script: unexpected reply %v", res)
	}

	tally := domain.Tally{
		AnswerID:    v.AnswerID,
		Upvotes:     res[1],
		Downvotes:   res[2],
		Disposition: domain.DispositionPending,
	}
	switch res[0] {
	case statusRecorded:
		return tally, nil
	case statusDuplicate:
		return tally, storage.ErrDuplicateKey
	case statusFinalized:
		return tally, storage.ErrFinalized
	default:
		return domain.Tally{}, fmt.Errorf("record vote script: unknown status %d", res[0])
	}
}

// GetTally returns the current tally for an answer.
func (s *VoteStore) GetTally(ctx context.Context, answerID string) (domain.Tally, error) {
	return readTally(ctx, s.rdb, answerID)
}

// GetVotes retrieves the vote log for an answer in cast order.
func (s *VoteStore) GetVotes(ctx context.Context, answerID string) ([]*domain.Vote, error) {
	raw, err := s.rdb.LRange(ctx, logKey(answerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get votes: %w", err)
	}

	votes := make([]*domain.Vote, 0, len(raw))
	for _, item := range raw {
		var e logEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode vote: %w", err)
		}
		votes = append(votes, &domain.Vote{
			AnswerID:  answerID,
			Validator: e.Validator,
			Verdict:   e.Verdict,
			CastAt:    e.CastAt,
		})
	}
	return votes, nil
}

// Finalize marks the answer finalized inside a WATCH transaction on the
// tally hash, so a concurrent vote either lands before the decision or is
// rejected as finalized. First writer wins.
func (s *VoteStore) Finalize(ctx context.Context, answerID string) (domain.Tally, bool, error) {
	if answerID == "" {
		return domain.Tally{}, false, storage.ErrInvalidInput
	}

	key := tallyKey(answerID)
	var (
		result domain.Tally
		first  bool
	)
	txf := func(tx *goredis.Tx) error {
		t, err := readTally(ctx, tx, answerID)
		if err != nil {
			return err
		}
		if t.Finalized {
			result, first = t, false
			return nil
		}

		t.Finalized = true
		t.Disposition = domain.DecideDisposition(t.Upvotes, t.Downvotes)
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, "finalized", "1", "disposition", string(t.Disposition))
			return nil
		})
		if err != nil {
			return err
		}
		result, first = t, true
		return nil
	}

	for attempt := 0; attempt < maxFinalizeAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return result, first, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return domain.Tally{}, false, fmt.Errorf("finalize: %w", err)
	}
	return domain.Tally{}, false, fmt.Errorf("finalize: %w", goredis.TxFailedErr)
}

// MarkSettled records the escrow settlement of a finalized answer.
func (s *VoteStore) MarkSettled(ctx context.Context, answerID string) error {
	ok, err := markSettledScript.Run(ctx, s.rdb, []string{tallyKey(answerID)}).Int()
	if err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	if ok == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// hashReader is satisfied by *goredis.Client and *goredis.Tx.
type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *goredis.SliceCmd
}

// readTally loads the tally hash. A missing hash is a zero, pending tally.
func readTally(ctx context.Context, c hashReader, answerID string) (domain.Tally, error) {
	vals, err := c.HMGet(ctx, tallyKey(answerID), "up", "down", "finalized", "disposition", "settled").Result()
	if err != nil {
		return domain.Tally{}, fmt.Errorf("get tally: %w", err)
	}

	t := domain.Tally{AnswerID: answerID, Disposition: domain.DispositionPending}
	if t.Upvotes, err = int64Field(vals[0]); err != nil {
		return domain.Tally{}, fmt.Errorf("get tally: up: %w", err)
	}
	if t.Downvotes, err = int64Field(vals[1]); err != nil {
		return domain.Tally{}, fmt.Errorf("get tally: down: %w", err)
	}
	if f, ok := vals[2].(string); ok && f == "1" {
		t.Finalized = true
	}
	if d, ok := vals[3].(string); ok && d != "" {
		t.Disposition = domain.Disposition(d)
	}
	if f, ok := vals[4].(string); ok && f == "1" {
		t.Settled = true
	}
	return t, nil
}

func int64Field(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
