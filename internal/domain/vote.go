package domain

// Vote is a single validator's correctness judgment on an answer.
// Unique per (AnswerID, Validator); never overwritten.
type Vote struct {
	AnswerID  string // answer store key
	Validator string // checksummed account address
	Verdict   bool   // true = answer judged correct
	CastAt    int64  // Unix timestamp (seconds) of the logical operation
}

// Tally is the per-answer vote state owned by the vote ledger.
type Tally struct {
	AnswerID    string
	Upvotes     int64
	Downvotes   int64
	Finalized   bool
	Disposition Disposition // DispositionPending until finalized
	Settled     bool        // escrow settled on the ledger
}

// Total returns the number of votes counted.
func (t Tally) Total() int64 {
	return t.Upvotes + t.Downvotes
}

// Apply returns the tally with one more vote counted.
func (t Tally) Apply(verdict bool) Tally {
	if verdict {
		t.Upvotes++
	} else {
		t.Downvotes++
	}
	return t
}

// TallyVotes rebuilds the counters for answerID from a vote log.
// Votes for other answers and repeated voters are ignored, mirroring the
// uniqueness constraint enforced at write time.
func TallyVotes(answerID string, votes []*Vote) Tally {
	t := Tally{AnswerID: answerID, Disposition: DispositionPending}
	seen := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		if v == nil || v.AnswerID != answerID {
			continue
		}
		if _, dup := seen[v.Validator]; dup {
			continue
		}
		seen[v.Validator] = struct{}{}
		t = t.Apply(v.Verdict)
	}
	return t
}

// VoteReceipt echoes a recorded vote and the post-increment tally.
type VoteReceipt struct {
	AnswerID  string
	Validator string
	Verdict   bool
	CastAt    int64
	Upvotes   int64
	Downvotes int64
}
