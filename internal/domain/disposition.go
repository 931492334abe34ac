package domain

// Disposition is the reward-escrow outcome of a finalized answer.
type Disposition string

const (
	DispositionPending    Disposition = "pending"    // not finalized yet
	DispositionFavorYes   Disposition = "favor_yes"  // escrow released to the expert
	DispositionFavorNo    Disposition = "favor_no"   // escrow returned
	DispositionUnresolved Disposition = "unresolved" // tie, routed to manual resolution
)

// String returns the string representation of Disposition.
func (d Disposition) String() string {
	return string(d)
}

// IsValid checks if the disposition is a known value.
func (d Disposition) IsValid() bool {
	switch d {
	case DispositionPending, DispositionFavorYes, DispositionFavorNo, DispositionUnresolved:
		return true
	}
	return false
}

// Resolved reports whether the disposition settles escrow automatically.
func (d Disposition) Resolved() bool {
	return d == DispositionFavorYes || d == DispositionFavorNo
}

// DecideDisposition is the finalization rule: the verdict with strictly
// more votes wins, a tie (including 0:0) is unresolved.
func DecideDisposition(upvotes, downvotes int64) Disposition {
	switch {
	case upvotes > downvotes:
		return DispositionFavorYes
	case downvotes > upvotes:
		return DispositionFavorNo
	default:
		return DispositionUnresolved
	}
}

// VotingStatus is the lifecycle state of an answer's vote.
type VotingStatus string

const (
	VotingOpen      VotingStatus = "open"
	VotingClosed    VotingStatus = "closed"
	VotingFinalized VotingStatus = "finalized"
)

// VotingState is the result of a status query on an answer.
type VotingState struct {
	AnswerID string
	Status   VotingStatus
	ClosesAt int64 // last instant (seconds) at which votes are accepted
	Tally    Tally
}

// FinalizationResult is returned by finalize operations.
type FinalizationResult struct {
	AnswerID    string
	Upvotes     int64
	Downvotes   int64
	Disposition Disposition
	// FirstTime is false when the answer was already finalized.
	FirstTime bool
}
