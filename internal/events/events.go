// Package events publishes vote ledger transitions to external sinks.
package events

import (
	"encoding/json"

	"bounty-qa/internal/domain"
)

// Event types.
const (
	TypeVoteRecorded    = "vote_recorded"
	TypeAnswerFinalized = "answer_finalized"
)

// Event is the JSON payload published for each transition.
type Event struct {
	Type        string `json:"type"`
	AnswerID    string `json:"answer_id"`
	Validator   string `json:"validator,omitempty"`
	Verdict     *bool  `json:"verdict,omitempty"`
	CastAt      int64  `json:"cast_at,omitempty"`
	Upvotes     int64  `json:"upvotes"`
	Downvotes   int64  `json:"downvotes"`
	Disposition string `json:"disposition,omitempty"`
}

// VoteRecordedEvent builds the event for a recorded vote.
func VoteRecordedEvent(r domain.VoteReceipt) Event {
	verdict := r.Verdict
	return Event{
		Type:      TypeVoteRecorded,
		AnswerID:  r.AnswerID,
		Validator: r.Validator,
		Verdict:   &verdict,
		CastAt:    r.CastAt,
		Upvotes:   r.Upvotes,
		Downvotes: r.Downvotes,
	}
}

// AnswerFinalizedEvent builds the event for a finalization.
func AnswerFinalizedEvent(r domain.FinalizationResult) Event {
	return Event{
		Type:        TypeAnswerFinalized,
		AnswerID:    r.AnswerID,
		Upvotes:     r.Upvotes,
		Downvotes:   r.Downvotes,
		Disposition: r.Disposition.String(),
	}
}

// Encode marshals the event.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
