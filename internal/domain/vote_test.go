package domain

import "testing"

func TestTallyVotes(t *testing.T) {
	votes := []*Vote{
		{AnswerID: "a1", Validator: "v1", Verdict: true},
		{AnswerID: "a1", Validator: "v2", Verdict: false},
		{AnswerID: "a1", Validator: "v3", Verdict: true},
		{AnswerID: "a2", Validator: "v1", Verdict: false}, // other answer
		{AnswerID: "a1", Validator: "v1", Verdict: false}, // repeated voter
		nil,
	}

	got := TallyVotes("a1", votes)
	if got.Upvotes != 2 || got.Downvotes != 1 {
		t.Errorf("tally = %d/%d, want 2/1", got.Upvotes, got.Downvotes)
	}
	if got.Finalized {
		t.Error("replayed tally must not be finalized")
	}
	if got.Disposition != DispositionPending {
		t.Errorf("disposition = %s, want pending", got.Disposition)
	}
	if got.Total() != 3 {
		t.Errorf("Total() = %d, want 3", got.Total())
	}
}

func TestTally_Apply(t *testing.T) {
	var tally Tally
	tally = tally.Apply(true).Apply(true).Apply(false)
	if tally.Upvotes != 2 || tally.Downvotes != 1 {
		t.Errorf("got %d/%d, want 2/1", tally.Upvotes, tally.Downvotes)
	}
}
