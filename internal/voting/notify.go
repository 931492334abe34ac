package voting

import (
	"context"

	"bounty-qa/internal/domain"
)

// Notifier observes vote ledger transitions. Implementations must not block
// for long; they run on the caller's goroutine after the state change has
// committed, and their failures never undo it.
type Notifier interface {
	VoteRecorded(ctx context.Context, r domain.VoteReceipt)
	AnswerFinalized(ctx context.Context, r domain.FinalizationResult)
}

// Notifiers fans every event out to each notifier in order.
type Notifiers []Notifier

// VoteRecorded implements Notifier.
func (ns Notifiers) VoteRecorded(ctx context.Context, r domain.VoteReceipt) {
	for _, n := range ns {
		if n != nil {
			n.VoteRecorded(ctx, r)
		}
	}
}

// AnswerFinalized implements Notifier.
func (ns Notifiers) AnswerFinalized(ctx context.Context, r domain.FinalizationResult) {
	for _, n := range ns {
		if n != nil {
			n.AnswerFinalized(ctx, r)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) VoteRecorded(context.Context, domain.VoteReceipt) {}

func (nopNotifier) AnswerFinalized(context.Context, domain.FinalizationResult) {}
