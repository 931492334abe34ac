// Package escrow settles an answer's reward escrow on the ledger once its
// vote is finalized with a resolved disposition.
//
// Finalization only queues the answer; Run performs the ledger call in the
// background and periodically sweeps the stores for finalized, resolved
// answers that are not marked settled yet, so a failed or lost settlement
// is retried until the ledger accepts it.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/idcodec"
	"bounty-qa/internal/ledger"
	"bounty-qa/internal/observability"
	"bounty-qa/internal/platform/correlation"
	"bounty-qa/internal/platform/retry"
	"bounty-qa/internal/storage"
)

// Defaults for unset Options.
const (
	DefaultTimeout   = 5 * time.Second
	DefaultInterval  = time.Minute
	DefaultQueueSize = 256
)

// Options configures a Settler.
type Options struct {
	Ledger  ledger.Client
	Answers storage.AnswerStore
	Votes   storage.VoteStore

	// Timeout bounds each ledger and store call.
	Timeout time.Duration
	// Retry applies to SettleAnswer. The call is safe to repeat: the ledger
	// answers a second settlement with CodeAlreadySettled.
	Retry retry.Policy
	// Interval is the period of the sweep over unsettled answers.
	Interval  time.Duration
	QueueSize int
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Settler is a voting.Notifier that releases or returns reward escrow.
// Unresolved (tied) answers are left for manual resolution.
type Settler struct {
	ledger   ledger.Client
	answers  storage.AnswerStore
	votes    storage.VoteStore
	timeout  time.Duration
	policy   retry.Policy
	interval time.Duration
	clock    clockwork.Clock
	queue    chan string
	logger   *slog.Logger
}

// NewSettler creates a Settler.
func NewSettler(opts Options) (*Settler, error) {
	if opts.Ledger == nil || opts.Answers == nil || opts.Votes == nil {
		return nil, errors.New("escrow: ledger, answers and votes are required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Settler{
		ledger:   opts.Ledger,
		answers:  opts.Answers,
		votes:    opts.Votes,
		timeout:  opts.Timeout,
		policy:   opts.Retry,
		interval: opts.Interval,
		clock:    opts.Clock,
		queue:    make(chan string, opts.QueueSize),
		logger:   opts.Logger.With("component", "escrow"),
	}, nil
}

// VoteRecorded implements voting.Notifier.
func (s *Settler) VoteRecorded(context.Context, domain.VoteReceipt) {}

// AnswerFinalized implements voting.Notifier. It never blocks: when the
// queue is full the answer waits for the next sweep.
func (s *Settler) AnswerFinalized(ctx context.Context, r domain.FinalizationResult) {
	if !r.FirstTime {
		return
	}
	if !r.Disposition.Resolved() {
		s.logger.InfoContext(ctx, "escrow left for manual resolution",
			"answer_id", r.AnswerID, "upvotes", r.Upvotes, "downvotes", r.Downvotes)
		return
	}

	select {
	case s.queue <- r.AnswerID:
	default:
		s.logger.WarnContext(ctx, "settlement queue full, deferring to sweep", "answer_id", r.AnswerID)
	}
}

// Run settles queued answers and sweeps on every interval until ctx is
// done. The first sweep runs immediately.
func (s *Settler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case answerID := <-s.queue:
			if err := s.SettleAnswer(ctx, answerID); err != nil {
				s.logger.WarnContext(ctx, "escrow settlement failed, will retry on sweep",
					"answer_id", answerID, "error", err)
			}
		case <-ticker.Chan():
			s.sweep(ctx)
		}
	}
}

func (s *Settler) sweep(ctx context.Context) {
	settled, err := s.Sweep(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "settlement sweep incomplete", "settled", settled, "error", err)
		return
	}
	if settled > 0 {
		s.logger.InfoContext(ctx, "settlement sweep done", "settled", settled)
	}
}

// Sweep settles every finalized, resolved answer not yet marked settled.
// It returns the number settled and the joined errors of the rest.
func (s *Settler) Sweep(ctx context.Context) (int, error) {
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	answers, err := s.answers.GetAll(actx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list answers: %w", err)
	}

	var (
		settled int
		errs    []error
	)
	for _, a := range answers {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		done, err := s.settle(ctx, a.AnswerID)
		if err != nil {
			errs = append(errs, fmt.Errorf("answer %s: %w", a.AnswerID, err))
			continue
		}
		if done {
			settled++
		}
	}
	return settled, errors.Join(errs...)
}

// SettleAnswer settles one answer if it is finalized, resolved and not yet
// marked settled.
func (s *Settler) SettleAnswer(ctx context.Context, answerID string) error {
	_, err := s.settle(ctx, answerID)
	return err
}

// settle reports whether this call performed the settlement.
func (s *Settler) settle(ctx context.Context, answerID string) (bool, error) {
	ctx = correlation.WithAnswer(ctx, answerID)
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	tally, err := s.votes.GetTally(tctx, answerID)
	cancel()
	if err != nil {
		return false, fmt.Errorf("get tally: %w", err)
	}
	if !tally.Finalized || !tally.Disposition.Resolved() || tally.Settled {
		return false, nil
	}

	err = s.Settle(ctx, answerID, tally.Disposition == domain.DispositionFavorYes)
	observability.RecordSettlement(err)
	if err != nil {
		return false, err
	}

	mctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.votes.MarkSettled(mctx, answerID); err != nil {
		// The ledger side is done; the next sweep sees CodeAlreadySettled.
		return false, fmt.Errorf("mark settled: %w", err)
	}

	s.logger.InfoContext(ctx, "escrow settled", "answer_id", answerID, "disposition", tally.Disposition)
	return true, nil
}

// Settle calls the ledger for one answer. An escrow the ledger reports as
// already settled counts as success, which makes retries safe.
func (s *Settler) Settle(ctx context.Context, answerID string, favorExpert bool) error {
	key, err := idcodec.ToLedgerKey(answerID)
	if err != nil {
		return err
	}

	return retry.DoVoid(ctx, s.policy, retry.Timeouts, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		err := s.ledger.SettleAnswer(cctx, key, favorExpert)
		var rpcErr *ledger.RPCError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &rpcErr) && rpcErr.Code == ledger.CodeAlreadySettled:
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			return domain.ErrUpstreamTimeout
		default:
			return err
		}
	})
}
