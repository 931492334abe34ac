package events

import (
	"context"
	"errors"
	"log/slog"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/observability"
	"bounty-qa/internal/storage"
)

// ArchiveNotifier copies every recorded vote into a VoteArchive.
type ArchiveNotifier struct {
	archive storage.VoteArchive
	logger  *slog.Logger
}

// NewArchiveNotifier creates an ArchiveNotifier.
func NewArchiveNotifier(archive storage.VoteArchive, logger *slog.Logger) *ArchiveNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveNotifier{archive: archive, logger: logger.With("component", "archive")}
}

// VoteRecorded implements voting.Notifier. A vote already archived is not
// an error.
func (n *ArchiveNotifier) VoteRecorded(ctx context.Context, r domain.VoteReceipt) {
	err := n.archive.Append(context.WithoutCancel(ctx), &domain.Vote{
		AnswerID:  r.AnswerID,
		Validator: r.Validator,
		Verdict:   r.Verdict,
		CastAt:    r.CastAt,
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		observability.RecordNotifyFailure("archive")
		n.logger.ErrorContext(ctx, "archive vote failed", "answer_id", r.AnswerID, "validator", r.Validator, "error", err)
	}
}

// AnswerFinalized implements voting.Notifier.
func (n *ArchiveNotifier) AnswerFinalized(context.Context, domain.FinalizationResult) {}
