// Package correlation carries request-scoped identifiers through contexts
// and into log records: the correlation ID of the HTTP request plus the
// answer and validator the request acts on.
package correlation

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Header is the HTTP header used to propagate correlation IDs.
const Header = "X-Correlation-ID"

// Log attribute keys added by Handler.
const (
	KeyID        = "correlation_id"
	KeyAnswer    = "answer_id"
	KeyValidator = "validator"
)

type scopeKey struct{}

// scope is copied on every With* call, so contexts never share one.
type scope struct {
	id        string
	answerID  string
	validator string
}

func scopeOf(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// NewID generates a 12-character hex correlation ID.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:6])
}

// WithID returns a context carrying the correlation ID.
func WithID(ctx context.Context, id string) context.Context {
	s := scopeOf(ctx)
	s.id = id
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithAnswer returns a context tagged with the answer being acted on.
func WithAnswer(ctx context.Context, answerID string) context.Context {
	s := scopeOf(ctx)
	s.answerID = answerID
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithValidator returns a context tagged with the voting account.
func WithValidator(ctx context.Context, account string) context.Context {
	s := scopeOf(ctx)
	s.validator = account
	return context.WithValue(ctx, scopeKey{}, s)
}

// ID extracts the correlation ID from ctx, returning ("", false) if not present.
func ID(ctx context.Context) (string, bool) {
	id := scopeOf(ctx).id
	return id, id != ""
}

// Attrs returns the non-empty identifiers in ctx as log attributes.
func Attrs(ctx context.Context) []slog.Attr {
	s := scopeOf(ctx)
	var attrs []slog.Attr
	if s.id != "" {
		attrs = append(attrs, slog.String(KeyID, s.id))
	}
	if s.answerID != "" {
		attrs = append(attrs, slog.String(KeyAnswer, s.answerID))
	}
	if s.validator != "" {
		attrs = append(attrs, slog.String(KeyValidator, s.validator))
	}
	return attrs
}

// Handler wraps a slog.Handler and adds the context's identifiers to each
// record. Keys the record already sets are not added twice.
type Handler struct {
	inner slog.Handler
}

// NewHandler creates a correlation-aware handler wrapping inner.
func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := Attrs(ctx); len(attrs) > 0 {
		seen := make(map[string]bool, r.NumAttrs())
		r.Attrs(func(a slog.Attr) bool {
			seen[a.Key] = true
			return true
		})
		for _, a := range attrs {
			if !seen[a.Key] {
				r.AddAttrs(a)
			}
		}
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
