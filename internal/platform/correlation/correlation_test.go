package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.Len(t, id, 12)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestID(t *testing.T) {
	id, ok := ID(WithID(context.Background(), "abc123"))
	assert.True(t, ok)
	assert.Equal(t, "abc123", id)

	_, ok = ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.With("component", "voting").InfoContext(WithID(context.Background(), "req42"), "vote recorded")

	out := buf.String()
	assert.Contains(t, out, "correlation_id=req42")
	assert.Contains(t, out, "component=voting")
}

func TestHandler_NoID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "plain")
	assert.NotContains(t, buf.String(), "correlation_id")
}

func TestHandler_AddsAnswerAndValidator(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithID(context.Background(), "req42")
	ctx = WithAnswer(ctx, "000000000000000000000000000000ff")
	ctx = WithValidator(ctx, "0x3333333333333333333333333333333333333333")
	logger.InfoContext(ctx, "vote recorded")

	out := buf.String()
	assert.Contains(t, out, "correlation_id=req42")
	assert.Contains(t, out, "answer_id=000000000000000000000000000000ff")
	assert.Contains(t, out, "validator=0x3333333333333333333333333333333333333333")
}

func TestHandler_RecordKeyWins(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithAnswer(context.Background(), "aa")
	logger.InfoContext(ctx, "escrow settled", KeyAnswer, "bb")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "answer_id="))
	assert.Contains(t, out, "answer_id=bb")
}

func TestScope_DoesNotLeakBetweenContexts(t *testing.T) {
	base := WithID(context.Background(), "req42")
	a := WithAnswer(base, "aa")
	b := WithValidator(base, "0x1")

	assert.Equal(t, []string{"correlation_id=req42"}, render(Attrs(base)))
	assert.Equal(t, []string{"correlation_id=req42", "answer_id=aa"}, render(Attrs(a)))
	assert.Equal(t, []string{"correlation_id=req42", "validator=0x1"}, render(Attrs(b)))

	id, ok := ID(WithAnswer(a, "cc"))
	assert.True(t, ok)
	assert.Equal(t, "req42", id)
	assert.Empty(t, Attrs(context.Background()))
}

func render(attrs []slog.Attr) []string {
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a.String())
	}
	return out
}
