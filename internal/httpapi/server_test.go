package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bounty-qa/internal/broadcast"
	"bounty-qa/internal/platform/correlation"
	"bounty-qa/internal/ledger/stub"
	"bounty-qa/internal/qa"
	"bounty-qa/internal/registry"
	"bounty-qa/internal/storage/memory"
	"bounty-qa/internal/voting"
)

const (
	start  = int64(1_700_000_000)
	window = time.Hour

	author    = "0x1111111111111111111111111111111111111111"
	expert    = "0x2222222222222222222222222222222222222222"
	validator = "0x3333333333333333333333333333333333333333"
	outsider  = "0x9999999999999999999999999999999999999999"
)

type testServer struct {
	srv    *httptest.Server
	clock  *clockwork.FakeClock
	stub   *stub.Ledger
	hub    *broadcast.Hub
	health []HealthCheck
}

func newTestServer(t *testing.T, health ...HealthCheck) *testServer {
	t.Helper()
	return newLoggedTestServer(t, slog.New(slog.NewTextHandler(io.Discard, nil)), health...)
}

func newLoggedTestServer(t *testing.T, logger *slog.Logger, health ...HealthCheck) *testServer {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Unix(start, 0))

	questions := memory.NewQuestionStore()
	answers := memory.NewAnswerStore()
	votes := memory.NewVoteStore()

	chain := stub.NewLedger(uint256.NewInt(1000), window)
	chain.SetStake(validator, uint256.NewInt(5000))
	reg := registry.New(registry.Options{Ledger: chain, Logger: logger})

	hub := broadcast.NewHub(broadcast.Options{Clock: clock, Logger: logger})
	t.Cleanup(hub.Close)

	ledger, err := voting.NewLedger(voting.Options{
		Answers:  answers,
		Votes:    votes,
		Registry: reg,
		Clock:    clock,
		Notifier: hub,
		Logger:   logger,
	})
	require.NoError(t, err)

	svc, err := qa.NewService(qa.Options{
		Questions: questions,
		Answers:   answers,
		Votes:     votes,
		Clock:     clock,
		Logger:    logger,
	})
	require.NoError(t, err)

	server, err := NewServer(Options{
		QA:       svc,
		Ledger:   ledger,
		Registry: reg,
		Hub:      hub,
		Health:   health,
		Clock:    clock,
		Logger:   logger,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testServer{srv: ts, clock: clock, stub: chain, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) createQuestion(t *testing.T, title string, bounty float64) questionResponse {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/questions", map[string]any{
		"title":  title,
		"body":   "body",
		"author": author,
		"bounty": bounty,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[questionResponse](t, resp)
}

func (ts *testServer) createAnswer(t *testing.T, questionID string) answerResponse {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/answers", map[string]any{
		"question_id":   questionID,
		"body":          "answer",
		"expert":        expert,
		"reward_escrow": 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[answerResponse](t, resp)
}

func TestQuestionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	q := ts.createQuestion(t, "How do I stake?", 100)
	assert.Len(t, q.QuestionID, 32)
	assert.Equal(t, start, q.PostedAt)

	resp := ts.do(t, http.MethodGet, "/api/questions/"+q.QuestionID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[questionResponse](t, resp)
	assert.Equal(t, "How do I stake?", got.Title)
	assert.Nil(t, got.Score)

	a := ts.createAnswer(t, q.QuestionID)
	assert.Equal(t, q.QuestionID, a.QuestionID)
	assert.Equal(t, "pending", a.Tally.Disposition)

	resp = ts.do(t, http.MethodGet, "/api/questions/"+q.QuestionID+"/answers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]answerResponse](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, a.AnswerID, list[0].AnswerID)
}

func TestListQuestionsRanked(t *testing.T) {
	ts := newTestServer(t)

	ts.createQuestion(t, "old big", 100)
	ts.clock.Advance(48 * time.Hour)
	ts.createQuestion(t, "new small", 50)

	resp := ts.do(t, http.MethodGet, "/api/questions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]questionResponse](t, resp)

	require.Len(t, list, 2)
	assert.Equal(t, "new small", list[0].Title)
	require.NotNil(t, list[0].Score)
	require.NotNil(t, list[1].Score)
	assert.Greater(t, *list[0].Score, *list[1].Score)
}

func TestCreateQuestionValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
		kind string
	}{
		{"missing title", map[string]any{"author": author, "bounty": 1}, "missing_field"},
		{"negative bounty", map[string]any{"title": "t", "author": author, "bounty": -1}, "invalid_bounty"},
		{"bad author", map[string]any{"title": "t", "author": "nobody", "bounty": 1}, "invalid_identifier"},
		{"malformed json", "not an object", "invalid_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/api/questions", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.kind, decode[errorResponse](t, resp).Error)
		})
	}
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t)
	missing := "0123456789abcdef0123456789abcdef"

	resp := ts.do(t, http.MethodGet, "/api/questions/"+missing, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "question_not_found", decode[errorResponse](t, resp).Error)

	resp = ts.do(t, http.MethodGet, "/api/answers/"+missing, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "answer_not_found", decode[errorResponse](t, resp).Error)

	resp = ts.do(t, http.MethodGet, "/api/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[errorResponse](t, resp).Error)

	resp = ts.do(t, http.MethodGet, "/api/answers/not-a-key/status", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_identifier", decode[errorResponse](t, resp).Error)
}

func TestDuplicateAnswer(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuestion(t, "q", 10)
	ts.createAnswer(t, q.QuestionID)

	resp := ts.do(t, http.MethodPost, "/api/answers", map[string]any{
		"question_id": q.QuestionID,
		"body":        "again",
		"expert":      expert,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate_answer", decode[errorResponse](t, resp).Error)
}

func TestVotingFlow(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuestion(t, "q", 10)
	a := ts.createAnswer(t, q.QuestionID)
	votesPath := "/api/answers/" + a.AnswerID + "/votes"

	resp := ts.do(t, http.MethodPost, votesPath, map[string]any{"validator": validator, "verdict": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	receipt := decode[receiptResponse](t, resp)
	assert.Equal(t, int64(1), receipt.Upvotes)
	assert.Equal(t, start, receipt.CastAt)

	resp = ts.do(t, http.MethodPost, votesPath, map[string]any{"validator": validator, "verdict": false})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_voted", decode[errorResponse](t, resp).Error)

	resp = ts.do(t, http.MethodPost, votesPath, map[string]any{"validator": outsider, "verdict": true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "not_a_validator", decode[errorResponse](t, resp).Error)

	resp = ts.do(t, http.MethodPost, votesPath, map[string]any{"validator": validator})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_body", decode[errorResponse](t, resp).Error)

	resp = ts.do(t, http.MethodPost, "/api/answers/"+a.AnswerID+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "voting_open", decode[errorResponse](t, resp).Error)

	resp = ts.do(t, http.MethodGet, "/api/answers/"+a.AnswerID+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[statusResponse](t, resp)
	assert.Equal(t, "open", status.Status)
	assert.Equal(t, int64(1), status.Tally.Upvotes)

	ts.clock.Advance(window + time.Second)

	resp = ts.do(t, http.MethodGet, "/api/answers/"+a.AnswerID+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = decode[statusResponse](t, resp)
	assert.Equal(t, "finalized", status.Status)
	assert.Equal(t, "favor_yes", status.Tally.Disposition)

	resp = ts.do(t, http.MethodPost, "/api/answers/"+a.AnswerID+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[finalizationResponse](t, resp)
	assert.False(t, result.FirstTime)
	assert.Equal(t, "favor_yes", result.Disposition)

	resp = ts.do(t, http.MethodGet, votesPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	votes := decode[[]voteResponse](t, resp)
	require.Len(t, votes, 1)
	assert.Equal(t, validator, votes[0].Validator)
	assert.True(t, votes[0].Verdict)
}

func TestValidatorStaking(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/validators/"+outsider, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decode[validatorResponse](t, resp)
	assert.False(t, v.IsValidator)
	assert.Equal(t, "0", v.StakedAmount)

	resp = ts.do(t, http.MethodPost, "/api/validators/"+outsider+"/stake", map[string]any{"amount": "1500"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v = decode[validatorResponse](t, resp)
	assert.True(t, v.IsValidator)
	assert.Equal(t, "1500", v.StakedAmount)

	resp = ts.do(t, http.MethodPost, "/api/validators/"+outsider+"/unstake", map[string]any{"amount": "1000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v = decode[validatorResponse](t, resp)
	assert.False(t, v.IsValidator)
	assert.Equal(t, "500", v.StakedAmount)

	resp = ts.do(t, http.MethodPost, "/api/validators/"+outsider+"/unstake", map[string]any{"amount": "9999"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "ledger_rejected", decode[errorResponse](t, resp).Error)

	resp = ts.do(t, http.MethodPost, "/api/validators/"+outsider+"/stake", map[string]any{"amount": "12abc"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_amount", decode[errorResponse](t, resp).Error)
}

func TestRegistryTimeoutIsRetryable(t *testing.T) {
	ts := newTestServer(t)
	ts.stub.FailGetValidator = func() error { return context.DeadlineExceeded }

	resp := ts.do(t, http.MethodGet, "/api/validators/"+validator, nil)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Equal(t, "upstream_timeout", body.Error)
	assert.True(t, body.Retryable)
}

func TestCorrelationHeader(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(correlation.Header, "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(correlation.Header))

	resp2 := ts.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, resp2.Header.Get(correlation.Header))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRequestLogsCarryAnswerAndValidator(t *testing.T) {
	var out syncBuffer
	logger := slog.New(correlation.NewHandler(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ts := newLoggedTestServer(t, logger)

	const missing = "000000000000000000000000000000ff"
	resp := ts.do(t, http.MethodPost, "/api/answers/"+missing+"/votes", map[string]any{
		"validator": validator,
		"verdict":   true,
	})
	resp.Body.Close()
	require.GreaterOrEqual(t, resp.StatusCode, 400)

	logs := out.String()
	assert.Contains(t, logs, "answer_id="+missing)
	assert.Contains(t, logs, "validator="+validator)
	assert.Contains(t, logs, "correlation_id=")

	resp = ts.do(t, http.MethodGet, "/api/validators/"+outsider, nil)
	resp.Body.Close()
	assert.Contains(t, out.String(), "validator="+outsider)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]any](t, resp)["status"])

	failing := newTestServer(t, HealthCheck{
		Name:  "postgres",
		Check: func(context.Context) error { return errors.New("connection refused") },
	})
	resp = failing.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "postgres", decode[map[string]any](t, resp)["failed_check"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestWebSocketTallyUpdates(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuestion(t, "q", 10)
	a := ts.createAnswer(t, q.QuestionID)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/answers/" + a.AnswerID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.hub.Count(a.AnswerID) == 1 }, time.Second, 10*time.Millisecond)

	resp := ts.do(t, http.MethodPost, "/api/answers/"+a.AnswerID+"/votes", map[string]any{"validator": validator, "verdict": false})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var update broadcast.TallyUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, a.AnswerID, update.AnswerID)
	assert.Equal(t, int64(1), update.Downvotes)
	assert.False(t, update.Finalized)
}

func TestWebSocketUnknownAnswer(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/answers/0123456789abcdef0123456789abcdef"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
