// Package broadcast pushes live tally updates to websocket subscribers of
// an answer.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/observability"
)

// ErrTooManySubscribers is returned when an answer reached its subscriber cap.
var ErrTooManySubscribers = errors.New("too many subscribers for answer")

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("broadcast hub closed")

const defaultMaxPerAnswer = 50

// TallyUpdate is the message pushed to subscribers.
type TallyUpdate struct {
	AnswerID    string `json:"answer_id"`
	Upvotes     int64  `json:"upvotes"`
	Downvotes   int64  `json:"downvotes"`
	Finalized   bool   `json:"finalized"`
	Disposition string `json:"disposition"`
}

// Options configures a Hub.
type Options struct {
	MaxPerAnswer int
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Hub tracks subscribers per answer. It is a voting.Notifier.
type Hub struct {
	mu           sync.Mutex
	clients      map[string]map[*websocket.Conn]*clientWriter
	total        int
	closed       bool
	maxPerAnswer int
	clock        clockwork.Clock
	logger       *slog.Logger
}

// NewHub creates a Hub.
func NewHub(opts Options) *Hub {
	if opts.MaxPerAnswer <= 0 {
		opts.MaxPerAnswer = defaultMaxPerAnswer
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		clients:      make(map[string]map[*websocket.Conn]*clientWriter),
		maxPerAnswer: opts.MaxPerAnswer,
		clock:        opts.Clock,
		logger:       opts.Logger.With("component", "broadcast"),
	}
}

// Subscribe registers conn for updates on answerID. The hub owns writes to
// conn from now on; the caller keeps reading until the connection closes and
// then calls Unsubscribe.
func (h *Hub) Subscribe(answerID string, conn *websocket.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	set := h.clients[answerID]
	if len(set) >= h.maxPerAnswer {
		return ErrTooManySubscribers
	}
	if set == nil {
		set = make(map[*websocket.Conn]*clientWriter)
		h.clients[answerID] = set
	}
	if _, ok := set[conn]; ok {
		return nil
	}
	set[conn] = newClientWriter(conn, h.clock)
	h.total++
	observability.SetSubscribers(h.total)
	return nil
}

// Unsubscribe removes conn and closes it.
func (h *Hub) Unsubscribe(answerID string, conn *websocket.Conn) {
	h.mu.Lock()
	cw, ok := h.clients[answerID][conn]
	if ok {
		delete(h.clients[answerID], conn)
		if len(h.clients[answerID]) == 0 {
			delete(h.clients, answerID)
		}
		h.total--
		observability.SetSubscribers(h.total)
	}
	h.mu.Unlock()

	if ok {
		cw.stop("unsubscribed")
	}
}

// Count returns the number of subscribers for answerID.
func (h *Hub) Count(answerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[answerID])
}

// Publish sends update to every subscriber of its answer. Slow subscribers
// miss the update rather than block the publisher.
func (h *Hub) Publish(update TallyUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("encode tally update failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cw := range h.clients[update.AnswerID] {
		if !cw.send(data) {
			h.logger.Debug("dropped update for slow subscriber", "answer_id", update.AnswerID)
		}
	}
}

// VoteRecorded implements voting.Notifier.
func (h *Hub) VoteRecorded(_ context.Context, r domain.VoteReceipt) {
	h.Publish(TallyUpdate{
		AnswerID:    r.AnswerID,
		Upvotes:     r.Upvotes,
		Downvotes:   r.Downvotes,
		Disposition: domain.DispositionPending.String(),
	})
}

// AnswerFinalized implements voting.Notifier.
func (h *Hub) AnswerFinalized(_ context.Context, r domain.FinalizationResult) {
	if !r.FirstTime {
		return
	}
	h.Publish(TallyUpdate{
		AnswerID:    r.AnswerID,
		Upvotes:     r.Upvotes,
		Downvotes:   r.Downvotes,
		Finalized:   true,
		Disposition: r.Disposition.String(),
	})
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var writers []*clientWriter
	for _, set := range h.clients {
		for _, cw := range set {
			writers = append(writers, cw)
		}
	}
	h.clients = make(map[string]map[*websocket.Conn]*clientWriter)
	h.total = 0
	observability.SetSubscribers(0)
	h.mu.Unlock()

	for _, cw := range writers {
		cw.stop("server shutting down")
	}
}
