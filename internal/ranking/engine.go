// Package ranking orders questions by decayed bounty.
//
// A question's priority is bounty * exp(-lambda * (now - postedAt)), so a
// bounty loses half of its visibility every ln(2)/lambda seconds. Scoring is
// pure and safe for concurrent use.
package ranking

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"bounty-qa/internal/domain"
)

// DefaultDecayConstant is the decay rate per second (half-life ~3.85h).
const DefaultDecayConstant = 0.00005

// ErrInvalidDecayConstant is returned for negative or non-finite lambda.
var ErrInvalidDecayConstant = errors.New("decay constant must be finite and non-negative")

// Engine scores and ranks questions.
type Engine struct {
	lambda float64
}

// Ranked is a question paired with the score it was ranked by.
type Ranked struct {
	Question *domain.Question
	Score    float64
}

// NewEngine creates an Engine with the given decay constant.
func NewEngine(lambda float64) (*Engine, error) {
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) || lambda < 0 {
		return nil, ErrInvalidDecayConstant
	}
	return &Engine{lambda: lambda}, nil
}

// DecayConstant returns lambda.
func (e *Engine) DecayConstant() float64 {
	return e.lambda
}

// HalfLife returns the elapsed seconds after which a score halves.
// Returns +Inf when lambda is zero.
func (e *Engine) HalfLife() float64 {
	if e.lambda == 0 {
		return math.Inf(1)
	}
	return math.Ln2 / e.lambda
}

// LogValue implements slog.LogValuer. A zero lambda has no half-life.
func (e *Engine) LogValue() slog.Value {
	attrs := []slog.Attr{slog.Float64("decay_constant", e.DecayConstant())}
	if hl := e.HalfLife(); !math.IsInf(hl, 1) {
		attrs = append(attrs, slog.Duration("half_life", time.Duration(hl*float64(time.Second))))
	}
	return slog.GroupValue(attrs...)
}

// Score computes the decayed value of a bounty at now.
// Negative elapsed time (postedAt in the future) is valid and yields a score
// above the bounty. Results are always finite: exponent underflow saturates
// to 0 and overflow saturates to math.MaxFloat64. Negative or non-finite
// bounties score 0.
func (e *Engine) Score(bounty float64, postedAt, now int64) float64 {
	if bounty <= 0 || math.IsNaN(bounty) || math.IsInf(bounty, 0) {
		return 0
	}

	// float64 subtraction avoids int64 overflow for extreme timestamps
	elapsed := float64(now) - float64(postedAt)
	exponent := -e.lambda * elapsed
	if math.IsNaN(exponent) {
		return 0
	}

	value := bounty * math.Exp(exponent)
	switch {
	case math.IsNaN(value):
		return 0
	case math.IsInf(value, 1):
		return math.MaxFloat64
	}
	return value
}

// Rank returns questions ordered by score descending. Ties keep input order.
// The input slice is not modified; nil entries are skipped.
func (e *Engine) Rank(questions []*domain.Question, now int64) []Ranked {
	ranked := make([]Ranked, 0, len(questions))
	for _, q := range questions {
		if q == nil {
			continue
		}
		ranked = append(ranked, Ranked{
			Question: q,
			Score:    e.Score(q.Bounty, q.PostedAt, now),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}

// Questions is a convenience wrapper returning only the ordered questions.
func (e *Engine) Questions(questions []*domain.Question, now int64) []*domain.Question {
	ranked := e.Rank(questions, now)
	out := make([]*domain.Question, len(ranked))
	for i, r := range ranked {
		out[i] = r.Question
	}
	return out
}
