package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.VotesCast.WithLabelValues("true").Inc()
	m.VotesCast.WithLabelValues("true").Inc()
	m.VotesRejected.WithLabelValues("already_voted").Inc()

	if got := testutil.ToFloat64(m.VotesCast.WithLabelValues("true")); got != 2 {
		t.Errorf("votes_cast{verdict=true} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VotesRejected.WithLabelValues("already_voted")); got != 1 {
		t.Errorf("votes_rejected{reason=already_voted} = %v, want 1", got)
	}
}

func TestRecordLedgerCall(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.LedgerCallErrors.WithLabelValues("ledger_stake"))

	RecordLedgerCall("ledger_stake", 0.01, nil)
	RecordLedgerCall("ledger_stake", 0.02, errors.New("boom"))

	after := testutil.ToFloat64(DefaultMetrics.LedgerCallErrors.WithLabelValues("ledger_stake"))
	if after-before != 1 {
		t.Errorf("error counter delta = %v, want 1", after-before)
	}
}
