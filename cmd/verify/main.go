// Command verify replays every answer's vote log against its stored tally
// (and the ClickHouse archive when configured) and exits non-zero on drift.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bounty-qa/internal/app"
	"bounty-qa/internal/config"
	"bounty-qa/internal/idcodec"
	"bounty-qa/internal/platform/logging"
	"bounty-qa/internal/verification"
)

func main() {
	answerID := flag.String("answer-id", "", "Verify a single answer by store key or decimal ledger key (default: all answers)")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		AnswerStore: stores.Answers,
		VoteStore:   stores.Votes,
		Archive:     stores.Archive,
	})

	var report *verification.VerificationReport
	if *answerID != "" {
		id, err := resolveAnswerID(*answerID)
		if err != nil {
			logger.Error("invalid answer id", "answer_id", *answerID, "error", err)
			os.Exit(1)
		}
		result, err := verifier.VerifyAnswer(ctx, id)
		if err != nil {
			logger.Error("verify answer", "answer_id", id, "error", err)
			os.Exit(1)
		}
		report = &verification.VerificationReport{TotalAnswers: 1, Results: []verification.VerificationResult{*result}}
		if result.Match {
			report.MatchedAnswers = 1
		} else {
			report.DivergentAnswers = 1
		}
	} else {
		report, err = verifier.VerifyAll(ctx)
		if err != nil {
			logger.Error("verify all", "error", err)
			os.Exit(1)
		}
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Error("encode report", "error", err)
			os.Exit(1)
		}
	} else {
		printReport(os.Stdout, report)
	}

	if report.DivergentAnswers > 0 {
		os.Exit(2)
	}
}

// resolveAnswerID accepts a store key or the decimal ledger key found in
// ledger events and returns the store key.
func resolveAnswerID(s string) (string, error) {
	if idcodec.ValidateKey(s) == nil {
		return s, nil
	}
	return idcodec.WireToStoreKey(s)
}

func printReport(w io.Writer, r *verification.VerificationReport) {
	fmt.Fprintf(w, "Answers verified: %d\n", r.TotalAnswers)
	fmt.Fprintf(w, "Matched:          %d\n", r.MatchedAnswers)
	fmt.Fprintf(w, "Divergent:        %d\n", r.DivergentAnswers)

	for _, res := range r.Results {
		if res.Match {
			continue
		}
		if wire, err := idcodec.StoreKeyToWire(res.AnswerID); err == nil {
			fmt.Fprintf(w, "\n%s (ledger key %s)\n", res.AnswerID, wire)
		} else {
			fmt.Fprintf(w, "\n%s\n", res.AnswerID)
		}
		for _, d := range res.Divergences {
			fmt.Fprintf(w, "  %-24s stored=%v replayed=%v\n", d.Field, d.Expected, d.Actual)
		}
	}
}
