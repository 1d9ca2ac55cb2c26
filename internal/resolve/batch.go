package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Outcome is the terminal state of a single record in a batch run.
type Outcome string

const (
	OutcomeMatched  Outcome = "matched"  // linked via local matching
	OutcomeGeocoded Outcome = "geocoded" // linked after a Google lookup
	OutcomeCreated  Outcome = "created"  // linked after creating new rows
	OutcomeSkipped  Outcome = "skipped"  // nothing to resolve from
	OutcomeFailed   Outcome = "failed"   // per-record error, batch continues
)

// Failure records one record that could not be resolved.
type Failure struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// Report is the accumulated result of a batch run, returned as a value so
// drivers stay free of shared mutable state.
type Report struct {
	Processed int       `json:"processed"`
	Matched   int       `json:"matched"`
	Geocoded  int       `json:"geocoded"`
	Created   int       `json:"created"`
	Skipped   int       `json:"skipped"`
	Failed    []Failure `json:"failed"`
	Elapsed   time.Duration
}

func (r *Report) record(outcome Outcome, ref string, err error) {
	r.Processed++
	switch outcome {
	case OutcomeMatched:
		r.Matched++
	case OutcomeGeocoded:
		r.Geocoded++
	case OutcomeCreated:
		r.Created++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		reason := "unknown"
		if err != nil {
			reason = err.Error()
		}
		r.Failed = append(r.Failed, Failure{Ref: ref, Reason: reason})
	}
}

// Log writes the final summary block.
func (r *Report) Log(logger *slog.Logger) {
	logger.Info("Batch run complete",
		slog.Int("processed", r.Processed),
		slog.Int("matched", r.Matched),
		slog.Int("geocoded", r.Geocoded),
		slog.Int("created", r.Created),
		slog.Int("skipped", r.Skipped),
		slog.Int("failed", len(r.Failed)),
		slog.Duration("elapsed", r.Elapsed),
	)
	for _, f := range r.Failed {
		logger.Warn("Unresolved record", slog.String("ref", f.Ref), slog.String("reason", f.Reason))
	}
}

// BatchOptions tunes a batch run. Delay is the fixed pause inserted between
// records, kept to respect external API rate limits; records are always
// processed strictly sequentially.
type BatchOptions struct {
	Limit int
	Delay time.Duration
}

// RunBatch folds process over items in order. A per-record error is an
// expected outcome: it is appended to the report and iteration continues.
// Only context cancellation aborts the run, returning the partial report and
// a non-nil error.
func RunBatch[T any](ctx context.Context, items []T, ref func(T) string, process func(context.Context, T) (Outcome, error), opts BatchOptions, logger *slog.Logger) (Report, error) {
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}

	report := Report{}
	start := time.Now()
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(start)
			return report, fmt.Errorf("batch aborted after %d records: %w", report.Processed, err)
		}

		outcome, err := process(ctx, item)
		if err != nil {
			outcome = OutcomeFailed
			logger.Warn("Record resolution failed",
				slog.String("ref", ref(item)),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("Record resolved",
				slog.String("ref", ref(item)),
				slog.String("outcome", string(outcome)),
			)
		}
		report.record(outcome, ref(item), err)

		if opts.Delay > 0 && i < len(items)-1 {
			select {
			case <-time.After(opts.Delay):
			case <-ctx.Done():
				report.Elapsed = time.Since(start)
				return report, fmt.Errorf("batch aborted after %d records: %w", report.Processed, ctx.Err())
			}
		}
	}
	report.Elapsed = time.Since(start)
	return report, nil
}
