package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/ctms-sync/internal/mapper"
	"github.com/Guizzs26/ctms-sync/internal/models"
	"github.com/Guizzs26/ctms-sync/pkg/metrics"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeFatal
)

// Failure reasons of a retryable outcome.
const (
	ReasonRejected = metrics.StatusRejected
	ReasonInternal = metrics.StatusInternal
)

// Outcome is the result of processing one pending record.
// A Fatal outcome aborts the cycle and rolls back the whole batch.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

func success() Outcome { return Outcome{Kind: OutcomeSuccess} }

func retryable(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeRetryable, Reason: reason, Err: err}
}

func fatal(err error) Outcome { return Outcome{Kind: OutcomeFatal, Err: err} }

// Summary describes one drain cycle.
type Summary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Stats are the observability counters. Due and Dormant are the values of
// the latest sample; the totals cover every committed cycle of this process.
type Stats struct {
	Due       int64
	Dormant   int64
	Succeeded int64
	Failed    int64
	Rejected  int64
	Internal  int64
}

type SyncConfig struct {
	RetryLimit int
	BatchSize  int
	// DeliveryEnabled false drains the queue without contacting downstream.
	DeliveryEnabled bool
}

// SyncService drains the pending-sync ledger towards the delivery backend.
// Drain must not run concurrently with itself.
type SyncService struct {
	begin     BeginFunc
	deliverer Deliverer
	cfg       SyncConfig
	metrics   *metrics.SyncMetrics
	logger    *slog.Logger

	due       atomic.Int64
	dormant   atomic.Int64
	succeeded atomic.Int64
	rejected  atomic.Int64
	internal  atomic.Int64
}

// NewSyncService builds the engine. d may be nil when delivery is disabled.
func NewSyncService(begin BeginFunc, d Deliverer, cfg SyncConfig, m *metrics.SyncMetrics, l *slog.Logger) *SyncService {
	return &SyncService{
		begin:     begin,
		deliverer: d,
		cfg:       cfg,
		metrics:   m,
		logger:    l,
	}
}

// Drain runs one cycle: it processes up to BatchSize records due at now and
// commits their resolution once. Per-record failures only spend a retry.
//
// If ctx is canceled between records, the records already processed are
// committed and ctx.Err() is returned; the rest stay untouched. A delivery in
// flight is never interrupted by ctx.
func (s *SyncService) Drain(ctx context.Context, now time.Time) (Summary, error) {
	start := time.Now()

	if err := s.Sample(ctx, now); err != nil {
		s.logger.Warn("Backlog sampling failed", "error", err)
	}

	// The transaction outlives ctx so processed records can still be committed.
	txCtx := context.WithoutCancel(ctx)
	tx, err := s.begin(txCtx)
	if err != nil {
		return Summary{}, fmt.Errorf("begin failure: %w", err)
	}
	defer tx.Rollback()

	entries, err := tx.DueBefore(txCtx, now, s.cfg.RetryLimit, s.cfg.BatchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch failure: %w", err)
	}
	if len(entries) == 0 {
		return Summary{}, nil
	}

	var (
		sum                Summary
		rejected, internal int64
		stopErr            error
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("Drain interrupted, leaving remaining records for next cycle",
				"processed", sum.Processed, "remaining", len(entries)-sum.Processed)
			stopErr = err
			break
		}

		out := s.process(txCtx, tx, e)
		switch out.Kind {
		case OutcomeFatal:
			s.logger.Error("Ledger write failed, rolling back batch", "email_id", e.EmailID, "error", out.Err)
			return Summary{}, fmt.Errorf("ledger failure: %w", out.Err)
		case OutcomeSuccess:
			sum.Succeeded++
		case OutcomeRetryable:
			sum.Failed++
			if out.Reason == ReasonRejected {
				rejected++
			} else {
				internal++
			}
		}
		sum.Processed++
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Batch commit failed, no record was resolved", "count", sum.Processed, "error", err)
		return Summary{}, fmt.Errorf("batch commit failure: %w", err)
	}

	s.succeeded.Add(int64(sum.Succeeded))
	s.rejected.Add(rejected)
	s.internal.Add(internal)

	s.metrics.SyncTotal.WithLabelValues(metrics.StatusSuccess).Add(float64(sum.Succeeded))
	s.metrics.SyncTotal.WithLabelValues(metrics.StatusRejected).Add(float64(rejected))
	s.metrics.SyncTotal.WithLabelValues(metrics.StatusInternal).Add(float64(internal))
	s.metrics.BatchSize.Observe(float64(sum.Processed))
	s.metrics.BatchDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("Batch cycle telemetry",
		"count", sum.Processed,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return sum, stopErr
}

// process resolves one record in the ledger. Only ledger write errors are fatal.
func (s *SyncService) process(ctx context.Context, tx Tx, rec models.PendingRecord) Outcome {
	l := s.logger.With("email_id", rec.EmailID, "retry", rec.Retry)

	out := success()
	if s.cfg.DeliveryEnabled {
		out = s.deliver(ctx, tx, rec, l)
	}

	switch out.Kind {
	case OutcomeSuccess:
		if err := tx.MarkSuccess(ctx, rec); err != nil {
			return fatal(err)
		}
	case OutcomeRetryable:
		if rec.Retry+1 >= s.cfg.RetryLimit {
			l.Warn("Record exhausted its retries and is now dormant", "reason", out.Reason, "error", out.Err)
		} else if out.Reason == ReasonRejected {
			l.Warn("Contact rejected by downstream", "error", out.Err)
		} else {
			l.Error("Contact sync failed", "error", out.Err)
		}
		if err := tx.MarkFailure(ctx, rec); err != nil {
			return fatal(err)
		}
	}
	return out
}

func (s *SyncService) deliver(ctx context.Context, tx Tx, rec models.PendingRecord, l *slog.Logger) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = retryable(ReasonInternal, fmt.Errorf("panic: %v", r))
		}
	}()

	contact, err := tx.GetContact(ctx, rec.EmailID)
	if errors.Is(err, models.ErrContactNotFound) {
		l.Info("Contact no longer exists, dropping record")
		return success()
	}
	if err != nil {
		return retryable(ReasonInternal, err)
	}

	record, err := mapper.ToExternal(contact)
	if err != nil {
		return retryable(ReasonInternal, fmt.Errorf("convert failure: %w", err))
	}

	if err := s.deliverer.Push(ctx, record); err != nil {
		if errors.Is(err, models.ErrDeliveryRejected) {
			return retryable(ReasonRejected, err)
		}
		return retryable(ReasonInternal, err)
	}
	return success()
}

// Sample refreshes the due and dormant gauges in a read-only transaction of
// its own, so a failed count never touches the drain transaction.
func (s *SyncService) Sample(ctx context.Context, now time.Time) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	due, err := tx.CountDue(ctx, now, s.cfg.RetryLimit)
	if err != nil {
		return err
	}
	dormant, err := tx.CountDormant(ctx, s.cfg.RetryLimit)
	if err != nil {
		return err
	}

	s.due.Store(int64(due))
	s.dormant.Store(int64(dormant))
	s.metrics.Backlog.Set(float64(due))
	s.metrics.RetryBacklog.Set(float64(dormant))
	return nil
}

func (s *SyncService) Stats() Stats {
	rejected, internal := s.rejected.Load(), s.internal.Load()
	return Stats{
		Due:       s.due.Load(),
		Dormant:   s.dormant.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    rejected + internal,
		Rejected:  rejected,
		Internal:  internal,
	}
}
