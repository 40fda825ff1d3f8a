// Package worker runs the background sweep that converges abandoned
// payment cycles: pending for longer than the stale window with neither a
// callback nor a browser poll to settle them.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"confreg/internal/reconciliation/metrics"
	"confreg/internal/reconciliation/service"
	"confreg/internal/registration/models"
	regservice "confreg/internal/registration/service"
	"confreg/pkg/requestcontext"
)

// Lister finds pending cycles that started before cutoff.
type Lister interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Participant, error)
}

// Reconciler applies the gateway's verified status for one transaction.
type Reconciler interface {
	Reconcile(ctx context.Context, transactionID, source string) (*service.Result, error)
}

type Sweeper struct {
	lister      Lister
	reconciler  Reconciler
	interval    time.Duration
	staleAfter  time.Duration
	concurrency int
	batch       int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithStaleAfter sets how long a cycle may stay pending before it is swept.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithConcurrency bounds parallel status queries within one sweep.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithBatch caps the cycles examined per sweep.
func WithBatch(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSweeper(lister Lister, reconciler Reconciler, opts ...Option) *Sweeper {
	s := &Sweeper{
		lister:      lister,
		reconciler:  reconciler,
		interval:    5 * time.Minute,
		staleAfter:  15 * time.Minute,
		concurrency: 4,
		batch:       100,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.InfoContext(ctx, "pending payment sweeper started",
		"interval", s.interval,
		"stale_after", s.staleAfter,
		"concurrency", s.concurrency,
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "pending payment sweep failed", "error", err)
			}
		}
	}
}

// Report summarizes one sweep.
type Report struct {
	Candidates int
	Applied    int
	Pending    int
	Stale      int
	Errors     int
}

// SweepOnce reconciles one batch of stale pending cycles. A failure on one
// transaction is logged and counted; it does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	ctx = requestcontext.WithRequestID(ctx, "sweep-"+uuid.NewString())
	cutoff := s.now().Add(-s.staleAfter)

	candidates, err := s.lister.ListStalePending(ctx, cutoff, s.batch)
	if err != nil {
		s.metrics.ObserveSweep(start, 0, err)
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report = Report{Candidates: len(candidates)}
		g      errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, p := range candidates {
		if p.PaymentTransactionID == "" {
			continue
		}
		g.Go(func() error {
			res, err := s.reconciler.Reconcile(ctx, p.PaymentTransactionID, regservice.SourceSweep)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Errors++
				s.logger.WarnContext(ctx, "sweep could not reconcile payment",
					"email", p.Email,
					"transaction_id", p.PaymentTransactionID,
					"error", err,
				)
			case res.Stale:
				report.Stale++
			case res.Applied:
				report.Applied++
			default:
				report.Pending++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.ObserveSweep(start, len(candidates), nil)
	if report.Candidates > 0 {
		s.logger.InfoContext(ctx, "pending payment sweep finished",
			"candidates", report.Candidates,
			"applied", report.Applied,
			"pending", report.Pending,
			"stale", report.Stale,
			"errors", report.Errors,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return report, nil
}
