package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/shared"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Lifecycle is the transition surface the scheduler drives
type Lifecycle interface {
	ListDue(ctx context.Context, status auction.Status, now time.Time, limit int) ([]*auction.Auction, error)
	TransitionAt(ctx context.Context, auctionID uuid.UUID, target auction.Status, cause auction.Cause, now time.Time) (*auction.Auction, error)
	RecordCloseFailureAt(ctx context.Context, auctionID uuid.UUID, cause error, now time.Time) (*auction.Auction, error)
}

// ScanReport summarises one scan
type ScanReport struct {
	Opened  int64
	Closed  int64
	Skipped int64
	Failed  int64
	Flagged int64
}

// ClosingScheduler periodically opens and closes auctions whose time has come.
// Several schedulers may run against the same store; version checks let one
// of them win each auction and the rest skip it.
type ClosingScheduler struct {
	lifecycle Lifecycle
	clock     outbound.Clock
	interval  time.Duration
	batchSize int
	pool      *pond.WorkerPool
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

type ClosingSchedulerParams struct {
	Lifecycle Lifecycle
	Clock     outbound.Clock
	Interval  time.Duration
	BatchSize int
	Workers   int
	Logger    zerolog.Logger
}

func NewClosingScheduler(params ClosingSchedulerParams) *ClosingScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	interval := params.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	workers := params.Workers
	if workers <= 0 {
		workers = 4
	}

	return &ClosingScheduler{
		lifecycle: params.Lifecycle,
		clock:     params.Clock,
		interval:  interval,
		batchSize: batchSize,
		pool:      pond.New(workers, batchSize, pond.Context(ctx)),
		logger:    params.Logger.With().Str("component", "closing_scheduler").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the scheduler loop
func (s *ClosingScheduler) Start() {
	s.logger.Info().Dur("interval", s.interval).Msg("Starting closing scheduler")

	s.wg.Add(1)
	go s.schedulerLoop()
}

// Stop gracefully stops the scheduler
func (s *ClosingScheduler) Stop() {
	s.logger.Info().Msg("Stopping closing scheduler")
	s.cancel()
	s.wg.Wait()
	s.pool.StopAndWait()
}

func (s *ClosingScheduler) schedulerLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(s.ctx, s.clock.Now())
		case <-s.ctx.Done():
			s.logger.Info().Msg("Scheduler loop stopped")
			return
		}
	}
}

// RunOnce is the scan entry point. It retries auctions left in closing by
// earlier scans, opens scheduled auctions that reached their start time and
// claims and closes open auctions that reached their end time. Every
// transition of the scan is evaluated at now.
func (s *ClosingScheduler) RunOnce(ctx context.Context, now time.Time) ScanReport {
	var report scanCounters

	s.each(ctx, auction.StatusClosing, now, func(a *auction.Auction) {
		s.finalize(ctx, a.ID, now, &report)
	})
	s.each(ctx, auction.StatusScheduled, now, func(a *auction.Auction) {
		s.open(ctx, a.ID, now, &report)
	})
	s.each(ctx, auction.StatusOpen, now, func(a *auction.Auction) {
		if s.claim(ctx, a.ID, now, &report) {
			s.finalize(ctx, a.ID, now, &report)
		}
	})

	out := report.snapshot()
	if out != (ScanReport{}) {
		s.logger.Info().
			Int64("opened", out.Opened).
			Int64("closed", out.Closed).
			Int64("skipped", out.Skipped).
			Int64("failed", out.Failed).
			Int64("flagged", out.Flagged).
			Msg("Scan completed")
	}
	return out
}

func (s *ClosingScheduler) each(ctx context.Context, status auction.Status, now time.Time, fn func(a *auction.Auction)) {
	due, err := s.lifecycle.ListDue(ctx, status, now, s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Str("status", string(status)).Msg("Failed to list due auctions")
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Debug().Str("status", string(status)).Int("count", len(due)).Msg("Found due auctions")

	group := s.pool.Group()
	for _, a := range due {
		a := a
		group.Submit(func() {
			fn(a)
		})
	}
	group.Wait()
}

func (s *ClosingScheduler) open(ctx context.Context, auctionID uuid.UUID, now time.Time, report *scanCounters) {
	_, err := s.lifecycle.TransitionAt(ctx, auctionID, auction.StatusOpen, auction.CauseSchedule, now)
	if err != nil {
		s.skipOrFail(auctionID, err, report)
		return
	}
	report.opened.Add(1)
}

// claim moves an open auction to closing. Only one worker wins the claim.
func (s *ClosingScheduler) claim(ctx context.Context, auctionID uuid.UUID, now time.Time, report *scanCounters) bool {
	_, err := s.lifecycle.TransitionAt(ctx, auctionID, auction.StatusClosing, auction.CauseSchedule, now)
	if err != nil {
		s.skipOrFail(auctionID, err, report)
		return false
	}
	return true
}

func (s *ClosingScheduler) finalize(ctx context.Context, auctionID uuid.UUID, now time.Time, report *scanCounters) {
	_, err := s.lifecycle.TransitionAt(ctx, auctionID, auction.StatusClosed, auction.CauseSchedule, now)
	if err == nil {
		report.closed.Add(1)
		return
	}
	if handledElsewhere(err) {
		s.logger.Debug().Err(err).Str("auction_id", auctionID.String()).Msg("Auction already handled, skipping")
		report.skipped.Add(1)
		return
	}

	report.failed.Add(1)
	if _, rerr := s.lifecycle.RecordCloseFailureAt(ctx, auctionID, err, now); rerr != nil {
		if errors.Is(rerr, shared.ErrCloseRetriesExhausted) {
			report.flagged.Add(1)
			return
		}
		s.logger.Error().Err(rerr).Str("auction_id", auctionID.String()).Msg("Failed to record close failure")
	}
}

func (s *ClosingScheduler) skipOrFail(auctionID uuid.UUID, err error, report *scanCounters) {
	if handledElsewhere(err) {
		s.logger.Debug().Err(err).Str("auction_id", auctionID.String()).Msg("Auction already handled, skipping")
		report.skipped.Add(1)
		return
	}
	s.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Scheduled transition failed")
	report.failed.Add(1)
}

// handledElsewhere reports outcomes meaning another worker or actor already
// moved the auction, or an anti-snipe extension pushed its end time out.
func handledElsewhere(err error) bool {
	return shared.IsRetryable(err) ||
		errors.Is(err, shared.ErrInvalidTransition) ||
		errors.Is(err, shared.ErrAlreadyClosed) ||
		errors.Is(err, shared.ErrNotYetDue)
}

type scanCounters struct {
	opened, closed, skipped, failed, flagged atomic.Int64
}

func (c *scanCounters) snapshot() ScanReport {
	return ScanReport{
		Opened:  c.opened.Load(),
		Closed:  c.closed.Load(),
		Skipped: c.skipped.Load(),
		Failed:  c.failed.Load(),
		Flagged: c.flagged.Load(),
	}
}
