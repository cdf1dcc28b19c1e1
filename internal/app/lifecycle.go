package app

import (
	"context"
	"errors"
	"time"

	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/result"
	"gavel-auction-engine/internal/domain/shared"
	"gavel-auction-engine/internal/ports/inbound"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultCloseMaxRetries = 5

// LifecycleService implements the auction state machine and result computation
type LifecycleService struct {
	store           outbound.AuctionStore
	directory       outbound.Directory
	notifier        outbound.Notifier
	clock           outbound.Clock
	closeMaxRetries int
	retries         int
	logger          zerolog.Logger
}

type LifecycleServiceParams struct {
	Store     outbound.AuctionStore
	Directory outbound.Directory
	Notifier  outbound.Notifier
	Clock     outbound.Clock
	// CloseMaxRetries bounds result computation attempts before manual review
	CloseMaxRetries int
	// Retries bounds optimistic retries of Activate and Cancel
	Retries int
	Logger  zerolog.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(params LifecycleServiceParams) *LifecycleService {
	closeMax := params.CloseMaxRetries
	if closeMax <= 0 {
		closeMax = defaultCloseMaxRetries
	}
	retries := params.Retries
	if retries <= 0 {
		retries = 3
	}

	return &LifecycleService{
		store:           params.Store,
		directory:       params.Directory,
		notifier:        params.Notifier,
		clock:           params.Clock,
		closeMaxRetries: closeMax,
		retries:         retries,
		logger:          params.Logger.With().Str("component", "lifecycle_service").Logger(),
	}
}

var _ inbound.AuctionService = (*LifecycleService)(nil)

// CreateAuction creates a scheduled auction for a published product
func (s *LifecycleService) CreateAuction(ctx context.Context, req inbound.CreateAuctionRequest) (*auction.Auction, error) {
	s.logger.Info().
		Str("product_id", req.ProductID.String()).
		Time("start_time", req.StartTime).
		Time("end_time", req.EndTime).
		Str("reserve_price", req.ReservePrice.String()).
		Msg("Attempting to create auction")

	sellerID, err := s.directory.SellerOf(ctx, req.ProductID)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", req.ProductID.String()).Msg("Failed to resolve product seller")
		return nil, err
	}

	a, err := auction.New(req.ProductID, sellerID, req.StartTime, req.EndTime,
		req.ReservePrice, req.StartingPrice, req.MinIncrement, s.clock.Now())
	if err != nil {
		s.logger.Warn().Err(err).Str("product_id", req.ProductID.String()).Msg("Invalid auction parameters")
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		return tx.CreateAuction(ctx, a)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to save auction")
		return nil, err
	}

	s.logger.Info().
		Str("auction_id", a.ID.String()).
		Str("seller_id", sellerID.String()).
		Msg("Auction created successfully")

	s.publish(ctx, a.ID, outbound.EventTypeAuctionCreated, map[string]interface{}{
		"product_id": a.ProductID,
		"start_time": a.StartTime.Format(time.RFC3339),
		"end_time":   a.EndTime.Format(time.RFC3339),
	})
	return a, nil
}

// GetAuction retrieves an auction by ID
func (s *LifecycleService) GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	return s.store.GetAuction(ctx, auctionID)
}

// GetResult retrieves the result of a closed auction
func (s *LifecycleService) GetResult(ctx context.Context, auctionID uuid.UUID) (*result.AuctionResult, error) {
	return s.store.GetResult(ctx, auctionID)
}

// ListDue returns auctions in status waiting on the scheduler
func (s *LifecycleService) ListDue(ctx context.Context, status auction.Status, now time.Time, limit int) ([]*auction.Auction, error) {
	return s.store.ListDue(ctx, status, now, limit)
}

// Activate opens a scheduled auction ahead of its start time
func (s *LifecycleService) Activate(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	return s.transitionWithRetry(ctx, auctionID, auction.StatusOpen, auction.CauseActivation)
}

// Cancel cancels a scheduled or open auction on behalf of moderation
func (s *LifecycleService) Cancel(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	return s.transitionWithRetry(ctx, auctionID, auction.StatusCancelled, auction.CauseModeration)
}

func (s *LifecycleService) transitionWithRetry(ctx context.Context, auctionID uuid.UUID, target auction.Status, cause auction.Cause) (*auction.Auction, error) {
	var updated *auction.Auction
	err := retryOnConflict(ctx, s.retries, 0, func() error {
		var err error
		updated, err = s.Transition(ctx, auctionID, target, cause)
		return err
	})
	return updated, err
}

// Transition attempts to move an auction to target in a single optimistic
// write, evaluated at the current clock time.
func (s *LifecycleService) Transition(ctx context.Context, auctionID uuid.UUID, target auction.Status, cause auction.Cause) (*auction.Auction, error) {
	return s.TransitionAt(ctx, auctionID, target, cause, s.clock.Now())
}

// TransitionAt is Transition evaluated at now. Entering closed computes and
// stores the result in the same transaction, ahead of the state change.
func (s *LifecycleService) TransitionAt(ctx context.Context, auctionID uuid.UUID, target auction.Status, cause auction.Cause, now time.Time) (*auction.Auction, error) {
	logger := s.logger.With().
		Str("auction_id", auctionID.String()).
		Str("target", string(target)).
		Str("cause", string(cause)).
		Logger()

	var (
		updated *auction.Auction
		outcome *result.AuctionResult
	)
	err := s.store.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		a, err := tx.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		expected := a.Version

		if err := a.Transition(target, cause, now); err != nil {
			return err
		}
		if target == auction.StatusClosed {
			if outcome, err = s.computeResult(ctx, tx, a, now); err != nil {
				return err
			}
		}
		if err := tx.UpdateAuction(ctx, a, expected); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		switch {
		case shared.IsRetryable(err), errors.Is(err, shared.ErrAlreadyClosed), errors.Is(err, shared.ErrNotYetDue):
			logger.Debug().Err(err).Msg("Transition not applied")
		case errors.Is(err, shared.ErrInvalidTransition), errors.Is(err, shared.ErrNotFound):
			logger.Warn().Err(err).Msg("Transition rejected")
		default:
			logger.Error().Err(err).Msg("Transition failed")
		}
		return nil, err
	}

	logger.Info().Int64("version", updated.Version).Msg("Auction transitioned")
	s.announce(ctx, updated, outcome)
	return updated, nil
}

// computeResult derives and stores the result of a closing auction. It must
// only run on the closing to closed edge.
func (s *LifecycleService) computeResult(ctx context.Context, tx outbound.AuctionTx, a *auction.Auction, now time.Time) (*result.AuctionResult, error) {
	if _, err := tx.GetResult(ctx, a.ID); err == nil {
		return nil, shared.ErrAlreadyClosed
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	bids, err := tx.ListBids(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	res := result.Compute(a.ID, bids, a.ReservePrice, now)
	if err := tx.InsertResult(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// RecordCloseFailure counts a failed close attempt on a closing auction. Once
// the bound is reached the auction is flagged for review and
// shared.ErrCloseRetriesExhausted is returned.
func (s *LifecycleService) RecordCloseFailure(ctx context.Context, auctionID uuid.UUID, cause error) (*auction.Auction, error) {
	return s.RecordCloseFailureAt(ctx, auctionID, cause, s.clock.Now())
}

// RecordCloseFailureAt is RecordCloseFailure stamped at now
func (s *LifecycleService) RecordCloseFailureAt(ctx context.Context, auctionID uuid.UUID, cause error, now time.Time) (*auction.Auction, error) {
	var updated *auction.Auction
	err := retryOnConflict(ctx, s.retries, 0, func() error {
		return s.store.WithinTx(ctx, func(tx outbound.AuctionTx) error {
			a, err := tx.GetAuction(ctx, auctionID)
			if err != nil {
				return err
			}
			if a.Status != auction.StatusClosing {
				return shared.ErrInvalidTransition
			}
			expected := a.Version
			a.RecordCloseFailure(s.closeMaxRetries, now)
			if err := tx.UpdateAuction(ctx, a, expected); err != nil {
				return err
			}
			updated = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if !updated.NeedsReview {
		s.logger.Warn().
			Err(cause).
			Str("auction_id", auctionID.String()).
			Int("close_attempts", updated.CloseAttempts).
			Msg("Auction close failed, will retry")
		return updated, nil
	}

	s.logger.Error().
		Err(cause).
		Str("auction_id", auctionID.String()).
		Int("close_attempts", updated.CloseAttempts).
		Bool("review_required", true).
		Msg("Auction close retries exhausted, manual review required")

	s.publish(ctx, auctionID, outbound.EventTypeReviewRequired, map[string]interface{}{
		"close_attempts": updated.CloseAttempts,
	})
	return updated, shared.ErrCloseRetriesExhausted
}

func (s *LifecycleService) announce(ctx context.Context, a *auction.Auction, res *result.AuctionResult) {
	switch a.Status {
	case auction.StatusOpen:
		s.publish(ctx, a.ID, outbound.EventTypeAuctionOpened, map[string]interface{}{
			"end_time": a.EndTime.Format(time.RFC3339),
		})
	case auction.StatusCancelled:
		s.publish(ctx, a.ID, outbound.EventTypeAuctionCancelled, map[string]interface{}{})
	case auction.StatusClosed:
		data := map[string]interface{}{
			"status":    string(a.Status),
			"bid_count": res.BidCount,
		}
		if res.HasWinner() {
			data["winning_bid_id"] = res.WinningBidID.String()
			data["winner_id"] = res.WinnerID.String()
			data["final_price"] = res.FinalPrice.String()
		}
		s.publish(ctx, a.ID, outbound.EventTypeAuctionClosed, data)
	}
}

func (s *LifecycleService) publish(ctx context.Context, auctionID uuid.UUID, eventType outbound.EventType, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	event := outbound.Event{
		Type:      eventType,
		AuctionID: auctionID,
		Data:      data,
		Timestamp: s.clock.Now().Unix(),
	}
	if err := s.notifier.Publish(ctx, auctionID, event); err != nil {
		s.logger.Error().Err(err).
			Str("auction_id", auctionID.String()).
			Str("event_type", string(eventType)).
			Msg("Failed to publish event")
	}
}
