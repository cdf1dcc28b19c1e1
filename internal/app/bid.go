package app

import (
	"context"
	"errors"
	"time"

	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/bid"
	"gavel-auction-engine/internal/domain/shared"
	"gavel-auction-engine/internal/ports/inbound"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BidService implements the bid admission use cases
type BidService struct {
	store        outbound.AuctionStore
	notifier     outbound.Notifier
	clock        outbound.Clock
	antiSnipe    auction.AntiSnipePolicy
	maxRetries   int
	retryBackoff time.Duration
	logger       zerolog.Logger
}

type BidServiceParams struct {
	Store     outbound.AuctionStore
	Notifier  outbound.Notifier
	Clock     outbound.Clock
	AntiSnipe auction.AntiSnipePolicy
	// MaxRetries bounds attempts after lost version races
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       zerolog.Logger
}

// NewBidService creates a new bid service
func NewBidService(params BidServiceParams) *BidService {
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &BidService{
		store:        params.Store,
		notifier:     params.Notifier,
		clock:        params.Clock,
		antiSnipe:    params.AntiSnipe,
		maxRetries:   maxRetries,
		retryBackoff: params.RetryBackoff,
		logger:       params.Logger.With().Str("component", "bid_service").Logger(),
	}
}

var _ inbound.BidService = (*BidService)(nil)

type admission struct {
	bid      *bid.Bid
	auction  *auction.Auction
	extended bool
	replayed bool
}

// PlaceBid admits a bid. Preconditions are checked in order against the
// stored auction inside the committing transaction: existence, open window,
// amount above the current price, bidder is not the seller.
func (s *BidService) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*bid.Bid, error) {
	logger := s.logger.With().
		Str("auction_id", req.AuctionID.String()).
		Str("bidder_id", req.BidderID.String()).
		Str("amount", req.Amount.String()).
		Logger()

	bidID := uuid.New()
	if req.BidID != nil && *req.BidID != uuid.Nil {
		bidID = *req.BidID
	}
	logger = logger.With().Str("bid_id", bidID.String()).Logger()
	logger.Debug().Msg("Attempting to place bid")

	var adm *admission
	err := retryOnConflict(ctx, s.maxRetries, s.retryBackoff, func() error {
		var err error
		adm, err = s.admit(ctx, bidID, req)
		if shared.IsRetryable(err) {
			logger.Debug().Msg("Lost version race, retrying bid")
		}
		return err
	})
	if err != nil {
		switch {
		case shared.IsRejection(err), errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrBidIDConflict):
			logger.Warn().Err(err).Msg("Bid rejected")
		case shared.IsRetryable(err):
			logger.Warn().Err(err).Int("attempts", s.maxRetries).Msg("Bid lost every version race")
		default:
			logger.Error().Err(err).Msg("Failed to place bid")
		}
		return nil, err
	}

	if adm.replayed {
		logger.Info().Msg("Bid already committed, returning stored bid")
		return adm.bid, nil
	}

	logger.Info().
		Int64("version", adm.auction.Version).
		Bool("extended", adm.extended).
		Time("end_time", adm.auction.EndTime).
		Msg("Bid placed successfully")

	s.notifyLeadingBid(ctx, adm)
	return adm.bid, nil
}

func (s *BidService) admit(ctx context.Context, bidID uuid.UUID, req inbound.PlaceBidRequest) (*admission, error) {
	now := s.clock.Now()
	candidate := &bid.Bid{
		ID:        bidID,
		AuctionID: req.AuctionID,
		BidderID:  req.BidderID,
		Amount:    req.Amount,
		Status:    bid.StatusAccepted,
		PlacedAt:  now,
	}

	var adm *admission
	err := s.store.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		existing, err := tx.GetBid(ctx, bidID)
		switch {
		case err == nil:
			if !existing.SameOffer(candidate) {
				return shared.ErrBidIDConflict
			}
			adm = &admission{bid: existing, replayed: true}
			return nil
		case !errors.Is(err, shared.ErrNotFound):
			return err
		}

		a, err := tx.GetAuction(ctx, req.AuctionID)
		if err != nil {
			return err
		}
		if !a.AcceptingBids(now) {
			return shared.ErrAuctionClosed
		}
		if err := a.CheckAmount(req.Amount); err != nil {
			return err
		}
		if a.SellerID == req.BidderID {
			return shared.ErrSelfBidForbidden
		}

		expected := a.Version
		extended := a.ApplyBid(candidate, s.antiSnipe)
		if err := tx.InsertBid(ctx, candidate); err != nil {
			return err
		}
		if err := tx.UpdateAuction(ctx, a, expected); err != nil {
			return err
		}
		adm = &admission{bid: candidate, auction: a, extended: extended}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adm, nil
}

func (s *BidService) notifyLeadingBid(ctx context.Context, adm *admission) {
	if s.notifier == nil {
		return
	}
	event := outbound.Event{
		Type:      outbound.EventTypeBidPlaced,
		AuctionID: adm.bid.AuctionID,
		Data: map[string]interface{}{
			"bid_id":    adm.bid.ID.String(),
			"bidder_id": adm.bid.BidderID.String(),
			"amount":    adm.bid.Amount.String(),
			"sequence":  adm.bid.Sequence,
			"end_time":  adm.auction.EndTime.Format(time.RFC3339),
			"extended":  adm.extended,
		},
		Timestamp: adm.bid.PlacedAt.Unix(),
	}
	if err := s.notifier.Publish(ctx, adm.bid.AuctionID, event); err != nil {
		s.logger.Error().Err(err).Str("bid_id", adm.bid.ID.String()).Msg("Failed to broadcast bid event")
	}
}

// GetBid answers whether a bid committed, by id
func (s *BidService) GetBid(ctx context.Context, bidID uuid.UUID) (*bid.Bid, error) {
	return s.store.GetBid(ctx, bidID)
}

// GetBids retrieves the accepted bids for an auction in commit order
func (s *BidService) GetBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	if _, err := s.store.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.store.ListBids(ctx, auctionID)
}

// GetLeadingBid retrieves the bid currently leading an auction
func (s *BidService) GetLeadingBid(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error) {
	a, err := s.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.HighestBid == nil {
		return nil, shared.ErrBidNotFound
	}
	return s.store.GetBid(ctx, a.HighestBid.BidID)
}
