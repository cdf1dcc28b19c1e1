package inbound

import (
	"context"
	"time"

	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/bid"
	"gavel-auction-engine/internal/domain/result"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionService defines the lifecycle operations
type AuctionService interface {
	// CreateAuction creates a scheduled auction for a published product
	CreateAuction(ctx context.Context, req CreateAuctionRequest) (*auction.Auction, error)

	// GetAuction retrieves an auction by ID
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)

	// GetResult retrieves the result of a closed auction
	GetResult(ctx context.Context, auctionID uuid.UUID) (*result.AuctionResult, error)

	// Transition attempts one lifecycle edge. A stale read fails with
	// shared.ErrConcurrentModification and is left to the caller to retry.
	Transition(ctx context.Context, auctionID uuid.UUID, target auction.Status, cause auction.Cause) (*auction.Auction, error)

	// Activate opens a scheduled auction ahead of its start time
	Activate(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)

	// Cancel cancels a scheduled or open auction on behalf of moderation
	Cancel(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)
}

// BidService defines the bid admission operations
type BidService interface {
	// PlaceBid admits a bid against an open auction
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*bid.Bid, error)

	// GetBid answers "did bid X commit?"
	GetBid(ctx context.Context, bidID uuid.UUID) (*bid.Bid, error)

	// GetBids retrieves the accepted bids for an auction
	GetBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)

	// GetLeadingBid retrieves the bid currently leading an auction
	GetLeadingBid(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error)
}

// request to create an auction
type CreateAuctionRequest struct {
	ProductID     uuid.UUID       `json:"product_id"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	ReservePrice  decimal.Decimal `json:"reserve_price"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	MinIncrement  decimal.Decimal `json:"min_increment"`
}

// request to place a bid
type PlaceBidRequest struct {
	// BidID is an optional client-chosen idempotency key
	BidID     *uuid.UUID      `json:"bid_id,omitempty"`
	AuctionID uuid.UUID       `json:"auction_id"`
	BidderID  uuid.UUID       `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
}
