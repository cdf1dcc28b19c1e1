package outbound

import (
	"context"
	"time"

	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/bid"
	"gavel-auction-engine/internal/domain/result"

	"github.com/google/uuid"
)

// AuctionReader holds the read operations shared by the store and a transaction
type AuctionReader interface {
	// GetAuction retrieves an auction by ID
	GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)

	// GetBid retrieves a bid by ID
	GetBid(ctx context.Context, id uuid.UUID) (*bid.Bid, error)

	// ListBids retrieves the accepted bids of an auction in commit order
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)

	// GetResult retrieves the result of a closed auction
	GetResult(ctx context.Context, auctionID uuid.UUID) (*result.AuctionResult, error)
}

// AuctionTx is a single transaction against the auction record store. Writes
// become visible together on commit or not at all.
type AuctionTx interface {
	AuctionReader

	// CreateAuction inserts a new auction
	CreateAuction(ctx context.Context, a *auction.Auction) error

	// UpdateAuction writes a only if the stored version still equals
	// expectedVersion, otherwise it fails with shared.ErrConcurrentModification
	UpdateAuction(ctx context.Context, a *auction.Auction, expectedVersion int64) error

	// InsertBid appends a bid
	InsertBid(ctx context.Context, b *bid.Bid) error

	// InsertResult appends the result of an auction. A second result for the
	// same auction fails with shared.ErrAlreadyClosed
	InsertResult(ctx context.Context, r *result.AuctionResult) error
}

// AuctionStore is the durable auction record store
type AuctionStore interface {
	AuctionReader

	// WithinTx runs fn inside one transaction, committing if fn returns nil
	WithinTx(ctx context.Context, fn func(tx AuctionTx) error) error

	// ListDue returns auctions in status that the scheduler must act on at now:
	// scheduled ones past their start, open ones past their end and closing
	// ones not yet flagged for review
	ListDue(ctx context.Context, status auction.Status, now time.Time, limit int) ([]*auction.Auction, error)
}

// Directory resolves catalog and identity data owned outside the engine.
// The engine never mutates it.
type Directory interface {
	// SellerOf returns the seller who owns a product listing
	SellerOf(ctx context.Context, productID uuid.UUID) (uuid.UUID, error)
}
