package bid

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the status of a bid
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Bid represents an immutable offer against an auction
type Bid struct {
	ID        uuid.UUID       `json:"id"`
	AuctionID uuid.UUID       `json:"auction_id"`
	BidderID  uuid.UUID       `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	PlacedAt  time.Time       `json:"placed_at"`
	// Sequence is the auction version this bid produced when it committed.
	Sequence int64 `json:"sequence"`
}

// IsAccepted returns true if the bid was accepted
func (b *Bid) IsAccepted() bool {
	return b.Status == StatusAccepted
}

// SameOffer reports whether other carries the same auction, bidder and amount.
func (b *Bid) SameOffer(other *Bid) bool {
	return b.AuctionID == other.AuctionID &&
		b.BidderID == other.BidderID &&
		b.Amount.Equal(other.Amount)
}

// Clone returns a copy of the bid
func (b *Bid) Clone() *Bid {
	c := *b
	return &c
}
