package shared

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LeadingBid is a weak reference to the bid currently leading an auction.
// It snapshots the amount so readers never need to follow the link.
type LeadingBid struct {
	BidID    uuid.UUID       `json:"bid_id"`
	BidderID uuid.UUID       `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}
