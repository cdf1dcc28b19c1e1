package result

import (
	"time"

	"gavel-auction-engine/internal/domain/bid"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionResult is the immutable outcome of a closed auction
type AuctionResult struct {
	AuctionID    uuid.UUID        `json:"auction_id"`
	WinningBidID *uuid.UUID       `json:"winning_bid_id,omitempty"`
	WinnerID     *uuid.UUID       `json:"winner_id,omitempty"`
	FinalPrice   *decimal.Decimal `json:"final_price,omitempty"`
	BidCount     int              `json:"bid_count"`
	ClosedAt     time.Time        `json:"closed_at"`
}

// HasWinner returns true if a bid met the reserve
func (r *AuctionResult) HasWinner() bool {
	return r.WinningBidID != nil
}

// Compute derives the result of an auction from its bid history. The winner is
// the accepted bid with the greatest amount, earliest placedAt on ties, and
// only if that amount meets the reserve.
func Compute(auctionID uuid.UUID, bids []*bid.Bid, reserve decimal.Decimal, closedAt time.Time) *AuctionResult {
	res := &AuctionResult{
		AuctionID: auctionID,
		ClosedAt:  closedAt,
	}

	var best *bid.Bid
	for _, b := range bids {
		if b.AuctionID != auctionID || !b.IsAccepted() {
			continue
		}
		res.BidCount++
		if best == nil || outranks(b, best) {
			best = b
		}
	}

	if best == nil || best.Amount.LessThan(reserve) {
		return res
	}

	bidID := best.ID
	winnerID := best.BidderID
	price := best.Amount
	res.WinningBidID = &bidID
	res.WinnerID = &winnerID
	res.FinalPrice = &price
	return res
}

func outranks(a, b *bid.Bid) bool {
	if cmp := a.Amount.Cmp(b.Amount); cmp != 0 {
		return cmp > 0
	}
	if !a.PlacedAt.Equal(b.PlacedAt) {
		return a.PlacedAt.Before(b.PlacedAt)
	}
	return a.Sequence < b.Sequence
}
