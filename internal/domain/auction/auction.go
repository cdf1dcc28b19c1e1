package auction

import (
	"time"

	"gavel-auction-engine/internal/domain/bid"
	"gavel-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the current lifecycle state of an auction
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOpen      Status = "open"
	StatusClosing   Status = "closing"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// MoneyScale is the number of decimal places stored for every amount
const MoneyScale int32 = 2

// ValidMoney reports whether d fits MoneyScale without rounding
func ValidMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// IsTerminal returns true for states an auction never leaves
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// Auction represents a time-bounded sale of one product
type Auction struct {
	ID            uuid.UUID          `json:"id"`
	ProductID     uuid.UUID          `json:"product_id"`
	SellerID      uuid.UUID          `json:"seller_id"`
	StartTime     time.Time          `json:"start_time"`
	EndTime       time.Time          `json:"end_time"`
	ReservePrice  decimal.Decimal    `json:"reserve_price"`
	StartingPrice decimal.Decimal    `json:"starting_price"`
	MinIncrement  decimal.Decimal    `json:"min_increment"`
	CurrentPrice  decimal.Decimal    `json:"current_price"`
	HighestBid    *shared.LeadingBid `json:"highest_bid,omitempty"`
	Status        Status             `json:"status"`
	Version       int64              `json:"version"`
	Extensions    int                `json:"extensions"`
	CloseAttempts int                `json:"close_attempts"`
	NeedsReview   bool               `json:"needs_review"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// New creates a scheduled auction at version 1.
func New(productID, sellerID uuid.UUID, start, end time.Time, reserve, startingPrice, increment decimal.Decimal, now time.Time) (*Auction, error) {
	if !start.Before(end) {
		return nil, shared.ErrInvalidSchedule
	}
	if reserve.IsNegative() {
		return nil, shared.ErrInvalidReservePrice
	}
	if startingPrice.IsNegative() {
		return nil, shared.ErrInvalidStartPrice
	}
	if increment.IsNegative() {
		return nil, shared.ErrInvalidIncrement
	}
	if !ValidMoney(reserve) || !ValidMoney(startingPrice) || !ValidMoney(increment) {
		return nil, shared.ErrAmountPrecision
	}

	return &Auction{
		ID:            uuid.New(),
		ProductID:     productID,
		SellerID:      sellerID,
		StartTime:     start,
		EndTime:       end,
		ReservePrice:  reserve,
		StartingPrice: startingPrice,
		MinIncrement:  increment,
		CurrentPrice:  startingPrice,
		Status:        StatusScheduled,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Clone returns a deep copy so stored state is never aliased by callers
func (a *Auction) Clone() *Auction {
	c := *a
	if a.HighestBid != nil {
		hb := *a.HighestBid
		c.HighestBid = &hb
	}
	return &c
}

// AcceptingBids returns true if a bid placed at now may be admitted
func (a *Auction) AcceptingBids(now time.Time) bool {
	return a.Status == StatusOpen && now.Before(a.EndTime)
}

// CheckAmount validates a bid amount against the current stored price.
// Ties are rejected, and so are amounts finer than MoneyScale, which would
// round onto an existing price once stored.
func (a *Auction) CheckAmount(amount decimal.Decimal) error {
	if !ValidMoney(amount) {
		return shared.ErrAmountPrecision
	}
	if !amount.GreaterThan(a.CurrentPrice) {
		return shared.ErrBidTooLow
	}
	if a.HighestBid != nil && a.MinIncrement.IsPositive() &&
		amount.LessThan(a.CurrentPrice.Add(a.MinIncrement)) {
		return shared.ErrBidTooLow
	}
	return nil
}

// ApplyBid records b as the leading bid and bumps the version. It returns
// true when the anti-snipe policy extended the end time.
func (a *Auction) ApplyBid(b *bid.Bid, policy AntiSnipePolicy) bool {
	a.CurrentPrice = b.Amount
	a.HighestBid = &shared.LeadingBid{
		BidID:    b.ID,
		BidderID: b.BidderID,
		Amount:   b.Amount,
	}

	extended := false
	if end, ok := policy.Extend(a.EndTime, b.PlacedAt); ok {
		a.EndTime = end
		a.Extensions++
		extended = true
	}

	a.touch(b.PlacedAt)
	b.Sequence = a.Version
	return extended
}

// RecordCloseFailure counts a failed result computation and flags the auction
// for manual review once maxAttempts is reached.
func (a *Auction) RecordCloseFailure(maxAttempts int, now time.Time) {
	a.CloseAttempts++
	if a.CloseAttempts >= maxAttempts {
		a.NeedsReview = true
	}
	a.touch(now)
}

func (a *Auction) touch(now time.Time) {
	a.Version++
	a.UpdatedAt = now
}
