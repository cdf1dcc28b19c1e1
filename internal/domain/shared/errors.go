package shared

import (
	"errors"
	"fmt"
)

// Domain-specific errors
var (
	ErrNotFound = errors.New("not found")

	// Lookup errors
	ErrAuctionNotFound = fmt.Errorf("auction %w", ErrNotFound)
	ErrBidNotFound     = fmt.Errorf("bid %w", ErrNotFound)
	ErrResultNotFound  = fmt.Errorf("auction result %w", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)

	// Lifecycle errors
	ErrInvalidTransition      = errors.New("invalid auction state transition")
	ErrConcurrentModification = errors.New("auction was modified concurrently")
	ErrAlreadyClosed          = errors.New("auction already closed")
	ErrCloseRetriesExhausted  = errors.New("auction close retries exhausted")
	ErrNotYetDue              = errors.New("auction transition is not yet due")

	// Bid validation errors
	ErrBidTooLow        = errors.New("bid amount must be higher than current price")
	ErrAuctionClosed    = errors.New("auction is not accepting bids")
	ErrSelfBidForbidden = errors.New("seller cannot bid on own auction")
	ErrBidIDConflict    = errors.New("bid id already used for a different bid")
	ErrAmountPrecision  = errors.New("amounts carry at most two decimal places")

	// Auction creation errors
	ErrInvalidSchedule     = errors.New("end time must be after start time")
	ErrInvalidReservePrice = errors.New("reserve price cannot be negative")
	ErrInvalidStartPrice   = errors.New("starting price cannot be negative")
	ErrInvalidIncrement    = errors.New("minimum increment cannot be negative")

	// WebSocket message validation errors
	ErrMessageTypeRequired = errors.New("message type is required")
	ErrAuctionIDRequired   = errors.New("auction_id is required")
	ErrBidIDRequired       = errors.New("bid_id is required")
	ErrInvalidAmount       = errors.New("valid amount is required")
	ErrProductIDRequired   = errors.New("product_id is required")
	ErrStartTimeRequired   = errors.New("start_time is required")
	ErrEndTimeRequired     = errors.New("end_time is required")
	ErrInvalidTimeFormat   = errors.New("invalid time format")
	ErrUnknownMessageType  = errors.New("unknown message type")

	ErrClientEventChannelNotFound = errors.New("client event channel not found")
)

// IsRetryable reports whether err is a lost optimistic-concurrency race that the
// same logical operation may be retried after.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsRejection reports whether err is a bid validation failure that must be
// surfaced to the submitter rather than retried.
func IsRejection(err error) bool {
	return errors.Is(err, ErrBidTooLow) ||
		errors.Is(err, ErrAmountPrecision) ||
		errors.Is(err, ErrAuctionClosed) ||
		errors.Is(err, ErrSelfBidForbidden)
}
