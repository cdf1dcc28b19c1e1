package outbound

import (
	"context"

	"github.com/google/uuid"
)

// EventType represents the type of event being broadcasted
type EventType string

const (
	EventTypeAuctionCreated   EventType = "auction.created"
	EventTypeAuctionOpened    EventType = "auction.opened"
	EventTypeBidPlaced        EventType = "bid.placed"
	EventTypeAuctionClosed    EventType = "auction.closed"
	EventTypeAuctionCancelled EventType = "auction.cancelled"
	EventTypeReviewRequired   EventType = "auction.review_required"
)

// Event represents a broadcast event
type Event struct {
	Type      EventType              `json:"type"`
	AuctionID uuid.UUID              `json:"auction_id"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Notifier emits one-way events. Delivery is best effort.
type Notifier interface {
	Publish(ctx context.Context, auctionID uuid.UUID, event Event) error
}

// Broadcaster defines the interface for broadcasting events to live subscribers
type Broadcaster interface {
	Notifier

	// Subscribe subscribes a client to events for a specific auction
	// When a client subscribes to multiple auctions, all events are delivered to the same channel
	Subscribe(ctx context.Context, auctionID uuid.UUID, clientID string, eventChan chan Event) error

	// Unsubscribe unsubscribes a client from events for a specific auction
	Unsubscribe(ctx context.Context, auctionID uuid.UUID, clientID string) error

	// IsSubscribed checks if a client is subscribed to an auction
	IsSubscribed(ctx context.Context, auctionID uuid.UUID, clientID string) bool
}
