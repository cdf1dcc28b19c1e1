package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"gavel-auction-engine/internal/adapters/clock"
	"gavel-auction-engine/internal/adapters/memory"
	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/ports/inbound"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingNotifier captures published events
type recordingNotifier struct {
	mu     sync.Mutex
	events []outbound.Event
}

func (n *recordingNotifier) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) ofType(eventType outbound.EventType) []outbound.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []outbound.Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store     *memory.Store
	directory *memory.Directory
	clock     *clock.Manual
	notifier  *recordingNotifier
	lifecycle *LifecycleService
	bids      *BidService
	sellerID  uuid.UUID
	productID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewStore(), auction.AntiSnipePolicy{})
}

func newFixtureWithStore(t *testing.T, store *memory.Store, policy auction.AntiSnipePolicy) *fixture {
	t.Helper()
	f := &fixture{
		store:     store,
		directory: memory.NewDirectory(),
		clock:     clock.NewManual(t0),
		notifier:  &recordingNotifier{},
		sellerID:  uuid.New(),
		productID: uuid.New(),
	}
	f.directory.AddProduct(f.productID, f.sellerID)
	f.lifecycle = NewLifecycleService(LifecycleServiceParams{
		Store:           store,
		Directory:       f.directory,
		Notifier:        f.notifier,
		Clock:           f.clock,
		CloseMaxRetries: 3,
		Logger:          zerolog.Nop(),
	})
	f.bids = NewBidService(BidServiceParams{
		Store:      store,
		Notifier:   f.notifier,
		Clock:      f.clock,
		AntiSnipe:  policy,
		MaxRetries: 3,
		Logger:     zerolog.Nop(),
	})
	return f
}

// openAuction creates an auction running for an hour from t0 and opens it
func (f *fixture) openAuction(t *testing.T, reserve int64) *auction.Auction {
	t.Helper()
	ctx := context.Background()
	a, err := f.lifecycle.CreateAuction(ctx, inbound.CreateAuctionRequest{
		ProductID:    f.productID,
		StartTime:    t0,
		EndTime:      t0.Add(time.Hour),
		ReservePrice: decimal.NewFromInt(reserve),
	})
	assert.NoError(t, err)
	opened, err := f.lifecycle.Transition(ctx, a.ID, auction.StatusOpen, auction.CauseSchedule)
	assert.NoError(t, err)
	return opened
}

func (f *fixture) bid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) error {
	_, err := f.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    decimal.NewFromInt(amount),
	})
	return err
}
