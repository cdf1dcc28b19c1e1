package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"gavel-auction-engine/internal/adapters/clock"
	"gavel-auction-engine/internal/app"
	"gavel-auction-engine/internal/config"
	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/shared"
	"gavel-auction-engine/internal/ports/inbound"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// The tests below run against a disposable PostgreSQL database named by
// TEST_DB_URL and are skipped without one.
func testConnection(t *testing.T) *Connection {
	t.Helper()
	url := os.Getenv("TEST_DB_URL")
	if url == "" {
		t.Skip("TEST_DB_URL not set")
	}

	ctx := context.Background()
	conn, err := NewConnection(ctx, &config.Config{Database: config.DatabaseConfig{Driver: config.StoreDriverPostgres, URL: url}})
	assert.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.NoError(t, conn.InitSchema(ctx))
	return conn
}

func addProduct(t *testing.T, conn *Connection) (uuid.UUID, uuid.UUID) {
	t.Helper()
	productID, sellerID := uuid.New(), uuid.New()
	_, err := conn.GetDB().ExecContext(context.Background(), `INSERT INTO products (id, seller_id) VALUES ($1, $2)`, productID, sellerID)
	assert.NoError(t, err)
	return productID, sellerID
}

func TestCatalogRepository_SellerOf(t *testing.T) {
	conn := testConnection(t)
	repo := NewCatalogRepository(conn)
	productID, sellerID := addProduct(t, conn)

	got, err := repo.SellerOf(context.Background(), productID)
	assert.NoError(t, err)
	check.Equal(t, sellerID, got)

	_, err = repo.SellerOf(context.Background(), uuid.New())
	check.True(t, errors.Is(err, shared.ErrProductNotFound))
}

func TestStore_StaleUpdateRejected(t *testing.T) {
	ctx := context.Background()
	conn := testConnection(t)
	store := NewStore(conn)
	productID, sellerID := addProduct(t, conn)
	now := time.Now().UTC().Truncate(time.Microsecond)

	a, err := auction.New(productID, sellerID, now, now.Add(time.Hour), decimal.Zero, decimal.Zero, decimal.Zero, now)
	assert.NoError(t, err)
	assert.NoError(t, store.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		return tx.CreateAuction(ctx, a)
	}))

	err = store.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		stale := a.Clone()
		stale.Version = 5
		return tx.UpdateAuction(ctx, stale, 4)
	})
	check.True(t, errors.Is(err, shared.ErrConcurrentModification))

	err = store.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		missing := a.Clone()
		missing.ID = uuid.New()
		return tx.UpdateAuction(ctx, missing, 1)
	})
	check.True(t, errors.Is(err, shared.ErrAuctionNotFound))

	stored, err := store.GetAuction(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, int64(1), stored.Version)
	check.Equal(t, auction.StatusScheduled, stored.Status)
}

func TestStore_LifecycleRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn := testConnection(t)
	store := NewStore(conn)
	productID, _ := addProduct(t, conn)
	clk := clock.NewManual(time.Now().UTC().Truncate(time.Second))

	lifecycle := app.NewLifecycleService(app.LifecycleServiceParams{
		Store:     store,
		Directory: NewCatalogRepository(conn),
		Clock:     clk,
		Logger:    zerolog.Nop(),
	})
	bids := app.NewBidService(app.BidServiceParams{Store: store, Clock: clk, Logger: zerolog.Nop()})

	a, err := lifecycle.CreateAuction(ctx, inbound.CreateAuctionRequest{
		ProductID:    productID,
		StartTime:    clk.Now(),
		EndTime:      clk.Now().Add(time.Minute),
		ReservePrice: decimal.NewFromInt(20),
	})
	assert.NoError(t, err)
	_, err = lifecycle.Transition(ctx, a.ID, auction.StatusOpen, auction.CauseSchedule)
	assert.NoError(t, err)

	winner := uuid.New()
	_, err = bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(15)})
	assert.NoError(t, err)
	top, err := bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: winner, Amount: decimal.RequireFromString("21.50")})
	assert.NoError(t, err)

	_, err = bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(21)})
	check.True(t, errors.Is(err, shared.ErrBidTooLow))

	history, err := store.ListBids(ctx, a.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(history))
	check.True(t, history[0].Sequence < history[1].Sequence)

	clk.Advance(time.Minute)
	due, err := store.ListDue(ctx, auction.StatusOpen, clk.Now(), 10)
	assert.NoError(t, err)
	check.True(t, len(due) >= 1)

	_, err = lifecycle.Transition(ctx, a.ID, auction.StatusClosing, auction.CauseSchedule)
	assert.NoError(t, err)
	_, err = lifecycle.Transition(ctx, a.ID, auction.StatusClosed, auction.CauseSchedule)
	assert.NoError(t, err)

	res, err := store.GetResult(ctx, a.ID)
	assert.NoError(t, err)
	assert.True(t, res.HasWinner())
	check.Equal(t, top.ID, *res.WinningBidID)
	check.Equal(t, winner, *res.WinnerID)
	check.True(t, res.FinalPrice.Equal(decimal.RequireFromString("21.50")))

	_, err = lifecycle.Transition(ctx, a.ID, auction.StatusClosed, auction.CauseSchedule)
	check.True(t, errors.Is(err, shared.ErrAlreadyClosed))
}
