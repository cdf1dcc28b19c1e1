package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/bid"
	"gavel-auction-engine/internal/domain/result"
	"gavel-auction-engine/internal/domain/shared"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedAuction(t *testing.T, s *Store, start, end time.Time) *auction.Auction {
	t.Helper()
	a, err := auction.New(uuid.New(), uuid.New(), start, end, decimal.Zero, decimal.Zero, decimal.Zero, t0)
	assert.NoError(t, err)
	assert.NoError(t, s.WithinTx(context.Background(), func(tx outbound.AuctionTx) error {
		return tx.CreateAuction(context.Background(), a)
	}))
	return a
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAuction(t, s, t0, t0.Add(time.Hour))

	got, err := s.GetAuction(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, a.ID, got.ID)
	check.Equal(t, int64(1), got.Version)

	// reads never alias stored state
	got.Status = auction.StatusClosed
	again, err := s.GetAuction(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, auction.StatusScheduled, again.Status)

	_, err = s.GetAuction(ctx, uuid.New())
	check.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAuction(t, s, t0, t0.Add(time.Hour))

	err := s.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		return tx.CreateAuction(ctx, a)
	})
	check.True(t, errors.Is(err, shared.ErrConcurrentModification))
}

func TestStore_UpdateStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAuction(t, s, t0, t0.Add(time.Hour))

	err := s.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		stale := a.Clone()
		stale.Version = 7
		return tx.UpdateAuction(ctx, stale, 6)
	})
	check.True(t, errors.Is(err, shared.ErrConcurrentModification))

	got, err := s.GetAuction(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, int64(1), got.Version)
}

func TestStore_ConcurrentWriterLosesAtCommit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAuction(t, s, t0, t0.Add(time.Hour))

	err := s.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		mine, err := tx.GetAuction(ctx, a.ID)
		if err != nil {
			return err
		}
		expected := mine.Version
		if err := mine.Transition(auction.StatusOpen, auction.CauseActivation, t0); err != nil {
			return err
		}
		if err := tx.UpdateAuction(ctx, mine, expected); err != nil {
			return err
		}

		// a competing transaction commits first
		return s.WithinTx(ctx, func(other outbound.AuctionTx) error {
			theirs, err := other.GetAuction(ctx, a.ID)
			if err != nil {
				return err
			}
			expected := theirs.Version
			if err := theirs.Transition(auction.StatusCancelled, auction.CauseModeration, t0); err != nil {
				return err
			}
			return other.UpdateAuction(ctx, theirs, expected)
		})
	})
	check.True(t, errors.Is(err, shared.ErrConcurrentModification))

	got, err := s.GetAuction(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, auction.StatusCancelled, got.Status)
	check.Equal(t, int64(2), got.Version)
}

func TestStore_FailedTxWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAuction(t, s, t0, t0.Add(time.Hour))
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		b := &bid.Bid{ID: uuid.New(), AuctionID: a.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(5), Status: bid.StatusAccepted, PlacedAt: t0}
		if err := tx.InsertBid(ctx, b); err != nil {
			return err
		}
		return boom
	})
	check.True(t, errors.Is(err, boom))

	bids, err := s.ListBids(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, 0, len(bids))
}

func TestStore_BidsInCommitOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAuction(t, s, t0, t0.Add(time.Hour))

	var ids []uuid.UUID
	for i := 1; i <= 3; i++ {
		b := &bid.Bid{ID: uuid.New(), AuctionID: a.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(int64(i * 10)), Status: bid.StatusAccepted, PlacedAt: t0}
		ids = append(ids, b.ID)
		assert.NoError(t, s.WithinTx(ctx, func(tx outbound.AuctionTx) error {
			return tx.InsertBid(ctx, b)
		}))
	}

	bids, err := s.ListBids(ctx, a.ID)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(bids))
	for i, b := range bids {
		check.Equal(t, ids[i], b.ID)
	}

	got, err := s.GetBid(ctx, ids[1])
	assert.NoError(t, err)
	check.Equal(t, "20", got.Amount.String())

	_, err = s.GetBid(ctx, uuid.New())
	check.True(t, errors.Is(err, shared.ErrBidNotFound))
}

func TestStore_ResultWrittenOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAuction(t, s, t0, t0.Add(time.Hour))
	res := result.Compute(a.ID, nil, decimal.Zero, t0)

	assert.NoError(t, s.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		return tx.InsertResult(ctx, res)
	}))

	err := s.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		return tx.InsertResult(ctx, res)
	})
	check.True(t, errors.Is(err, shared.ErrAlreadyClosed))

	got, err := s.GetResult(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, a.ID, got.AuctionID)

	_, err = s.GetResult(ctx, uuid.New())
	check.True(t, errors.Is(err, shared.ErrResultNotFound))
}

func TestStore_TxReadsItsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAuction(t, s, t0, t0.Add(time.Hour))

	assert.NoError(t, s.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		b := &bid.Bid{ID: uuid.New(), AuctionID: a.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(5), Status: bid.StatusAccepted, PlacedAt: t0}
		if err := tx.InsertBid(ctx, b); err != nil {
			return err
		}
		bids, err := tx.ListBids(ctx, a.ID)
		if err != nil {
			return err
		}
		check.Equal(t, 1, len(bids))

		staged, err := tx.GetBid(ctx, b.ID)
		if err != nil {
			return err
		}
		check.Equal(t, b.ID, staged.ID)
		return nil
	}))
}

func TestStore_ListDue(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := t0.Add(2 * time.Hour)

	early := seedAuction(t, s, t0, t0.Add(time.Hour))
	later := seedAuction(t, s, t0.Add(30*time.Minute), t0.Add(90*time.Minute))
	seedAuction(t, s, now.Add(time.Minute), now.Add(time.Hour))

	due, err := s.ListDue(ctx, auction.StatusScheduled, now, 0)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(due))
	check.Equal(t, early.ID, due[0].ID)
	check.Equal(t, later.ID, due[1].ID)

	due, err = s.ListDue(ctx, auction.StatusScheduled, now, 1)
	assert.NoError(t, err)
	check.Equal(t, 1, len(due))

	// open auctions are due once their end time has passed
	assert.NoError(t, s.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		a, err := tx.GetAuction(ctx, early.ID)
		if err != nil {
			return err
		}
		expected := a.Version
		if err := a.Transition(auction.StatusOpen, auction.CauseSchedule, now); err != nil {
			return err
		}
		return tx.UpdateAuction(ctx, a, expected)
	}))
	due, err = s.ListDue(ctx, auction.StatusOpen, now, 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(due))
	check.Equal(t, early.ID, due[0].ID)

	due, err = s.ListDue(ctx, auction.StatusOpen, t0.Add(30*time.Minute), 0)
	assert.NoError(t, err)
	check.Equal(t, 0, len(due))
}

func TestStore_ListDueSkipsFlaggedClosing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAuction(t, s, t0, t0.Add(time.Hour))
	end := t0.Add(time.Hour)

	assert.NoError(t, s.WithinTx(ctx, func(tx outbound.AuctionTx) error {
		stored, err := tx.GetAuction(ctx, a.ID)
		if err != nil {
			return err
		}
		expected := stored.Version
		stored.Status = auction.StatusClosing
		stored.RecordCloseFailure(1, end)
		return tx.UpdateAuction(ctx, stored, expected)
	}))

	due, err := s.ListDue(ctx, auction.StatusClosing, end, 0)
	assert.NoError(t, err)
	check.Equal(t, 0, len(due))
}

func TestStore_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.WithinTx(ctx, func(tx outbound.AuctionTx) error { return nil })
	check.True(t, errors.Is(err, context.Canceled))
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory()
	productID, sellerID := uuid.New(), uuid.New()
	d.AddProduct(productID, sellerID)

	got, err := d.SellerOf(ctx, productID)
	assert.NoError(t, err)
	check.Equal(t, sellerID, got)

	_, err = d.SellerOf(ctx, uuid.New())
	check.True(t, errors.Is(err, shared.ErrProductNotFound))
}

func TestDirectory_Load(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory()
	p1, s1 := uuid.New(), uuid.New()
	p2, s2 := uuid.New(), uuid.New()

	n, err := d.Load(p1.String() + ":" + s1.String() + ", " + p2.String() + ":" + s2.String() + ",")
	assert.NoError(t, err)
	check.Equal(t, 2, n)

	got, err := d.SellerOf(ctx, p2)
	assert.NoError(t, err)
	check.Equal(t, s2, got)

	n, err = d.Load("")
	check.NoError(t, err)
	check.Equal(t, 0, n)

	// a malformed entry registers nothing
	p3 := uuid.New()
	_, err = d.Load(p3.String() + ":" + uuid.NewString() + "," + "not-a-pair")
	check.Error(t, err)
	_, err = d.SellerOf(ctx, p3)
	check.True(t, errors.Is(err, shared.ErrProductNotFound))
}
