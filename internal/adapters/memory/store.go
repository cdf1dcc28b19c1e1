package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/bid"
	"gavel-auction-engine/internal/domain/result"
	"gavel-auction-engine/internal/domain/shared"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
)

// Store is an in-process auction record store with optimistic transactions.
// Transactions read committed state and buffer their writes; commit re-checks
// every written auction version under the store lock.
type Store struct {
	mu        sync.RWMutex
	auctions  map[uuid.UUID]*auction.Auction
	bids      map[uuid.UUID]*bid.Bid
	byAuction map[uuid.UUID][]uuid.UUID
	results   map[uuid.UUID]*result.AuctionResult
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		auctions:  make(map[uuid.UUID]*auction.Auction),
		bids:      make(map[uuid.UUID]*bid.Bid),
		byAuction: make(map[uuid.UUID][]uuid.UUID),
		results:   make(map[uuid.UUID]*result.AuctionResult),
	}
}

var _ outbound.AuctionStore = (*Store)(nil)

// GetAuction retrieves an auction by ID
func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	return a.Clone(), nil
}

// GetBid retrieves a bid by ID
func (s *Store) GetBid(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bids[id]
	if !ok {
		return nil, shared.ErrBidNotFound
	}
	return b.Clone(), nil
}

// ListBids retrieves the bids of an auction in commit order
func (s *Store) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBidsLocked(auctionID), nil
}

func (s *Store) listBidsLocked(auctionID uuid.UUID) []*bid.Bid {
	ids := s.byAuction[auctionID]
	bids := make([]*bid.Bid, 0, len(ids))
	for _, id := range ids {
		bids = append(bids, s.bids[id].Clone())
	}
	return bids
}

// GetResult retrieves the result of a closed auction
func (s *Store) GetResult(ctx context.Context, auctionID uuid.UUID) (*result.AuctionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[auctionID]
	if !ok {
		return nil, shared.ErrResultNotFound
	}
	c := *r
	return &c, nil
}

// ListDue returns the auctions the scheduler must act on, oldest deadline first
func (s *Store) ListDue(ctx context.Context, status auction.Status, now time.Time, limit int) ([]*auction.Auction, error) {
	s.mu.RLock()
	var due []*auction.Auction
	for _, a := range s.auctions {
		if a.Status != status {
			continue
		}
		switch status {
		case auction.StatusScheduled:
			if a.StartTime.After(now) {
				continue
			}
		case auction.StatusOpen:
			if a.EndTime.After(now) {
				continue
			}
		case auction.StatusClosing:
			if a.NeedsReview {
				continue
			}
		default:
			continue
		}
		due = append(due, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool {
		if status == auction.StatusScheduled {
			return due[i].StartTime.Before(due[j].StartTime)
		}
		return due[i].EndTime.Before(due[j].EndTime)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// WithinTx runs fn inside one transaction
func (s *Store) WithinTx(ctx context.Context, fn func(tx outbound.AuctionTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range tx.auctions {
		stored, exists := s.auctions[id]
		if w.created {
			if exists {
				return shared.ErrConcurrentModification
			}
			continue
		}
		if !exists {
			return shared.ErrAuctionNotFound
		}
		if stored.Version != w.expectedVersion {
			return shared.ErrConcurrentModification
		}
	}
	for _, b := range tx.bids {
		if _, exists := s.bids[b.ID]; exists {
			return shared.ErrConcurrentModification
		}
	}
	for _, r := range tx.results {
		if _, exists := s.results[r.AuctionID]; exists {
			return shared.ErrAlreadyClosed
		}
	}

	// Results land before the auction state that makes them observable.
	for _, r := range tx.results {
		s.results[r.AuctionID] = r
	}
	for _, b := range tx.bids {
		s.bids[b.ID] = b
		s.byAuction[b.AuctionID] = append(s.byAuction[b.AuctionID], b.ID)
	}
	for id, w := range tx.auctions {
		s.auctions[id] = w.auction
	}
	return nil
}

type auctionWrite struct {
	auction         *auction.Auction
	expectedVersion int64
	created         bool
}

type memTx struct {
	store    *Store
	auctions map[uuid.UUID]*auctionWrite
	bids     []*bid.Bid
	results  []*result.AuctionResult
}

func newTx(s *Store) *memTx {
	return &memTx{
		store:    s,
		auctions: make(map[uuid.UUID]*auctionWrite),
	}
}

func (tx *memTx) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	if w, ok := tx.auctions[id]; ok {
		return w.auction.Clone(), nil
	}
	return tx.store.GetAuction(ctx, id)
}

func (tx *memTx) GetBid(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	for _, b := range tx.bids {
		if b.ID == id {
			return b.Clone(), nil
		}
	}
	return tx.store.GetBid(ctx, id)
}

func (tx *memTx) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	bids, err := tx.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	for _, b := range tx.bids {
		if b.AuctionID == auctionID {
			bids = append(bids, b.Clone())
		}
	}
	return bids, nil
}

func (tx *memTx) GetResult(ctx context.Context, auctionID uuid.UUID) (*result.AuctionResult, error) {
	for _, r := range tx.results {
		if r.AuctionID == auctionID {
			c := *r
			return &c, nil
		}
	}
	return tx.store.GetResult(ctx, auctionID)
}

func (tx *memTx) CreateAuction(ctx context.Context, a *auction.Auction) error {
	if _, err := tx.store.GetAuction(ctx, a.ID); err == nil {
		return shared.ErrConcurrentModification
	}
	tx.auctions[a.ID] = &auctionWrite{auction: a.Clone(), created: true}
	return nil
}

func (tx *memTx) UpdateAuction(ctx context.Context, a *auction.Auction, expectedVersion int64) error {
	if w, ok := tx.auctions[a.ID]; ok {
		if w.auction.Version != expectedVersion {
			return shared.ErrConcurrentModification
		}
		w.auction = a.Clone()
		return nil
	}

	stored, err := tx.store.GetAuction(ctx, a.ID)
	if err != nil {
		return err
	}
	if stored.Version != expectedVersion {
		return shared.ErrConcurrentModification
	}
	tx.auctions[a.ID] = &auctionWrite{auction: a.Clone(), expectedVersion: expectedVersion}
	return nil
}

func (tx *memTx) InsertBid(ctx context.Context, b *bid.Bid) error {
	tx.bids = append(tx.bids, b.Clone())
	return nil
}

func (tx *memTx) InsertResult(ctx context.Context, r *result.AuctionResult) error {
	if _, err := tx.GetResult(ctx, r.AuctionID); err == nil {
		return shared.ErrAlreadyClosed
	}
	c := *r
	tx.results = append(tx.results, &c)
	return nil
}
