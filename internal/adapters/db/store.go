package db

import (
	"context"
	"database/sql"
	"time"

	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/bid"
	"gavel-auction-engine/internal/domain/result"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
)

// Store implements the auction record store on PostgreSQL. Auction writes are
// conditional on the version column; no row locks are taken.
type Store struct {
	conn *Connection
}

// NewStore creates a new PostgreSQL store
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

var _ outbound.AuctionStore = (*Store)(nil)

func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	return getAuction(ctx, s.conn.GetDB(), id)
}

func (s *Store) GetBid(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	return getBid(ctx, s.conn.GetDB(), id)
}

func (s *Store) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	return listBids(ctx, s.conn.GetDB(), auctionID)
}

func (s *Store) GetResult(ctx context.Context, auctionID uuid.UUID) (*result.AuctionResult, error) {
	return getResult(ctx, s.conn.GetDB(), auctionID)
}

func (s *Store) ListDue(ctx context.Context, status auction.Status, now time.Time, limit int) ([]*auction.Auction, error) {
	return listDueAuctions(ctx, s.conn.GetDB(), status, now, limit)
}

// WithinTx runs fn inside one database transaction
func (s *Store) WithinTx(ctx context.Context, fn func(tx outbound.AuctionTx) error) error {
	return s.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	return getAuction(ctx, t.tx, id)
}

func (t *pgTx) GetBid(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	return getBid(ctx, t.tx, id)
}

func (t *pgTx) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	return listBids(ctx, t.tx, auctionID)
}

func (t *pgTx) GetResult(ctx context.Context, auctionID uuid.UUID) (*result.AuctionResult, error) {
	return getResult(ctx, t.tx, auctionID)
}

func (t *pgTx) CreateAuction(ctx context.Context, a *auction.Auction) error {
	return createAuction(ctx, t.tx, a)
}

func (t *pgTx) UpdateAuction(ctx context.Context, a *auction.Auction, expectedVersion int64) error {
	return updateAuction(ctx, t.tx, a, expectedVersion)
}

func (t *pgTx) InsertBid(ctx context.Context, b *bid.Bid) error {
	return insertBid(ctx, t.tx, b)
}

func (t *pgTx) InsertResult(ctx context.Context, r *result.AuctionResult) error {
	return insertResult(ctx, t.tx, r)
}
