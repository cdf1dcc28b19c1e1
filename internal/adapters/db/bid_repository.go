package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gavel-auction-engine/internal/domain/bid"
	"gavel-auction-engine/internal/domain/result"
	"gavel-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const bidColumns = `id, auction_id, bidder_id, amount, status, placed_at, sequence`

func scanBid(row rowScanner) (*bid.Bid, error) {
	var b bid.Bid
	err := row.Scan(
		&b.ID,
		&b.AuctionID,
		&b.BidderID,
		&b.Amount,
		&b.Status,
		&b.PlacedAt,
		&b.Sequence,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func getBid(ctx context.Context, q querier, id uuid.UUID) (*bid.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`

	b, err := scanBid(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return b, nil
}

func listBids(ctx context.Context, q querier, auctionID uuid.UUID) ([]*bid.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE auction_id = $1 AND status = 'accepted'
		ORDER BY sequence ASC
	`

	rows, err := q.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	defer rows.Close()

	var bids []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return bids, nil
}

func insertBid(ctx context.Context, q querier, b *bid.Bid) error {
	query := `INSERT INTO bids (` + bidColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := q.ExecContext(ctx, query,
		b.ID,
		b.AuctionID,
		b.BidderID,
		b.Amount,
		b.Status,
		b.PlacedAt,
		b.Sequence,
	)
	if err != nil {
		// A concurrent commit took the same bid id or sequence.
		if isUniqueViolation(err) {
			return shared.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

func getResult(ctx context.Context, q querier, auctionID uuid.UUID) (*result.AuctionResult, error) {
	query := `
		SELECT auction_id, winning_bid_id, winner_id, final_price, bid_count, closed_at
		FROM auction_results
		WHERE auction_id = $1
	`

	var (
		r          result.AuctionResult
		winningBid uuid.NullUUID
		winner     uuid.NullUUID
		finalPrice decimal.NullDecimal
	)
	err := q.QueryRowContext(ctx, query, auctionID).Scan(
		&r.AuctionID,
		&winningBid,
		&winner,
		&finalPrice,
		&r.BidCount,
		&r.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get auction result: %w", err)
	}

	if winningBid.Valid {
		r.WinningBidID = &winningBid.UUID
		r.WinnerID = &winner.UUID
		r.FinalPrice = &finalPrice.Decimal
	}
	return &r, nil
}

func insertResult(ctx context.Context, q querier, r *result.AuctionResult) error {
	query := `
		INSERT INTO auction_results (auction_id, winning_bid_id, winner_id, final_price, bid_count, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	var (
		winningBid uuid.NullUUID
		winner     uuid.NullUUID
		finalPrice decimal.NullDecimal
	)
	if r.HasWinner() {
		winningBid = uuid.NullUUID{UUID: *r.WinningBidID, Valid: true}
		winner = uuid.NullUUID{UUID: *r.WinnerID, Valid: true}
		finalPrice = decimal.NullDecimal{Decimal: *r.FinalPrice, Valid: true}
	}

	_, err := q.ExecContext(ctx, query, r.AuctionID, winningBid, winner, finalPrice, r.BidCount, r.ClosedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyClosed
		}
		return fmt.Errorf("failed to insert auction result: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
