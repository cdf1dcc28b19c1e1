package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const auctionColumns = `
	id, product_id, seller_id, start_time, end_time, reserve_price, starting_price,
	min_increment, current_price, highest_bid_id, highest_bidder_id, highest_amount,
	status, version, extensions, close_attempts, needs_review, created_at, updated_at`

func scanAuction(row rowScanner) (*auction.Auction, error) {
	var (
		a            auction.Auction
		highestBidID uuid.NullUUID
		highestBy    uuid.NullUUID
		highestAmt   decimal.NullDecimal
	)
	err := row.Scan(
		&a.ID,
		&a.ProductID,
		&a.SellerID,
		&a.StartTime,
		&a.EndTime,
		&a.ReservePrice,
		&a.StartingPrice,
		&a.MinIncrement,
		&a.CurrentPrice,
		&highestBidID,
		&highestBy,
		&highestAmt,
		&a.Status,
		&a.Version,
		&a.Extensions,
		&a.CloseAttempts,
		&a.NeedsReview,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if highestBidID.Valid {
		a.HighestBid = &shared.LeadingBid{
			BidID:    highestBidID.UUID,
			BidderID: highestBy.UUID,
			Amount:   highestAmt.Decimal,
		}
	}
	return &a, nil
}

func leadingBidColumns(a *auction.Auction) (uuid.NullUUID, uuid.NullUUID, decimal.NullDecimal) {
	if a.HighestBid == nil {
		return uuid.NullUUID{}, uuid.NullUUID{}, decimal.NullDecimal{}
	}
	return uuid.NullUUID{UUID: a.HighestBid.BidID, Valid: true},
		uuid.NullUUID{UUID: a.HighestBid.BidderID, Valid: true},
		decimal.NullDecimal{Decimal: a.HighestBid.Amount, Valid: true}
}

func getAuction(ctx context.Context, q querier, id uuid.UUID) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	a, err := scanAuction(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return a, nil
}

func createAuction(ctx context.Context, q querier, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	bidID, bidderID, amount := leadingBidColumns(a)
	_, err := q.ExecContext(ctx, query,
		a.ID,
		a.ProductID,
		a.SellerID,
		a.StartTime,
		a.EndTime,
		a.ReservePrice,
		a.StartingPrice,
		a.MinIncrement,
		a.CurrentPrice,
		bidID,
		bidderID,
		amount,
		a.Status,
		a.Version,
		a.Extensions,
		a.CloseAttempts,
		a.NeedsReview,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrConcurrentModification
		}
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

// updateAuction is the optimistic write: it only matches the row while the
// stored version still equals expectedVersion
func updateAuction(ctx context.Context, q querier, a *auction.Auction, expectedVersion int64) error {
	query := `
		UPDATE auctions
		SET end_time = $3, current_price = $4, highest_bid_id = $5, highest_bidder_id = $6,
		    highest_amount = $7, status = $8, version = $9, extensions = $10,
		    close_attempts = $11, needs_review = $12, updated_at = $13
		WHERE id = $1 AND version = $2
	`

	bidID, bidderID, amount := leadingBidColumns(a)
	res, err := q.ExecContext(ctx, query,
		a.ID,
		expectedVersion,
		a.EndTime,
		a.CurrentPrice,
		bidID,
		bidderID,
		amount,
		a.Status,
		a.Version,
		a.Extensions,
		a.CloseAttempts,
		a.NeedsReview,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	// Zero rows: either the auction vanished or another writer got there first.
	if _, err := getAuction(ctx, q, a.ID); err != nil {
		return err
	}
	return shared.ErrConcurrentModification
}

func listDueAuctions(ctx context.Context, q querier, status auction.Status, now time.Time, limit int) ([]*auction.Auction, error) {
	var query string
	args := []interface{}{status}

	switch status {
	case auction.StatusScheduled:
		query = `SELECT ` + auctionColumns + ` FROM auctions WHERE status = $1 AND start_time <= $2 ORDER BY start_time ASC LIMIT $3`
		args = append(args, now, limit)
	case auction.StatusOpen:
		query = `SELECT ` + auctionColumns + ` FROM auctions WHERE status = $1 AND end_time <= $2 ORDER BY end_time ASC LIMIT $3`
		args = append(args, now, limit)
	case auction.StatusClosing:
		query = `SELECT ` + auctionColumns + ` FROM auctions WHERE status = $1 AND needs_review = FALSE ORDER BY end_time ASC LIMIT $2`
		args = append(args, limit)
	default:
		return nil, nil
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list due auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}
	return auctions, nil
}
