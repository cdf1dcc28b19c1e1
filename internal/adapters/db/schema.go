package db

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id UUID PRIMARY KEY,
	seller_id UUID NOT NULL
);

CREATE TABLE IF NOT EXISTS auctions (
	id UUID PRIMARY KEY,
	product_id UUID NOT NULL,
	seller_id UUID NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	reserve_price NUMERIC(18, 2) NOT NULL DEFAULT 0,
	starting_price NUMERIC(18, 2) NOT NULL DEFAULT 0,
	min_increment NUMERIC(18, 2) NOT NULL DEFAULT 0,
	current_price NUMERIC(18, 2) NOT NULL DEFAULT 0,
	highest_bid_id UUID,
	highest_bidder_id UUID,
	highest_amount NUMERIC(18, 2),
	status VARCHAR(16) NOT NULL,
	version BIGINT NOT NULL,
	extensions INT NOT NULL DEFAULT 0,
	close_attempts INT NOT NULL DEFAULT 0,
	needs_review BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CHECK (start_time < end_time)
);

CREATE INDEX IF NOT EXISTS idx_auctions_status_start ON auctions(status, start_time);
CREATE INDEX IF NOT EXISTS idx_auctions_status_end ON auctions(status, end_time);

CREATE TABLE IF NOT EXISTS bids (
	id UUID PRIMARY KEY,
	auction_id UUID NOT NULL REFERENCES auctions(id),
	bidder_id UUID NOT NULL,
	amount NUMERIC(18, 2) NOT NULL,
	status VARCHAR(16) NOT NULL,
	placed_at TIMESTAMPTZ NOT NULL,
	sequence BIGINT NOT NULL,
	UNIQUE (auction_id, sequence)
);

CREATE TABLE IF NOT EXISTS auction_results (
	auction_id UUID PRIMARY KEY REFERENCES auctions(id),
	winning_bid_id UUID REFERENCES bids(id),
	winner_id UUID,
	final_price NUMERIC(18, 2),
	bid_count INT NOT NULL,
	closed_at TIMESTAMPTZ NOT NULL
);
`

// InitSchema creates the engine tables if they do not exist
func (client *Connection) InitSchema(ctx context.Context) error {
	if _, err := client.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
