package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gavel-auction-engine/internal/domain/shared"
	"gavel-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
)

// CatalogRepository reads product ownership from the catalog tables. The
// engine only ever reads them.
type CatalogRepository struct {
	conn *Connection
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

var _ outbound.Directory = (*CatalogRepository)(nil)

// SellerOf returns the seller who owns a product listing
func (r *CatalogRepository) SellerOf(ctx context.Context, productID uuid.UUID) (uuid.UUID, error) {
	query := `SELECT seller_id FROM products WHERE id = $1`

	var sellerID uuid.UUID
	err := r.conn.GetDB().QueryRowContext(ctx, query, productID).Scan(&sellerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, shared.ErrProductNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get product seller: %w", err)
	}
	return sellerID, nil
}
