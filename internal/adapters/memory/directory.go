package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gavel-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// Directory is an in-process product to seller lookup
type Directory struct {
	mu      sync.RWMutex
	sellers map[uuid.UUID]uuid.UUID
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{sellers: make(map[uuid.UUID]uuid.UUID)}
}

// AddProduct registers the seller of a product
func (d *Directory) AddProduct(productID, sellerID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sellers[productID] = sellerID
}

// SellerOf returns the seller who owns a product listing
func (d *Directory) SellerOf(ctx context.Context, productID uuid.UUID) (uuid.UUID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seller, ok := d.sellers[productID]
	if !ok {
		return uuid.Nil, shared.ErrProductNotFound
	}
	return seller, nil
}

// Load registers products from a comma separated list of
// "product_id:seller_id" pairs and returns how many were added. Nothing is
// registered when any pair is malformed.
func (d *Directory) Load(pairs string) (int, error) {
	parsed := make(map[uuid.UUID]uuid.UUID)
	for _, pair := range strings.Split(pairs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		product, seller, ok := strings.Cut(pair, ":")
		if !ok {
			return 0, fmt.Errorf("product entry %q: want product_id:seller_id", pair)
		}
		productID, err := uuid.Parse(strings.TrimSpace(product))
		if err != nil {
			return 0, fmt.Errorf("product entry %q: %w", pair, err)
		}
		sellerID, err := uuid.Parse(strings.TrimSpace(seller))
		if err != nil {
			return 0, fmt.Errorf("product entry %q: %w", pair, err)
		}
		parsed[productID] = sellerID
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for productID, sellerID := range parsed {
		d.sellers[productID] = sellerID
	}
	return len(parsed), nil
}
