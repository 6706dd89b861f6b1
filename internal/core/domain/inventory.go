package domain

import "github.com/shopspring/decimal"

// InventoryItem is the catalog's authoritative stock and price for a card.
type InventoryItem struct {
	ID                int64
	Name              string
	ImageURL          string
	UnitPrice         decimal.Decimal
	AvailableQuantity int
	Version           int64 // bumped on every stock decrement, never compared
}
