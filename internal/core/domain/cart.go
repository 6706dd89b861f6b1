package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is an owner's reservation of an inventory item. There is at most
// one line per (OwnerID, ItemID).
type CartLine struct {
	ID                int64           `json:"id"`
	OwnerID           int64           `json:"ownerId"`
	ItemID            int64           `json:"itemId"`
	ReservedQuantity  int             `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unitPrice"`
	AddedAt           time.Time       `json:"addedAt"`
}

// CartLineView is a cart line enriched with live catalog data.
type CartLineView struct {
	CartLine
	Name              string `json:"name"`
	ImageURL          string `json:"imageUrl,omitempty"`
	AvailableQuantity int    `json:"availableQuantity"`
}
