package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
)

type Order struct {
	ID         int64           `json:"id"`
	OwnerID    int64           `json:"ownerId"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	Lines      []OrderLine     `json:"lines"`
}

type OrderLine struct {
	ID                int64           `json:"id"`
	OrderID           int64           `json:"orderId"`
	ItemID            int64           `json:"itemId"`
	Quantity          int             `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unitPrice"`
}
