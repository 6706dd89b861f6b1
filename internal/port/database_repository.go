package port

import (
	"context"

	"github.com/rl1809/card-shop/internal/core/domain"
)

// LockMode selects the row lock taken by a locking read.
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

type DatabaseRepository interface {
	// RunInTx executes fn inside one transaction. The transaction commits
	// only when fn returns nil; any error rolls it back before returning.
	RunInTx(ctx context.Context, fn func(tx Transaction) error) error

	// ListCartLines returns the owner's cart newest first, without locking.
	ListCartLines(ctx context.Context, ownerID int64) ([]domain.CartLine, error)

	// GetOrder returns nil when the order does not exist or belongs to someone else.
	GetOrder(ctx context.Context, ownerID, orderID int64) (*domain.Order, error)

	ListOrders(ctx context.Context, ownerID int64) ([]domain.Order, error)
}

// Transaction is the set of reads and writes available inside RunInTx.
// Lookups return nil, nil when the row does not exist.
type Transaction interface {
	GetInventoryItem(ctx context.Context, itemID int64, lock LockMode) (*domain.InventoryItem, error)

	// FindCartLine locks the owner's line for itemID (FOR UPDATE).
	FindCartLine(ctx context.Context, ownerID, itemID int64) (*domain.CartLine, error)

	// GetCartLine locks a line by id, scoped to its owner (FOR UPDATE).
	GetCartLine(ctx context.Context, ownerID, lineID int64) (*domain.CartLine, error)

	// LockCartLines locks every line of the owner's cart (FOR UPDATE).
	LockCartLines(ctx context.Context, ownerID int64) ([]domain.CartLine, error)

	// InsertCartLine fills in ID and AddedAt.
	InsertCartLine(ctx context.Context, line *domain.CartLine) error
	UpdateCartLine(ctx context.Context, line *domain.CartLine) error
	DeleteCartLine(ctx context.Context, ownerID, lineID int64) error
	DeleteCartLines(ctx context.Context, ownerID int64) error

	// DecrementStock fails with domain.ErrInsufficientStock rather than
	// letting available quantity go negative.
	DecrementStock(ctx context.Context, itemID int64, quantity int) error

	// InsertOrder persists the order and its lines, filling in their IDs.
	InsertOrder(ctx context.Context, order *domain.Order) error
}

// CatalogRepository reads live catalog data outside any transaction.
type CatalogRepository interface {
	GetInventoryItem(ctx context.Context, itemID int64) (*domain.InventoryItem, error)
}
