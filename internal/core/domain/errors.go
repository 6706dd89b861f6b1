package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")

	// ErrConflict marks a lock or unique-constraint race. The whole
	// operation may be retried by the caller.
	ErrConflict = errors.New("conflict")
)

// StockError describes a rejected reservation or checkout line.
// It unwraps to ErrOutOfStock (cart) or ErrInsufficientStock (checkout).
type StockError struct {
	Kind      error
	ItemID    int64
	Requested int
	Available int
	InCart    int
}

func (e *StockError) Error() string {
	if e.InCart > 0 {
		return fmt.Sprintf("%v: item %d: already have %d in cart, stock is %d",
			e.Kind, e.ItemID, e.InCart, e.Available)
	}
	return fmt.Sprintf("%v: item %d: requested %d, available %d",
		e.Kind, e.ItemID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return e.Kind
}
