package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/port"
)

const DefaultTxTimeout = 5 * time.Second

type txFunc func(ctx context.Context, tx port.Transaction) error

// runInTx bounds the transaction by timeout. A transaction that dies on its
// own deadline (lock waits, slow store) is reported as ErrConflict so the
// caller can retry; the store has already rolled it back.
func runInTx(ctx context.Context, db port.DatabaseRepository, timeout time.Duration, fn txFunc) error {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	txCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := db.RunInTx(txCtx, func(tx port.Transaction) error {
		return fn(txCtx, tx)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(txCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: transaction timed out after %s: %v", domain.ErrConflict, timeout, err)
	}
	return err
}

// authorize runs before any transaction opens.
func authorize(caller domain.Identity) error {
	if caller.OwnerID <= 0 {
		return domain.ErrUnauthorized
	}
	if !caller.CanPurchase() {
		return fmt.Errorf("%w: role %q cannot purchase", domain.ErrForbidden, caller.Role)
	}
	return nil
}

// inLockOrder returns the lines sorted by ascending item id, the order in
// which inventory rows must be locked by every transaction.
func inLockOrder(lines []domain.CartLine) []domain.CartLine {
	sorted := make([]domain.CartLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ItemID < sorted[j].ItemID
	})
	return sorted
}
