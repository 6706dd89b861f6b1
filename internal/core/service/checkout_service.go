package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/port"
)

const (
	idempotencyWriteAttempts = 3
	idempotencyRetryBackoff  = 20 * time.Millisecond
)

// OrderNotifier receives orders after their transaction has committed.
type OrderNotifier interface {
	Enqueue(order domain.Order)
}

type CheckoutResult struct {
	Order    *domain.Order
	Replayed bool
}

type CheckoutService struct {
	db        port.DatabaseRepository
	cache     port.CacheRepository
	notifier  OrderNotifier
	logger    *zap.Logger
	txTimeout time.Duration
	now       func() time.Time
}

type CheckoutOption func(*CheckoutService)

// WithIdempotency enables Idempotency-Key handling backed by cache.
func WithIdempotency(cache port.CacheRepository) CheckoutOption {
	return func(s *CheckoutService) { s.cache = cache }
}

func WithNotifier(n OrderNotifier) CheckoutOption {
	return func(s *CheckoutService) { s.notifier = n }
}

func WithClock(now func() time.Time) CheckoutOption {
	return func(s *CheckoutService) { s.now = now }
}

func NewCheckoutService(db port.DatabaseRepository, logger *zap.Logger, txTimeout time.Duration, opts ...CheckoutOption) *CheckoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CheckoutService{
		db:        db,
		logger:    logger,
		txTimeout: txTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commit turns the caller's cart into a completed order. When an
// idempotency key is given, a repeated call returns the order produced by
// the first one instead of checking out again.
func (s *CheckoutService) Commit(ctx context.Context, caller domain.Identity, idempotencyKey string) (*CheckoutResult, error) {
	if err := authorize(caller); err != nil {
		return nil, err
	}

	var key string
	if s.cache != nil && idempotencyKey != "" {
		key = fmt.Sprintf("checkout:%d:%s", caller.OwnerID, idempotencyKey)

		ok, err := s.cache.ClaimIdempotency(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return s.replay(ctx, caller, key)
		}
	}

	order, err := s.commit(ctx, caller.OwnerID)
	if err != nil {
		if key != "" {
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.logger.Error("failed to release idempotency key", zap.String("key", key), zap.Error(releaseErr))
			}
		}
		return nil, err
	}

	if key != "" {
		s.completeIdempotency(ctx, key, order.ID)
	}

	s.logger.Info("checkout committed",
		zap.Int64("owner_id", caller.OwnerID),
		zap.Int64("order_id", order.ID),
		zap.String("total_value", order.TotalValue.StringFixed(2)),
		zap.Int("lines", len(order.Lines)),
	)
	if s.notifier != nil {
		s.notifier.Enqueue(*order)
	}
	return &CheckoutResult{Order: order}, nil
}

// completeIdempotency records orderID under key, retrying briefly. If the
// write keeps failing the claim is released: a pending key would answer
// Conflict to every replay until it expires.
func (s *CheckoutService) completeIdempotency(ctx context.Context, key string, orderID int64) {
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= idempotencyWriteAttempts; attempt++ {
		if err = s.cache.CompleteIdempotency(ctx, key, orderID); err == nil {
			return
		}
		if attempt < idempotencyWriteAttempts {
			time.Sleep(time.Duration(attempt) * idempotencyRetryBackoff)
		}
	}
	s.logger.Error("failed to record idempotent checkout, releasing key",
		zap.String("key", key), zap.Int64("order_id", orderID), zap.Error(err))
	if err := s.cache.ReleaseIdempotency(ctx, key); err != nil {
		s.logger.Error("failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

func (s *CheckoutService) replay(ctx context.Context, caller domain.Identity, key string) (*CheckoutResult, error) {
	orderID, err := s.cache.LookupIdempotency(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if orderID == 0 {
		return nil, fmt.Errorf("%w: a checkout with this idempotency key is still in progress", domain.ErrConflict)
	}
	order, err := s.db.GetOrder(ctx, caller.OwnerID, orderID)
	if err != nil {
		return nil, fmt.Errorf("load replayed order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, orderID)
	}
	return &CheckoutResult{Order: order, Replayed: true}, nil
}

// commit runs the checkout transaction. Cart lines are locked first, then
// inventory rows in ascending item id; no stock is touched until every line
// has been validated.
func (s *CheckoutService) commit(ctx context.Context, ownerID int64) (*domain.Order, error) {
	var order domain.Order
	err := runInTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx port.Transaction) error {
		lines, err := tx.LockCartLines(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("lock cart lines: %w", err)
		}
		if len(lines) == 0 {
			return domain.ErrEmptyCart
		}
		lines = inLockOrder(lines)

		total := decimal.Zero
		for _, line := range lines {
			item, err := tx.GetInventoryItem(ctx, line.ItemID, port.LockUpdate)
			if err != nil {
				return fmt.Errorf("lock inventory item %d: %w", line.ItemID, err)
			}
			if item == nil {
				return fmt.Errorf("%w: item %d in cart is no longer in the catalog", domain.ErrNotFound, line.ItemID)
			}
			if line.ReservedQuantity > item.AvailableQuantity {
				return &domain.StockError{
					Kind:      domain.ErrInsufficientStock,
					ItemID:    line.ItemID,
					Requested: line.ReservedQuantity,
					Available: item.AvailableQuantity,
				}
			}
			// Current catalog price, not the cart snapshot.
			total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(line.ReservedQuantity))))
		}

		for _, line := range lines {
			if err := tx.DecrementStock(ctx, line.ItemID, line.ReservedQuantity); err != nil {
				return fmt.Errorf("decrement stock of item %d: %w", line.ItemID, err)
			}
		}

		s.logger.Info("payment simulated and approved",
			zap.Int64("owner_id", ownerID),
			zap.String("amount", total.StringFixed(2)),
		)

		order = domain.Order{
			OwnerID:    ownerID,
			TotalValue: total,
			Status:     domain.OrderStatusCompleted,
			CreatedAt:  s.now().UTC(),
			Lines:      make([]domain.OrderLine, 0, len(lines)),
		}
		for _, line := range lines {
			order.Lines = append(order.Lines, domain.OrderLine{
				ItemID:            line.ItemID,
				Quantity:          line.ReservedQuantity,
				UnitPriceSnapshot: line.UnitPriceSnapshot,
			})
		}
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if err := tx.DeleteCartLines(ctx, ownerID); err != nil {
			return fmt.Errorf("drain cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}
