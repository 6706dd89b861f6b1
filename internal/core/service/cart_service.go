package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/port"
)

type CartService struct {
	db        port.DatabaseRepository
	catalog   port.CatalogRepository
	logger    *zap.Logger
	txTimeout time.Duration
}

func NewCartService(db port.DatabaseRepository, catalog port.CatalogRepository, logger *zap.Logger, txTimeout time.Duration) *CartService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartService{
		db:        db,
		catalog:   catalog,
		logger:    logger,
		txTimeout: txTimeout,
	}
}

// AddItem reserves quantity units of itemID, merging into the caller's
// existing line for that item. The line row is locked before the inventory
// row is read so that concurrent adds for the same item serialize.
func (s *CartService) AddItem(ctx context.Context, caller domain.Identity, itemID int64, quantity int) (*domain.CartLine, error) {
	if err := authorize(caller); err != nil {
		return nil, err
	}
	if itemID <= 0 {
		return nil, fmt.Errorf("%w: itemId must be a positive integer", domain.ErrValidation)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be a positive integer", domain.ErrValidation)
	}

	var result domain.CartLine
	err := runInTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx port.Transaction) error {
		existing, err := tx.FindCartLine(ctx, caller.OwnerID, itemID)
		if err != nil {
			return fmt.Errorf("find cart line: %w", err)
		}

		item, err := tx.GetInventoryItem(ctx, itemID, port.LockShare)
		if err != nil {
			return fmt.Errorf("read inventory: %w", err)
		}
		if item == nil {
			return fmt.Errorf("%w: item %d is not in the catalog", domain.ErrNotFound, itemID)
		}
		if item.AvailableQuantity < quantity {
			return &domain.StockError{
				Kind:      domain.ErrOutOfStock,
				ItemID:    itemID,
				Requested: quantity,
				Available: item.AvailableQuantity,
			}
		}

		if existing != nil {
			newQuantity := existing.ReservedQuantity + quantity
			if newQuantity > item.AvailableQuantity {
				return &domain.StockError{
					Kind:      domain.ErrOutOfStock,
					ItemID:    itemID,
					Requested: newQuantity,
					Available: item.AvailableQuantity,
					InCart:    existing.ReservedQuantity,
				}
			}
			existing.ReservedQuantity = newQuantity
			existing.UnitPriceSnapshot = item.UnitPrice
			if err := tx.UpdateCartLine(ctx, existing); err != nil {
				return fmt.Errorf("update cart line: %w", err)
			}
			result = *existing
			return nil
		}

		line := domain.CartLine{
			OwnerID:           caller.OwnerID,
			ItemID:            itemID,
			ReservedQuantity:  quantity,
			UnitPriceSnapshot: item.UnitPrice,
		}
		if err := tx.InsertCartLine(ctx, &line); err != nil {
			return fmt.Errorf("insert cart line: %w", err)
		}
		result = line
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("cart item added",
		zap.Int64("owner_id", caller.OwnerID),
		zap.Int64("item_id", itemID),
		zap.Int("quantity", quantity),
		zap.Int("reserved", result.ReservedQuantity),
	)
	return &result, nil
}

// SetQuantity replaces the reserved quantity of a line. A quantity of zero
// or less removes the line and returns nil.
func (s *CartService) SetQuantity(ctx context.Context, caller domain.Identity, lineID int64, quantity int) (*domain.CartLine, error) {
	if quantity <= 0 {
		return nil, s.RemoveItem(ctx, caller, lineID)
	}
	if err := authorize(caller); err != nil {
		return nil, err
	}

	var result domain.CartLine
	err := runInTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx port.Transaction) error {
		line, err := tx.GetCartLine(ctx, caller.OwnerID, lineID)
		if err != nil {
			return fmt.Errorf("lock cart line: %w", err)
		}
		if line == nil {
			return fmt.Errorf("%w: cart line %d", domain.ErrNotFound, lineID)
		}

		item, err := tx.GetInventoryItem(ctx, line.ItemID, port.LockShare)
		if err != nil {
			return fmt.Errorf("read inventory: %w", err)
		}
		if item == nil {
			return fmt.Errorf("%w: item %d is no longer in the catalog", domain.ErrNotFound, line.ItemID)
		}
		if quantity > item.AvailableQuantity {
			return &domain.StockError{
				Kind:      domain.ErrOutOfStock,
				ItemID:    line.ItemID,
				Requested: quantity,
				Available: item.AvailableQuantity,
			}
		}

		line.ReservedQuantity = quantity
		if err := tx.UpdateCartLine(ctx, line); err != nil {
			return fmt.Errorf("update cart line: %w", err)
		}
		result = *line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *CartService) RemoveItem(ctx context.Context, caller domain.Identity, lineID int64) error {
	if err := authorize(caller); err != nil {
		return err
	}

	return runInTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx port.Transaction) error {
		line, err := tx.GetCartLine(ctx, caller.OwnerID, lineID)
		if err != nil {
			return fmt.Errorf("lock cart line: %w", err)
		}
		if line == nil {
			return fmt.Errorf("%w: cart line %d", domain.ErrNotFound, lineID)
		}
		if err := tx.DeleteCartLine(ctx, caller.OwnerID, lineID); err != nil {
			return fmt.Errorf("delete cart line: %w", err)
		}
		return nil
	})
}

// ListCart returns the caller's cart newest first. Lines whose item can no
// longer be read from the catalog are logged and left out.
func (s *CartService) ListCart(ctx context.Context, caller domain.Identity) ([]domain.CartLineView, error) {
	if err := authorize(caller); err != nil {
		return nil, err
	}

	lines, err := s.db.ListCartLines(ctx, caller.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}

	views := make([]domain.CartLineView, 0, len(lines))
	for _, line := range lines {
		item, err := s.catalog.GetInventoryItem(ctx, line.ItemID)
		if err != nil {
			s.logger.Warn("cart line enrichment failed",
				zap.Int64("owner_id", caller.OwnerID),
				zap.Int64("line_id", line.ID),
				zap.Int64("item_id", line.ItemID),
				zap.Error(err),
			)
			continue
		}
		if item == nil {
			s.logger.Warn("dropping orphan cart line",
				zap.Int64("owner_id", caller.OwnerID),
				zap.Int64("line_id", line.ID),
				zap.Int64("item_id", line.ItemID),
			)
			continue
		}
		views = append(views, domain.CartLineView{
			CartLine:          line,
			Name:              item.Name,
			ImageURL:          item.ImageURL,
			AvailableQuantity: item.AvailableQuantity,
		})
	}
	return views, nil
}
