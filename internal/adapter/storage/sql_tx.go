package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/port"
)

const cartLineColumns = `id, owner_id, item_id, reserved_quantity, unit_price, added_at`

type sqlTx struct {
	q       queryer
	dialect dialect
}

var _ port.Transaction = (*sqlTx)(nil)

func (t *sqlTx) GetInventoryItem(ctx context.Context, itemID int64, lock port.LockMode) (*domain.InventoryItem, error) {
	return getInventoryItem(ctx, t.q, t.dialect, itemID, lock)
}

func (t *sqlTx) FindCartLine(ctx context.Context, ownerID, itemID int64) (*domain.CartLine, error) {
	return t.lockOne(ctx, `SELECT `+cartLineColumns+`
		FROM cart_lines WHERE owner_id = ? AND item_id = ? FOR UPDATE`, ownerID, itemID)
}

func (t *sqlTx) GetCartLine(ctx context.Context, ownerID, lineID int64) (*domain.CartLine, error) {
	return t.lockOne(ctx, `SELECT `+cartLineColumns+`
		FROM cart_lines WHERE id = ? AND owner_id = ? FOR UPDATE`, lineID, ownerID)
}

func (t *sqlTx) lockOne(ctx context.Context, query string, args ...any) (*domain.CartLine, error) {
	var line domain.CartLine
	err := t.q.QueryRowContext(ctx, t.dialect.rebind(query), args...).Scan(
		&line.ID, &line.OwnerID, &line.ItemID, &line.ReservedQuantity, &line.UnitPriceSnapshot, &line.AddedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart line: %w", t.dialect.classify(err))
	}
	return &line, nil
}

func (t *sqlTx) LockCartLines(ctx context.Context, ownerID int64) ([]domain.CartLine, error) {
	rows, err := t.q.QueryContext(ctx, t.dialect.rebind(`SELECT `+cartLineColumns+`
		FROM cart_lines WHERE owner_id = ? ORDER BY id FOR UPDATE`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", t.dialect.classify(err))
	}
	return scanCartLines(rows)
}

func (t *sqlTx) InsertCartLine(ctx context.Context, line *domain.CartLine) error {
	addedAt := time.Now().UTC()
	id, err := t.insert(ctx, `
		INSERT INTO cart_lines (owner_id, item_id, reserved_quantity, unit_price, added_at)
		VALUES (?, ?, ?, ?, ?)`,
		line.OwnerID, line.ItemID, line.ReservedQuantity, line.UnitPriceSnapshot, addedAt,
	)
	if err != nil {
		return err
	}
	line.ID = id
	line.AddedAt = addedAt
	return nil
}

// UpdateCartLine does not check affected rows: the caller holds the row
// lock, and MySQL reports zero affected rows for a no-op update.
func (t *sqlTx) UpdateCartLine(ctx context.Context, line *domain.CartLine) error {
	_, err := t.q.ExecContext(ctx, t.dialect.rebind(`
		UPDATE cart_lines SET reserved_quantity = ?, unit_price = ?
		WHERE id = ? AND owner_id = ?`),
		line.ReservedQuantity, line.UnitPriceSnapshot, line.ID, line.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update cart line: %w", t.dialect.classify(err))
	}
	return nil
}

func (t *sqlTx) DeleteCartLine(ctx context.Context, ownerID, lineID int64) error {
	result, err := t.q.ExecContext(ctx, t.dialect.rebind(`
		DELETE FROM cart_lines WHERE id = ? AND owner_id = ?`), lineID, ownerID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", t.dialect.classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cart line: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: cart line %d", domain.ErrNotFound, lineID)
	}
	return nil
}

func (t *sqlTx) DeleteCartLines(ctx context.Context, ownerID int64) error {
	_, err := t.q.ExecContext(ctx, t.dialect.rebind(`
		DELETE FROM cart_lines WHERE owner_id = ?`), ownerID)
	if err != nil {
		return fmt.Errorf("delete cart lines: %w", t.dialect.classify(err))
	}
	return nil
}

func (t *sqlTx) DecrementStock(ctx context.Context, itemID int64, quantity int) error {
	result, err := t.q.ExecContext(ctx, t.dialect.rebind(`
		UPDATE inventory_items
		SET available_quantity = available_quantity - ?, version = version + 1
		WHERE id = ? AND available_quantity >= ?`),
		quantity, itemID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", t.dialect.classify(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update inventory: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: item %d", domain.ErrInsufficientStock, itemID)
	}
	return nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	id, err := t.insert(ctx, `
		INSERT INTO orders (owner_id, total_value, status, created_at)
		VALUES (?, ?, ?, ?)`,
		order.OwnerID, order.TotalValue, order.Status, order.CreatedAt,
	)
	if err != nil {
		return err
	}
	order.ID = id

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = id
		lineID, err := t.insert(ctx, `
			INSERT INTO order_lines (order_id, item_id, quantity, unit_price)
			VALUES (?, ?, ?, ?)`,
			id, line.ItemID, line.Quantity, line.UnitPriceSnapshot,
		)
		if err != nil {
			return err
		}
		line.ID = lineID
	}
	return nil
}

func (t *sqlTx) insert(ctx context.Context, query string, args ...any) (int64, error) {
	return insert(ctx, t.q, t.dialect, query, args...)
}

func insert(ctx context.Context, q queryer, d dialect, query string, args ...any) (int64, error) {
	if d.returning {
		var id int64
		err := q.QueryRowContext(ctx, d.rebind(query+" RETURNING id"), args...).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert: %w", d.classify(err))
		}
		return id, nil
	}

	result, err := q.ExecContext(ctx, d.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", d.classify(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}
