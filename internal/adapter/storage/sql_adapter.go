package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/port"
)

// dialect captures what differs between the MySQL and Postgres stores.
type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// INSERT ... RETURNING id instead of LastInsertId
	returning bool
	classify  func(error) error
}

func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func lockClause(mode port.LockMode) string {
	switch mode {
	case port.LockShare:
		return " FOR SHARE"
	case port.LockUpdate:
		return " FOR UPDATE"
	default:
		return ""
	}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLAdapter is the relational Inventory, Cart and Order store.
type SQLAdapter struct {
	db      *sql.DB
	dialect dialect
}

var (
	_ port.DatabaseRepository = (*SQLAdapter)(nil)
	_ port.CatalogRepository  = (*SQLAdapter)(nil)
)

func (a *SQLAdapter) RunInTx(ctx context.Context, fn func(tx port.Transaction) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", a.dialect.classify(err))
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{q: tx, dialect: a.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", a.dialect.classify(err))
	}
	return nil
}

func (a *SQLAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *SQLAdapter) GetInventoryItem(ctx context.Context, itemID int64) (*domain.InventoryItem, error) {
	return getInventoryItem(ctx, a.db, a.dialect, itemID, port.LockNone)
}

// InsertInventoryItem adds a catalog item outside any cart transaction.
// Catalog management lives elsewhere; this is used for seeding.
func (a *SQLAdapter) InsertInventoryItem(ctx context.Context, item *domain.InventoryItem) error {
	var imageURL sql.NullString
	if item.ImageURL != "" {
		imageURL = sql.NullString{String: item.ImageURL, Valid: true}
	}
	id, err := insert(ctx, a.db, a.dialect, `
		INSERT INTO inventory_items (name, image_url, unit_price, available_quantity, version)
		VALUES (?, ?, ?, ?, 0)`,
		item.Name, imageURL, item.UnitPrice, item.AvailableQuantity)
	if err != nil {
		return fmt.Errorf("insert inventory item: %w", err)
	}
	item.ID = id
	item.Version = 0
	return nil
}

func (a *SQLAdapter) ListCartLines(ctx context.Context, ownerID int64) ([]domain.CartLine, error) {
	rows, err := a.db.QueryContext(ctx, a.dialect.rebind(`
		SELECT id, owner_id, item_id, reserved_quantity, unit_price, added_at
		FROM cart_lines WHERE owner_id = ?
		ORDER BY added_at DESC, id DESC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	return scanCartLines(rows)
}

func (a *SQLAdapter) GetOrder(ctx context.Context, ownerID, orderID int64) (*domain.Order, error) {
	var order domain.Order
	err := a.db.QueryRowContext(ctx, a.dialect.rebind(`
		SELECT id, owner_id, total_value, status, created_at
		FROM orders WHERE id = ? AND owner_id = ?`), orderID, ownerID,
	).Scan(&order.ID, &order.OwnerID, &order.TotalValue, &order.Status, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, a.dialect.rebind(`
		SELECT id, order_id, item_id, quantity, unit_price
		FROM order_lines WHERE order_id = ?
		ORDER BY id`), orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	order.Lines = []domain.OrderLine{}
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &line.UnitPriceSnapshot); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return &order, nil
}

func (a *SQLAdapter) ListOrders(ctx context.Context, ownerID int64) ([]domain.Order, error) {
	rows, err := a.db.QueryContext(ctx, a.dialect.rebind(`
		SELECT id, owner_id, total_value, status, created_at
		FROM orders WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	orders := []domain.Order{}
	index := make(map[int64]int)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.OwnerID, &order.TotalValue, &order.Status, &order.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		order.Lines = []domain.OrderLine{}
		index[order.ID] = len(orders)
		orders = append(orders, order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	lineRows, err := a.db.QueryContext(ctx, a.dialect.rebind(`
		SELECT ol.id, ol.order_id, ol.item_id, ol.quantity, ol.unit_price
		FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		WHERE o.owner_id = ?
		ORDER BY ol.order_id, ol.id`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line domain.OrderLine
		if err := lineRows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &line.UnitPriceSnapshot); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if i, ok := index[line.OrderID]; ok {
			orders[i].Lines = append(orders[i].Lines, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return orders, nil
}

func getInventoryItem(ctx context.Context, q queryer, d dialect, itemID int64, lock port.LockMode) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	var imageURL sql.NullString
	err := q.QueryRowContext(ctx, d.rebind(`
		SELECT id, name, image_url, unit_price, available_quantity, version
		FROM inventory_items WHERE id = ?`+lockClause(lock)), itemID,
	).Scan(&item.ID, &item.Name, &imageURL, &item.UnitPrice, &item.AvailableQuantity, &item.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory item: %w", d.classify(err))
	}

	item.ImageURL = imageURL.String
	return &item, nil
}

func scanCartLines(rows *sql.Rows) ([]domain.CartLine, error) {
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.OwnerID, &line.ItemID, &line.ReservedQuantity, &line.UnitPriceSnapshot, &line.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}
