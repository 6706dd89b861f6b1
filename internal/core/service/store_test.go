package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/port"
)

// memStore is an in-memory transactional store. Transactions run one at a
// time on a private copy of the state, which replaces the shared state only
// when fn succeeds.
type memStore struct {
	txMu sync.Mutex

	mu         sync.RWMutex
	state      *memState
	faults     map[string]error
	catalogErr map[int64]error

	txCount atomic.Int32
	tick    atomic.Int64
}

type memState struct {
	items       map[int64]domain.InventoryItem
	lines       map[int64]domain.CartLine
	orders      map[int64]domain.Order
	nextLineID  int64
	nextOrderID int64
	nextOLineID int64
}

func (s *memState) clone() *memState {
	c := &memState{
		items:       make(map[int64]domain.InventoryItem, len(s.items)),
		lines:       make(map[int64]domain.CartLine, len(s.lines)),
		orders:      make(map[int64]domain.Order, len(s.orders)),
		nextLineID:  s.nextLineID,
		nextOrderID: s.nextOrderID,
		nextOLineID: s.nextOLineID,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	for k, v := range s.orders {
		v.Lines = append([]domain.OrderLine(nil), v.Lines...)
		c.orders[k] = v
	}
	return c
}

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			items:  map[int64]domain.InventoryItem{},
			lines:  map[int64]domain.CartLine{},
			orders: map[int64]domain.Order{},
		},
		faults:     map[string]error{},
		catalogErr: map[int64]error{},
	}
}

var (
	_ port.DatabaseRepository = (*memStore)(nil)
	_ port.CatalogRepository  = (*memStore)(nil)
)

func (m *memStore) seedItem(id int64, price string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.items[id] = domain.InventoryItem{
		ID:                id,
		Name:              fmt.Sprintf("card-%d", id),
		ImageURL:          fmt.Sprintf("https://img.example/%d.png", id),
		UnitPrice:         decimal.RequireFromString(price),
		AvailableQuantity: qty,
	}
}

func (m *memStore) setPrice(id int64, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.state.items[id]
	item.UnitPrice = decimal.RequireFromString(price)
	m.state.items[id] = item
}

// removeItem drops a catalog row without touching cart lines.
func (m *memStore) removeItem(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.items, id)
}

func (m *memStore) failOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = err
}

func (m *memStore) item(id int64) domain.InventoryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.items[id]
}

func (m *memStore) linesOf(ownerID int64) []domain.CartLine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ownerLines(m.state, ownerID)
}

func (m *memStore) orderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.orders)
}

func (m *memStore) RunInTx(ctx context.Context, fn func(tx port.Transaction) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.txCount.Add(1)

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	work := m.state.clone()
	m.mu.RUnlock()

	if err := fn(&memTx{store: m, state: work}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

func (m *memStore) ListCartLines(_ context.Context, ownerID int64) ([]domain.CartLine, error) {
	lines := m.linesOf(ownerID)
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.After(lines[j].AddedAt)
		}
		return lines[i].ID > lines[j].ID
	})
	return lines, nil
}

func (m *memStore) GetOrder(_ context.Context, ownerID, orderID int64) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.state.orders[orderID]
	if !ok || order.OwnerID != ownerID {
		return nil, nil
	}
	order.Lines = append([]domain.OrderLine(nil), order.Lines...)
	return &order, nil
}

func (m *memStore) ListOrders(_ context.Context, ownerID int64) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	orders := []domain.Order{}
	for _, o := range m.state.orders {
		if o.OwnerID == ownerID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

func (m *memStore) GetInventoryItem(_ context.Context, itemID int64) (*domain.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.catalogErr[itemID]; err != nil {
		return nil, err
	}
	item, ok := m.state.items[itemID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *memStore) fault(op string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.faults[op]
}

func ownerLines(s *memState, ownerID int64) []domain.CartLine {
	lines := []domain.CartLine{}
	for _, l := range s.lines {
		if l.OwnerID == ownerID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines
}

type memTx struct {
	store *memStore
	state *memState
}

func (t *memTx) GetInventoryItem(_ context.Context, itemID int64, _ port.LockMode) (*domain.InventoryItem, error) {
	if err := t.store.fault("GetInventoryItem"); err != nil {
		return nil, err
	}
	item, ok := t.state.items[itemID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (t *memTx) FindCartLine(_ context.Context, ownerID, itemID int64) (*domain.CartLine, error) {
	for _, l := range t.state.lines {
		if l.OwnerID == ownerID && l.ItemID == itemID {
			return &l, nil
		}
	}
	return nil, nil
}

func (t *memTx) GetCartLine(_ context.Context, ownerID, lineID int64) (*domain.CartLine, error) {
	l, ok := t.state.lines[lineID]
	if !ok || l.OwnerID != ownerID {
		return nil, nil
	}
	return &l, nil
}

func (t *memTx) LockCartLines(_ context.Context, ownerID int64) ([]domain.CartLine, error) {
	return ownerLines(t.state, ownerID), nil
}

func (t *memTx) InsertCartLine(_ context.Context, line *domain.CartLine) error {
	if err := t.store.fault("InsertCartLine"); err != nil {
		return err
	}
	for _, l := range t.state.lines {
		if l.OwnerID == line.OwnerID && l.ItemID == line.ItemID {
			return fmt.Errorf("%w: duplicate cart line", domain.ErrConflict)
		}
	}
	if _, ok := t.state.items[line.ItemID]; !ok {
		return fmt.Errorf("%w: item %d", domain.ErrNotFound, line.ItemID)
	}
	t.state.nextLineID++
	line.ID = t.state.nextLineID
	line.AddedAt = time.Unix(1700000000, 0).Add(time.Duration(t.store.tick.Add(1)) * time.Millisecond).UTC()
	t.state.lines[line.ID] = *line
	return nil
}

func (t *memTx) UpdateCartLine(_ context.Context, line *domain.CartLine) error {
	if _, ok := t.state.lines[line.ID]; !ok {
		return fmt.Errorf("%w: cart line %d", domain.ErrNotFound, line.ID)
	}
	t.state.lines[line.ID] = *line
	return nil
}

func (t *memTx) DeleteCartLine(_ context.Context, ownerID, lineID int64) error {
	l, ok := t.state.lines[lineID]
	if !ok || l.OwnerID != ownerID {
		return fmt.Errorf("%w: cart line %d", domain.ErrNotFound, lineID)
	}
	delete(t.state.lines, lineID)
	return nil
}

func (t *memTx) DeleteCartLines(_ context.Context, ownerID int64) error {
	if err := t.store.fault("DeleteCartLines"); err != nil {
		return err
	}
	for id, l := range t.state.lines {
		if l.OwnerID == ownerID {
			delete(t.state.lines, id)
		}
	}
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, itemID int64, quantity int) error {
	if err := t.store.fault("DecrementStock"); err != nil {
		return err
	}
	item, ok := t.state.items[itemID]
	if !ok || item.AvailableQuantity < quantity {
		return fmt.Errorf("%w: item %d", domain.ErrInsufficientStock, itemID)
	}
	item.AvailableQuantity -= quantity
	item.Version++
	t.state.items[itemID] = item
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, order *domain.Order) error {
	if err := t.store.fault("InsertOrder"); err != nil {
		return err
	}
	t.state.nextOrderID++
	order.ID = t.state.nextOrderID
	for i := range order.Lines {
		t.state.nextOLineID++
		order.Lines[i].ID = t.state.nextOLineID
		order.Lines[i].OrderID = order.ID
	}
	stored := *order
	stored.Lines = append([]domain.OrderLine(nil), order.Lines...)
	t.state.orders[order.ID] = stored
	return nil
}

// memCache is an in-memory idempotency store.
type memCache struct {
	mu   sync.Mutex
	keys map[string]int64

	// completeFailures makes that many CompleteIdempotency calls fail.
	completeFailures int
	completeCalls    int
}

func newMemCache() *memCache {
	return &memCache{keys: map[string]int64{}}
}

func (c *memCache) ClaimIdempotency(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[key]; ok {
		return false, nil
	}
	c.keys[key] = 0
	return true, nil
}

func (c *memCache) LookupIdempotency(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[key], nil
}

func (c *memCache) CompleteIdempotency(_ context.Context, key string, orderID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completeCalls++
	if c.completeFailures > 0 {
		c.completeFailures--
		return errors.New("cache write failed")
	}
	c.keys[key] = orderID
	return nil
}

func (c *memCache) ReleaseIdempotency(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (n *recordingNotifier) Enqueue(order domain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order)
}

var customer = domain.Identity{OwnerID: 1, Role: domain.RoleCustomer}

func owner(id int64) domain.Identity {
	return domain.Identity{OwnerID: id, Role: domain.RoleCustomer}
}
