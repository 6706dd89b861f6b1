package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/card-shop/internal/core/domain"
)

func newCartService(store *memStore) *CartService {
	return NewCartService(store, store, nil, DefaultTxTimeout)
}

func TestAddItem_NewLine(t *testing.T) {
	store := newMemStore()
	store.seedItem(7, "10.00", 10)
	svc := newCartService(store)

	line, err := svc.AddItem(context.Background(), customer, 7, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.ID == 0 || line.ReservedQuantity != 2 || line.ItemID != 7 {
		t.Errorf("unexpected line: %+v", line)
	}
	if !line.UnitPriceSnapshot.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("expected snapshot 10.00, got %s", line.UnitPriceSnapshot)
	}
	if got := store.item(7).AvailableQuantity; got != 10 {
		t.Errorf("adding to cart must not touch stock, got %d", got)
	}
}

func TestAddItem_MergeThenOverflow(t *testing.T) {
	store := newMemStore()
	store.seedItem(7, "10.00", 10)
	svc := newCartService(store)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, customer, 7, 2); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	line, err := svc.AddItem(ctx, customer, 7, 3)
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if line.ReservedQuantity != 5 {
		t.Errorf("expected merged quantity 5, got %d", line.ReservedQuantity)
	}

	_, err = svc.AddItem(ctx, customer, 7, 6)
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got: %v", err)
	}
	var stockErr *domain.StockError
	if !errors.As(err, &stockErr) || stockErr.InCart != 5 || stockErr.Available != 10 {
		t.Errorf("unexpected stock error: %+v", stockErr)
	}
	if !strings.Contains(err.Error(), "already have 5 in cart, stock is 10") {
		t.Errorf("unexpected message: %s", err)
	}

	lines := store.linesOf(customer.OwnerID)
	if len(lines) != 1 || lines[0].ReservedQuantity != 5 {
		t.Errorf("expected single line of 5, got %+v", lines)
	}
}

func TestAddItem_MergeRefreshesSnapshot(t *testing.T) {
	store := newMemStore()
	store.seedItem(7, "10.00", 10)
	svc := newCartService(store)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, customer, 7, 1); err != nil {
		t.Fatal(err)
	}
	store.setPrice(7, "12.50")
	line, err := svc.AddItem(ctx, customer, 7, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !line.UnitPriceSnapshot.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("expected refreshed snapshot 12.50, got %s", line.UnitPriceSnapshot)
	}
}

func TestAddItem_Rejections(t *testing.T) {
	store := newMemStore()
	store.seedItem(7, "10.00", 3)
	svc := newCartService(store)
	ctx := context.Background()

	tests := []struct {
		name     string
		caller   domain.Identity
		itemID   int64
		quantity int
		want     error
		noTx     bool
	}{
		{"zero quantity", customer, 7, 0, domain.ErrValidation, true},
		{"negative quantity", customer, 7, -2, domain.ErrValidation, true},
		{"bad item id", customer, 0, 1, domain.ErrValidation, true},
		{"anonymous", domain.Identity{}, 7, 1, domain.ErrUnauthorized, true},
		{"staff", domain.Identity{OwnerID: 9, Role: domain.RoleStaff}, 7, 1, domain.ErrForbidden, true},
		{"unknown item", customer, 404, 1, domain.ErrNotFound, false},
		{"more than stock", customer, 7, 4, domain.ErrOutOfStock, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := store.txCount.Load()
			_, err := svc.AddItem(ctx, tt.caller, tt.itemID, tt.quantity)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got: %v", tt.want, err)
			}
			if tt.noTx && store.txCount.Load() != before {
				t.Error("transaction opened for a request rejected up front")
			}
		})
	}

	if lines := store.linesOf(customer.OwnerID); len(lines) != 0 {
		t.Errorf("rejected adds left lines behind: %+v", lines)
	}
}

func TestAddItem_ConcurrentSameItemKeepsOneLine(t *testing.T) {
	store := newMemStore()
	store.seedItem(7, "1.00", 100)
	svc := newCartService(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddItem(context.Background(), customer, 7, 1); err != nil {
				t.Errorf("add failed: %v", err)
			}
		}()
	}
	wg.Wait()

	lines := store.linesOf(customer.OwnerID)
	if len(lines) != 1 {
		t.Fatalf("expected one line per owner and item, got %d", len(lines))
	}
	if lines[0].ReservedQuantity != 20 {
		t.Errorf("expected quantity 20, got %d", lines[0].ReservedQuantity)
	}
}

func TestAddItem_StoreConflictSurfaces(t *testing.T) {
	store := newMemStore()
	store.seedItem(7, "1.00", 10)
	store.failOn("InsertCartLine", domain.ErrConflict)
	svc := newCartService(store)

	_, err := svc.AddItem(context.Background(), customer, 7, 1)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got: %v", err)
	}
}

func TestSetQuantity(t *testing.T) {
	store := newMemStore()
	store.seedItem(7, "10.00", 5)
	svc := newCartService(store)
	ctx := context.Background()

	line, err := svc.AddItem(ctx, customer, 7, 1)
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.SetQuantity(ctx, customer, line.ID, 4)
	if err != nil {
		t.Fatalf("set quantity failed: %v", err)
	}
	if updated.ReservedQuantity != 4 {
		t.Errorf("expected 4, got %d", updated.ReservedQuantity)
	}

	if _, err := svc.SetQuantity(ctx, customer, line.ID, 6); !errors.Is(err, domain.ErrOutOfStock) {
		t.Errorf("expected ErrOutOfStock, got: %v", err)
	}
	if got := store.linesOf(customer.OwnerID)[0].ReservedQuantity; got != 4 {
		t.Errorf("rejected update changed quantity to %d", got)
	}

	if _, err := svc.SetQuantity(ctx, owner(2), line.ID, 2); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for another owner's line, got: %v", err)
	}

	removed, err := svc.SetQuantity(ctx, customer, line.ID, 0)
	if err != nil || removed != nil {
		t.Fatalf("expected removal, got line %+v err %v", removed, err)
	}
	if lines := store.linesOf(customer.OwnerID); len(lines) != 0 {
		t.Errorf("expected empty cart, got %+v", lines)
	}
}

func TestRemoveItem(t *testing.T) {
	store := newMemStore()
	store.seedItem(7, "10.00", 5)
	svc := newCartService(store)
	ctx := context.Background()

	line, err := svc.AddItem(ctx, customer, 7, 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.RemoveItem(ctx, owner(2), line.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for another owner, got: %v", err)
	}
	if err := svc.RemoveItem(ctx, customer, line.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := svc.RemoveItem(ctx, customer, line.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on repeated removal, got: %v", err)
	}
}

func TestListCart(t *testing.T) {
	store := newMemStore()
	store.seedItem(1, "1.00", 5)
	store.seedItem(2, "2.00", 5)
	store.seedItem(3, "3.00", 5)
	svc := newCartService(store)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if _, err := svc.AddItem(ctx, customer, id, 1); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.AddItem(ctx, owner(2), 1, 1); err != nil {
		t.Fatal(err)
	}

	store.removeItem(2)
	store.mu.Lock()
	store.catalogErr[3] = errors.New("catalog unavailable")
	store.mu.Unlock()

	views, err := svc.ListCart(ctx, customer)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected orphan and failed lines dropped, got %d views", len(views))
	}
	if views[0].ItemID != 1 || views[0].Name != "card-1" || views[0].AvailableQuantity != 5 {
		t.Errorf("unexpected view: %+v", views[0])
	}

	store.mu.Lock()
	delete(store.catalogErr, 3)
	store.mu.Unlock()
	views, err = svc.ListCart(ctx, customer)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 || views[0].ItemID != 3 || views[1].ItemID != 1 {
		t.Errorf("expected newest first [3 1], got %+v", views)
	}
}

func TestListCart_Forbidden(t *testing.T) {
	svc := newCartService(newMemStore())
	_, err := svc.ListCart(context.Background(), domain.Identity{OwnerID: 3, Role: domain.RoleStaff})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got: %v", err)
	}
}
