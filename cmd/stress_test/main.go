package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/rl1809/card-shop/internal/adapter/identity"
	"github.com/rl1809/card-shop/internal/adapter/storage"
	"github.com/rl1809/card-shop/internal/config"
	"github.com/rl1809/card-shop/internal/core/domain"
)

// Seeds one item, gives each simulated customer one unit in their cart,
// then fires every checkout at once against a running server.
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	stock := flag.Int("stock", 20, "initial stock of the seeded item")
	customers := flag.Int("customers", 50, "concurrent customers")
	ownerBase := flag.Int64("owner-base", time.Now().Unix()%1_000_000*1000, "first owner id used")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	db, err := sql.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	store := storage.NewMySQLAdapter(db)
	if cfg.DBDriver != "mysql" {
		store = storage.NewPostgresAdapter(db)
	}

	item := &domain.InventoryItem{
		Name:              fmt.Sprintf("stress-item-%d", time.Now().UnixNano()),
		UnitPrice:         decimal.RequireFromString("9.99"),
		AvailableQuantity: *stock,
	}
	if err := store.InsertInventoryItem(ctx, item); err != nil {
		log.Fatalf("failed to seed item: %v", err)
	}
	log.Printf("seeded item %d with stock %d", item.ID, *stock)

	issuer, err := identity.NewJWTVerifier(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("JWT_SECRET must match the server: %v", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}

	tokens := make([]string, *customers)
	for i := range tokens {
		token, err := issuer.Issue(domain.Identity{OwnerID: *ownerBase + int64(i) + 1, Role: domain.RoleCustomer}, time.Hour)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		tokens[i] = token

		body, _ := json.Marshal(map[string]any{"itemId": item.ID, "quantity": 1})
		status, err := send(client, http.MethodPost, *baseURL+"/cart", token, body)
		if err != nil || status != http.StatusCreated {
			log.Fatalf("customer %d: add to cart failed (status %d): %v", i, status, err)
		}
	}

	var successCount, soldOutCount, otherCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()

			status, err := send(client, http.MethodPost, *baseURL+"/checkout", token, nil)
			switch {
			case err == nil && status == http.StatusCreated:
				successCount.Add(1)
			case err == nil && status == http.StatusConflict:
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}(tokens[i])
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())
	soldOut := int(soldOutCount.Load())

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *stock)
	fmt.Printf("Customers:        %d\n", *customers)
	fmt.Printf("Completed:        %d\n", success)
	fmt.Printf("Conflict (409):   %d\n", soldOut)
	fmt.Printf("Other:            %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expected := min(*stock, *customers)
	if success == expected {
		fmt.Printf("PASS: exactly %d checkouts completed\n", expected)
	} else {
		fmt.Printf("FAIL: expected %d completed checkouts, got %d\n", expected, success)
	}

	final, err := store.GetInventoryItem(ctx, item.ID)
	if err != nil || final == nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", final.AvailableQuantity)
	if final.AvailableQuantity == *stock-success && final.AvailableQuantity >= 0 {
		fmt.Println("PASS: stock matches completed checkouts")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", *stock-success, final.AvailableQuantity)
	}
}

func send(client *http.Client, method, url, token string, body []byte) (int, error) {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
