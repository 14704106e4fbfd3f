//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fornada-pos/api/internal/board"
	"github.com/fornada-pos/api/internal/config"
	"github.com/fornada-pos/api/internal/overlay"
	"github.com/fornada-pos/api/internal/router"
	"github.com/fornada-pos/api/internal/service"
	"github.com/fornada-pos/api/internal/store"
	"github.com/fornada-pos/api/internal/ws"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestIntegrationFlow exercises the full order lifecycle against a real
// PostgreSQL database: sale completion, board moves, unit linking with
// auto-advance, and cancellation.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	_, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:           "8080",
		DatabaseURL:    connStr,
		AllowedOrigins: []string{"http://localhost:5173"},
	}
	st := store.New(pool)
	newStore := func(db store.DBTX) service.OrderStore {
		return store.New(db)
	}
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit — Hub has no shutdown mechanism.
	// Acceptable for tests; production should add context-based shutdown.
	go hub.Run()
	notifier := ws.NewNotifier(hub)
	svc := service.NewOrderService(pool, st, newStore, notifier)
	b := board.New(st, overlay.New(), notifier)

	server := httptest.NewServer(router.New(cfg, svc, b, hub))
	defer server.Close()

	// --- 1. Seed catalog directly (no product write endpoints) ---
	trackedID := createProduct(t, ctx, pool, "Sourdough Loaf", "28.50", true)
	plainID := createProduct(t, ctx, pool, "Croissant", "9.50", false)
	unitID := createUnit(t, ctx, pool, trackedID, "0.900", "28.50")

	// --- 2. Complete a sale through the API ---
	scheduled := time.Now().Add(2 * time.Hour).Format(time.RFC3339)
	saleResp := postJSON(t, server, "/orders", map[string]any{
		"scheduled_at": scheduled,
		"items": []map[string]any{
			{"product_id": trackedID.String(), "quantity": 1},
			{"product_id": plainID.String(), "quantity": 2},
		},
		"payments": []map[string]any{
			{"method": "CASH", "amount": "50.00"},
		},
	}, http.StatusCreated)

	orderID := uuid.MustParse(saleResp["id"].(string))
	if saleResp["display_number"].(float64) != 1 {
		t.Fatalf("display_number = %v, want 1", saleResp["display_number"])
	}

	// Totals: 28.50 + 2*9.50 = 47.50; cash 50.00 → change 2.50
	detail := getOrder(t, server, orderID)
	if detail["total_amount"].(string) != "47.50" {
		t.Fatalf("total = %v, want 47.50", detail["total_amount"])
	}
	if detail["change_due"].(string) != "2.50" {
		t.Fatalf("change_due = %v, want 2.50", detail["change_due"])
	}
	if detail["status"].(string) != "RECEIVED" {
		t.Fatalf("status = %v, want RECEIVED", detail["status"])
	}

	// --- 3. Sequential numbering: a second sale gets number 2 ---
	sale2 := postJSON(t, server, "/orders", map[string]any{
		"scheduled_at": scheduled,
		"items": []map[string]any{
			{"product_id": plainID.String(), "quantity": 1},
		},
	}, http.StatusCreated)
	order2ID := uuid.MustParse(sale2["id"].(string))
	if sale2["display_number"].(float64) != 2 {
		t.Fatalf("second display_number = %v, want 2", sale2["display_number"])
	}

	// --- 4. Board shows both orders in RECEIVED ---
	boardResp := getBoard(t, server)
	received := columnCards(t, boardResp, "RECEIVED")
	if len(received) != 2 {
		t.Fatalf("RECEIVED cards = %d, want 2", len(received))
	}

	// --- 5. Move the first order to PREPARING; write is async ---
	postJSON(t, server, "/orders/"+orderID.String()+"/move", map[string]any{
		"target": "PREPARING",
	}, http.StatusAccepted)
	waitForStatus(t, server, orderID, "PREPARING")

	// Drop acceptance is by target column alone: dragging the second card
	// straight from RECEIVED onto READY lands, skipping PREPARING.
	postJSON(t, server, "/orders/"+order2ID.String()+"/move", map[string]any{
		"target": "READY",
	}, http.StatusAccepted)
	waitForStatus(t, server, order2ID, "READY")

	// CANCELLED is never a drop target
	resp := rawPost(t, server, "/orders/"+order2ID.String()+"/move", `{"target":"CANCELLED"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("cancelled move status = %d, want 422", resp.StatusCode)
	}
	resp.Body.Close()

	// --- 6. Link the tracked item; the plain item needs no linking, so the
	// order auto-advances to READY ---
	items := detail["items"].([]any)
	var trackedItemID uuid.UUID
	for _, raw := range items {
		item := raw.(map[string]any)
		if item["tracked"].(bool) {
			trackedItemID = uuid.MustParse(item["id"].(string))
		}
	}
	if trackedItemID == uuid.Nil {
		t.Fatal("no tracked item on order")
	}

	linkResp := postJSON(t, server, "/orders/"+orderID.String()+"/items/"+trackedItemID.String()+"/link", map[string]any{
		"unit_id": unitID.String(),
	}, http.StatusOK)
	if !linkResp["auto_advanced"].(bool) {
		t.Fatal("expected auto-advance after linking the only tracked item")
	}
	waitForStatus(t, server, orderID, "READY")

	// Unit is now SOLD and gone from availability
	units := getJSON(t, server, "/products/"+trackedID.String()+"/units")
	if len(units) != 0 {
		t.Fatalf("available units = %d, want 0 after link", len(units))
	}

	// Linking the same item again conflicts
	resp = rawPost(t, server, "/orders/"+orderID.String()+"/items/"+trackedItemID.String()+"/link",
		`{"unit_id":"`+unitID.String()+`"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("relink status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// --- 7. Deliver, then verify terminal orders reject edits ---
	// Refresh the board so the move sees the auto-advanced READY status.
	getBoard(t, server)
	postJSON(t, server, "/orders/"+orderID.String()+"/move", map[string]any{
		"target": "DELIVERED",
	}, http.StatusAccepted)
	waitForStatus(t, server, orderID, "DELIVERED")

	resp = rawPut(t, server, "/orders/"+orderID.String(), `{"scheduled_at":"`+scheduled+`","items":[{"product_id":"`+plainID.String()+`","quantity":1}]}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("edit delivered order status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// --- 8. Cancel the second order; it disappears from the board but the
	// row survives ---
	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/orders/"+order2ID.String(), nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want 204", delResp.StatusCode)
	}

	boardResp = getBoard(t, server)
	for _, lane := range []string{"RECEIVED", "PREPARING", "READY"} {
		if n := len(columnCards(t, boardResp, lane)); n != 0 {
			t.Fatalf("%s cards = %d, want 0", lane, n)
		}
	}
	cancelled := getOrder(t, server, order2ID)
	if cancelled["status"].(string) != "CANCELLED" {
		t.Fatalf("cancelled order status = %v", cancelled["status"])
	}
}

// --- Helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("fornada_test"),
		tcpostgres.WithUsername("fornada"),
		tcpostgres.WithPassword("fornada"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this test file's package directory.
	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createProduct(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name, price string, tracked bool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO products (name, price, tracked) VALUES ($1, $2, $3) RETURNING id`,
		name, price, tracked,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return id
}

func createUnit(t *testing.T, ctx context.Context, pool *pgxpool.Pool, productID uuid.UUID, weight, price string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO inventory_units (product_id, weight_kg, price, status)
		 VALUES ($1, $2, $3, 'AVAILABLE') RETURNING id`,
		productID, weight, price,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	return id
}

func postJSON(t *testing.T, server *httptest.Server, path string, body map[string]any, wantStatus int) map[string]any {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s status = %d, want %d", path, resp.StatusCode, wantStatus)
	}
	if wantStatus == http.StatusNoContent || wantStatus == http.StatusAccepted {
		return nil
	}
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode POST %s response: %v", path, err)
	}
	return decoded
}

func rawPost(t *testing.T, server *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func rawPut(t *testing.T, server *httptest.Server, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, server.URL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("build PUT %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", path, err)
	}
	return resp
}

func getOrder(t *testing.T, server *httptest.Server, id uuid.UUID) map[string]any {
	t.Helper()
	resp, err := http.Get(server.URL + "/orders/" + id.String())
	if err != nil {
		t.Fatalf("GET order: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET order status = %d", resp.StatusCode)
	}
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	return decoded
}

func getJSON(t *testing.T, server *httptest.Server, path string) []any {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", path, resp.StatusCode)
	}
	var decoded []any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode GET %s: %v", path, err)
	}
	return decoded
}

func getBoard(t *testing.T, server *httptest.Server) map[string]any {
	t.Helper()
	resp, err := http.Get(server.URL + "/orders/board")
	if err != nil {
		t.Fatalf("GET board: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET board status = %d", resp.StatusCode)
	}
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	return decoded
}

func columnCards(t *testing.T, boardResp map[string]any, status string) []any {
	t.Helper()
	for _, raw := range boardResp["columns"].([]any) {
		col := raw.(map[string]any)
		if col["status"].(string) == status {
			return col["cards"].([]any)
		}
	}
	t.Fatalf("column %s not found", status)
	return nil
}

// waitForStatus polls the order until the asynchronous status write lands.
func waitForStatus(t *testing.T, server *httptest.Server, id uuid.UUID, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := getOrder(t, server, id)["status"].(string); got == want {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("order %s never reached %s: %s", id, want, fmt.Sprint(getOrder(t, server, id)["status"]))
}
