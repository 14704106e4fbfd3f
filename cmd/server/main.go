package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
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
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	if err := runMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()
	notifier := ws.NewNotifier(hub)

	st := store.New(pool)
	newStore := func(db store.DBTX) service.OrderStore {
		return store.New(db)
	}
	svc := service.NewOrderService(pool, st, newStore, notifier)

	ov := overlay.New()
	b := board.New(st, ov, notifier)

	// Re-broadcast the board once per interval so countdown and late
	// annotations stay current on screens between moves.
	clockCtx, stopClock := context.WithCancel(ctx)
	defer stopClock()
	go b.RunClock(clockCtx, cfg.RefreshInterval, notifier.BoardRefreshed)

	r := router.New(cfg, svc, b, hub)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	// Let in-flight optimistic status writes settle before closing the pool.
	stopClock()
	b.Wait()
	log.Println("Server stopped")
}

func runMigrations(databaseURL, path string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
