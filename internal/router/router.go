package router

import (
	"net/http"

	"github.com/fornada-pos/api/internal/board"
	"github.com/fornada-pos/api/internal/config"
	"github.com/fornada-pos/api/internal/handler"
	"github.com/fornada-pos/api/internal/service"
	"github.com/fornada-pos/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, svc *service.OrderService, b *board.Board, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket route for live board events
	r.Get("/ws/board", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, w, r)
	})

	orderHandler := handler.NewOrderHandler(svc)
	boardHandler := handler.NewBoardHandler(b)
	unitHandler := handler.NewUnitHandler(svc)

	r.Route("/orders", func(r chi.Router) {
		// /orders/board must be registered before /orders/{id}
		boardHandler.RegisterRoutes(r)
		orderHandler.RegisterRoutes(r)
		unitHandler.RegisterLinkRoutes(r)
	})

	r.Route("/products", unitHandler.RegisterUnitRoutes)

	return r
}
