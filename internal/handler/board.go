package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/fornada-pos/api/internal/board"
	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/fornada-pos/api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Boarder defines the board methods needed by the handlers.
// Satisfied by *board.Board.
type Boarder interface {
	Refresh(ctx context.Context, f store.ListOrdersFilters) ([]board.Column, error)
	Tab(status lifecycle.Status) []board.Card
	Move(orderID uuid.UUID, target lifecycle.Status) error
}

// BoardHandler exposes the kanban board: a refreshed column snapshot and the
// drag-and-drop move intent.
type BoardHandler struct {
	board Boarder
}

// NewBoardHandler creates a new BoardHandler.
func NewBoardHandler(b Boarder) *BoardHandler {
	return &BoardHandler{board: b}
}

// RegisterRoutes registers board endpoints. Mounted at /orders.
func (h *BoardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/board", h.Snapshot)
	r.Get("/board/tab", h.Tab)
	r.Post("/{id}/move", h.Move)
}

// --- Request / Response types ---

type moveRequest struct {
	Target string `json:"target"`
}

type boardResponse struct {
	Columns []boardColumnResponse `json:"columns"`
}

type boardColumnResponse struct {
	Status string              `json:"status"`
	Cards  []boardCardResponse `json:"cards"`
}

type boardCardResponse struct {
	Order            orderResponse `json:"order"`
	CountdownSeconds *int64        `json:"countdown_seconds,omitempty"`
	Late             bool          `json:"late"`
}

// --- Handlers ---

// Snapshot handles GET /orders/board: refreshes and returns the four lanes.
func (h *BoardHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	var filters store.ListOrdersFilters
	if s := r.URL.Query().Get("date"); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, use YYYY-MM-DD"})
			return
		}
		filters.Date = &t
	}

	columns, err := h.board.Refresh(r.Context(), filters)
	if err != nil {
		log.Printf("ERROR: refresh board: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := boardResponse{Columns: make([]boardColumnResponse, len(columns))}
	for i, col := range columns {
		resp.Columns[i] = boardColumnResponse{Status: string(col.Status), Cards: toBoardCardResponses(col.Cards)}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Tab handles GET /orders/board/tab?status=: the mobile presentation, one
// status lane at a time. Selecting a tab filters the last snapshot, it never
// refreshes or transitions.
func (h *BoardHandler) Tab(w http.ResponseWriter, r *http.Request) {
	status := lifecycle.Status(r.URL.Query().Get("status"))
	if !lifecycle.Valid(status) || status == lifecycle.StatusCancelled {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be one of the board columns"})
		return
	}
	writeJSON(w, http.StatusOK, toBoardCardResponses(h.board.Tab(status)))
}

func toBoardCardResponses(cards []board.Card) []boardCardResponse {
	out := make([]boardCardResponse, len(cards))
	for i, card := range cards {
		out[i] = boardCardResponse{
			Order: toOrderResponse(card.Order),
			Late:  card.Late,
		}
		if card.Countdown != nil {
			secs := int64(card.Countdown.Seconds())
			out[i].CountdownSeconds = &secs
		}
	}
	return out
}

// Move handles POST /orders/{id}/move: an optimistic drag-and-drop intent.
// Accepted means the overlay was updated and the write was issued, not that
// it has been confirmed.
func (h *BoardHandler) Move(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.board.Move(id, lifecycle.Status(req.Target)); err != nil {
		switch {
		case errors.Is(err, board.ErrUnknownOrder):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not on board"})
		case errors.Is(err, board.ErrIllegalTarget):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: move order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
