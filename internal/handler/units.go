package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/fornada-pos/api/internal/service"
	"github.com/fornada-pos/api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnitServicer defines the service methods needed by the unit handlers.
// Satisfied by *service.OrderService.
type UnitServicer interface {
	AvailableUnits(ctx context.Context, productID uuid.UUID) ([]store.InventoryUnit, error)
	LinkInventoryUnit(ctx context.Context, orderID, itemID, unitID uuid.UUID) (service.LinkResult, error)
	CreateAndLinkUnit(ctx context.Context, orderID, itemID uuid.UUID, weightKg, price decimal.Decimal) (service.LinkResult, error)
}

// UnitHandler handles inventory unit selection for tracked order items.
type UnitHandler struct {
	svc UnitServicer
}

// NewUnitHandler creates a new UnitHandler.
func NewUnitHandler(svc UnitServicer) *UnitHandler {
	return &UnitHandler{svc: svc}
}

// RegisterUnitRoutes registers the availability listing. Mounted at /products.
func (h *UnitHandler) RegisterUnitRoutes(r chi.Router) {
	r.Get("/{pid}/units", h.ListAvailable)
}

// RegisterLinkRoutes registers the link endpoints. Mounted at /orders.
func (h *UnitHandler) RegisterLinkRoutes(r chi.Router) {
	r.Post("/{id}/items/{itemID}/link", h.Link)
}

// --- Request / Response types ---

type unitResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	WeightKg  string    `json:"weight_kg"`
	Price     string    `json:"price"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// linkRequest binds an existing unit (unit_id) or registers a new one on the
// spot (weight_kg + price). Exactly one of the two forms is expected.
type linkRequest struct {
	UnitID   string `json:"unit_id"`
	WeightKg string `json:"weight_kg"`
	Price    string `json:"price"`
}

type linkResponse struct {
	Item         orderItemResponse `json:"item"`
	Unit         unitResponse      `json:"unit"`
	AutoAdvanced bool              `json:"auto_advanced"`
	AdvanceError string            `json:"advance_error,omitempty"`
}

// --- Handlers ---

// ListAvailable handles GET /products/{pid}/units: AVAILABLE units, oldest
// first.
func (h *UnitHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	units, err := h.svc.AvailableUnits(r.Context(), productID)
	if err != nil {
		log.Printf("ERROR: list available units: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]unitResponse, len(units))
	for i, u := range units {
		resp[i] = toUnitResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Link handles POST /orders/{id}/items/{itemID}/link.
func (h *UnitHandler) Link(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var result service.LinkResult
	switch {
	case req.UnitID != "":
		unitID, err := uuid.Parse(req.UnitID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit_id"})
			return
		}
		result, err = h.svc.LinkInventoryUnit(r.Context(), orderID, itemID, unitID)
		if err != nil {
			writeLinkError(w, err)
			return
		}
	case req.WeightKg != "" && req.Price != "":
		weight, err := decimal.NewFromString(req.WeightKg)
		if err != nil || !weight.IsPositive() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid weight_kg"})
			return
		}
		price, err := decimal.NewFromString(req.Price)
		if err != nil || price.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price"})
			return
		}
		result, err = h.svc.CreateAndLinkUnit(r.Context(), orderID, itemID, weight, price)
		if err != nil {
			writeLinkError(w, err)
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unit_id or weight_kg and price are required"})
		return
	}

	resp := linkResponse{
		Item: orderItemResponse{
			ID:        result.Item.ID,
			ProductID: result.Item.ProductID,
			Name:      result.Item.Name,
			UnitPrice: result.Item.UnitPrice.StringFixed(2),
			Quantity:  result.Item.Quantity,
			LineTotal: result.Item.LineTotal.StringFixed(2),
			Tracked:   result.Item.Tracked,
			UnitID:    result.Item.UnitID,
		},
		Unit:         toUnitResponse(result.Unit),
		AutoAdvanced: result.AutoAdvanced,
	}
	if result.AdvanceErr != nil {
		resp.AdvanceError = result.AdvanceErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeLinkError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, store.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order item not found"})
	case errors.Is(err, store.ErrUnitNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unit not found"})
	case errors.Is(err, store.ErrUnitUnavailable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "unit is no longer available"})
	case errors.Is(err, store.ErrAlreadyLinked):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "item is already linked to a unit"})
	case errors.Is(err, service.ErrOrderClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrItemNotTracked):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrUnitMismatch):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: link unit: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func toUnitResponse(u store.InventoryUnit) unitResponse {
	return unitResponse{
		ID:        u.ID,
		ProductID: u.ProductID,
		WeightKg:  u.WeightKg.StringFixed(3),
		Price:     u.Price.StringFixed(2),
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}
