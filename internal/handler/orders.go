package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/fornada-pos/api/internal/service"
	"github.com/fornada-pos/api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	ListOrders(ctx context.Context, f store.ListOrdersFilters) ([]store.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (store.Order, error)
	CompleteSale(ctx context.Context, draft service.SaleDraft) (service.CompleteSaleResult, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, draft service.SaleDraft) error
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status lifecycle.Status) error
	CancelOrder(ctx context.Context, id uuid.UUID) error
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Delete("/{id}", h.Cancel)
}

// --- Request / Response types ---

type saleRequest struct {
	ClientID    string               `json:"client_id"`
	ScheduledAt string               `json:"scheduled_at"`
	Notes       string               `json:"notes"`
	IsDelivery  bool                 `json:"is_delivery"`
	DeliveryFee string               `json:"delivery_fee"`
	AddressID   string               `json:"address_id"`
	Address     *saleAddressRequest  `json:"address"`
	Items       []saleItemRequest    `json:"items"`
	Payments    []salePaymentRequest `json:"payments"`
}

type saleItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type salePaymentRequest struct {
	Method string `json:"method"`
	Amount string `json:"amount"`
}

type saleAddressRequest struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	Reference    string `json:"reference"`
}

type saleResponse struct {
	ID            uuid.UUID `json:"id"`
	DisplayNumber int32     `json:"display_number"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	DisplayNumber int32               `json:"display_number"`
	Status        string              `json:"status"`
	TotalAmount   string              `json:"total_amount"`
	ScheduledAt   *time.Time          `json:"scheduled_at"`
	Notes         string              `json:"notes"`
	IsDelivery    bool                `json:"is_delivery"`
	DeliveryFee   string              `json:"delivery_fee"`
	ChangeDue     string              `json:"change_due"`
	Client        *clientResponse     `json:"client"`
	Address       *addressResponse    `json:"address"`
	Items         []orderItemResponse `json:"items"`
	Payments      []paymentResponse   `json:"payments"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type clientResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
}

type addressResponse struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city,omitempty"`
	Reference    string `json:"reference,omitempty"`
}

type orderItemResponse struct {
	ID        uuid.UUID  `json:"id"`
	ProductID uuid.UUID  `json:"product_id"`
	Name      string     `json:"name"`
	UnitPrice string     `json:"unit_price"`
	Quantity  int32      `json:"quantity"`
	LineTotal string     `json:"line_total"`
	Tracked   bool       `json:"tracked"`
	UnitID    *uuid.UUID `json:"unit_id"`
}

type paymentResponse struct {
	ID     uuid.UUID `json:"id"`
	Method string    `json:"method"`
	Amount string    `json:"amount"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// --- Handlers ---

// Create handles POST /orders: the atomic sale completion.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	draft, err := toDraft(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.svc.CompleteSale(r.Context(), draft)
	if err != nil {
		if isValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: complete sale: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, saleResponse{
		ID:            result.OrderID,
		DisplayNumber: result.DisplayNumber,
	})
}

// List handles GET /orders with optional date, range, search and status filters.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	var filters store.ListOrdersFilters

	if s := r.URL.Query().Get("date"); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, use YYYY-MM-DD"})
			return
		}
		filters.Date = &t
	}
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from format, use YYYY-MM-DD"})
			return
		}
		filters.From = &t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to format, use YYYY-MM-DD"})
			return
		}
		filters.To = &t
	}
	filters.Search = r.URL.Query().Get("search")
	if s := r.URL.Query().Get("status"); s != "" {
		status := lifecycle.Status(s)
		if !lifecycle.Valid(status) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		filters.Status = status
	}

	orders, err := h.svc.ListOrders(r.Context(), filters)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// Update handles PUT /orders/{id}: replaces items, schedule and delivery info.
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	draft, err := toDraft(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.svc.UpdateOrder(r.Context(), id, draft); err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrOrderClosed):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case isValidationError(err):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: update order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.svc.UpdateOrderStatus(r.Context(), id, lifecycle.Status(req.Status)); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, store.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		default:
			log.Printf("ERROR: update order status: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles DELETE /orders/{id}: a status change, not a row removal.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	if err := h.svc.CancelOrder(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrOrderClosed):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: cancel order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Mapping helpers ---

func toDraft(req saleRequest) (service.SaleDraft, error) {
	draft := service.SaleDraft{
		Notes:      req.Notes,
		IsDelivery: req.IsDelivery,
	}

	if req.ClientID != "" {
		id, err := uuid.Parse(req.ClientID)
		if err != nil {
			return service.SaleDraft{}, errors.New("invalid client_id")
		}
		draft.ClientID = &id
	}
	if req.AddressID != "" {
		id, err := uuid.Parse(req.AddressID)
		if err != nil {
			return service.SaleDraft{}, errors.New("invalid address_id")
		}
		draft.AddressID = &id
	}
	if req.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			return service.SaleDraft{}, errors.New("invalid scheduled_at, use RFC3339")
		}
		draft.ScheduledAt = &t
	}
	if req.DeliveryFee != "" {
		fee, err := decimal.NewFromString(req.DeliveryFee)
		if err != nil || fee.IsNegative() {
			return service.SaleDraft{}, errors.New("invalid delivery_fee")
		}
		draft.DeliveryFee = fee
	}
	if req.Address != nil {
		draft.Address = &service.AddressDraft{
			Street:       req.Address.Street,
			Number:       req.Address.Number,
			Complement:   req.Address.Complement,
			Neighborhood: req.Address.Neighborhood,
			City:         req.Address.City,
			Reference:    req.Address.Reference,
		}
	}

	for i, item := range req.Items {
		pid, err := uuid.Parse(item.ProductID)
		if err != nil {
			return service.SaleDraft{}, errors.New(formatItemError(i, "invalid product_id"))
		}
		draft.Items = append(draft.Items, service.ItemDraft{
			ProductID: pid,
			Quantity:  item.Quantity,
		})
	}

	for i, p := range req.Payments {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return service.SaleDraft{}, errors.New("payments[" + strconv.Itoa(i) + "]: invalid amount")
		}
		draft.Payments = append(draft.Payments, service.PaymentDraft{
			Method: p.Method,
			Amount: amount,
		})
	}

	return draft, nil
}

func toOrderResponse(o store.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		DisplayNumber: o.DisplayNumber,
		Status:        string(o.Status),
		TotalAmount:   o.TotalAmount.StringFixed(2),
		ScheduledAt:   o.ScheduledAt,
		Notes:         o.Notes,
		IsDelivery:    o.IsDelivery,
		DeliveryFee:   o.DeliveryFee.StringFixed(2),
		ChangeDue:     o.ChangeDue.StringFixed(2),
		Items:         make([]orderItemResponse, len(o.Items)),
		Payments:      make([]paymentResponse, len(o.Payments)),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.Client != nil {
		resp.Client = &clientResponse{ID: o.Client.ID, Name: o.Client.Name, Phone: o.Client.Phone}
	}
	if o.Address != nil {
		resp.Address = &addressResponse{
			Street:       o.Address.Street,
			Number:       o.Address.Number,
			Complement:   o.Address.Complement,
			Neighborhood: o.Address.Neighborhood,
			City:         o.Address.City,
			Reference:    o.Address.Reference,
		}
	}
	for i, item := range o.Items {
		resp.Items[i] = orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal.StringFixed(2),
			Tracked:   item.Tracked,
			UnitID:    item.UnitID,
		}
	}
	for i, p := range o.Payments {
		resp.Payments[i] = paymentResponse{
			ID:     p.ID,
			Method: p.Method,
			Amount: p.Amount.StringFixed(2),
		}
	}
	return resp
}

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

// isValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrNoSchedule) ||
		errors.Is(err, service.ErrMissingAddress) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrProductNotFound) ||
		errors.Is(err, service.ErrInvalidPayment) ||
		errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrChangeWithoutCash)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}
