package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fornada-pos/api/internal/enum"
	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/fornada-pos/api/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const maxDisplayNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrNoSchedule           = errors.New("scheduled fulfillment time is required")
	ErrMissingAddress       = errors.New("delivery requires a saved address or street, number and neighborhood")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrProductNotFound      = errors.New("product not found")
	ErrInvalidPayment       = errors.New("payment amount must be positive")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrChangeWithoutCash    = errors.New("payments exceed total but no cash payment is present")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrOrderClosed          = errors.New("order is delivered or cancelled")
	ErrItemNotTracked       = errors.New("item does not reference an internally tracked product")
	ErrUnitMismatch         = errors.New("unit does not belong to the item's product")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the service needs. Satisfied by
// *store.Store over a pool or a transaction.
type OrderStore interface {
	ListOrders(ctx context.Context, f store.ListOrdersFilters) ([]store.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (store.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status lifecycle.Status) error
	NextDisplayNumber(ctx context.Context) (int32, error)
	CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error)
	CreatePayment(ctx context.Context, arg store.CreatePaymentParams) (store.Payment, error)
	CreateAddress(ctx context.Context, a store.Address) (store.Address, error)
	UpdateOrderHeader(ctx context.Context, arg store.UpdateOrderHeaderParams) error
	DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (store.Product, error)
	GetOrderItem(ctx context.Context, itemID uuid.UUID) (store.OrderItem, error)
	GetUnit(ctx context.Context, id uuid.UUID) (store.InventoryUnit, error)
	ListAvailableUnits(ctx context.Context, productID uuid.UUID) ([]store.InventoryUnit, error)
	CreateUnit(ctx context.Context, arg store.CreateUnitParams) (store.InventoryUnit, error)
	BindItemUnit(ctx context.Context, itemID, unitID uuid.UUID) error
	MarkUnitSold(ctx context.Context, unitID uuid.UUID) error
	CountUnlinkedTracked(ctx context.Context, orderID uuid.UUID) (int64, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx), letting the
// service run the same queries inside a transaction.
type NewOrderStore func(db store.DBTX) OrderStore

// Notifier receives fire-and-forget order events. Delivery is best effort
// with no bearing on the operation's outcome.
type Notifier interface {
	OrderCreated(o store.Order)
	OrderReady(o store.Order)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) OrderCreated(store.Order) {}
func (NopNotifier) OrderReady(store.Order)   {}

// OrderService owns the order write paths: atomic sale completion, the
// non-atomic edit path, status changes and the item-linking flow.
type OrderService struct {
	pool     TxBeginner
	store    OrderStore
	newStore NewOrderStore
	notify   Notifier
}

// NewOrderService creates an OrderService. base runs against the pool;
// newStore derives transactional stores.
func NewOrderService(pool TxBeginner, base OrderStore, newStore NewOrderStore, notify Notifier) *OrderService {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &OrderService{pool: pool, store: base, newStore: newStore, notify: notify}
}

// --- Drafts ---

// SaleDraft is the validated input assembled by the order builder.
type SaleDraft struct {
	ClientID    *uuid.UUID
	ScheduledAt *time.Time
	Notes       string
	IsDelivery  bool
	DeliveryFee decimal.Decimal
	AddressID   *uuid.UUID
	Address     *AddressDraft
	Items       []ItemDraft
	Payments    []PaymentDraft
}

// ItemDraft is a single line item in the draft.
type ItemDraft struct {
	ProductID uuid.UUID
	Quantity  int32
}

// PaymentDraft is one payment entry in the draft.
type PaymentDraft struct {
	Method string
	Amount decimal.Decimal
}

// AddressDraft is a manually entered delivery address.
type AddressDraft struct {
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	Reference    string
}

func (a *AddressDraft) complete() bool {
	return a != nil && a.Street != "" && a.Number != "" && a.Neighborhood != ""
}

// CompleteSaleResult carries the identifiers of a created sale. The display
// number is the only fulfillment-facing identifier and is shown to the
// operator verbatim.
type CompleteSaleResult struct {
	OrderID       uuid.UUID
	DisplayNumber int32
}

// --- Reads ---

// ListOrders returns the filtered order list with all sub-records joined.
func (s *OrderService) ListOrders(ctx context.Context, f store.ListOrdersFilters) ([]store.Order, error) {
	return s.store.ListOrders(ctx, f)
}

// GetOrder returns one order with items and payments.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (store.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// AvailableUnits lists the AVAILABLE physical units for a catalog product.
func (s *OrderService) AvailableUnits(ctx context.Context, productID uuid.UUID) ([]store.InventoryUnit, error) {
	return s.store.ListAvailableUnits(ctx, productID)
}

// --- Status ---

// UpdateOrderStatus applies a single-field status update. Idempotent:
// re-applying the current status is a no-op success.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status lifecycle.Status) error {
	if !lifecycle.Valid(status) {
		return ErrInvalidStatus
	}
	return s.store.UpdateOrderStatus(ctx, id, status)
}

// CancelOrder moves a non-terminal order to CANCELLED. Cancellation is a
// terminal status, never a row removal.
func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID) error {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if !lifecycle.CanTransition(o.Status, lifecycle.StatusCancelled) {
		return ErrOrderClosed
	}
	return s.store.UpdateOrderStatus(ctx, id, lifecycle.StatusCancelled)
}

// --- Sale completion ---

// CompleteSale validates the draft and creates the sale header, its line
// items and its payments as one indivisible write. Retries up to
// maxDisplayNumberRetries times on display_number unique violations (racing
// transactions can read the same MAX). On success the new-order notification
// fires; on failure the caller keeps the draft and may resubmit.
func (s *OrderService) CompleteSale(ctx context.Context, draft SaleDraft) (CompleteSaleResult, error) {
	if err := s.validateDraft(draft, true); err != nil {
		return CompleteSaleResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt < maxDisplayNumberRetries; attempt++ {
		order, err := s.completeSaleTx(ctx, draft)
		if err == nil {
			s.notify.OrderCreated(order)
			return CompleteSaleResult{OrderID: order.ID, DisplayNumber: order.DisplayNumber}, nil
		}
		if isDisplayNumberConflict(err) {
			lastErr = err
			continue
		}
		return CompleteSaleResult{}, err
	}
	return CompleteSaleResult{}, lastErr
}

// isDisplayNumberConflict checks for a unique violation on the sequential
// display number (pgconn error code 23505).
func isDisplayNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_display_number_key"
	}
	return false
}

func (s *OrderService) completeSaleTx(ctx context.Context, draft SaleDraft) (store.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	st := s.newStore(tx)

	displayNumber, err := st.NextDisplayNumber(ctx)
	if err != nil {
		return store.Order{}, fmt.Errorf("next display number: %w", err)
	}

	addressID := draft.AddressID
	if draft.IsDelivery && addressID == nil {
		addr, err := st.CreateAddress(ctx, store.Address{
			Street:       draft.Address.Street,
			Number:       draft.Address.Number,
			Complement:   draft.Address.Complement,
			Neighborhood: draft.Address.Neighborhood,
			City:         draft.Address.City,
			Reference:    draft.Address.Reference,
		})
		if err != nil {
			return store.Order{}, err
		}
		addressID = &addr.ID
	}

	items, total, err := s.priceItems(ctx, st, draft)
	if err != nil {
		return store.Order{}, err
	}

	change, err := changeDue(total, draft.Payments)
	if err != nil {
		return store.Order{}, err
	}

	order, err := st.CreateOrder(ctx, store.CreateOrderParams{
		DisplayNumber: displayNumber,
		ClientID:      draft.ClientID,
		AddressID:     addressID,
		Status:        lifecycle.Initial,
		TotalAmount:   total,
		ScheduledAt:   draft.ScheduledAt,
		Notes:         draft.Notes,
		IsDelivery:    draft.IsDelivery,
		DeliveryFee:   draft.DeliveryFee,
		ChangeDue:     change,
	})
	if err != nil {
		return store.Order{}, err
	}

	for _, it := range items {
		it.OrderID = order.ID
		item, err := st.CreateOrderItem(ctx, it)
		if err != nil {
			return store.Order{}, err
		}
		order.Items = append(order.Items, item)
	}

	for _, p := range draft.Payments {
		payment, err := st.CreatePayment(ctx, store.CreatePaymentParams{
			OrderID: order.ID,
			Method:  p.Method,
			Amount:  p.Amount,
		})
		if err != nil {
			return store.Order{}, err
		}
		order.Payments = append(order.Payments, payment)
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return order, nil
}

// priceItems snapshots catalog name and price and computes line totals as
// unit price times quantity, the value readers rely on without recomputing.
func (s *OrderService) priceItems(ctx context.Context, st OrderStore, draft SaleDraft) ([]store.CreateOrderItemParams, decimal.Decimal, error) {
	total := draft.DeliveryFee
	items := make([]store.CreateOrderItemParams, 0, len(draft.Items))
	for i, it := range draft.Items {
		product, err := st.GetProduct(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, decimal.Zero, fmt.Errorf("items[%d]: %w", i, ErrProductNotFound)
			}
			return nil, decimal.Zero, fmt.Errorf("items[%d]: %w", i, err)
		}
		lineTotal := product.Price.Mul(decimal.NewFromInt32(it.Quantity))
		items = append(items, store.CreateOrderItemParams{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  it.Quantity,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return items, total, nil
}

// changeDue computes the cash change owed. Payments may sum below the total
// (open balance) or match it exactly; exceeding it is only legal when a cash
// payment is present.
func changeDue(total decimal.Decimal, payments []PaymentDraft) (decimal.Decimal, error) {
	paid := decimal.Zero
	hasCash := false
	for _, p := range payments {
		paid = paid.Add(p.Amount)
		if p.Method == enum.PaymentMethodCash {
			hasCash = true
		}
	}
	if paid.LessThanOrEqual(total) {
		return decimal.Zero, nil
	}
	if !hasCash {
		return decimal.Zero, ErrChangeWithoutCash
	}
	return paid.Sub(total), nil
}

// validateDraft enforces the client-side preconditions before any network
// write. withPayments is false on the edit path, which never touches
// payments.
func (s *OrderService) validateDraft(draft SaleDraft, withPayments bool) error {
	if len(draft.Items) == 0 {
		return ErrEmptyItems
	}
	if draft.ScheduledAt == nil {
		return ErrNoSchedule
	}
	for i, it := range draft.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
	}
	if draft.IsDelivery && draft.AddressID == nil && !draft.Address.complete() {
		return ErrMissingAddress
	}
	if withPayments {
		for i, p := range draft.Payments {
			if !isValidPaymentMethod(p.Method) {
				return fmt.Errorf("payments[%d]: %w", i, ErrInvalidPaymentMethod)
			}
			if p.Amount.LessThanOrEqual(decimal.Zero) {
				return fmt.Errorf("payments[%d]: %w", i, ErrInvalidPayment)
			}
		}
	}
	return nil
}

func isValidPaymentMethod(m string) bool {
	switch m {
	case enum.PaymentMethodCash, enum.PaymentMethodPix,
		enum.PaymentMethodCard, enum.PaymentMethodTransfer:
		return true
	}
	return false
}

// --- Edit path ---

// UpdateOrder replaces an existing order's line items, schedule and delivery
// info. Payments are never mutated here; correcting a completed payment is
// out of scope. Unlike sale completion this is a deliberately non-atomic
// multi-step update: each step fails fast and already-applied steps stand.
func (s *OrderService) UpdateOrder(ctx context.Context, id uuid.UUID, draft SaleDraft) error {
	if err := s.validateDraft(draft, false); err != nil {
		return err
	}

	current, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if lifecycle.IsTerminal(current.Status) {
		return ErrOrderClosed
	}

	addressID := draft.AddressID
	if draft.IsDelivery && addressID == nil {
		addr, err := s.store.CreateAddress(ctx, store.Address{
			Street:       draft.Address.Street,
			Number:       draft.Address.Number,
			Complement:   draft.Address.Complement,
			Neighborhood: draft.Address.Neighborhood,
			City:         draft.Address.City,
			Reference:    draft.Address.Reference,
		})
		if err != nil {
			return err
		}
		addressID = &addr.ID
	}

	items, total, err := s.priceItems(ctx, s.store, draft)
	if err != nil {
		return err
	}

	if err := s.store.DeleteOrderItems(ctx, id); err != nil {
		return err
	}
	for _, it := range items {
		it.OrderID = id
		if _, err := s.store.CreateOrderItem(ctx, it); err != nil {
			return err
		}
	}

	return s.store.UpdateOrderHeader(ctx, store.UpdateOrderHeaderParams{
		ID:          id,
		ClientID:    draft.ClientID,
		AddressID:   addressID,
		TotalAmount: total,
		ScheduledAt: draft.ScheduledAt,
		Notes:       draft.Notes,
		IsDelivery:  draft.IsDelivery,
		DeliveryFee: draft.DeliveryFee,
	})
}
