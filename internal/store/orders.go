package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ListOrdersFilters are the optional bounds applied by ListOrders. Date is an
// exact calendar date on the scheduled fulfillment time; From/To are range
// bounds; Search matches the display number and client name
// case-insensitively.
type ListOrdersFilters struct {
	Date   *time.Time
	From   *time.Time
	To     *time.Time
	Search string
	Status lifecycle.Status
}

// Filtered reports whether any bound is set, i.e. whether the result is a
// narrowed view rather than the complete list.
func (f ListOrdersFilters) Filtered() bool {
	return f.Date != nil || f.From != nil || f.To != nil || f.Search != "" || f.Status != ""
}

const orderColumns = `o.id, o.display_number, o.status, o.total_amount,
	o.scheduled_at, o.notes, o.is_delivery, o.delivery_fee, o.change_due,
	o.created_at, o.updated_at,
	c.id, c.name, c.phone,
	a.id, a.street, a.number, a.complement, a.neighborhood, a.city, a.reference`

// ListOrders returns orders with client summary, line items and payments
// joined, ordered by scheduled time ascending with unscheduled orders last,
// then creation time descending. DELIVERED orders created before the current
// calendar day are excluded from the result; they remain in the permanent
// record but are outside this view's window.
func (s *Store) ListOrders(ctx context.Context, f ListOrdersFilters) ([]Order, error) {
	q := psql.Select(
		"o.id", "o.display_number", "o.status", "o.total_amount",
		"o.scheduled_at", "o.notes", "o.is_delivery", "o.delivery_fee", "o.change_due",
		"o.created_at", "o.updated_at",
		"c.id", "c.name", "c.phone",
		"a.id", "a.street", "a.number", "a.complement", "a.neighborhood", "a.city", "a.reference",
	).
		From("orders o").
		LeftJoin("clients c ON c.id = o.client_id").
		LeftJoin("addresses a ON a.id = o.address_id").
		OrderBy("o.scheduled_at ASC NULLS LAST", "o.created_at DESC")

	if f.Date != nil {
		start := startOfDay(*f.Date)
		q = q.Where(sq.GtOrEq{"o.scheduled_at": start}).
			Where(sq.Lt{"o.scheduled_at": start.AddDate(0, 0, 1)})
	}
	if f.From != nil {
		q = q.Where(sq.GtOrEq{"o.scheduled_at": startOfDay(*f.From)})
	}
	if f.To != nil {
		q = q.Where(sq.Lt{"o.scheduled_at": startOfDay(*f.To).AddDate(0, 0, 1)})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where(sq.Or{
			sq.ILike{"CAST(o.display_number AS TEXT)": pattern},
			sq.ILike{"c.name": pattern},
		})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"o.status": string(f.Status)})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders = applyDeliveredWindow(orders, s.now())

	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	if err := s.attachPayments(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrder returns one order with items and payments attached.
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN clients c ON c.id = o.client_id
		LEFT JOIN addresses a ON a.id = o.address_id
		WHERE o.id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}

	orders := []Order{o}
	if err := s.attachItems(ctx, orders); err != nil {
		return Order{}, err
	}
	if err := s.attachPayments(ctx, orders); err != nil {
		return Order{}, err
	}
	return orders[0], nil
}

// UpdateOrderStatus is a blind single-field update. Re-applying the current
// status is a no-op success, not an error.
func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status lifecycle.Status) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// NextDisplayNumber returns the next sequential human-facing number. Racing
// transactions can read the same value; the unique constraint on
// display_number plus the service-level retry handles that.
func (s *Store) NextDisplayNumber(ctx context.Context) (int32, error) {
	var n int32
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(display_number), 0) + 1 FROM orders`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next display number: %w", err)
	}
	return n, nil
}

// CreateOrderParams are the header fields for an order insert.
type CreateOrderParams struct {
	DisplayNumber int32
	ClientID      *uuid.UUID
	AddressID     *uuid.UUID
	Status        lifecycle.Status
	TotalAmount   decimal.Decimal
	ScheduledAt   *time.Time
	Notes         string
	IsDelivery    bool
	DeliveryFee   decimal.Decimal
	ChangeDue     decimal.Decimal
}

// CreateOrder inserts an order header and returns it.
func (s *Store) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	var o Order
	var status string
	var scheduled pgtype.Timestamptz
	var total, fee, change pgtype.Numeric
	err := s.db.QueryRow(ctx, `
		INSERT INTO orders (display_number, client_id, address_id, status,
			total_amount, scheduled_at, notes, is_delivery, delivery_fee, change_due)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, display_number, status, total_amount, scheduled_at, notes,
			is_delivery, delivery_fee, change_due, created_at, updated_at`,
		arg.DisplayNumber, arg.ClientID, arg.AddressID, string(arg.Status),
		decimalToNumeric(arg.TotalAmount), arg.ScheduledAt, arg.Notes,
		arg.IsDelivery, decimalToNumeric(arg.DeliveryFee), decimalToNumeric(arg.ChangeDue),
	).Scan(&o.ID, &o.DisplayNumber, &status, &total, &scheduled, &o.Notes,
		&o.IsDelivery, &fee, &change, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	o.Status = lifecycle.Status(status)
	o.TotalAmount = numericToDecimal(total)
	o.DeliveryFee = numericToDecimal(fee)
	o.ChangeDue = numericToDecimal(change)
	if scheduled.Valid {
		t := scheduled.Time
		o.ScheduledAt = &t
	}
	return o, nil
}

// CreateOrderItemParams are the fields for a line item insert. LineTotal is
// computed by the caller as UnitPrice * Quantity before the write.
type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int32
	LineTotal decimal.Decimal
}

// CreateOrderItem inserts one line item and returns it.
func (s *Store) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var it OrderItem
	var price, total pgtype.Numeric
	err := s.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, name, unit_price, quantity, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, order_id, product_id, name, unit_price, quantity, line_total`,
		arg.OrderID, arg.ProductID, arg.Name,
		decimalToNumeric(arg.UnitPrice), arg.Quantity, decimalToNumeric(arg.LineTotal),
	).Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &price, &it.Quantity, &total)
	if err != nil {
		return OrderItem{}, fmt.Errorf("create order item: %w", err)
	}
	it.UnitPrice = numericToDecimal(price)
	it.LineTotal = numericToDecimal(total)
	return it, nil
}

// CreatePaymentParams are the fields for a payment insert.
type CreatePaymentParams struct {
	OrderID uuid.UUID
	Method  string
	Amount  decimal.Decimal
}

// CreatePayment inserts one payment record and returns it.
func (s *Store) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	var p Payment
	var amount pgtype.Numeric
	err := s.db.QueryRow(ctx, `
		INSERT INTO payments (order_id, method, amount)
		VALUES ($1, $2, $3)
		RETURNING id, order_id, method, amount, created_at`,
		arg.OrderID, arg.Method, decimalToNumeric(arg.Amount),
	).Scan(&p.ID, &p.OrderID, &p.Method, &amount, &p.CreatedAt)
	if err != nil {
		return Payment{}, fmt.Errorf("create payment: %w", err)
	}
	p.Amount = numericToDecimal(amount)
	return p, nil
}

// CreateAddress inserts a delivery address and returns it.
func (s *Store) CreateAddress(ctx context.Context, a Address) (Address, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO addresses (street, number, complement, neighborhood, city, reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		a.Street, a.Number, a.Complement, a.Neighborhood, a.City, a.Reference,
	).Scan(&a.ID)
	if err != nil {
		return Address{}, fmt.Errorf("create address: %w", err)
	}
	return a, nil
}

// UpdateOrderHeaderParams are the mutable header fields on the edit path.
// Status, payments and the display number are never touched here.
type UpdateOrderHeaderParams struct {
	ID          uuid.UUID
	ClientID    *uuid.UUID
	AddressID   *uuid.UUID
	TotalAmount decimal.Decimal
	ScheduledAt *time.Time
	Notes       string
	IsDelivery  bool
	DeliveryFee decimal.Decimal
}

// UpdateOrderHeader replaces the schedule/delivery fields of an order.
func (s *Store) UpdateOrderHeader(ctx context.Context, arg UpdateOrderHeaderParams) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET client_id = $2, address_id = $3, total_amount = $4, scheduled_at = $5,
			notes = $6, is_delivery = $7, delivery_fee = $8, updated_at = now()
		WHERE id = $1`,
		arg.ID, arg.ClientID, arg.AddressID, decimalToNumeric(arg.TotalAmount),
		arg.ScheduledAt, arg.Notes, arg.IsDelivery, decimalToNumeric(arg.DeliveryFee))
	if err != nil {
		return fmt.Errorf("update order header: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// DeleteOrderItems removes all line items of an order (edit path: full
// replace of items).
func (s *Store) DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	return nil
}

// --- scanning / grouping helpers ---

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	var scheduled pgtype.Timestamptz
	var total, fee, change pgtype.Numeric
	var clientID pgtype.UUID
	var clientName, clientPhone pgtype.Text
	var addrID pgtype.UUID
	var street, number, complement, neighborhood, city, reference pgtype.Text

	err := row.Scan(
		&o.ID, &o.DisplayNumber, &status, &total,
		&scheduled, &o.Notes, &o.IsDelivery, &fee, &change,
		&o.CreatedAt, &o.UpdatedAt,
		&clientID, &clientName, &clientPhone,
		&addrID, &street, &number, &complement, &neighborhood, &city, &reference,
	)
	if err != nil {
		return Order{}, err
	}

	o.Status = lifecycle.Status(status)
	o.TotalAmount = numericToDecimal(total)
	o.DeliveryFee = numericToDecimal(fee)
	o.ChangeDue = numericToDecimal(change)
	if scheduled.Valid {
		t := scheduled.Time
		o.ScheduledAt = &t
	}
	if clientID.Valid {
		o.Client = &ClientSummary{
			ID:    uuid.UUID(clientID.Bytes),
			Name:  clientName.String,
			Phone: clientPhone.String,
		}
	}
	if addrID.Valid {
		o.Address = &Address{
			ID:           uuid.UUID(addrID.Bytes),
			Street:       street.String,
			Number:       number.String,
			Complement:   complement.String,
			Neighborhood: neighborhood.String,
			City:         city.String,
			Reference:    reference.String,
		}
	}
	return o, nil
}

func (s *Store) attachItems(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := orderIDs(orders)
	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, i.unit_id, i.name,
			i.unit_price, i.quantity, i.line_total, p.tracked
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.name`, ids)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[uuid.UUID][]OrderItem)
	for rows.Next() {
		var it OrderItem
		var unitID pgtype.UUID
		var price, total pgtype.Numeric
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &unitID, &it.Name,
			&price, &it.Quantity, &total, &it.Tracked); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if unitID.Valid {
			u := uuid.UUID(unitID.Bytes)
			it.UnitID = &u
		}
		it.UnitPrice = numericToDecimal(price)
		it.LineTotal = numericToDecimal(total)
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list order items: %w", err)
	}

	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
	}
	return nil
}

func (s *Store) attachPayments(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := orderIDs(orders)
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, method, amount, created_at
		FROM payments
		WHERE order_id = ANY($1)
		ORDER BY created_at`, ids)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[uuid.UUID][]Payment)
	for rows.Next() {
		var p Payment
		var amount pgtype.Numeric
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Method, &amount, &p.CreatedAt); err != nil {
			return fmt.Errorf("scan payment: %w", err)
		}
		p.Amount = numericToDecimal(amount)
		byOrder[p.OrderID] = append(byOrder[p.OrderID], p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list payments: %w", err)
	}

	for i := range orders {
		orders[i].Payments = byOrder[orders[i].ID]
	}
	return nil
}

func orderIDs(orders []Order) []uuid.UUID {
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}

// applyDeliveredWindow drops DELIVERED orders created before the current
// calendar day. Delivered history older than today exists in the permanent
// record but is not surfaced by the list view.
func applyDeliveredWindow(orders []Order, now time.Time) []Order {
	today := startOfDay(now)
	kept := orders[:0]
	for _, o := range orders {
		if o.Status == lifecycle.StatusDelivered && o.CreatedAt.Before(today) {
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
