package store

import (
	"time"

	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the aggregate root of the fulfillment engine. DisplayNumber is the
// short sequential identifier shown to staff and customers; it is assigned by
// the store at creation and never reused.
type Order struct {
	ID            uuid.UUID
	DisplayNumber int32
	Status        lifecycle.Status
	TotalAmount   decimal.Decimal
	ScheduledAt   *time.Time
	Notes         string
	IsDelivery    bool
	DeliveryFee   decimal.Decimal
	ChangeDue     decimal.Decimal
	Client        *ClientSummary
	Address       *Address
	Items         []OrderItem
	Payments      []Payment
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ClientSummary is the client fields joined into order reads.
type ClientSummary struct {
	ID    uuid.UUID
	Name  string
	Phone string
}

// Address is a delivery address, either saved or created inline with a sale.
type Address struct {
	ID           uuid.UUID
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	Reference    string
}

// OrderItem is a priced product reference within an order. Name and UnitPrice
// are snapshots taken at write time; LineTotal = UnitPrice * Quantity is
// enforced on insert, never recomputed by readers. Tracked is joined from the
// catalog and marks items that must be bound to a physical inventory unit.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	UnitID    *uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int32
	LineTotal decimal.Decimal
	Tracked   bool
}

// Linked reports whether the item is bound to a physical inventory unit.
func (i OrderItem) Linked() bool {
	return i.UnitID != nil
}

// Payment is one payment record against an order. The sum of payments may be
// below, equal to, or (cash only, for change) above the order total.
type Payment struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Method    string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// InventoryUnit is one individually tracked physical stock unit.
type InventoryUnit struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	WeightKg  decimal.Decimal
	Price     decimal.Decimal
	Status    string
	CreatedAt time.Time
}

// Product is the minimal catalog projection the engine needs.
type Product struct {
	ID      uuid.UUID
	Name    string
	Price   decimal.Decimal
	Tracked bool
}
