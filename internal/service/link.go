package service

import (
	"context"
	"fmt"

	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/fornada-pos/api/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LinkResult reports the outcome of a unit link. The link itself committed;
// AutoAdvanced says whether it was the order's last unlinked tracked item and
// the status was bumped to READY. AdvanceErr carries a failed advancement
// without undoing the link.
type LinkResult struct {
	Item         store.OrderItem
	Unit         store.InventoryUnit
	AutoAdvanced bool
	AdvanceErr   error
}

// LinkInventoryUnit binds a specific physical unit to an order item and
// marks the unit SOLD, atomically. Selecting a unit is the per-item
// fulfillment step for internally produced goods: once every tracked item on
// the order is linked, an order still in RECEIVED or PREPARING advances to
// READY on its own.
func (s *OrderService) LinkInventoryUnit(ctx context.Context, orderID, itemID, unitID uuid.UUID) (LinkResult, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return LinkResult{}, err
	}
	if lifecycle.IsTerminal(order.Status) {
		return LinkResult{}, ErrOrderClosed
	}

	item, err := s.store.GetOrderItem(ctx, itemID)
	if err != nil {
		return LinkResult{}, err
	}
	if item.OrderID != orderID {
		return LinkResult{}, store.ErrItemNotFound
	}
	if !item.Tracked {
		return LinkResult{}, ErrItemNotTracked
	}
	if item.Linked() {
		return LinkResult{}, store.ErrAlreadyLinked
	}

	unit, err := s.store.GetUnit(ctx, unitID)
	if err != nil {
		return LinkResult{}, err
	}
	if unit.ProductID != item.ProductID {
		return LinkResult{}, ErrUnitMismatch
	}

	if err := s.linkTx(ctx, itemID, unitID); err != nil {
		return LinkResult{}, err
	}
	item.UnitID = &unitID

	res := LinkResult{Item: item, Unit: unit}

	// Advancement runs outside the link transaction. If it fails, the link
	// stands and the operator moves the order by hand.
	remaining, err := s.store.CountUnlinkedTracked(ctx, orderID)
	if err != nil {
		res.AdvanceErr = err
		return res, nil
	}
	if lifecycle.ReadyBlocked(int(remaining)) {
		return res, nil
	}
	if order.Status != lifecycle.StatusReceived && order.Status != lifecycle.StatusPreparing {
		return res, nil
	}
	if err := s.store.UpdateOrderStatus(ctx, orderID, lifecycle.StatusReady); err != nil {
		res.AdvanceErr = err
		return res, nil
	}
	res.AutoAdvanced = true
	order.Status = lifecycle.StatusReady
	s.notify.OrderReady(order)
	return res, nil
}

// linkTx marks the unit SOLD and binds it to the item in one transaction.
// Either write can lose a race (unit grabbed by another order, item linked
// concurrently); the conditional UPDATEs surface that as sentinel errors and
// the whole transaction rolls back.
func (s *OrderService) linkTx(ctx context.Context, itemID, unitID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	st := s.newStore(tx)
	if err := st.MarkUnitSold(ctx, unitID); err != nil {
		return err
	}
	if err := st.BindItemUnit(ctx, itemID, unitID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateAndLinkUnit registers a new physical unit on the fly and immediately
// links it, for when the unit being handed over was never entered into
// inventory.
func (s *OrderService) CreateAndLinkUnit(ctx context.Context, orderID, itemID uuid.UUID, weightKg, price decimal.Decimal) (LinkResult, error) {
	item, err := s.store.GetOrderItem(ctx, itemID)
	if err != nil {
		return LinkResult{}, err
	}
	unit, err := s.store.CreateUnit(ctx, store.CreateUnitParams{
		ProductID: item.ProductID,
		WeightKg:  weightKg,
		Price:     price,
	})
	if err != nil {
		return LinkResult{}, err
	}
	return s.LinkInventoryUnit(ctx, orderID, itemID, unit.ID)
}
