// Package board partitions orders into kanban columns and turns drag/drop
// intents into status changes. Drag input is abstracted to a neutral
// (orderID, targetStatus) intent; the package never sees pointer or touch
// event internals.
package board

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/fornada-pos/api/internal/overlay"
	"github.com/fornada-pos/api/internal/store"
	"github.com/google/uuid"
)

var (
	ErrUnknownOrder  = errors.New("order not on the board")
	ErrIllegalTarget = errors.New("illegal drop target")
)

// Repository is the slice of the data layer the board needs.
type Repository interface {
	ListOrders(ctx context.Context, f store.ListOrdersFilters) ([]store.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status lifecycle.Status) error
}

// Notifier receives fire-and-forget board events. Implementations must not
// block; failures are swallowed by design.
type Notifier interface {
	OrderReady(o store.Order)
	OrderDelivered(o store.Order)
	MoveFailed(orderID uuid.UUID, target lifecycle.Status, err error)
}

// Card is one order as rendered on the board. Countdown and Late are derived,
// display-only annotations; Late is never a stored status.
type Card struct {
	Order     store.Order
	Countdown *time.Duration
	Late      bool
}

// Column is one status lane of the desktop board.
type Column struct {
	Status lifecycle.Status
	Cards  []Card
}

// Board merges the authoritative order list with the optimistic overlay and
// routes move intents. All methods are safe for concurrent use from the UI
// event loop and the refresh poller.
type Board struct {
	repo    Repository
	overlay *overlay.Overlay
	notify  Notifier
	now     func() time.Time

	mu       sync.Mutex
	snapshot []store.Order // last authoritative list; overlay applied at render

	writes sync.WaitGroup
}

// New creates a Board.
func New(repo Repository, ov *overlay.Overlay, notify Notifier) *Board {
	return &Board{repo: repo, overlay: ov, notify: notify, now: time.Now}
}

// Refresh fetches the authoritative list, retires confirmed overlay entries,
// applies the remaining ones and rebuilds the columns. This is the sole
// mechanism preventing drift between optimistic and authoritative state, so
// reconciliation runs on every call, not only after a write.
func (b *Board) Refresh(ctx context.Context, f store.ListOrdersFilters) ([]Column, error) {
	orders, err := b.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	b.overlay.Reconcile(orders)
	if !f.Filtered() {
		// A complete fetch is also the only safe moment to drop entries for
		// orders that left the view (delivered history aging out, a cancel
		// from another register) and would otherwise linger forever.
		b.overlay.Retire(orders)
	}

	b.mu.Lock()
	b.snapshot = orders
	b.mu.Unlock()

	return b.columns(b.overlay.Apply(orders)), nil
}

// Columns rebuilds the column view from the last refreshed snapshot without
// hitting the repository. The overlay and the countdown/late annotations are
// re-applied on every call, so a fresh move shows up immediately and the
// minute clock stays current.
func (b *Board) Columns() []Column {
	b.mu.Lock()
	authoritative := b.snapshot
	b.mu.Unlock()
	return b.columns(b.overlay.Apply(authoritative))
}

// Tab returns the cards of a single status lane. This is the mobile
// presentation: selecting a tab filters, it never transitions.
func (b *Board) Tab(status lifecycle.Status) []Card {
	for _, col := range b.Columns() {
		if col.Status == status {
			return col.Cards
		}
	}
	return nil
}

// Move handles a drag/drop or explicit advance intent. Drop acceptance is
// decided by the target column's identity alone: for a non-terminal order,
// any of the four columns other than its current one is a legal target. The
// overlay entry is created synchronously; the status write is issued without
// being awaited, so the caller sees the move immediately. A drop on the
// order's current column is a no-op and issues no repository call. If the
// write fails, the overlay entry is rolled back (unless a newer intent
// superseded it) and the failure is surfaced through the notifier.
func (b *Board) Move(orderID uuid.UUID, target lifecycle.Status) error {
	current, ord, ok := b.lookup(orderID)
	if !ok {
		return ErrUnknownOrder
	}
	if target == current {
		return nil
	}
	if lifecycle.IsTerminal(current) {
		return ErrIllegalTarget
	}
	// CANCELLED is representable but never offered as a drop target.
	if target == lifecycle.StatusCancelled || !lifecycle.Valid(target) {
		return ErrIllegalTarget
	}

	b.overlay.Set(orderID, target)

	b.writes.Add(1)
	go func() {
		defer b.writes.Done()
		if err := b.repo.UpdateOrderStatus(context.Background(), orderID, target); err != nil {
			b.overlay.ClearIf(orderID, target)
			b.notify.MoveFailed(orderID, target, err)
			return
		}
		moved := ord
		moved.Status = target
		switch target {
		case lifecycle.StatusReady:
			b.notify.OrderReady(moved)
		case lifecycle.StatusDelivered:
			b.notify.OrderDelivered(moved)
		}
	}()
	return nil
}

// Wait blocks until all in-flight status writes have settled. Used by
// shutdown and tests; a write can not be cancelled once issued.
func (b *Board) Wait() {
	b.writes.Wait()
}

// lookup returns the order's displayed status: the authoritative one with a
// pending overlay entry, if any, taking precedence.
func (b *Board) lookup(orderID uuid.UUID) (lifecycle.Status, store.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.snapshot {
		if o.ID == orderID {
			status := o.Status
			if pending, ok := b.overlay.Get(orderID); ok {
				status = pending
			}
			return status, o, true
		}
	}
	return "", store.Order{}, false
}

func (b *Board) columns(display []store.Order) []Column {
	now := b.now()
	cols := make([]Column, 0, 4)
	for _, status := range lifecycle.Columns() {
		col := Column{Status: status}
		for _, o := range display {
			if o.Status != status {
				continue
			}
			col.Cards = append(col.Cards, annotate(o, now))
		}
		cols = append(cols, col)
	}
	return cols
}

// annotate computes the per-card countdown affordance: orders still in
// RECEIVED or PREPARING with a future scheduled time get a live countdown;
// ones whose scheduled time has passed are flagged late.
func annotate(o store.Order, now time.Time) Card {
	c := Card{Order: o}
	if o.ScheduledAt == nil {
		return c
	}
	if o.Status != lifecycle.StatusReceived && o.Status != lifecycle.StatusPreparing {
		return c
	}
	if o.ScheduledAt.After(now) {
		d := o.ScheduledAt.Sub(now)
		c.Countdown = &d
	} else {
		c.Late = true
	}
	return c
}

// Point is a pointer position in board coordinates.
type Point struct {
	X, Y float64
}

// Rect is a droppable column region.
type Rect struct {
	Status     lifecycle.Status
	X, Y, W, H float64
}

// NearestColumn resolves a drop position to the column whose center is
// closest, the collision strategy used by the desktop drag layer. ok is false
// when no regions are given.
func NearestColumn(p Point, regions []Rect) (lifecycle.Status, bool) {
	best := lifecycle.Status("")
	bestDist := math.MaxFloat64
	for _, r := range regions {
		cx := r.X + r.W/2
		cy := r.Y + r.H/2
		d := (p.X-cx)*(p.X-cx) + (p.Y-cy)*(p.Y-cy)
		if d < bestDist {
			bestDist = d
			best = r.Status
		}
	}
	return best, best != ""
}

// RunClock refreshes the display annotations on a fixed interval (once per
// minute in production) and hands the rebuilt columns to fn. Purely a display
// concern; it issues no repository calls.
func (b *Board) RunClock(ctx context.Context, interval time.Duration, fn func([]Column)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(b.Columns())
		}
	}
}
