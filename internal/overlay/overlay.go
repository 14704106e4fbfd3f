// Package overlay holds the optimistic status overrides that mask network
// latency between a drag intent and the authoritative refresh. Entries live
// only in memory and are never persisted; the authoritative order list stays
// the single source of truth, with the overlay applied at render time.
package overlay

import (
	"sync"

	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/fornada-pos/api/internal/store"
	"github.com/google/uuid"
)

// Overlay maps order ids to provisionally-applied statuses. Entries are
// last-write-wins per order id: a second intent before the first write
// settles replaces the pending target, it does not queue.
type Overlay struct {
	mu      sync.Mutex
	pending map[uuid.UUID]lifecycle.Status
}

// New creates an empty Overlay.
func New() *Overlay {
	return &Overlay{pending: make(map[uuid.UUID]lifecycle.Status)}
}

// Set records a pending target status for an order, replacing any previous
// entry for the same id.
func (o *Overlay) Set(orderID uuid.UUID, target lifecycle.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[orderID] = target
}

// Get returns the pending target for an order, if any.
func (o *Overlay) Get(orderID uuid.UUID) (lifecycle.Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.pending[orderID]
	return s, ok
}

// ClearIf removes the entry for an order only if it still targets the given
// status. Used to roll back an overlay whose underlying write failed without
// clobbering a newer intent that superseded it.
func (o *Overlay) ClearIf(orderID uuid.UUID, target lifecycle.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending[orderID] == target {
		delete(o.pending, orderID)
	}
}

// Len returns the number of pending entries.
func (o *Overlay) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Reconcile retires every entry confirmed by the authoritative list: when a
// fresh fetch reports the same status the overlay targets, the entry is
// removed. Called on every authoritative refresh, not just the one following
// a write.
func (o *Overlay) Reconcile(orders []store.Order) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ord := range orders {
		if target, ok := o.pending[ord.ID]; ok && target == ord.Status {
			delete(o.pending, ord.ID)
		}
	}
}

// Retire drops every entry whose order id is absent from the list. Only a
// complete, unfiltered authoritative fetch may be passed in: an order
// missing from such a list has left the view entirely (a DELIVERED order
// aged out of the history window, a cancellation from another register) and
// its entry could otherwise never reconcile.
func (o *Overlay) Retire(orders []store.Order) {
	o.mu.Lock()
	defer o.mu.Unlock()
	present := make(map[uuid.UUID]struct{}, len(orders))
	for _, ord := range orders {
		present[ord.ID] = struct{}{}
	}
	for id := range o.pending {
		if _, ok := present[id]; !ok {
			delete(o.pending, id)
		}
	}
}

// Apply returns a copy of the list with each order's status overridden by its
// pending entry, if present. The input is not mutated.
func (o *Overlay) Apply(orders []store.Order) []store.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]store.Order, len(orders))
	copy(out, orders)
	for i := range out {
		if target, ok := o.pending[out[i].ID]; ok {
			out[i].Status = target
		}
	}
	return out
}
