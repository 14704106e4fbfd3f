// Package lifecycle defines the order fulfillment status chain and its legal
// transitions. The chain is strictly linear on the happy path:
// RECEIVED → PREPARING → READY → DELIVERED, with CANCELLED reachable from any
// non-terminal status. Next never skips and never goes backward; it drives
// the advance action, while board drops are validated by column identity.
package lifecycle

import "github.com/fornada-pos/api/internal/enum"

// Status is an order's fulfillment status.
type Status string

const (
	StatusReceived  = Status(enum.OrderStatusReceived)
	StatusPreparing = Status(enum.OrderStatusPreparing)
	StatusReady     = Status(enum.OrderStatusReady)
	StatusDelivered = Status(enum.OrderStatusDelivered)
	StatusCancelled = Status(enum.OrderStatusCancelled)
)

// Initial is the status every order starts in.
const Initial = StatusReceived

// forward maps each status to its single legal forward transition.
var forward = map[Status]Status{
	StatusReceived:  StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusDelivered,
}

// Valid reports whether s is one of the five known statuses.
func Valid(s Status) bool {
	switch s {
	case StatusReceived, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Next returns the single legal forward transition from s. ok is false for
// terminal statuses (DELIVERED, CANCELLED) and unknown values.
func Next(s Status) (Status, bool) {
	n, ok := forward[s]
	return n, ok
}

// IsTerminal reports whether s admits no further transitions.
func IsTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether from → to is a legal transition. The only
// legal moves are the single forward step and cancellation of a non-terminal
// order. Cancellation is never offered by the board; it is still legal here
// so the explicit cancel path can use the same check.
func CanTransition(from, to Status) bool {
	if IsTerminal(from) {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	n, ok := forward[from]
	return ok && n == to
}

// ReadyBlocked reports whether automatic advancement to READY is held back
// by tracked line items that still lack a bound inventory unit. Advisory
// only: it guards the linking flow's auto-advance, never a manual move.
func ReadyBlocked(unlinkedTracked int) bool {
	return unlinkedTracked > 0
}

// Columns lists the statuses the kanban board renders as columns, in display
// order. CANCELLED is intentionally absent: it is representable but never a
// drop target.
func Columns() []Status {
	return []Status{StatusReceived, StatusPreparing, StatusReady, StatusDelivered}
}
