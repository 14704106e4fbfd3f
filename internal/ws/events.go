package ws

import (
	"encoding/json"
	"time"

	"github.com/fornada-pos/api/internal/board"
	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/fornada-pos/api/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types pushed to connected board screens.
const (
	EventOrderCreated   = "order.created"
	EventOrderReady     = "order.ready"
	EventOrderDelivered = "order.delivered"
	EventMoveFailed     = "order.move_failed"
	EventBoardUpdated   = "board.updated"
)

// orderPayload is the wire shape of an order event.
type orderPayload struct {
	ID            uuid.UUID       `json:"id"`
	DisplayNumber int32           `json:"display_number"`
	Status        string          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ScheduledAt   *time.Time      `json:"scheduled_at,omitempty"`
	IsDelivery    bool            `json:"is_delivery"`
	ClientName    string          `json:"client_name,omitempty"`
}

// boardColumnPayload is one lane of a pushed board snapshot.
type boardColumnPayload struct {
	Status string             `json:"status"`
	Cards  []boardCardPayload `json:"cards"`
}

type boardCardPayload struct {
	Order            orderPayload `json:"order"`
	CountdownSeconds *int64       `json:"countdown_seconds,omitempty"`
	Late             bool         `json:"late"`
}

// moveFailedPayload carries a rejected board move back to the screens.
type moveFailedPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	Target  string    `json:"target"`
	Error   string    `json:"error"`
}

// Notifier bridges order events onto the hub. It satisfies the notifier
// interfaces of the service and board packages.
type Notifier struct {
	hub *Hub
}

// NewNotifier wraps a hub.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) OrderCreated(o store.Order) { n.push(EventOrderCreated, o) }

func (n *Notifier) OrderReady(o store.Order) { n.push(EventOrderReady, o) }

func (n *Notifier) OrderDelivered(o store.Order) { n.push(EventOrderDelivered, o) }

func (n *Notifier) MoveFailed(id uuid.UUID, target lifecycle.Status, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	payload, err := json.Marshal(moveFailedPayload{OrderID: id, Target: string(target), Error: msg})
	if err != nil {
		return
	}
	n.hub.Broadcast(Event{Type: EventMoveFailed, Payload: payload})
}

// BoardRefreshed pushes a rebuilt column snapshot, keeping the countdown and
// late annotations on every connected screen current between moves.
func (n *Notifier) BoardRefreshed(cols []board.Column) {
	out := make([]boardColumnPayload, len(cols))
	for i, col := range cols {
		cards := make([]boardCardPayload, len(col.Cards))
		for j, card := range col.Cards {
			cards[j] = boardCardPayload{Order: toOrderPayload(card.Order), Late: card.Late}
			if card.Countdown != nil {
				secs := int64(card.Countdown.Seconds())
				cards[j].CountdownSeconds = &secs
			}
		}
		out[i] = boardColumnPayload{Status: string(col.Status), Cards: cards}
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return
	}
	n.hub.Broadcast(Event{Type: EventBoardUpdated, Payload: payload})
}

func (n *Notifier) push(eventType string, o store.Order) {
	payload, err := json.Marshal(toOrderPayload(o))
	if err != nil {
		return
	}
	n.hub.Broadcast(Event{Type: eventType, Payload: payload})
}

func toOrderPayload(o store.Order) orderPayload {
	p := orderPayload{
		ID:            o.ID,
		DisplayNumber: o.DisplayNumber,
		Status:        string(o.Status),
		TotalAmount:   o.TotalAmount,
		ScheduledAt:   o.ScheduledAt,
		IsDelivery:    o.IsDelivery,
	}
	if o.Client != nil {
		p.ClientName = o.Client.Name
	}
	return p
}
