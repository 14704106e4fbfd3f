package ws

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fornada-pos/api/internal/board"
	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/fornada-pos/api/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		send: make(chan []byte, 256),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if !hub.clients[client] {
		t.Fatal("client not registered")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.clients[client] {
		t.Fatal("client still registered after unregister")
	}
	if _, ok := <-client.send; ok {
		t.Fatal("send channel should be closed after unregister")
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := mockClient(hub)
	client2 := mockClient(hub)
	client3 := mockClient(hub)

	hub.register <- client1
	hub.register <- client2
	hub.register <- client3
	time.Sleep(10 * time.Millisecond)

	testPayload := json.RawMessage(`{"display_number":17}`)
	hub.Broadcast(Event{Type: EventOrderReady, Payload: testPayload})

	clients := []*Client{client1, client2, client3}
	for i, client := range clients {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Type != EventOrderReady {
				t.Errorf("client%d: expected type %q, got %q", i+1, EventOrderReady, received.Type)
			}
			if string(received.Payload) != string(testPayload) {
				t.Errorf("client%d: payload = %s, want %s", i+1, received.Payload, testPayload)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}
}

func TestNotifierOrderEvents(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	notifier := NewNotifier(hub)
	scheduled := time.Date(2026, 3, 14, 16, 30, 0, 0, time.Local)
	order := store.Order{
		ID:            uuid.New(),
		DisplayNumber: 17,
		Status:        lifecycle.StatusReady,
		TotalAmount:   decimal.RequireFromString("57.00"),
		ScheduledAt:   &scheduled,
		Client:        &store.ClientSummary{ID: uuid.New(), Name: "Dona Marta"},
	}
	notifier.OrderReady(order)

	select {
	case msg := <-client.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if received.Type != EventOrderReady {
			t.Errorf("type = %q, want %q", received.Type, EventOrderReady)
		}
		var p orderPayload
		if err := json.Unmarshal(received.Payload, &p); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if p.DisplayNumber != 17 || p.Status != "READY" || p.ClientName != "Dona Marta" {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client did not receive ready event")
	}
}

func TestNotifierMoveFailed(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	notifier := NewNotifier(hub)
	orderID := uuid.New()
	notifier.MoveFailed(orderID, lifecycle.StatusReady, errors.New("order not found"))

	select {
	case msg := <-client.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if received.Type != EventMoveFailed {
			t.Errorf("type = %q, want %q", received.Type, EventMoveFailed)
		}
		var p moveFailedPayload
		if err := json.Unmarshal(received.Payload, &p); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if p.OrderID != orderID || p.Target != "READY" || p.Error != "order not found" {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client did not receive move failed event")
	}
}

func TestNotifierBoardRefreshed(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	notifier := NewNotifier(hub)
	countdown := 12 * time.Minute
	cols := []board.Column{
		{Status: lifecycle.StatusReceived, Cards: []board.Card{
			{Order: store.Order{ID: uuid.New(), DisplayNumber: 3, Status: lifecycle.StatusReceived,
				TotalAmount: decimal.RequireFromString("28.50")}, Countdown: &countdown},
		}},
		{Status: lifecycle.StatusPreparing},
		{Status: lifecycle.StatusReady},
		{Status: lifecycle.StatusDelivered},
	}
	notifier.BoardRefreshed(cols)

	select {
	case msg := <-client.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if received.Type != EventBoardUpdated {
			t.Errorf("type = %q, want %q", received.Type, EventBoardUpdated)
		}
		var p []boardColumnPayload
		if err := json.Unmarshal(received.Payload, &p); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if len(p) != 4 || p[0].Status != "RECEIVED" || len(p[0].Cards) != 1 {
			t.Fatalf("payload = %+v", p)
		}
		card := p[0].Cards[0]
		if card.Order.DisplayNumber != 3 || card.CountdownSeconds == nil || *card.CountdownSeconds != 720 {
			t.Errorf("card = %+v", card)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client did not receive board update")
	}
}

func TestSlowClientDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// A client whose buffer is already full gets disconnected instead of
	// blocking the hub.
	slow := &Client{hub: hub, send: make(chan []byte)}
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(Event{Type: EventOrderCreated, Payload: json.RawMessage(`{}`)})
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.clients[slow] {
		t.Fatal("slow client should have been dropped")
	}
}
