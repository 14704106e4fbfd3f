package lifecycle

import "testing"

func TestNext_LinearChain(t *testing.T) {
	cases := []struct {
		from Status
		want Status
		ok   bool
	}{
		{StatusReceived, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusDelivered, true},
		{StatusDelivered, "", false},
		{StatusCancelled, "", false},
		{Status("BOGUS"), "", false},
	}
	for _, c := range cases {
		got, ok := Next(c.from)
		if ok != c.ok {
			t.Errorf("Next(%s): ok = %v, want %v", c.from, ok, c.ok)
		}
		if ok && got != c.want {
			t.Errorf("Next(%s): got %s, want %s", c.from, got, c.want)
		}
	}
}

func TestNext_ReturnsExactlyOneTarget(t *testing.T) {
	// Every status resolves to exactly one of {PREPARING, READY, DELIVERED}
	// or to none; Next is a pure function of the current status.
	for _, s := range []Status{StatusReceived, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled} {
		first, ok1 := Next(s)
		second, ok2 := Next(s)
		if ok1 != ok2 || first != second {
			t.Fatalf("Next(%s) is not deterministic", s)
		}
		if ok1 {
			switch first {
			case StatusPreparing, StatusReady, StatusDelivered:
			default:
				t.Errorf("Next(%s) = %s, not a forward status", s, first)
			}
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusReceived, StatusPreparing, StatusReady} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}
	for _, s := range []Status{StatusDelivered, StatusCancelled} {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}
}

func TestCanTransition_CancelFromAnyNonTerminal(t *testing.T) {
	for _, s := range []Status{StatusReceived, StatusPreparing, StatusReady} {
		if !CanTransition(s, StatusCancelled) {
			t.Errorf("CanTransition(%s, CANCELLED) = false, want true", s)
		}
	}
	if CanTransition(StatusDelivered, StatusCancelled) {
		t.Error("delivered orders must not be cancellable")
	}
	if CanTransition(StatusCancelled, StatusCancelled) {
		t.Error("cancelled orders must not transition")
	}
}

func TestCanTransition_NoSkipsOrBackward(t *testing.T) {
	if CanTransition(StatusReceived, StatusReady) {
		t.Error("RECEIVED → READY skip must be illegal")
	}
	if CanTransition(StatusReceived, StatusDelivered) {
		t.Error("RECEIVED → DELIVERED skip must be illegal")
	}
	if CanTransition(StatusReady, StatusPreparing) {
		t.Error("backward transition must be illegal")
	}
	if CanTransition(StatusPreparing, StatusPreparing) {
		t.Error("self transition must be illegal")
	}
}

func TestReadyBlocked(t *testing.T) {
	if !ReadyBlocked(1) {
		t.Error("one unlinked tracked item must block auto-advance")
	}
	if !ReadyBlocked(3) {
		t.Error("several unlinked tracked items must block auto-advance")
	}
	if ReadyBlocked(0) {
		t.Error("zero unlinked tracked items must not block auto-advance")
	}
}

func TestColumns_ExcludesCancelled(t *testing.T) {
	for _, s := range Columns() {
		if s == StatusCancelled {
			t.Fatal("CANCELLED must never be a board column")
		}
	}
	if len(Columns()) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(Columns()))
	}
}
