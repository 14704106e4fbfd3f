package overlay

import (
	"testing"

	"github.com/fornada-pos/api/internal/lifecycle"
	"github.com/fornada-pos/api/internal/store"
	"github.com/google/uuid"
)

func TestApply_OverridesStatus(t *testing.T) {
	ov := New()
	id := uuid.New()
	ov.Set(id, lifecycle.StatusReady)

	orders := []store.Order{
		{ID: id, Status: lifecycle.StatusReceived},
		{ID: uuid.New(), Status: lifecycle.StatusPreparing},
	}
	got := ov.Apply(orders)

	if got[0].Status != lifecycle.StatusReady {
		t.Errorf("overlaid order: got %s, want READY", got[0].Status)
	}
	if got[1].Status != lifecycle.StatusPreparing {
		t.Errorf("untouched order: got %s, want PREPARING", got[1].Status)
	}
	if orders[0].Status != lifecycle.StatusReceived {
		t.Error("Apply must not mutate the input list")
	}
}

func TestReconcile_RetiresConfirmedEntries(t *testing.T) {
	ov := New()
	id := uuid.New()
	ov.Set(id, lifecycle.StatusReady)

	// Refresh still reports the old status: entry survives.
	ov.Reconcile([]store.Order{{ID: id, Status: lifecycle.StatusReceived}})
	if _, ok := ov.Get(id); !ok {
		t.Fatal("entry must survive until the authoritative status matches")
	}

	// Refresh confirms: entry retired, and stays absent on later refreshes.
	ov.Reconcile([]store.Order{{ID: id, Status: lifecycle.StatusReady}})
	if _, ok := ov.Get(id); ok {
		t.Fatal("entry must be retired once confirmed")
	}
	ov.Reconcile([]store.Order{{ID: id, Status: lifecycle.StatusReady}})
	if ov.Len() != 0 {
		t.Fatal("no entries expected after reconciliation")
	}
}

func TestRetire_DropsEntriesForVanishedOrders(t *testing.T) {
	ov := New()
	gone := uuid.New()
	still := uuid.New()
	ov.Set(gone, lifecycle.StatusDelivered)
	ov.Set(still, lifecycle.StatusReady)

	// The delivered order aged out of the list before any refresh confirmed
	// it; its entry must not linger for the life of the process.
	ov.Retire([]store.Order{{ID: still, Status: lifecycle.StatusPreparing}})

	if _, ok := ov.Get(gone); ok {
		t.Fatal("entry for an absent order must be retired")
	}
	if got, ok := ov.Get(still); !ok || got != lifecycle.StatusReady {
		t.Fatalf("entry for a present order must survive, got %v %v", got, ok)
	}
}

func TestSet_LastWriteWins(t *testing.T) {
	ov := New()
	id := uuid.New()

	// Two intents before either write settles: exactly one entry remains,
	// equal to the second intent's target.
	ov.Set(id, lifecycle.StatusPreparing)
	ov.Set(id, lifecycle.StatusReady)

	if ov.Len() != 1 {
		t.Fatalf("expected exactly 1 entry, got %d", ov.Len())
	}
	got, _ := ov.Get(id)
	if got != lifecycle.StatusReady {
		t.Errorf("pending target: got %s, want READY", got)
	}
}

func TestClearIf_OnlyRemovesMatchingTarget(t *testing.T) {
	ov := New()
	id := uuid.New()
	ov.Set(id, lifecycle.StatusPreparing)

	// A newer intent supersedes; rolling back the stale write must not
	// clobber it.
	ov.Set(id, lifecycle.StatusReady)
	ov.ClearIf(id, lifecycle.StatusPreparing)
	if got, ok := ov.Get(id); !ok || got != lifecycle.StatusReady {
		t.Fatalf("newer entry must survive stale rollback, got %v %v", got, ok)
	}

	ov.ClearIf(id, lifecycle.StatusReady)
	if _, ok := ov.Get(id); ok {
		t.Fatal("matching rollback must remove the entry")
	}
}
