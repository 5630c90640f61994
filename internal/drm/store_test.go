package drm

import (
	"testing"
)

func TestInMemorySessionStore_GetPut(t *testing.T) {
	store := NewInMemorySessionStore()

	_, ok := store.Get(SessionItemID("missing"))
	if ok {
		t.Error("expected not found for empty store")
	}

	item := &SessionItem{ID: "a", KeySystem: KeySystemWidevine, State: StateAccessGranted}
	store.Put(item)

	got, ok := store.Get("a")
	if !ok || got != item {
		t.Errorf("Get: ok=%v, got %p want %p", ok, got, item)
	}
}

func TestInMemorySessionStore_PutReplacesWithoutDuplicating(t *testing.T) {
	store := NewInMemorySessionStore()
	store.Put(&SessionItem{ID: "a"})
	store.Put(&SessionItem{ID: "b"})
	replacement := &SessionItem{ID: "a", State: StateSessionCreated}
	store.Put(replacement)

	items := store.List()
	if len(items) != 2 {
		t.Fatalf("expected 2 items after replacement, got %d", len(items))
	}
	if items[0] != replacement {
		t.Error("replacement should keep original position")
	}
}

func TestInMemorySessionStore_ActivePointer(t *testing.T) {
	store := NewInMemorySessionStore()

	if _, ok := store.Active(); ok {
		t.Error("empty store should have no active item")
	}

	store.Put(&SessionItem{ID: "a"})
	store.Put(&SessionItem{ID: "b"})
	store.SetActive("b")

	active, ok := store.Active()
	if !ok || active.ID != "b" {
		t.Errorf("Active: ok=%v id=%v, want b", ok, active)
	}

	// The active pointer is explicit, not append order.
	store.SetActive("a")
	active, ok = store.Active()
	if !ok || active.ID != "a" {
		t.Errorf("Active after SetActive(a): ok=%v, got %v", ok, active)
	}
}

func TestInMemorySessionStore_Clear(t *testing.T) {
	store := NewInMemorySessionStore()
	store.Put(&SessionItem{ID: "a"})
	store.SetActive("a")

	store.Clear()

	if len(store.List()) != 0 {
		t.Error("List should be empty after Clear")
	}
	if _, ok := store.Active(); ok {
		t.Error("no active item after Clear")
	}
}

func TestSessionState_ordering(t *testing.T) {
	if !(StateAccessGranted < StateSessionCreated && StateSessionCreated < StateRequestGenerated &&
		StateRequestGenerated < StateLicenseExchanged && StateLicenseExchanged < StateFailed) {
		t.Error("session states must be strictly ordered")
	}
	if StateRequestGenerated.String() != "request-generated" {
		t.Errorf("unexpected state name: %s", StateRequestGenerated)
	}
}
