package auction

import (
	"errors"
	"testing"
	"time"
)

func testWindow() (time.Time, time.Time) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return start, start.Add(time.Minute)
}

func TestStore_CreateForcesPending(t *testing.T) {
	t.Parallel()

	start, end := testWindow()
	store := NewStore()

	created, err := store.Create(Auction{ID: "a1", Start: start, End: end, Status: StatusActive})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}
}

func TestStore_CreateRejectsBadInput(t *testing.T) {
	t.Parallel()

	start, end := testWindow()
	store := NewStore()

	if _, err := store.Create(Auction{ID: "", Start: start, End: end}); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if _, err := store.Create(Auction{ID: "a1", Start: end, End: start}); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	if _, err := store.Create(Auction{ID: "a1", Start: start, End: start}); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow for zero-length window, got %v", err)
	}

	if _, err := store.Create(Auction{ID: "a1", Start: start, End: end}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(Auction{ID: "a1", Start: start, End: end}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestStore_TransitionFollowsStateMachine(t *testing.T) {
	t.Parallel()

	start, end := testWindow()
	store := NewStore()
	if _, err := store.Create(Auction{ID: "a1", Start: start, End: end}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Transition("a1", StatusPending, StatusClosed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected skip to be rejected, got %v", err)
	}

	a, err := store.Transition("a1", StatusPending, StatusActive)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if a.Status != StatusActive {
		t.Fatalf("expected active, got %s", a.Status)
	}

	if _, err := store.Transition("a1", StatusPending, StatusActive); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected stale transition to be rejected, got %v", err)
	}

	a, err = store.Transition("a1", StatusActive, StatusClosed)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.Status != StatusClosed {
		t.Fatalf("expected closed, got %s", a.Status)
	}

	if _, err := store.Transition("a1", StatusClosed, StatusActive); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("closed must never reopen, got %v", err)
	}
	if _, err := store.Transition("missing", StatusPending, StatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListActiveFiltersAndSorts(t *testing.T) {
	t.Parallel()

	start, end := testWindow()
	store := NewStore()
	for _, id := range []string{"b", "a", "c"} {
		if _, err := store.Create(Auction{ID: id, Start: start, End: end}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := store.Transition("b", StatusPending, StatusActive); err != nil {
		t.Fatalf("activate b: %v", err)
	}
	if _, err := store.Transition("a", StatusPending, StatusActive); err != nil {
		t.Fatalf("activate a: %v", err)
	}

	active := store.ListActive()
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "b" {
		t.Fatalf("unexpected active list: %+v", active)
	}
	if snap := store.Snapshot(); len(snap) != 3 {
		t.Fatalf("expected full snapshot, got %+v", snap)
	}
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	t.Parallel()

	start, end := testWindow()
	store := NewStore()
	if _, err := store.Create(Auction{ID: "a1", Start: start, End: end}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get("a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Status = StatusClosed

	again, _ := store.Get("a1")
	if again.Status != StatusPending {
		t.Fatalf("mutating a read copy must not touch the store, got %s", again.Status)
	}
}
