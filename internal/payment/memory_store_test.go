package payment

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryStore_CreateIsIdempotentPerAuction(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(newClock().Now)
	ctx := context.Background()

	tx, created, err := store.Create(ctx, "a1", "user-2", 150)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created || tx.Status != StatusRequested || tx.WinnerID != "user-2" {
		t.Fatalf("unexpected first create: created=%v tx=%+v", created, tx)
	}

	again, created, err := store.Create(ctx, "a1", "user-other", 999)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("expected second create to be a no-op")
	}
	if again.WinnerID != "user-2" || again.Amount != 150 {
		t.Fatalf("second create must return the original transaction, got %+v", again)
	}

	if _, _, err := store.Create(ctx, "", "user", 1); err == nil {
		t.Fatalf("expected error for empty auction id")
	}
}

func TestMemoryStore_AttachLinkAdvancesToLinkIssued(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(newClock().Now)
	ctx := context.Background()
	if _, _, err := store.Create(ctx, "a1", "user-2", 150); err != nil {
		t.Fatalf("create: %v", err)
	}

	tx, err := store.AttachLink(ctx, "a1", "tx-1", "https://pay.example.com/tx-1")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if tx.Status != StatusLinkIssued || tx.ID != "tx-1" || tx.Link == "" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	if _, err := store.AttachLink(ctx, "a1", "tx-2", "x"); !errors.Is(err, ErrTransactionFinalized) {
		t.Fatalf("expected second attach to fail, got %v", err)
	}
	if _, err := store.AttachLink(ctx, "missing", "tx-3", "x"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestMemoryStore_ResolveIsMonotonic(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(newClock().Now)
	ctx := context.Background()
	if _, _, err := store.Create(ctx, "a1", "user-2", 150); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AttachLink(ctx, "a1", "tx-1", "link"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	tx, err := store.Resolve(ctx, "tx-1", StatusApproved, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tx.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", tx.Status)
	}

	if _, err := store.Resolve(ctx, "tx-1", StatusDeclined, ""); !errors.Is(err, ErrTransactionFinalized) {
		t.Fatalf("settled outcome must not flip, got %v", err)
	}
	if _, err := store.Resolve(ctx, "tx-unknown", StatusApproved, ""); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	if _, err := store.Resolve(ctx, "tx-1", StatusRequested, ""); err == nil {
		t.Fatalf("expected error for non-terminal target status")
	}
}

func TestMemoryStore_ExpireDeclinesOnlyStaleNonTerminal(t *testing.T) {
	t.Parallel()

	clock := newClock()
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	if _, _, err := store.Create(ctx, "stale", "u1", 10); err != nil {
		t.Fatalf("create stale: %v", err)
	}
	if _, _, err := store.Create(ctx, "settled", "u2", 20); err != nil {
		t.Fatalf("create settled: %v", err)
	}
	if _, err := store.AttachLink(ctx, "settled", "tx-settled", "link"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := store.Resolve(ctx, "tx-settled", StatusApproved, ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	clock.Advance(time.Hour)
	if _, _, err := store.Create(ctx, "fresh", "u3", 30); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	expired, err := store.Expire(ctx, clock.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0].AuctionID != "stale" {
		t.Fatalf("expected only the stale transaction, got %+v", expired)
	}
	if expired[0].Status != StatusDeclined || expired[0].Detail != "expired" {
		t.Fatalf("unexpected expired transaction: %+v", expired[0])
	}

	settled, _ := store.GetByAuction(ctx, "settled")
	if settled.Status != StatusApproved {
		t.Fatalf("terminal transaction must not be touched, got %s", settled.Status)
	}
	fresh, _ := store.GetByAuction(ctx, "fresh")
	if fresh.Status != StatusRequested {
		t.Fatalf("fresh transaction must not be touched, got %s", fresh.Status)
	}
}
