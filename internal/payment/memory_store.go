package payment

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps transactions in a mutex-guarded map. It is the
// default store; the saga does not survive a restart with it, which
// matches the rest of the system's in-memory state.
type MemoryStore struct {
	mu     sync.Mutex
	byAuct map[string]*Transaction
	now    func() time.Time
}

// NewMemoryStore constructs an empty store. now is injectable for
// tests; nil means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		byAuct: make(map[string]*Transaction),
		now:    now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, auctionID, winnerID string, amount float64) (Transaction, bool, error) {
	if auctionID == "" {
		return Transaction{}, false, fmt.Errorf("create transaction: empty auction id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byAuct[auctionID]; ok {
		return *existing, false, nil
	}
	now := s.now()
	tx := &Transaction{
		AuctionID: auctionID,
		WinnerID:  winnerID,
		Amount:    amount,
		Status:    StatusRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byAuct[auctionID] = tx
	return *tx, true, nil
}

func (s *MemoryStore) AttachLink(ctx context.Context, auctionID, transactionID, link string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byAuct[auctionID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	if tx.Status != StatusRequested {
		return Transaction{}, fmt.Errorf("attach link to %s transaction: %w", tx.Status, ErrTransactionFinalized)
	}
	tx.ID = transactionID
	tx.Link = link
	tx.Status = StatusLinkIssued
	tx.UpdatedAt = s.now()
	return *tx, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, transactionID string, status Status, detail string) (Transaction, error) {
	if !status.Terminal() {
		return Transaction{}, fmt.Errorf("resolve to non-terminal status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.findByID(transactionID)
	if tx == nil {
		return Transaction{}, ErrTransactionNotFound
	}
	if tx.Status.Terminal() {
		return Transaction{}, ErrTransactionFinalized
	}
	tx.Status = status
	tx.Detail = detail
	tx.UpdatedAt = s.now()
	return *tx, nil
}

func (s *MemoryStore) GetByAuction(ctx context.Context, auctionID string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byAuct[auctionID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return *tx, nil
}

func (s *MemoryStore) Expire(ctx context.Context, cutoff time.Time) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Transaction
	for _, tx := range s.byAuct {
		if tx.Status.Terminal() || !tx.UpdatedAt.Before(cutoff) {
			continue
		}
		tx.Status = StatusDeclined
		tx.Detail = "expired"
		tx.UpdatedAt = s.now()
		expired = append(expired, *tx)
	}
	return expired, nil
}

func (s *MemoryStore) findByID(transactionID string) *Transaction {
	if transactionID == "" {
		return nil
	}
	for _, tx := range s.byAuct {
		if tx.ID == transactionID {
			return tx
		}
	}
	return nil
}
