package auction

import (
	"fmt"
	"sort"
	"sync"
)

// Store owns the auction table. All reads return copies and the only
// mutation path is Transition, so callers cannot bypass the state
// machine. Safe for the HTTP surface and the lifecycle tick to share.
type Store struct {
	mu       sync.RWMutex
	auctions map[string]*Auction
}

// NewStore constructs an empty auction store.
func NewStore() *Store {
	return &Store{auctions: make(map[string]*Auction)}
}

// Create adds a pending auction. The window must be non-degenerate and
// the id unused.
func (s *Store) Create(a Auction) (Auction, error) {
	if a.ID == "" {
		return Auction{}, fmt.Errorf("create auction: empty id")
	}
	if !a.End.After(a.Start) {
		return Auction{}, ErrInvalidWindow
	}
	a.Status = StatusPending

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.auctions[a.ID]; exists {
		return Auction{}, ErrDuplicateID
	}
	stored := a
	s.auctions[a.ID] = &stored
	return a, nil
}

// Get returns a copy of the auction.
func (s *Store) Get(id string) (Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return Auction{}, ErrNotFound
	}
	return *a, nil
}

// ListActive returns copies of all active auctions, ordered by id.
func (s *Store) ListActive() []Auction {
	return s.list(func(a *Auction) bool { return a.Status == StatusActive })
}

// Snapshot returns copies of every auction, ordered by id.
func (s *Store) Snapshot() []Auction {
	return s.list(func(*Auction) bool { return true })
}

func (s *Store) list(keep func(*Auction) bool) []Auction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Transition atomically moves an auction from one status to the next.
// It fails unless the auction currently holds `from` and the step
// follows the pending -> active -> closed order, so closed can never be
// reopened and no state is skipped.
func (s *Store) Transition(id string, from, to Status) (Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return Auction{}, ErrNotFound
	}
	if a.Status != from || !validTransition(from, to) {
		return Auction{}, fmt.Errorf("%w: %s -> %s (auction %s is %s)",
			ErrInvalidTransition, from, to, id, a.Status)
	}
	a.Status = to
	return *a, nil
}
