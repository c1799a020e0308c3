// Package lifecycle drives auctions through their scheduled
// transitions: a coarse periodic tick activates pending auctions whose
// window has opened and closes active ones whose window has passed.
package lifecycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"gavel/internal/auction"
	"gavel/internal/broker"
	"gavel/internal/event"
)

// Config controls the tick loop.
type Config struct {
	// Tick is the evaluation interval. One second is enough; the
	// protocol only promises transitions "eventually within one tick".
	Tick time.Duration
	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Manager owns the lifecycle transitions and the events they emit.
type Manager struct {
	store  *auction.Store
	queue  broker.Publisher
	topics broker.Topics
	tick   time.Duration
	now    func() time.Time
	log    *logrus.Entry
}

// NewManager wires a manager over the shared auction store.
func NewManager(store *auction.Store, queue broker.Publisher, topics broker.Topics, cfg Config, log *logrus.Entry) *Manager {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Manager{
		store:  store,
		queue:  queue,
		topics: topics,
		tick:   cfg.Tick,
		now:    cfg.Now,
		log:    log,
	}
}

// Run evaluates all auctions every tick until the context ends.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Evaluate(ctx)
		}
	}
}

// Evaluate applies due transitions once. An auction whose whole window
// has already elapsed is activated and then closed within this single
// pass, in that order, so the started event is never skipped.
func (m *Manager) Evaluate(ctx context.Context) {
	now := m.now()
	for _, a := range m.store.Snapshot() {
		if a.Status == auction.StatusPending && !now.Before(a.Start) {
			activated, err := m.store.Transition(a.ID, auction.StatusPending, auction.StatusActive)
			if err != nil {
				m.log.WithError(err).WithField("auction_id", a.ID).Warn("activate failed")
				continue
			}
			a = activated
			m.log.WithField("auction_id", a.ID).Info("auction started")
			if err := m.topics.Broadcast(ctx, event.TopicAuctionStarted, event.AuctionStarted{
				ID:          a.ID,
				Description: a.Description,
				Start:       a.Start,
				End:         a.End,
			}); err != nil {
				m.log.WithError(err).WithField("auction_id", a.ID).Error("broadcast started failed")
			}
		}

		if a.Status == auction.StatusActive && !now.Before(a.End) {
			if _, err := m.store.Transition(a.ID, auction.StatusActive, auction.StatusClosed); err != nil {
				m.log.WithError(err).WithField("auction_id", a.ID).Warn("close failed")
				continue
			}
			m.log.WithField("auction_id", a.ID).Info("auction closed")
			if err := m.queue.Publish(ctx, event.KeyAuctionClosed, event.AuctionClosed{
				ID:        a.ID,
				Timestamp: now,
			}); err != nil {
				m.log.WithError(err).WithField("auction_id", a.ID).Error("publish closed failed")
			}
		}
	}
}
