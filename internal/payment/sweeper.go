package payment

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"gavel/internal/broker"
	"gavel/internal/event"
)

// Sweeper bounds the saga in time: transactions that sit in requested
// or link_issued longer than the TTL are declined as expired, so no
// transaction waits for a callback forever.
type Sweeper struct {
	store    Store
	pub      broker.Publisher
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	log      *logrus.Entry
}

// NewSweeper constructs a sweeper. interval defaults to one minute.
func NewSweeper(store Store, pub broker.Publisher, ttl, interval time.Duration, now func() time.Time, log *logrus.Entry) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Sweeper{
		store:    store,
		pub:      pub,
		ttl:      ttl,
		interval: interval,
		now:      now,
		log:      log,
	}
}

// Run sweeps periodically until the context ends. A TTL of zero
// disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep expires stale transactions once and publishes their status.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.store.Expire(ctx, s.now().Add(-s.ttl))
	if err != nil {
		s.log.WithError(err).Error("expire sweep failed")
		return
	}
	for _, tx := range expired {
		s.log.WithFields(logrus.Fields{
			"auction_id":     tx.AuctionID,
			"transaction_id": tx.ID,
		}).Warn("payment saga expired")

		if err := s.pub.Publish(ctx, event.KeyPaymentStatus, event.PaymentStatus{
			TransactionID: tx.ID,
			AuctionID:     tx.AuctionID,
			WinnerID:      tx.WinnerID,
			Status:        string(tx.Status),
			Timestamp:     s.now(),
		}); err != nil {
			s.log.WithError(err).Error("publish expired status failed")
		}
	}
}
