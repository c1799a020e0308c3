// Package notify re-publishes validated-bid and winner events on
// per-auction topics, so a watcher can follow exactly one auction, and
// bridges those topics to websocket clients.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gavel/internal/broker"
	"gavel/internal/event"
)

// Fanout turns queue events into per-auction topic notifications.
// Delivery on the topic side is at-most-once with no replay; watchers
// needing history poll the auction snapshots instead.
type Fanout struct {
	topics broker.Topics
	now    func() time.Time
	log    *logrus.Entry
}

// NewFanout wires a fanout over the broker's topic side.
func NewFanout(topics broker.Topics, now func() time.Time, log *logrus.Entry) *Fanout {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Fanout{topics: topics, now: now, log: log}
}

// HandleBidValidated re-publishes an accepted bid on its auction topic.
func (f *Fanout) HandleBidValidated(ctx context.Context, msg broker.Message) error {
	var ev event.BidValidated
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return fmt.Errorf("decode bid validated: %w", err)
	}
	return f.broadcast(ctx, ev.AuctionID, event.Notification{
		Type:      event.NotificationNewBid,
		AuctionID: ev.AuctionID,
		BidderID:  ev.BidderID,
		Amount:    ev.Amount,
		Timestamp: f.now(),
	})
}

// HandleWinnerDetermined re-publishes the winner on its auction topic.
func (f *Fanout) HandleWinnerDetermined(ctx context.Context, msg broker.Message) error {
	var ev event.WinnerDetermined
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return fmt.Errorf("decode winner determined: %w", err)
	}
	return f.broadcast(ctx, ev.AuctionID, event.Notification{
		Type:      event.NotificationWinner,
		AuctionID: ev.AuctionID,
		WinnerID:  ev.WinnerID,
		Amount:    ev.FinalAmount,
		Timestamp: f.now(),
	})
}

func (f *Fanout) broadcast(ctx context.Context, auctionID string, n event.Notification) error {
	if auctionID == "" {
		return fmt.Errorf("notification without auction id")
	}
	if err := f.topics.Broadcast(ctx, event.TopicForAuction(auctionID), n); err != nil {
		return err
	}
	f.log.WithFields(logrus.Fields{
		"auction_id": auctionID,
		"type":       n.Type,
	}).Debug("notification fanned out")
	return nil
}
