// Package bidding implements the bid validation engine: it
// authenticates bids, enforces strictly increasing amounts per auction,
// tracks the current leader and determines the winner at closure.
package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gavel/internal/auction"
	"gavel/internal/broker"
	"gavel/internal/event"
	"gavel/internal/sign"
)

// Config tunes the engine.
type Config struct {
	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

type auctionState struct {
	bids []auction.Bid
}

func (s *auctionState) leader() (auction.Bid, bool) {
	if len(s.bids) == 0 {
		return auction.Bid{}, false
	}
	return s.bids[len(s.bids)-1], true
}

// Engine consumes bid-submitted events in broker delivery order. One
// mutex serializes all state changes; ties between equal bids for the
// same auction are resolved purely by delivery order, never by bidder
// timestamps.
type Engine struct {
	mu     sync.Mutex
	states map[string]*auctionState
	keys   sign.Registry
	pub    broker.Publisher
	now    func() time.Time
	log    *logrus.Entry
}

// NewEngine wires an engine over a key registry and a publisher.
func NewEngine(keys sign.Registry, pub broker.Publisher, cfg Config, log *logrus.Entry) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Engine{
		states: make(map[string]*auctionState),
		keys:   keys,
		pub:    pub,
		now:    cfg.Now,
		log:    log,
	}
}

// HandleAuctionStarted registers an auction as active with an empty bid
// history. Works as a handler for both the fanout subscription and the
// in-process broker.
func (e *Engine) HandleAuctionStarted(ctx context.Context, msg broker.Message) error {
	var ev event.AuctionStarted
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return fmt.Errorf("decode auction started: %w", err)
	}
	if ev.ID == "" {
		return errors.New("auction started without id")
	}

	e.mu.Lock()
	if _, known := e.states[ev.ID]; !known {
		e.states[ev.ID] = &auctionState{}
	}
	e.mu.Unlock()

	e.log.WithField("auction_id", ev.ID).Info("tracking active auction")
	return nil
}

// HandleBidSubmitted validates one bid. Rejections publish a
// bid-rejected event with a reason code and return nil: a bad bid must
// never stop the queue.
func (e *Engine) HandleBidSubmitted(ctx context.Context, msg broker.Message) error {
	var bid event.BidSubmitted
	if err := json.Unmarshal(msg.Body, &bid); err != nil {
		return fmt.Errorf("decode bid: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state, active := e.states[bid.AuctionID]
	if !active {
		e.reject(ctx, bid, event.ReasonAuctionNotActive)
		return nil
	}

	if err := e.verify(ctx, bid); err != nil {
		e.reject(ctx, bid, event.ReasonInvalidSignature)
		return nil
	}

	if leader, ok := state.leader(); ok {
		if bid.Amount <= leader.Amount {
			e.reject(ctx, bid, event.ReasonValueTooLow)
			return nil
		}
	} else if bid.Amount < 0 {
		e.reject(ctx, bid, event.ReasonValueTooLow)
		return nil
	}

	accepted := auction.Bid{
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Timestamp: bid.Timestamp,
	}
	state.bids = append(state.bids, accepted)

	e.log.WithFields(logrus.Fields{
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount,
	}).Info("bid accepted")

	if err := e.pub.Publish(ctx, event.KeyBidValidated, event.BidValidated{
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Timestamp: bid.Timestamp,
	}); err != nil {
		e.log.WithError(err).Error("publish bid validated failed")
	}
	return nil
}

// HandleAuctionClosed freezes the auction's bid history and emits the
// winner from the leader bid. An empty history closes with no sale and
// no winner event.
func (e *Engine) HandleAuctionClosed(ctx context.Context, msg broker.Message) error {
	var ev event.AuctionClosed
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return fmt.Errorf("decode auction closed: %w", err)
	}

	e.mu.Lock()
	state, known := e.states[ev.ID]
	if known {
		delete(e.states, ev.ID)
	}
	e.mu.Unlock()

	if !known {
		e.log.WithField("auction_id", ev.ID).Warn("closed auction was not tracked")
		return nil
	}

	leader, ok := state.leader()
	if !ok {
		e.log.WithField("auction_id", ev.ID).Info("auction closed with no accepted bids")
		return nil
	}

	e.log.WithFields(logrus.Fields{
		"auction_id": ev.ID,
		"winner_id":  leader.BidderID,
		"amount":     leader.Amount,
	}).Info("winner determined")

	if err := e.pub.Publish(ctx, event.KeyWinnerDetermined, event.WinnerDetermined{
		AuctionID:   ev.ID,
		WinnerID:    leader.BidderID,
		FinalAmount: leader.Amount,
		Timestamp:   e.now(),
	}); err != nil {
		e.log.WithError(err).Error("publish winner failed")
	}
	return nil
}

// Leader returns the current highest accepted bid for an auction.
func (e *Engine) Leader(auctionID string) (auction.Bid, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.states[auctionID]
	if !ok {
		return auction.Bid{}, false
	}
	return state.leader()
}

func (e *Engine) verify(ctx context.Context, bid event.BidSubmitted) error {
	pub, err := e.keys.Lookup(ctx, bid.BidderID)
	if err != nil {
		return err
	}
	return sign.VerifyBid(pub, bid.AuctionID, bid.BidderID, bid.Amount, bid.Timestamp, bid.Signature)
}

func (e *Engine) reject(ctx context.Context, bid event.BidSubmitted, reason string) {
	e.log.WithFields(logrus.Fields{
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount,
		"reason":     reason,
	}).Warn("bid rejected")

	if err := e.pub.Publish(ctx, event.KeyBidRejected, event.BidRejected{
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Reason:    reason,
		Timestamp: e.now(),
	}); err != nil {
		e.log.WithError(err).Error("publish bid rejected failed")
	}
}
