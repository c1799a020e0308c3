package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gavel/internal/broker"
	"gavel/internal/event"
)

// Coordinator runs the payment saga. A winner event creates at most one
// transaction per auction, the gateway call issues the link, and the
// asynchronous webhook settles the outcome.
type Coordinator struct {
	store       Store
	gateway     GatewayClient
	pub         broker.Publisher
	callbackURL string
	now         func() time.Time
	log         *logrus.Entry
}

// NewCoordinator wires a coordinator. callbackURL is where the gateway
// must post the payment outcome.
func NewCoordinator(store Store, gateway GatewayClient, pub broker.Publisher, callbackURL string, now func() time.Time, log *logrus.Entry) *Coordinator {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Coordinator{
		store:       store,
		gateway:     gateway,
		pub:         pub,
		callbackURL: callbackURL,
		now:         now,
		log:         log,
	}
}

// HandleWinnerDetermined starts the saga for one winner. Duplicate
// deliveries of the same auction's winner are ignored via the store's
// idempotent create. A gateway failure (after retries) leaves the
// transaction in requested and is logged, never fatal.
func (c *Coordinator) HandleWinnerDetermined(ctx context.Context, msg broker.Message) error {
	var ev event.WinnerDetermined
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return fmt.Errorf("decode winner determined: %w", err)
	}

	tx, created, err := c.store.Create(ctx, ev.AuctionID, ev.WinnerID, ev.FinalAmount)
	if err != nil {
		return fmt.Errorf("create transaction for auction %s: %w", ev.AuctionID, err)
	}
	if !created {
		c.log.WithFields(logrus.Fields{
			"auction_id": ev.AuctionID,
			"status":     tx.Status,
		}).Warn("duplicate winner event ignored")
		return nil
	}

	charge, err := c.gateway.CreateCharge(ctx, ChargeRequest{
		AuctionID:   ev.AuctionID,
		WinnerID:    ev.WinnerID,
		Amount:      ev.FinalAmount,
		CallbackURL: c.callbackURL,
	})
	if err != nil {
		c.log.WithError(err).WithField("auction_id", ev.AuctionID).
			Error("gateway charge failed, transaction stays requested")
		return nil
	}

	tx, err = c.store.AttachLink(ctx, ev.AuctionID, charge.TransactionID, charge.Link)
	if err != nil {
		return fmt.Errorf("attach link for auction %s: %w", ev.AuctionID, err)
	}

	c.log.WithFields(logrus.Fields{
		"auction_id":     tx.AuctionID,
		"transaction_id": tx.ID,
	}).Info("payment link issued")

	if err := c.pub.Publish(ctx, event.KeyPaymentLinkIssued, event.PaymentLinkIssued{
		AuctionID:     tx.AuctionID,
		WinnerID:      tx.WinnerID,
		TransactionID: tx.ID,
		Link:          tx.Link,
		Timestamp:     c.now(),
	}); err != nil {
		c.log.WithError(err).Error("publish payment link failed")
	}
	return nil
}

// Callback is the payload the gateway posts to the webhook.
type Callback struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// HandleCallback settles the transaction named by the gateway's
// asynchronous callback and publishes the payment status event.
func (c *Coordinator) HandleCallback(ctx context.Context, cb Callback) (Transaction, error) {
	status, err := parseOutcome(cb.Status)
	if err != nil {
		return Transaction{}, err
	}

	tx, err := c.store.Resolve(ctx, cb.TransactionID, status, "")
	if err != nil {
		return Transaction{}, fmt.Errorf("resolve transaction %s: %w", cb.TransactionID, err)
	}

	c.log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"auction_id":     tx.AuctionID,
		"status":         tx.Status,
	}).Info("payment settled")

	if err := c.pub.Publish(ctx, event.KeyPaymentStatus, event.PaymentStatus{
		TransactionID: tx.ID,
		AuctionID:     tx.AuctionID,
		WinnerID:      tx.WinnerID,
		Status:        string(tx.Status),
		Timestamp:     c.now(),
	}); err != nil {
		c.log.WithError(err).Error("publish payment status failed")
	}
	return tx, nil
}

// ErrUnknownOutcome reports a callback status outside the protocol.
var ErrUnknownOutcome = errors.New("unknown payment outcome")

func parseOutcome(raw string) (Status, error) {
	switch raw {
	case "approved", "aprovado":
		return StatusApproved, nil
	case "declined", "recusado":
		return StatusDeclined, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOutcome, raw)
	}
}
