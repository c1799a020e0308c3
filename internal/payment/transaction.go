// Package payment coordinates the payment saga: a winner event becomes
// an external charge request, the issued link is published, and the
// gateway's asynchronous callback settles the transaction.
package payment

import (
	"context"
	"errors"
	"time"
)

// Status is the saga state of one payment transaction. It only ever
// advances: requested -> link_issued -> approved | declined.
type Status string

const (
	StatusRequested  Status = "requested"
	StatusLinkIssued Status = "link_issued"
	StatusApproved   Status = "approved"
	StatusDeclined   Status = "declined"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDeclined
}

// Transaction tracks one winner's payment. ID is the gateway's
// transaction id and stays empty until the gateway accepts the charge.
type Transaction struct {
	ID        string
	AuctionID string
	WinnerID  string
	Amount    float64
	Status    Status
	Link      string
	Detail    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrTransactionNotFound reports an unknown transaction or auction id.
var ErrTransactionNotFound = errors.New("payment transaction not found")

// ErrTransactionFinalized reports an update against a transaction
// already in a terminal state; settled outcomes are never rolled back.
var ErrTransactionFinalized = errors.New("payment transaction already finalized")

// Store persists payment transactions keyed by auction id, which is the
// saga's idempotency key: at most one transaction per auction.
type Store interface {
	// Create inserts a transaction in requested state. If the auction
	// already has one, the existing transaction is returned with
	// created=false and nothing is written.
	Create(ctx context.Context, auctionID, winnerID string, amount float64) (Transaction, bool, error)
	// AttachLink moves requested -> link_issued, recording the
	// gateway's transaction id and payment link.
	AttachLink(ctx context.Context, auctionID, transactionID, link string) (Transaction, error)
	// Resolve settles a non-terminal transaction by gateway
	// transaction id.
	Resolve(ctx context.Context, transactionID string, status Status, detail string) (Transaction, error)
	// GetByAuction fetches the transaction for an auction.
	GetByAuction(ctx context.Context, auctionID string) (Transaction, error)
	// Expire declines every non-terminal transaction untouched since
	// the cutoff and returns the transactions it settled.
	Expire(ctx context.Context, cutoff time.Time) ([]Transaction, error)
}
