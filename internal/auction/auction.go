// Package auction holds the auction domain model: the time-boxed sale
// record, its status state machine, and the bid/winner value types.
package auction

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an auction.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
)

// ErrNotFound reports an unknown auction id.
var ErrNotFound = errors.New("auction not found")

// ErrDuplicateID reports a create with an id already in use.
var ErrDuplicateID = errors.New("auction id already exists")

// ErrInvalidWindow reports a window whose end does not follow its start.
var ErrInvalidWindow = errors.New("auction end must be after start")

// ErrInvalidTransition reports a status change outside
// pending -> active -> closed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Auction is a time-boxed sale. It is active for [Start, End): the
// start boundary is inclusive, the end boundary closes it.
type Auction struct {
	ID          string    `json:"id"`
	Description string    `json:"descricao"`
	Start       time.Time `json:"inicio"`
	End         time.Time `json:"fim"`
	Status      Status    `json:"status"`
}

// Bid is an accepted, timestamped value offer for an auction.
type Bid struct {
	AuctionID string    `json:"leilao_id"`
	BidderID  string    `json:"user_id"`
	Amount    float64   `json:"valor"`
	Timestamp time.Time `json:"timestamp"`
}

// WinnerRecord is derived from the leader bid when an auction closes.
type WinnerRecord struct {
	AuctionID   string    `json:"leilao_id"`
	WinnerID    string    `json:"vencedor_id"`
	FinalAmount float64   `json:"valor_final"`
	Timestamp   time.Time `json:"timestamp"`
}

func validTransition(from, to Status) bool {
	switch {
	case from == StatusPending && to == StatusActive:
		return true
	case from == StatusActive && to == StatusClosed:
		return true
	default:
		return false
	}
}
