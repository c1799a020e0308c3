package event

import "time"

// Routing keys for the direct (queue) side of the broker. The names are
// kept from the original wire protocol so mixed deployments stay
// compatible.
const (
	KeyBidSubmitted      = "lance_realizado"
	KeyBidValidated      = "lance_validado"
	KeyBidRejected       = "lance_invalidado"
	KeyAuctionClosed     = "leilao_finalizado"
	KeyWinnerDetermined  = "leilao_vencedor"
	KeyPaymentLinkIssued = "link_pagamento"
	KeyPaymentStatus     = "status_pagamento"
)

// TopicAuctionStarted is the fanout topic every participant listens on.
const TopicAuctionStarted = "leilao_iniciado"

// TopicForAuction returns the per-auction notification topic.
func TopicForAuction(auctionID string) string {
	return "leilao_" + auctionID
}

// Rejection reasons carried by BidRejected.
const (
	ReasonAuctionNotActive = "auction_not_active"
	ReasonInvalidSignature = "invalid_signature"
	ReasonValueTooLow      = "value_too_low"
)

// AuctionStarted announces a newly active auction to all participants.
type AuctionStarted struct {
	ID          string    `json:"id"`
	Description string    `json:"descricao"`
	Start       time.Time `json:"inicio"`
	End         time.Time `json:"fim"`
}

// AuctionClosed announces the end of an auction's bidding window.
type AuctionClosed struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// BidSubmitted is the signed bid as published by a bidder. Signature is
// a base64 RSA signature over the canonical payload bytes.
type BidSubmitted struct {
	AuctionID string    `json:"leilao_id"`
	BidderID  string    `json:"user_id"`
	Amount    float64   `json:"valor"`
	Timestamp time.Time `json:"timestamp"`
	Signature string    `json:"assinatura"`
}

// BidValidated is an accepted bid.
type BidValidated struct {
	AuctionID string    `json:"leilao_id"`
	BidderID  string    `json:"user_id"`
	Amount    float64   `json:"valor"`
	Timestamp time.Time `json:"timestamp"`
}

// BidRejected reports a bid that failed validation, with a reason code.
type BidRejected struct {
	AuctionID string    `json:"leilao_id"`
	BidderID  string    `json:"user_id"`
	Amount    float64   `json:"valor"`
	Reason    string    `json:"motivo"`
	Timestamp time.Time `json:"timestamp"`
}

// WinnerDetermined carries the leader bid at auction closure.
type WinnerDetermined struct {
	AuctionID   string    `json:"leilao_id"`
	WinnerID    string    `json:"vencedor_id"`
	FinalAmount float64   `json:"valor_final"`
	Timestamp   time.Time `json:"timestamp"`
}

// PaymentLinkIssued is published once the external gateway accepted the
// charge request.
type PaymentLinkIssued struct {
	AuctionID     string    `json:"leilao_id"`
	WinnerID      string    `json:"vencedor_id"`
	TransactionID string    `json:"transaction_id"`
	Link          string    `json:"payment_link"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentStatus is the reconciled outcome of a payment transaction.
type PaymentStatus struct {
	TransactionID string    `json:"transaction_id"`
	AuctionID     string    `json:"leilao_id"`
	WinnerID      string    `json:"vencedor_id"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// Notification types re-published on per-auction topics.
const (
	NotificationNewBid = "novo_lance"
	NotificationWinner = "leilao_vencedor"
)

// Notification is the per-auction fanout payload watchers receive.
type Notification struct {
	Type      string    `json:"tipo"`
	AuctionID string    `json:"leilao_id"`
	BidderID  string    `json:"user_id,omitempty"`
	WinnerID  string    `json:"vencedor_id,omitempty"`
	Amount    float64   `json:"valor"`
	Timestamp time.Time `json:"timestamp"`
}
