package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChargeRequest is the synchronous request sent to the external payment
// gateway for a winner.
type ChargeRequest struct {
	AuctionID   string  `json:"leilao_id"`
	WinnerID    string  `json:"vencedor_id"`
	Amount      float64 `json:"valor"`
	CallbackURL string  `json:"webhook_url"`
}

// Charge is the gateway's synchronous answer: its transaction id and
// the payment link for the winner.
type Charge struct {
	TransactionID string `json:"transaction_id"`
	Link          string `json:"payment_link"`
}

// GatewayClient requests a payment link from the external gateway.
type GatewayClient interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
}

// HTTPGateway calls the gateway over HTTP with a bounded timeout; the
// call never blocks the saga indefinitely.
type HTTPGateway struct {
	url    string
	client *http.Client
}

// NewHTTPGateway constructs a client for the gateway's charge endpoint.
func NewHTTPGateway(url string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGateway{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Charge{}, fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Charge{}, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Charge{}, fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Charge{}, fmt.Errorf("payment gateway returned %d: %s", resp.StatusCode, snippet)
	}

	var charge Charge
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return Charge{}, fmt.Errorf("decode gateway response: %w", err)
	}
	if charge.TransactionID == "" || charge.Link == "" {
		return Charge{}, fmt.Errorf("gateway response missing transaction id or link")
	}
	return charge, nil
}
