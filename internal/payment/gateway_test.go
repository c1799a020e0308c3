package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPGateway_CreateCharge(t *testing.T) {
	t.Parallel()

	var got ChargeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Charge{TransactionID: "tx-1", Link: "https://pay/tx-1"})
	}))
	t.Cleanup(srv.Close)

	gateway := NewHTTPGateway(srv.URL, time.Second)
	charge, err := gateway.CreateCharge(context.Background(), ChargeRequest{
		AuctionID:   "a1",
		WinnerID:    "user-2",
		Amount:      150,
		CallbackURL: "http://paymentd/webhook",
	})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}
	if charge.TransactionID != "tx-1" || charge.Link != "https://pay/tx-1" {
		t.Fatalf("unexpected charge: %+v", charge)
	}
	if got.AuctionID != "a1" || got.CallbackURL != "http://paymentd/webhook" {
		t.Fatalf("unexpected request payload: %+v", got)
	}
}

func TestHTTPGateway_Non2xxFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busted", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	gateway := NewHTTPGateway(srv.URL, time.Second)
	if _, err := gateway.CreateCharge(context.Background(), ChargeRequest{AuctionID: "a1"}); err == nil {
		t.Fatalf("expected error for 502")
	}
}

func TestHTTPGateway_RejectsIncompleteResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Charge{TransactionID: "tx-1"})
	}))
	t.Cleanup(srv.Close)

	gateway := NewHTTPGateway(srv.URL, time.Second)
	if _, err := gateway.CreateCharge(context.Background(), ChargeRequest{AuctionID: "a1"}); err == nil {
		t.Fatalf("expected error for missing payment link")
	}
}
