package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"gavel/internal/broker"
	"gavel/internal/config"
	"gavel/internal/event"
	"gavel/internal/logging"
	"gavel/internal/sign"
)

// The bidder is a protocol participant in one binary: it generates a
// keypair, registers the public half, publishes a signed bid, and can
// stay subscribed to the auction's notification topic.
func main() {
	_ = godotenv.Load()
	log := logging.New("bidder")

	auctionID := flag.String("auction", "", "auction to bid on")
	bidderID := flag.String("user", "", "bidder identity (random when empty)")
	amount := flag.Float64("amount", 0, "bid amount")
	watch := flag.Bool("watch", false, "stay subscribed to the auction topic after bidding")
	flag.Parse()

	if *auctionID == "" {
		fmt.Fprintln(os.Stderr, "usage: bidder -auction <id> -amount <value> [-user <id>] [-watch]")
		os.Exit(2)
	}
	if *bidderID == "" {
		*bidderID = "bidder-" + uuid.NewString()[:8]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *auctionID, *bidderID, *amount, *watch); err != nil {
		log.WithError(err).Fatal("bidder failed")
	}
}

func run(ctx context.Context, auctionID, bidderID string, amount float64, watch bool) error {
	log := logging.New("bidder").WithField("user_id", bidderID)

	redisCfg, err := config.LoadRedis()
	if err != nil {
		return err
	}
	client, err := config.NewRedisClient(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	key, err := sign.GenerateKey()
	if err != nil {
		return err
	}
	registry := sign.NewRedisRegistry(client)
	if err := registry.Register(ctx, bidderID, &key.PublicKey); err != nil {
		return err
	}
	log.Info("public key registered")

	ts := time.Now().UTC()
	sig, err := sign.NewSigner(key).SignBid(auctionID, bidderID, amount, ts)
	if err != nil {
		return err
	}

	bus := broker.NewRedis(client, broker.RedisConfig{Group: "bidder"}, log)
	bid := event.BidSubmitted{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		Timestamp: ts,
		Signature: sig,
	}
	if err := bus.Publish(ctx, event.KeyBidSubmitted, bid); err != nil {
		return err
	}
	log.WithField("valor", amount).Info("bid published")

	if !watch {
		return nil
	}

	msgs, stopSub, err := bus.Subscribe(ctx, event.TopicForAuction(auctionID))
	if err != nil {
		return err
	}
	defer stopSub()
	log.Info("watching auction notifications")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			fmt.Println(string(msg.Body))
		}
	}
}
