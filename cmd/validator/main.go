package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gavel/internal/bidding"
	"gavel/internal/broker"
	"gavel/internal/config"
	"gavel/internal/event"
	"gavel/internal/logging"
	"gavel/internal/observability"
	"gavel/internal/sign"
)

func main() {
	_ = godotenv.Load()
	log := logging.New("validator")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.WithError(err).Fatal("validator failed")
	}
}

func run(ctx context.Context) error {
	log := logging.New("validator")

	redisCfg, err := config.LoadRedis()
	if err != nil {
		return err
	}
	brokerCfg, err := config.LoadBroker()
	if err != nil {
		return err
	}

	client, err := config.NewRedisClient(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	bus := broker.NewRedis(client, broker.RedisConfig{
		Group:        "validator",
		Block:        brokerCfg.Block,
		StreamMaxLen: brokerCfg.StreamMaxLen,
	}, log)

	metrics := observability.NewMetrics()
	bus.Observe = metrics.ObserveMessage
	metricsSrv := observability.StartServer(config.LoadMetrics().Addr, metrics, log)
	defer shutdownServer(metricsSrv)

	engine := bidding.NewEngine(sign.NewRedisRegistry(client), bus, bidding.Config{}, log)

	// Auction-started announcements arrive on the fanout topic; a
	// validator that is offline at announce time misses them.
	started, stopSub, err := bus.Subscribe(ctx, event.TopicAuctionStarted)
	if err != nil {
		return err
	}
	defer stopSub()
	go func() {
		for msg := range started {
			if err := engine.HandleAuctionStarted(ctx, msg); err != nil {
				log.WithError(err).Error("auction started handling failed")
			}
		}
	}()

	bus.Handle(event.KeyBidSubmitted, engine.HandleBidSubmitted)
	bus.Handle(event.KeyAuctionClosed, engine.HandleAuctionClosed)

	log.Info("validator consuming")
	return bus.Run(ctx)
}

func shutdownServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
