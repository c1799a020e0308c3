package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gavel/internal/broker"
	"gavel/internal/config"
	"gavel/internal/event"
	"gavel/internal/logging"
	"gavel/internal/notify"
	"gavel/internal/observability"
)

func main() {
	_ = godotenv.Load()
	log := logging.New("notifier")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.WithError(err).Fatal("notifier failed")
	}
}

func run(ctx context.Context) error {
	log := logging.New("notifier")

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
		Group:        "notifier",
		Block:        brokerCfg.Block,
		StreamMaxLen: brokerCfg.StreamMaxLen,
	}, log)

	metrics := observability.NewMetrics()
	bus.Observe = metrics.ObserveMessage
	metricsSrv := observability.StartServer(config.LoadMetrics().Addr, metrics, log)
	defer shutdownServer(metricsSrv)

	fanout := notify.NewFanout(bus, nil, log)
	bus.Handle(event.KeyBidValidated, fanout.HandleBidValidated)
	bus.Handle(event.KeyWinnerDetermined, fanout.HandleWinnerDetermined)

	log.Info("notifier consuming")
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
