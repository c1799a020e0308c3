package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gavel/internal/auction"
	"gavel/internal/broker"
	"gavel/internal/config"
	"gavel/internal/httpapi"
	"gavel/internal/lifecycle"
	"gavel/internal/logging"
	"gavel/internal/notify"
	"gavel/internal/observability"
	"gavel/internal/sign"
)

func main() {
	_ = godotenv.Load()
	log := logging.New("auctioneer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.WithError(err).Fatal("auctioneer failed")
	}
}

func run(ctx context.Context) error {
	log := logging.New("auctioneer")

	redisCfg, err := config.LoadRedis()
	if err != nil {
		return err
	}
	brokerCfg, err := config.LoadBroker()
	if err != nil {
		return err
	}
	lifeCfg, err := config.LoadLifecycle()
	if err != nil {
		return err
	}
	httpCfg, err := config.LoadHTTP("AUCTIONEER_ADDR", ":8080")
	if err != nil {
		return err
	}

	client, err := config.NewRedisClient(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	bus := broker.NewRedis(client, broker.RedisConfig{
		Group:        "auctioneer",
		Block:        brokerCfg.Block,
		StreamMaxLen: brokerCfg.StreamMaxLen,
	}, log)

	store := auction.NewStore()
	manager := lifecycle.NewManager(store, bus, bus, lifecycle.Config{Tick: lifeCfg.Tick}, log)

	keys := sign.NewRedisRegistry(client)
	hub := notify.NewHub(bus, log)
	api := httpapi.NewAPI(store, bus, keys, hub, log)

	metrics := observability.NewMetrics()
	metricsSrv := observability.StartServer(config.LoadMetrics().Addr, metrics, log)

	srv := &http.Server{Addr: httpCfg.Addr, Handler: api.Router()}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpCfg.Addr).Info("http api listening")
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		if err := manager.Run(ctx); err != nil {
			log.WithError(err).Error("lifecycle loop stopped")
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
