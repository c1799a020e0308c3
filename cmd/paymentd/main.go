package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gavel/internal/broker"
	"gavel/internal/config"
	"gavel/internal/event"
	"gavel/internal/httpapi"
	"gavel/internal/logging"
	"gavel/internal/observability"
	"gavel/internal/payment"
)

func main() {
	_ = godotenv.Load()
	log := logging.New("paymentd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.WithError(err).Fatal("paymentd failed")
	}
}

func run(ctx context.Context) error {
	log := logging.New("paymentd")

	redisCfg, err := config.LoadRedis()
	if err != nil {
		return err
	}
	brokerCfg, err := config.LoadBroker()
	if err != nil {
		return err
	}
	payCfg, err := config.LoadPayment()
	if err != nil {
		return err
	}
	httpCfg, err := config.LoadHTTP("PAYMENTD_ADDR", ":8081")
	if err != nil {
		return err
	}

	client, err := config.NewRedisClient(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	store, cleanup, err := buildStore(ctx, payCfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer cleanup()

	bus := broker.NewRedis(client, broker.RedisConfig{
		Group:        "paymentd",
		Block:        brokerCfg.Block,
		StreamMaxLen: brokerCfg.StreamMaxLen,
	}, log)

	metrics := observability.NewMetrics()
	bus.Observe = metrics.ObserveMessage
	metricsSrv := observability.StartServer(config.LoadMetrics().Addr, metrics, log)
	defer shutdownServer(metricsSrv)

	gateway := payment.NewReliableGateway(
		payment.NewHTTPGateway(payCfg.GatewayURL, payCfg.RequestTimeout),
		payment.NewCircuitBreaker(payment.CircuitBreakerConfig{
			MaxFailures:  payCfg.BreakerMaxFailures,
			ResetTimeout: payCfg.BreakerResetTimeout,
		}),
		payment.RetryPolicy{
			MaxAttempts: payCfg.RetryMaxAttempts,
			BaseDelay:   payCfg.RetryBaseDelay,
			MaxDelay:    payCfg.RetryMaxDelay,
		},
	)

	coord := payment.NewCoordinator(store, gateway, bus, payCfg.CallbackURL, nil, log)
	bus.Handle(event.KeyWinnerDetermined, coord.HandleWinnerDetermined)

	sweeper := payment.NewSweeper(store, bus, payCfg.SagaTTL, payCfg.SweepInterval, nil, log)
	go func() {
		if err := sweeper.Run(ctx); err != nil {
			log.WithError(err).Error("sweeper stopped")
		}
	}()

	webhook := httpapi.NewWebhook(coord, log)
	srv := &http.Server{Addr: httpCfg.Addr, Handler: webhook.Router()}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpCfg.Addr).Info("webhook listening")
		errCh <- srv.ListenAndServe()
	}()

	consumeErr := make(chan error, 1)
	go func() {
		log.Info("paymentd consuming")
		consumeErr <- bus.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return <-consumeErr
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-consumeErr:
		return err
	}
}

// buildStore opens the Postgres-backed store when DATABASE_URL is set
// and falls back to the in-memory store otherwise.
func buildStore(ctx context.Context, databaseURL string, log *logrus.Entry) (payment.Store, func(), error) {
	if databaseURL == "" {
		log.Info("DATABASE_URL not set, using in-memory transaction store")
		return payment.NewMemoryStore(nil), func() {}, nil
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, err
	}

	store, err := payment.NewPostgresStoreWithSchema(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("using postgres transaction store")
	return store, func() { db.Close() }, nil
}

func shutdownServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
