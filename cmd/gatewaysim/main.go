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

	"gavel/internal/config"
	"gavel/internal/httpapi"
	"gavel/internal/logging"
)

func main() {
	_ = godotenv.Load()
	log := logging.New("gatewaysim")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.WithError(err).Fatal("gatewaysim failed")
	}
}

func run(ctx context.Context) error {
	log := logging.New("gatewaysim")

	cfg, err := config.LoadGatewaySim()
	if err != nil {
		return err
	}

	sim := httpapi.NewGatewaySim(cfg.WebhookURL, cfg.AutoNotifyDelay, cfg.ApproveRate, log)
	srv := &http.Server{Addr: cfg.Addr, Handler: sim.Router()}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("gateway simulator listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
