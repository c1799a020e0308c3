// Package config reads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig holds broker connection settings shared by all services.
type RedisConfig struct {
	URL                string
	DialTimeout        *time.Duration
	ReadTimeout        *time.Duration
	WriteTimeout       *time.Duration
	PoolSize           *int
	MaxRetries         *int
	HealthcheckTimeout time.Duration
	EnableOTel         bool
}

// BrokerConfig holds per-service consumer settings.
type BrokerConfig struct {
	Block        time.Duration
	StreamMaxLen int64
}

// HTTPConfig holds an HTTP listen address.
type HTTPConfig struct {
	Addr string
}

// MetricsConfig holds the metrics endpoint address; empty disables it.
type MetricsConfig struct {
	Addr string
}

// LifecycleConfig holds the auctioneer's tick interval.
type LifecycleConfig struct {
	Tick time.Duration
}

// PaymentConfig holds the saga coordinator's settings.
type PaymentConfig struct {
	GatewayURL          string
	CallbackURL         string
	RequestTimeout      time.Duration
	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	SagaTTL             time.Duration
	SweepInterval       time.Duration
	DatabaseURL         string
}

// GatewaySimConfig holds the gateway simulator's settings.
type GatewaySimConfig struct {
	Addr string
	// WebhookURL is where outcomes are posted; usually paymentd's
	// /webhook.
	WebhookURL string
	// AutoNotifyDelay, when positive, posts a simulated outcome this
	// long after each charge.
	AutoNotifyDelay time.Duration
	// ApproveRate is the fraction of simulated outcomes that approve.
	ApproveRate float64
}

// LoadRedis reads Redis settings. REDIS_URL is required: a service that
// cannot reach the broker must fail at startup.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{}
	var err error

	if cfg.URL, err = requiredString("REDIS_URL"); err != nil {
		return cfg, err
	}
	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.ReadTimeout, err = optionalDuration("REDIS_READ_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = optionalDuration("REDIS_WRITE_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.PoolSize, err = optionalInt("REDIS_POOL_SIZE"); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = optionalInt("REDIS_MAX_RETRIES"); err != nil {
		return cfg, err
	}
	if cfg.HealthcheckTimeout, err = durationDefault("REDIS_HEALTHCHECK_TIMEOUT", 3*time.Second); err != nil {
		return cfg, err
	}
	if cfg.EnableOTel, err = optionalBool("REDIS_OTEL"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadBroker reads consumer settings with working defaults.
func LoadBroker() (BrokerConfig, error) {
	cfg := BrokerConfig{}
	var err error
	if cfg.Block, err = durationDefault("BROKER_BLOCK", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.StreamMaxLen, err = int64Default("BROKER_STREAM_MAXLEN", 10000); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadHTTP reads a listen address with a per-service default.
func LoadHTTP(name, def string) (HTTPConfig, error) {
	addr := strings.TrimSpace(os.Getenv(name))
	if addr == "" {
		addr = def
	}
	return HTTPConfig{Addr: addr}, nil
}

// LoadMetrics reads the metrics address; unset disables the endpoint.
func LoadMetrics() MetricsConfig {
	return MetricsConfig{Addr: strings.TrimSpace(os.Getenv("METRICS_ADDR"))}
}

// LoadLifecycle reads the tick interval, defaulting to one second.
func LoadLifecycle() (LifecycleConfig, error) {
	tick, err := durationDefault("LIFECYCLE_TICK", time.Second)
	if err != nil {
		return LifecycleConfig{}, err
	}
	return LifecycleConfig{Tick: tick}, nil
}

// LoadPayment reads the saga coordinator settings.
func LoadPayment() (PaymentConfig, error) {
	cfg := PaymentConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
	var err error

	if cfg.GatewayURL, err = requiredString("PAYMENT_GATEWAY_URL"); err != nil {
		return cfg, err
	}
	if cfg.CallbackURL, err = requiredString("PAYMENT_CALLBACK_URL"); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = durationDefault("PAYMENT_REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.RetryMaxAttempts, err = intDefault("PAYMENT_RETRY_MAX_ATTEMPTS", 3); err != nil {
		return cfg, err
	}
	if cfg.RetryBaseDelay, err = durationDefault("PAYMENT_RETRY_BASE_DELAY", 200*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.RetryMaxDelay, err = durationDefault("PAYMENT_RETRY_MAX_DELAY", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.BreakerMaxFailures, err = intDefault("PAYMENT_BREAKER_MAX_FAILURES", 5); err != nil {
		return cfg, err
	}
	if cfg.BreakerResetTimeout, err = durationDefault("PAYMENT_BREAKER_RESET_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.SagaTTL, err = durationDefault("PAYMENT_SAGA_TTL", 0); err != nil {
		return cfg, err
	}
	if cfg.SweepInterval, err = durationDefault("PAYMENT_SWEEP_INTERVAL", time.Minute); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadGatewaySim reads the gateway simulator settings.
func LoadGatewaySim() (GatewaySimConfig, error) {
	cfg := GatewaySimConfig{
		WebhookURL: strings.TrimSpace(os.Getenv("GATEWAY_WEBHOOK_URL")),
	}
	httpCfg, err := LoadHTTP("GATEWAY_ADDR", ":4000")
	if err != nil {
		return cfg, err
	}
	cfg.Addr = httpCfg.Addr
	if cfg.AutoNotifyDelay, err = durationDefault("GATEWAY_AUTO_NOTIFY_DELAY", 0); err != nil {
		return cfg, err
	}
	if cfg.ApproveRate, err = floatDefault("GATEWAY_APPROVE_RATE", 0.8); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalBool(name string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return val, nil
}

func durationDefault(name string, def time.Duration) (time.Duration, error) {
	val, err := optionalDuration(name)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return def, nil
	}
	return *val, nil
}

func intDefault(name string, def int) (int, error) {
	val, err := optionalInt(name)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return def, nil
	}
	return *val, nil
}

func int64Default(name string, def int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

func floatDefault(name string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 || val > 1 {
		return 0, fmt.Errorf("%s must be within [0, 1]", name)
	}
	return val, nil
}
