package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string
	LogLevel    string
	LogFile     string

	StoreBackend string
	DatabaseURL  string

	KafkaBrokers []string
	KafkaTopic   string

	OTLPEndpoint string

	LowStockThreshold int64
	LedgerPageSize    int
	TxLockTimeout     time.Duration
	ShutdownTimeout   time.Duration
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		ServiceName:  get("SERVICE_NAME", "pharmacy"),
		Env:          get("ENV", "dev"),
		HTTPAddr:     get("HTTP_ADDR", ":8080"),
		LogLevel:     get("LOG_LEVEL", "info"),
		LogFile:      get("LOG_FILE", ""),
		StoreBackend: strings.ToLower(get("STORE_BACKEND", BackendMemory)),
		DatabaseURL:  get("DATABASE_URL", ""),
		KafkaTopic:   get("KAFKA_TOPIC", "pharmacy.orders"),
		OTLPEndpoint: get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	for _, b := range strings.Split(get("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	var errs []error
	var err error
	if cfg.LowStockThreshold, err = strconv.ParseInt(get("LOW_STOCK_THRESHOLD", "5"), 10, 64); err != nil || cfg.LowStockThreshold < 0 {
		errs = append(errs, fmt.Errorf("%w: LOW_STOCK_THRESHOLD must be a non-negative integer", ErrInvalid))
	}
	if cfg.LedgerPageSize, err = strconv.Atoi(get("LEDGER_PAGE_SIZE", "50")); err != nil || cfg.LedgerPageSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: LEDGER_PAGE_SIZE must be a positive integer", ErrInvalid))
	}
	if cfg.TxLockTimeout, err = time.ParseDuration(get("TX_LOCK_TIMEOUT", "5s")); err != nil || cfg.TxLockTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: TX_LOCK_TIMEOUT must be a duration", ErrInvalid))
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(get("SHUTDOWN_TIMEOUT", "10s")); err != nil || cfg.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: SHUTDOWN_TIMEOUT must be a positive duration", ErrInvalid))
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("%w: DATABASE_URL is required when STORE_BACKEND=postgres", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: STORE_BACKEND must be %q or %q", ErrInvalid, BackendMemory, BackendPostgres))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }
