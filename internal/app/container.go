// Package app assembles the pharmacy services on top of the configured store.
package app

import (
	"context"
	"errors"

	appaccount "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/account"
	appcatalog "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/catalog"
	appledger "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/ledger"
	apporder "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/order"
	appquery "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/query"
	appstockwatch "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/stockwatch"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/config"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/txn"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/postgres"
	stockwatchworker "github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/stockwatch/worker"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
)

// Store is what the services need from a backend.
type Store interface {
	txn.Manager
	Medicines() medicine.Finder
	Accounts() account.Finder
	Orders() order.Finder
	Ledger() ledger.Finder
	Ping(ctx context.Context) error
}

// Container holds the long-lived services and the resources behind them.
type Container struct {
	Store    Store
	Bus      *outbox.Bus
	Catalog  *appcatalog.Service
	Accounts *appaccount.Service
	Orders   *apporder.Engine
	Ledger   *appledger.Service
	Query    *appquery.Service
	Watch    *appstockwatch.Service

	relay   *kafka.Relay
	closers []func() error
}

type Option func(*options)

type options struct {
	store       Store
	kafkaWriter kafka.Writer
}

// WithStore uses s instead of building a store from the configuration.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithKafkaWriter relays events through w regardless of KAFKA_BROKERS.
func WithKafkaWriter(w kafka.Writer) Option {
	return func(o *options) { o.kafkaWriter = w }
}

// EventNames lists every event the services publish.
var EventNames = []string{
	order.EventPlaced,
	order.EventQuantityChanged,
	order.EventRemoved,
	order.EventStatusChanged,
	medicine.EventStockChanged,
}

func NewContainer(ctx context.Context, cfg config.Config, tel observability.Observability, opts ...Option) (*Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if tel == nil {
		tel = observability.Nop()
	}

	c := &Container{}
	switch {
	case o.store != nil:
		c.Store = o.store
	case cfg.StoreBackend == config.BackendPostgres:
		pg, err := postgres.New(ctx, cfg.DatabaseURL, cfg.TxLockTimeout)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error { pg.Close(); return nil })
		if err := pg.Migrate(ctx); err != nil {
			_ = c.closeAll()
			return nil, err
		}
		c.Store = pg
	default:
		c.Store = memory.NewStore(memory.WithLockTimeout(cfg.TxLockTimeout))
	}

	c.Bus = outbox.NewBus(tel)

	c.Watch = appstockwatch.NewService(cfg.LowStockThreshold, tel)
	stockwatchworker.New(c.Bus, c.Watch, tel).Start()

	writer := o.kafkaWriter
	if writer == nil && cfg.KafkaEnabled() {
		writer = kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if writer != nil {
		c.relay = kafka.NewRelay(writer, tel)
		c.relay.Subscribe(c.Bus, EventNames...)
		c.closers = append(c.closers, c.relay.Close)
	}

	c.Catalog = appcatalog.NewService(c.Store, c.Bus, tel)
	c.Accounts = appaccount.NewService(c.Store, c.Store.Accounts(), tel)
	c.Orders = apporder.NewEngine(c.Store, c.Bus, tel)
	c.Ledger = appledger.NewService(c.Store.Ledger(), cfg.LedgerPageSize)
	c.Query = appquery.NewService(c.Store.Medicines(), c.Store.Orders(), c.Store.Accounts(), c.Ledger)
	return c, nil
}

// Start begins dispatching events.
func (c *Container) Start(ctx context.Context) {
	c.Bus.Start(ctx)
}

// Close drains the bus and releases the store and the Kafka writer.
func (c *Container) Close(ctx context.Context) error {
	c.Bus.Stop(ctx)
	return c.closeAll()
}

func (c *Container) closeAll() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
