package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"natrip-payments/internal/config"
	"natrip-payments/internal/database"
	"natrip-payments/internal/infrastructure/payment"
	"natrip-payments/internal/lock"
	"natrip-payments/internal/logging"
	"natrip-payments/internal/rabbit"
	"natrip-payments/internal/repo"
	"natrip-payments/internal/service"
	"natrip-payments/internal/worker"
)

// app holds everything a command needs, wired from the environment.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	db       database.Service
	orders   repo.OrderRepo
	products repo.ProductRepo
	payments service.PaymentService
	worker   *worker.ReconciliationWorker
	closers  []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db}
	a.closers = append(a.closers, db.Close)

	locker, closeLocker := lock.New(cfg, log)
	a.closers = append(a.closers, closeLocker)

	events := rabbit.NewNoop()
	if cfg.RabbitURL != "" {
		pub, err := rabbit.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange, log)
		if err != nil {
			log.WithError(err).Warn("rabbit unavailable, order events disabled")
		} else {
			events = pub
		}
	}
	a.closers = append(a.closers, events.Close)

	a.orders = repo.NewOrderRepo(db.DB(), db.Dialect())
	a.products = repo.NewProductRepo(db.DB(), db.Dialect())

	a.payments = service.NewPaymentService(
		db.DB(),
		a.orders,
		a.products,
		payment.NewRegistryFromConfig(cfg, log),
		locker,
		events,
		service.Options{
			DefaultProvider:   cfg.DefaultProvider,
			PublicBaseURL:     cfg.PublicBaseURL,
			RestockOnReversal: cfg.RestockOnReversal,
		},
		log,
	)

	a.worker = worker.NewReconciliationWorker(
		a.orders,
		a.payments,
		cfg.ReconcileInterval,
		cfg.ReconcileStaleAfter,
		cfg.ReconcileBatch,
		log,
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("shutdown")
		}
	}
}
