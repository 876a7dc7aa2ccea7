package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"natrip-payments/internal/database"
	"natrip-payments/internal/domain"
	"natrip-payments/internal/infrastructure/payment"
	"natrip-payments/internal/lock"
	"natrip-payments/internal/logging"
	"natrip-payments/internal/rabbit"
	"natrip-payments/internal/repo"
	"natrip-payments/internal/service"
	"natrip-payments/internal/worker"
)

type options struct {
	orders     int
	duplicates int
	stock      int
	qty        int
}

// report is the tally printed at the end of a run.
type report struct {
	Paid          int
	Refused       int
	Errors        int
	InitialStock  int
	FinalStock    int
	ExpectedStock int
}

func main() {
	logger := logging.New("info", "text")
	var opts options

	rootCmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Fire duplicate paid webhooks at every order and check stock moved once per order",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(cmd.Context(), opts, logger)
			return err
		},
	}
	rootCmd.Flags().IntVar(&opts.orders, "orders", 20, "number of orders")
	rootCmd.Flags().IntVar(&opts.duplicates, "duplicates", 5, "concurrent paid webhooks per order")
	rootCmd.Flags().IntVar(&opts.stock, "stock", 30, "initial product stock")
	rootCmd.Flags().IntVar(&opts.qty, "qty", 2, "units per order")

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("simulation failed")
	}
}

func run(ctx context.Context, opts options, logger *logrus.Logger) (*report, error) {
	sqlDB, err := database.OpenSQLiteMemory(fmt.Sprintf("simulate_%d", time.Now().UnixNano()))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db := database.Wrap(sqlDB, database.SQLite, "simulate", logger)
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}

	orderRepo := repo.NewOrderRepo(db.DB(), db.Dialect())
	productRepo := repo.NewProductRepo(db.DB(), db.Dialect())
	gateway := payment.NewFakeGateway("mercadopago", "")
	registry := payment.NewRegistry(payment.NewHybrid(""), gateway)

	// the service logs every transition; keep only warnings from it
	quiet := logging.New("warn", "text")
	quiet.SetOutput(logger.Out)
	paymentService := service.NewPaymentService(db.DB(), orderRepo, productRepo, registry,
		lock.NewLocal(), rabbit.NewNoop(), service.Options{}, quiet)

	product, err := productRepo.Create(ctx, "Mochila Trilha", decimal.RequireFromString("189.90"), opts.stock)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"orders":     opts.orders,
		"duplicates": opts.duplicates,
		"stock":      opts.stock,
	}).Info("starting simulation")

	var refused, errs atomic.Int32
	for i := 0; i < opts.orders; i++ {
		provider := payment.HybridProvider
		if i%2 == 1 {
			provider = gateway.Name()
		}
		order, err := paymentService.CreateOrder(ctx, service.CreateOrderInput{
			Checkout: &domain.CheckoutData{
				CheckoutLine: domain.CheckoutLine{
					ProductID: json.Number(strconv.FormatInt(product.ID, 10)),
					Qty:       json.Number(strconv.Itoa(opts.qty)),
					Title:     product.Name,
					Price:     domain.NewAmount(product.Price),
				},
				TotalValue: domain.NewAmount(product.Price.Mul(decimal.NewFromInt(int64(opts.qty)))),
			},
			Shipping: decimal.RequireFromString("15.50"),
			Provider: provider,
		})
		if err != nil {
			logger.WithError(err).Warn("create order failed")
			errs.Add(1)
			continue
		}
		entry := logger.WithFields(logrus.Fields{"n": i + 1, "provider": provider, "order_token": order.OrderToken[:8]})

		// every fourth order loses its webhooks and waits for the worker
		if i%4 == 3 {
			gateway.SetStatus(order.ProviderPaymentID, "approved")
			entry.Info("webhook lost")
			continue
		}

		var wg sync.WaitGroup
		var decremented atomic.Int32
		for d := 0; d < opts.duplicates; d++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := deliver(ctx, paymentService, gateway, order)
				switch {
				case err == nil && res.PreviousStatus == domain.StatusPending && res.StockDecremented:
					decremented.Add(1)
				case errors.Is(err, domain.ErrInsufficientStock):
					refused.Add(1)
				case err != nil:
					errs.Add(1)
				}
			}()
		}
		wg.Wait()

		fresh, err := orderRepo.FindByToken(ctx, order.OrderToken)
		if err != nil {
			return nil, fmt.Errorf("read order: %w", err)
		}
		entry.WithFields(logrus.Fields{"status": fresh.Status, "first_paid": decremented.Load()}).Info("webhooks delivered")
	}

	rw := worker.NewReconciliationWorker(orderRepo, paymentService, time.Second, 0, 100, quiet)
	summary, err := rw.RunOnce(ctx)
	if err != nil {
		logger.WithError(err).Warn("reconcile pass failed")
	}
	logger.WithFields(logrus.Fields{
		"checked": summary.Checked,
		"paid":    summary.Paid,
		"failed":  summary.Failed,
		"errors":  summary.Errors,
	}).Info("reconciled lost webhooks")

	confirmed, err := orderRepo.FindByStatus(ctx, domain.StatusPaid, opts.orders)
	if err != nil {
		return nil, fmt.Errorf("list paid: %w", err)
	}
	final, err := productRepo.FindByID(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("read product: %w", err)
	}

	rep := &report{
		Paid:          len(confirmed),
		Refused:       int(refused.Load()),
		Errors:        int(errs.Load()),
		InitialStock:  opts.stock,
		FinalStock:    final.Stock,
		ExpectedStock: opts.stock - len(confirmed)*opts.qty,
	}
	logger.WithFields(logrus.Fields{
		"paid":           rep.Paid,
		"refused":        rep.Refused,
		"errors":         rep.Errors,
		"final_stock":    rep.FinalStock,
		"expected_stock": rep.ExpectedStock,
	}).Info("simulation finished")

	if rep.FinalStock != rep.ExpectedStock {
		return rep, errors.New("stock drifted: an order was decremented more than once")
	}
	return rep, nil
}

// deliver simulates one paid notification through the path each provider
// uses in production.
func deliver(ctx context.Context, svc service.PaymentService, gw *payment.FakeGateway, order *domain.PaymentOrder) (*service.TransitionResult, error) {
	if order.Provider == payment.HybridProvider {
		return svc.HandleHybridWebhook(ctx, service.HybridWebhookInput{OrderToken: order.OrderToken, Status: "paid"})
	}
	gw.SetStatus(order.ProviderPaymentID, "approved")
	return svc.HandleProviderWebhook(ctx, gw.Name(), order.ProviderPaymentID)
}
