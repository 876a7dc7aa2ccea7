package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"natrip-payments/internal/domain"
	"natrip-payments/internal/infrastructure/payment"
	"natrip-payments/internal/lock"
	"natrip-payments/internal/rabbit"
	"natrip-payments/internal/repo"
)

type PaymentService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.PaymentOrder, error)
	// GetStatus returns the stored order after a best-effort provider refresh.
	GetStatus(ctx context.Context, orderToken string) (*domain.PaymentOrder, error)
	RefreshStatus(ctx context.Context, order *domain.PaymentOrder) (*TransitionResult, error)
	AuthorizeWebhook(provider, credential string) error
	HandleHybridWebhook(ctx context.Context, in HybridWebhookInput) (*TransitionResult, error)
	HandleProviderWebhook(ctx context.Context, provider, paymentID string) (*TransitionResult, error)
	UpdatePaymentOrderStatus(ctx context.Context, change StatusChange) (*TransitionResult, error)
	Capture(ctx context.Context, orderToken string) (*TransitionResult, error)
	ListConfirmed(ctx context.Context, limit int) ([]domain.PaymentOrder, error)
}

type Options struct {
	DefaultProvider string
	// PublicBaseURL is where providers can reach the webhook routes. Empty
	// means no notification URL is sent.
	PublicBaseURL     string
	RestockOnReversal bool
}

type CreateOrderInput struct {
	Checkout   *domain.CheckoutData
	Delivery   domain.DeliveryData
	Shipping   decimal.Decimal
	Provider   string
	PayerEmail string
}

type HybridWebhookInput struct {
	OrderToken        string
	Status            string
	ProviderPaymentID string
}

// StatusChange is one observation of an order's payment status, from any
// discovery path.
type StatusChange struct {
	OrderToken        string
	Status            domain.Status
	ProviderPaymentID string
	Payment           domain.PaymentData
}

type TransitionResult struct {
	OrderToken        string
	PreviousStatus    domain.Status
	Status            domain.Status
	StockDecremented  bool
	ProviderPaymentID string
	Payment           domain.PaymentData
}

type paymentService struct {
	db       *sql.DB
	orders   repo.OrderRepo
	products repo.ProductRepo
	gateways *payment.Registry
	locker   lock.Locker
	events   rabbit.Publisher
	opts     Options
	log      logrus.FieldLogger
}

func NewPaymentService(
	db *sql.DB,
	orders repo.OrderRepo,
	products repo.ProductRepo,
	gateways *payment.Registry,
	locker lock.Locker,
	events rabbit.Publisher,
	opts Options,
	log logrus.FieldLogger,
) PaymentService {
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = payment.HybridProvider
	}
	return &paymentService{
		db:       db,
		orders:   orders,
		products: products,
		gateways: gateways,
		locker:   locker,
		events:   events,
		opts:     opts,
		log:      log,
	}
}

func (s *paymentService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.PaymentOrder, error) {
	if in.Checkout == nil {
		return nil, domain.NewValidationError("checkoutItem", "is required")
	}
	if _, err := in.Checkout.StockItems(); err != nil {
		return nil, err
	}

	providerName := in.Provider
	if providerName == "" {
		providerName = s.opts.DefaultProvider
	}
	gw, err := s.gateways.Get(providerName)
	if err != nil {
		return nil, err
	}

	subtotal := domain.NormalizeMoney(in.Checkout.TotalValue.Decimal)
	shipping := domain.NormalizeMoney(in.Shipping)
	total := subtotal.Add(shipping).Round(2)

	payerEmail := in.PayerEmail
	if payerEmail == "" {
		payerEmail = in.Delivery.Email
	}

	token := uuid.NewString()
	remote, err := gw.CreatePayment(ctx, payment.CreatePaymentRequest{
		Amount:            total,
		Description:       in.Checkout.Description(),
		PayerEmail:        payerEmail,
		IdempotencyKey:    token,
		ExternalReference: token,
		NotifyURL:         s.notifyURL(gw.Name()),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.PaymentOrder{
		OrderToken:        token,
		Provider:          gw.Name(),
		ProviderPaymentID: remote.ID,
		Status:            domain.StatusPending,
		AmountSubtotal:    subtotal,
		ShippingAmount:    shipping,
		AmountTotal:       total,
		Checkout:          *in.Checkout,
		Delivery:          in.Delivery,
		Payment:           domain.PaymentDataFrom(remote),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.orders.CreateOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"order_token": token, "provider": order.Provider})
	log.WithField("total", total.StringFixed(2)).Info("payment order created")

	if initial := gw.NormalizeStatus(remote.RawStatus); initial != domain.StatusPending {
		res, err := s.UpdatePaymentOrderStatus(ctx, StatusChange{
			OrderToken:        token,
			Status:            initial,
			ProviderPaymentID: remote.ID,
		})
		if err != nil {
			// the order exists; the reconciliation worker retries it
			log.WithError(err).Error("applying initial provider status failed")
			return order, nil
		}
		order.Status = res.Status
		order.StockDecremented = res.StockDecremented
		order.Payment = res.Payment
	}
	return order, nil
}

func (s *paymentService) notifyURL(provider string) string {
	if s.opts.PublicBaseURL == "" || provider == payment.HybridProvider {
		return ""
	}
	return s.opts.PublicBaseURL + "/api/payments/webhook/" + provider
}

func (s *paymentService) GetStatus(ctx context.Context, orderToken string) (*domain.PaymentOrder, error) {
	if orderToken == "" {
		return nil, domain.NewValidationError("orderToken", "is required")
	}
	order, err := s.orders.FindByToken(ctx, orderToken)
	if err != nil {
		return nil, err
	}
	if !s.canRefresh(order) {
		return order, nil
	}

	if _, err := s.RefreshStatus(ctx, order); err != nil {
		s.log.WithError(err).WithField("order_token", orderToken).Warn("status refresh failed, serving stored status")
		return order, nil
	}
	return s.orders.FindByToken(ctx, orderToken)
}

func (s *paymentService) canRefresh(order *domain.PaymentOrder) bool {
	if order.Status == domain.StatusFailed || order.ProviderPaymentID == "" {
		return false
	}
	gw, err := s.gateways.Get(order.Provider)
	return err == nil && gw.SupportsLookup()
}

// RefreshStatus asks the provider for the payment's current state and
// applies it.
func (s *paymentService) RefreshStatus(ctx context.Context, order *domain.PaymentOrder) (*TransitionResult, error) {
	gw, err := s.gateways.Get(order.Provider)
	if err != nil {
		return nil, err
	}
	if !gw.SupportsLookup() {
		return nil, domain.ErrLookupNotSupported
	}
	if order.ProviderPaymentID == "" {
		return nil, domain.NewValidationError("providerPaymentId", "order has no provider payment yet")
	}

	remote, err := gw.FetchPayment(ctx, order.ProviderPaymentID)
	if err != nil {
		return nil, err
	}
	return s.UpdatePaymentOrderStatus(ctx, StatusChange{
		OrderToken:        order.OrderToken,
		Status:            gw.NormalizeStatus(remote.RawStatus),
		ProviderPaymentID: remote.ID,
		Payment:           domain.PaymentDataFrom(remote),
	})
}

func (s *paymentService) AuthorizeWebhook(provider, credential string) error {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return err
	}
	if !gw.VerifyWebhookToken(credential) {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *paymentService) HandleHybridWebhook(ctx context.Context, in HybridWebhookInput) (*TransitionResult, error) {
	if in.OrderToken == "" {
		return nil, domain.NewValidationError("orderToken", "is required")
	}
	gw, err := s.gateways.Get(payment.HybridProvider)
	if err != nil {
		return nil, err
	}
	// remote provider orders only move on what their provider reports
	order, err := s.orders.FindByToken(ctx, in.OrderToken)
	if err != nil {
		return nil, err
	}
	if order.Provider != payment.HybridProvider {
		return nil, domain.ErrNotFound
	}
	return s.UpdatePaymentOrderStatus(ctx, StatusChange{
		OrderToken:        in.OrderToken,
		Status:            gw.NormalizeStatus(in.Status),
		ProviderPaymentID: in.ProviderPaymentID,
		Payment:           domain.PaymentData{ProviderStatus: in.Status},
	})
}

// HandleProviderWebhook resolves a bare payment id to its order through
// the reference seeded at creation.
func (s *paymentService) HandleProviderWebhook(ctx context.Context, provider, paymentID string) (*TransitionResult, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}
	if !gw.SupportsLookup() {
		return nil, domain.ErrLookupNotSupported
	}
	if paymentID == "" {
		return nil, domain.NewValidationError("paymentId", "is required")
	}

	remote, err := gw.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if remote.ExternalReference == "" {
		return nil, domain.NewValidationError("externalReference", "payment carries no order reference")
	}

	order, err := s.orders.FindByToken(ctx, remote.ExternalReference)
	if err != nil {
		return nil, err
	}
	if order.Provider != gw.Name() {
		return nil, domain.ErrNotFound
	}

	providerPaymentID := remote.ID
	if providerPaymentID == "" {
		providerPaymentID = paymentID
	}
	return s.UpdatePaymentOrderStatus(ctx, StatusChange{
		OrderToken:        order.OrderToken,
		Status:            gw.NormalizeStatus(remote.RawStatus),
		ProviderPaymentID: providerPaymentID,
		Payment:           domain.PaymentDataFrom(remote),
	})
}

// UpdatePaymentOrderStatus is the only writer of status and the only place
// stock is committed. The claim on stock_decremented, the ledger writes and
// the status update share one transaction, so a failed decrement leaves the
// order exactly as it was.
func (s *paymentService) UpdatePaymentOrderStatus(ctx context.Context, change StatusChange) (*TransitionResult, error) {
	release, err := s.locker.Acquire(ctx, change.OrderToken)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := s.orders.FindByTokenForUpdate(ctx, tx, change.OrderToken)
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"order_token": order.OrderToken,
		"provider":    order.Provider,
		"from":        order.Status,
		"observed":    change.Status,
	})

	next := nextStatus(order.Status, change.Status)
	decremented := order.StockDecremented
	committedStock := false

	switch {
	case next == domain.StatusPaid && !order.StockDecremented:
		claimed, err := s.orders.ClaimStockDecrement(ctx, tx, order.OrderToken)
		if err != nil {
			return nil, err
		}
		if claimed {
			items, err := order.Checkout.StockItems()
			if err != nil {
				return nil, err
			}
			if err := s.products.DecrementStock(ctx, tx, items); err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					log.WithError(err).Warn("stock decrement refused, order left unchanged")
				}
				return nil, err
			}
			committedStock = true
		}
		decremented = true

	case order.Status == domain.StatusPaid && next == domain.StatusFailed:
		log.Warn("paid order reported as failed")
		if order.StockDecremented && s.opts.RestockOnReversal {
			items, err := order.Checkout.StockItems()
			if err != nil {
				return nil, err
			}
			if err := s.products.Restock(ctx, tx, items); err != nil {
				return nil, err
			}
			if err := s.orders.ReleaseStockDecrement(ctx, tx, order.OrderToken); err != nil {
				return nil, err
			}
			decremented = false
			log.Info("stock returned after reversal")
		}

	case order.Status == domain.StatusFailed && change.Status == domain.StatusPaid:
		log.Warn("failed order reported as paid, keeping failed")
	}

	providerPaymentID := change.ProviderPaymentID
	if providerPaymentID == "" {
		providerPaymentID = order.ProviderPaymentID
	}
	merged := order.Payment.Merge(change.Payment)

	// a repeated observation writes nothing, so updated_at keeps marking the
	// last real change
	if next == order.Status && decremented == order.StockDecremented &&
		providerPaymentID == order.ProviderPaymentID && merged == order.Payment {
		return &TransitionResult{
			OrderToken:        order.OrderToken,
			PreviousStatus:    order.Status,
			Status:            next,
			StockDecremented:  decremented,
			ProviderPaymentID: providerPaymentID,
			Payment:           merged,
		}, nil
	}

	now := time.Now().UTC()

	err = s.orders.ApplyStatusUpdate(ctx, tx, domain.StatusUpdate{
		OrderToken:        order.OrderToken,
		Status:            next,
		ProviderPaymentID: providerPaymentID,
		Payment:           merged,
		StockDecremented:  decremented,
		UpdatedAt:         now,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}

	if next != order.Status {
		log.WithField("to", next).Info("payment order status changed")
	}
	if committedStock {
		s.publishPaid(ctx, order, providerPaymentID, now)
	}

	return &TransitionResult{
		OrderToken:        order.OrderToken,
		PreviousStatus:    order.Status,
		Status:            next,
		StockDecremented:  decremented,
		ProviderPaymentID: providerPaymentID,
		Payment:           merged,
	}, nil
}

// nextStatus applies the transition rules: pending moves anywhere, paid
// may only fall to failed, failed is final.
func nextStatus(current, observed domain.Status) domain.Status {
	switch current {
	case domain.StatusPending:
		return observed
	case domain.StatusPaid:
		if observed == domain.StatusFailed {
			return domain.StatusFailed
		}
		return domain.StatusPaid
	default:
		return domain.StatusFailed
	}
}

func (s *paymentService) publishPaid(ctx context.Context, order *domain.PaymentOrder, providerPaymentID string, paidAt time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := s.events.PublishOrderPaid(ctx, rabbit.OrderPaidEvent{
		OrderToken:        order.OrderToken,
		Provider:          order.Provider,
		ProviderPaymentID: providerPaymentID,
		AmountTotal:       domain.NewAmount(order.AmountTotal),
		PaidAt:            paidAt,
	})
	if err != nil {
		s.log.WithError(err).WithField("order_token", order.OrderToken).Warn("publishing order.paid failed")
	}
}

// Capture finalizes an approved order on providers that need an explicit
// capture step.
func (s *paymentService) Capture(ctx context.Context, orderToken string) (*TransitionResult, error) {
	if orderToken == "" {
		return nil, domain.NewValidationError("orderToken", "is required")
	}
	order, err := s.orders.FindByToken(ctx, orderToken)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateways.Get(order.Provider)
	if err != nil {
		return nil, err
	}
	capturer, ok := gw.(payment.Capturer)
	if !ok {
		return nil, domain.ErrCaptureNotSupported
	}
	if order.ProviderPaymentID == "" {
		return nil, domain.NewValidationError("providerPaymentId", "order has no provider payment yet")
	}

	remote, err := capturer.CapturePayment(ctx, order.ProviderPaymentID)
	if err != nil {
		return nil, err
	}
	return s.UpdatePaymentOrderStatus(ctx, StatusChange{
		OrderToken:        order.OrderToken,
		Status:            gw.NormalizeStatus(remote.RawStatus),
		ProviderPaymentID: remote.ID,
		Payment:           domain.PaymentDataFrom(remote),
	})
}

func (s *paymentService) ListConfirmed(ctx context.Context, limit int) ([]domain.PaymentOrder, error) {
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}
	return s.orders.FindByStatus(ctx, domain.StatusPaid, limit)
}
