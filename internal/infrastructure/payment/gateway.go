package payment

import (
	"context"
	"crypto/subtle"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"natrip-payments/internal/config"
	"natrip-payments/internal/domain"
)

// Gateway is one payment backend.
type Gateway interface {
	Name() string
	// CreatePayment opens a remote payment. IdempotencyKey must make a
	// retried call return the same remote payment.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.ProviderPayment, error)
	FetchPayment(ctx context.Context, providerPaymentID string) (*domain.ProviderPayment, error)
	SupportsLookup() bool
	NormalizeStatus(raw string) domain.Status
	// VerifyWebhookToken reports whether token authorizes an inbound
	// notification. An unconfigured token accepts everything.
	VerifyWebhookToken(token string) bool
}

// Capturer is implemented by gateways where the merchant must capture an
// approved payment explicitly.
type Capturer interface {
	CapturePayment(ctx context.Context, providerPaymentID string) (*domain.ProviderPayment, error)
}

type CreatePaymentRequest struct {
	Amount            decimal.Decimal
	Description       string
	PayerEmail        string
	IdempotencyKey    string
	ExternalReference string
	NotifyURL         string
}

func tokenMatches(expected, got string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// Registry resolves provider names to configured gateways.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

// NewRegistryFromConfig registers the hybrid gateway plus every remote
// provider that has credentials.
func NewRegistryFromConfig(cfg *config.Config, log logrus.FieldLogger) *Registry {
	r := NewRegistry(NewHybrid(cfg.HybridWebhookSecret))

	if cfg.MercadoPago.AccessToken != "" {
		r.Register(NewMercadoPago(cfg.MercadoPago))
	} else {
		log.Warn("mercadopago access token not set, provider disabled")
	}

	if cfg.PayPal.ClientID != "" && cfg.PayPal.ClientSecret != "" {
		r.Register(NewPayPal(cfg.PayPal))
	} else {
		log.Warn("paypal credentials not set, provider disabled")
	}

	log.WithField("providers", r.Names()).Info("payment providers ready")
	return r
}

func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Name()] = g
}

func (r *Registry) Get(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[name]
	if !ok {
		return nil, domain.ErrProviderNotConfigured
	}
	return g, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
