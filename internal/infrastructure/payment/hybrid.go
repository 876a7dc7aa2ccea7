package payment

import (
	"context"

	"natrip-payments/internal/domain"
)

const HybridProvider = "hybrid"

// hybridGateway makes no outbound calls. Orders stay pending until the
// trusted hybrid webhook reports a status.
type hybridGateway struct {
	secret string
}

func NewHybrid(webhookSecret string) Gateway {
	return &hybridGateway{secret: webhookSecret}
}

func (h *hybridGateway) Name() string {
	return HybridProvider
}

func (h *hybridGateway) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.ProviderPayment, error) {
	return &domain.ProviderPayment{
		RawStatus:         string(domain.StatusPending),
		ExternalReference: req.ExternalReference,
	}, nil
}

func (h *hybridGateway) FetchPayment(ctx context.Context, providerPaymentID string) (*domain.ProviderPayment, error) {
	return nil, domain.ErrLookupNotSupported
}

func (h *hybridGateway) SupportsLookup() bool {
	return false
}

func (h *hybridGateway) NormalizeStatus(raw string) domain.Status {
	return domain.NormalizeStatus(raw)
}

func (h *hybridGateway) VerifyWebhookToken(token string) bool {
	return tokenMatches(h.secret, token)
}
