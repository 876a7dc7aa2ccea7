package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"natrip-payments/internal/config"
	"natrip-payments/internal/domain"
)

const MercadoPagoProvider = "mercadopago"

// mercadoPago creates PIX payments through the Mercado Pago payments API.
type mercadoPago struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewMercadoPago(cfg config.ProviderConfig) Gateway {
	return &mercadoPago{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type mpPayer struct {
	Email string `json:"email,omitempty"`
}

type mpCreatePayment struct {
	TransactionAmount json.Number       `json:"transaction_amount"`
	Description       string            `json:"description"`
	PaymentMethodID   string            `json:"payment_method_id"`
	Payer             mpPayer           `json:"payer"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type mpPayment struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
	Metadata          struct {
		OrderToken string `json:"order_token"`
	} `json:"metadata"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (p mpPayment) toDomain() *domain.ProviderPayment {
	ref := p.ExternalReference
	if ref == "" {
		ref = p.Metadata.OrderToken
	}
	td := p.PointOfInteraction.TransactionData
	return &domain.ProviderPayment{
		ID:                p.ID.String(),
		RawStatus:         p.Status,
		StatusDetail:      p.StatusDetail,
		ExternalReference: ref,
		Payout: domain.Payout{
			QRCode:       td.QRCode,
			QRCodeBase64: td.QRCodeBase64,
			TicketURL:    td.TicketURL,
		},
	}
}

func (m *mercadoPago) Name() string {
	return MercadoPagoProvider
}

func (m *mercadoPago) endpoint(path string) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + path
}

func (m *mercadoPago) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)
}

func (m *mercadoPago) CreatePayment(ctx context.Context, in CreatePaymentRequest) (*domain.ProviderPayment, error) {
	body := mpCreatePayment{
		TransactionAmount: json.Number(in.Amount.StringFixed(2)),
		Description:       in.Description,
		PaymentMethodID:   "pix",
		Payer:             mpPayer{Email: in.PayerEmail},
		ExternalReference: in.ExternalReference,
		NotificationURL:   m.notificationURL(in.NotifyURL),
		Metadata:          map[string]string{"order_token": in.ExternalReference},
	}

	req, err := newJSONRequest(ctx, http.MethodPost, m.endpoint("/v1/payments"), body)
	if err != nil {
		return nil, err
	}
	m.authorize(req)
	req.Header.Set("X-Idempotency-Key", in.IdempotencyKey)

	var out mpPayment
	if err := do(m.client, MercadoPagoProvider, req, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (m *mercadoPago) FetchPayment(ctx context.Context, providerPaymentID string) (*domain.ProviderPayment, error) {
	req, err := newJSONRequest(ctx, http.MethodGet, m.endpoint("/v1/payments/"+url.PathEscape(providerPaymentID)), nil)
	if err != nil {
		return nil, err
	}
	m.authorize(req)

	var out mpPayment
	if err := do(m.client, MercadoPagoProvider, req, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (m *mercadoPago) SupportsLookup() bool {
	return true
}

func (m *mercadoPago) NormalizeStatus(raw string) domain.Status {
	return domain.NormalizeProviderStatus(raw)
}

func (m *mercadoPago) VerifyWebhookToken(token string) bool {
	return tokenMatches(m.cfg.WebhookToken, token)
}

// notificationURL appends the webhook token so the provider echoes it back.
func (m *mercadoPago) notificationURL(base string) string {
	if base == "" || m.cfg.WebhookToken == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("token", m.cfg.WebhookToken)
	u.RawQuery = q.Encode()
	return u.String()
}
