package payment

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"natrip-payments/internal/config"
	"natrip-payments/internal/domain"
)

const PayPalProvider = "paypal"

const (
	paypalLiveURL    = "https://api-m.paypal.com"
	paypalSandboxURL = "https://api-m.sandbox.paypal.com"
)

// payPal drives the Orders v2 API: create, approve by redirect, capture.
type payPal struct {
	cfg     config.ProviderConfig
	baseURL string
	client  *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// PayPalGateway is a Gateway that also captures approved orders.
type PayPalGateway interface {
	Gateway
	Capturer
}

func NewPayPal(cfg config.ProviderConfig) PayPalGateway {
	base := cfg.BaseURL
	if base == "" {
		base = paypalSandboxURL
		if cfg.Mode == "live" {
			base = paypalLiveURL
		}
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}
	return &payPal{
		cfg:     cfg,
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type ppAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type ppPayments struct {
	Captures []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"captures"`
}

type ppPurchaseUnit struct {
	ReferenceID string      `json:"reference_id,omitempty"`
	CustomID    string      `json:"custom_id,omitempty"`
	Description string      `json:"description,omitempty"`
	Amount      ppAmount    `json:"amount"`
	Payments    *ppPayments `json:"payments,omitempty"`
}

type ppCreateOrder struct {
	Intent        string           `json:"intent"`
	PurchaseUnits []ppPurchaseUnit `json:"purchase_units"`
}

type ppOrder struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	PurchaseUnits []ppPurchaseUnit `json:"purchase_units"`
	Links         []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

func (o ppOrder) toDomain() *domain.ProviderPayment {
	p := &domain.ProviderPayment{
		ID:        o.ID,
		RawStatus: o.Status,
	}
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			p.ApproveURL = l.Href
			break
		}
	}
	if len(o.PurchaseUnits) > 0 {
		pu := o.PurchaseUnits[0]
		p.ExternalReference = pu.CustomID
		if p.ExternalReference == "" {
			p.ExternalReference = pu.ReferenceID
		}
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			p.CaptureID = pu.Payments.Captures[0].ID
			p.StatusDetail = pu.Payments.Captures[0].Status
		}
	}
	return p
}

func (p *payPal) Name() string {
	return PayPalProvider
}

// accessToken returns a cached OAuth token, refreshing it a minute before
// it expires.
func (p *payPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expiresAt) {
		return p.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := do(p.client, PayPalProvider, req, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &domain.ProviderError{Provider: PayPalProvider, Message: "empty access token"}
	}

	ttl := time.Duration(out.ExpiresIn)*time.Second - time.Minute
	if ttl < 0 {
		ttl = 0
	}
	p.token = out.AccessToken
	p.expiresAt = time.Now().Add(ttl)
	return p.token, nil
}

func (p *payPal) send(ctx context.Context, method, path string, body any, requestID string, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}
	req, err := newJSONRequest(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	return do(p.client, PayPalProvider, req, out)
}

func (p *payPal) CreatePayment(ctx context.Context, in CreatePaymentRequest) (*domain.ProviderPayment, error) {
	body := ppCreateOrder{
		Intent: "CAPTURE",
		PurchaseUnits: []ppPurchaseUnit{{
			ReferenceID: in.ExternalReference,
			CustomID:    in.ExternalReference,
			Description: in.Description,
			Amount: ppAmount{
				CurrencyCode: p.cfg.Currency,
				Value:        in.Amount.StringFixed(2),
			},
		}},
	}

	var out ppOrder
	if err := p.send(ctx, http.MethodPost, "/v2/checkout/orders", body, in.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	res := out.toDomain()
	if res.ExternalReference == "" {
		res.ExternalReference = in.ExternalReference
	}
	return res, nil
}

func (p *payPal) FetchPayment(ctx context.Context, providerPaymentID string) (*domain.ProviderPayment, error) {
	var out ppOrder
	if err := p.send(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(providerPaymentID), nil, "", &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

// CapturePayment captures an approved order. An order that was already
// captured is read back instead of failing.
func (p *payPal) CapturePayment(ctx context.Context, providerPaymentID string) (*domain.ProviderPayment, error) {
	var out ppOrder
	path := "/v2/checkout/orders/" + url.PathEscape(providerPaymentID) + "/capture"
	err := p.send(ctx, http.MethodPost, path, struct{}{}, "capture-"+providerPaymentID, &out)
	if err != nil {
		var perr *domain.ProviderError
		if errors.As(err, &perr) && perr.StatusCode == http.StatusUnprocessableEntity && strings.Contains(perr.Message, "ORDER_ALREADY_CAPTURED") {
			return p.FetchPayment(ctx, providerPaymentID)
		}
		return nil, err
	}
	return out.toDomain(), nil
}

func (p *payPal) SupportsLookup() bool {
	return true
}

func (p *payPal) NormalizeStatus(raw string) domain.Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED":
		return domain.StatusPaid
	case "VOIDED", "DECLINED", "FAILED", "REFUNDED":
		return domain.StatusFailed
	default:
		return domain.StatusPending
	}
}

func (p *payPal) VerifyWebhookToken(token string) bool {
	return tokenMatches(p.cfg.WebhookToken, token)
}
