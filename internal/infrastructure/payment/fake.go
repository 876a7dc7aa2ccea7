package payment

import (
	"context"
	"fmt"
	"sync"

	"natrip-payments/internal/domain"
)

// FakeGateway is an in-memory provider. Payments keyed by the same
// idempotency key resolve to the same remote payment, and their status is
// driven from the outside with SetStatus.
type FakeGateway struct {
	name         string
	webhookToken string

	mu            sync.RWMutex
	seq           int
	initialStatus string
	byKey         map[string]string
	payments      map[string]*domain.ProviderPayment
	createErr     error
	fetchErr      error
	createCalls   int
	fetchCalls    int
}

func NewFakeGateway(name, webhookToken string) *FakeGateway {
	return &FakeGateway{
		name:          name,
		webhookToken:  webhookToken,
		initialStatus: "pending",
		byKey:         make(map[string]string),
		payments:      make(map[string]*domain.ProviderPayment),
	}
}

func (f *FakeGateway) Name() string {
	return f.name
}

func (f *FakeGateway) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.ProviderPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	if f.createErr != nil {
		return nil, f.createErr
	}

	// check idempotency key (if already created, return the same payment)
	if id, ok := f.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		p := *f.payments[id]
		return &p, nil
	}

	f.seq++
	id := fmt.Sprintf("%s-%d", f.name, f.seq)
	p := &domain.ProviderPayment{
		ID:                id,
		RawStatus:         f.initialStatus,
		ExternalReference: req.ExternalReference,
		Payout: domain.Payout{
			QRCode:    "00020126-" + id,
			TicketURL: "https://fake.local/ticket/" + id,
		},
	}
	f.payments[id] = p
	if req.IdempotencyKey != "" {
		f.byKey[req.IdempotencyKey] = id
	}
	out := *p
	return &out, nil
}

func (f *FakeGateway) FetchPayment(ctx context.Context, providerPaymentID string) (*domain.ProviderPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	p, ok := f.payments[providerPaymentID]
	if !ok {
		return nil, &domain.ProviderError{Provider: f.name, StatusCode: 404, Message: "payment not found"}
	}
	out := *p
	return &out, nil
}

func (f *FakeGateway) SupportsLookup() bool {
	return true
}

func (f *FakeGateway) NormalizeStatus(raw string) domain.Status {
	return domain.NormalizeProviderStatus(raw)
}

func (f *FakeGateway) VerifyWebhookToken(token string) bool {
	return tokenMatches(f.webhookToken, token)
}

// SetStatus changes what the provider reports for a payment.
func (f *FakeGateway) SetStatus(providerPaymentID, rawStatus string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[providerPaymentID]; ok {
		p.RawStatus = rawStatus
	}
}

// SetInitialStatus changes the status new payments are created with.
func (f *FakeGateway) SetInitialStatus(rawStatus string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialStatus = rawStatus
}

// Put registers a payment directly, bypassing CreatePayment.
func (f *FakeGateway) Put(p domain.ProviderPayment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p.ID] = &p
}

func (f *FakeGateway) FailCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

func (f *FakeGateway) FailFetch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *FakeGateway) Calls() (create, fetch int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.createCalls, f.fetchCalls
}

// CapturePayment marks the payment approved and assigns a capture id.
func (f *FakeGateway) CapturePayment(ctx context.Context, providerPaymentID string) (*domain.ProviderPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[providerPaymentID]
	if !ok {
		return nil, &domain.ProviderError{Provider: f.name, StatusCode: 404, Message: "payment not found"}
	}
	p.RawStatus = "approved"
	if p.CaptureID == "" {
		p.CaptureID = "cap-" + providerPaymentID
	}
	out := *p
	return &out, nil
}

// FakePayment builds a remote payment for Put.
func FakePayment(id, rawStatus, externalReference string) domain.ProviderPayment {
	return domain.ProviderPayment{ID: id, RawStatus: rawStatus, ExternalReference: externalReference}
}
