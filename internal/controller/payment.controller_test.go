package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"natrip-payments/internal/infrastructure/payment"
	"natrip-payments/internal/lock"
	"natrip-payments/internal/logging"
	"natrip-payments/internal/middleware"
	"natrip-payments/internal/rabbit"
	"natrip-payments/internal/repo"
	"natrip-payments/internal/service"
	"natrip-payments/internal/testutil"
)

const hybridSecret = "s3cret"

type testServer struct {
	router   *gin.Engine
	products repo.ProductRepo
	fake     *payment.FakeGateway
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewSQLite(t)
	orders := repo.NewOrderRepo(db.DB(), db.Dialect())
	products := repo.NewProductRepo(db.DB(), db.Dialect())
	fake := payment.NewFakeGateway("mercadopago", "hook")
	registry := payment.NewRegistry(payment.NewHybrid(hybridSecret), fake)

	svc := service.NewPaymentService(db.DB(), orders, products, registry, lock.NewLocal(), rabbit.NewNoop(),
		service.Options{}, logging.Discard())

	r := gin.New()
	r.GET("/health", NewHealthController(db).Health)
	NewPaymentController(svc, logging.Discard()).Register(r.Group("/api/payments"), middleware.NewIPRateLimiter(0, 0))

	return &testServer{router: r, products: products, fake: fake}
}

func (s *testServer) do(t *testing.T, method, path, body string, header map[string]string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (s *testServer) product(t *testing.T, stock int) int64 {
	t.Helper()
	p, err := s.products.Create(context.Background(), "Mochila", decimal.NewFromInt(100), stock)
	require.NoError(t, err)
	return p.ID
}

func (s *testServer) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := s.products.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (s *testServer) createOrder(t *testing.T, productID int64, qty int, provider string) string {
	t.Helper()
	body := fmt.Sprintf(`{
		"checkoutItem": {"id": %d, "qty": %d, "title": "Mochila", "totalValue": "100.00"},
		"deliveryData": {"name": "Ana", "email": "ana@example.com"},
		"shippingValue": 15.5,
		"provider": %q
	}`, productID, qty, provider)
	code, out := s.do(t, http.MethodPost, "/api/payments/create-order", body, nil)
	require.Equal(t, http.StatusOK, code, out)
	return out["orderToken"].(string)
}

func hybridHeader() map[string]string {
	return map[string]string{middleware.WebhookSecretHeader: hybridSecret}
}

func TestCreateOrderEndpoint(t *testing.T) {
	s := newTestServer(t)
	pid := s.product(t, 5)

	body := fmt.Sprintf(`{
		"checkoutItem": {"id": "%d", "qty": 1, "totalValue": 100},
		"shippingValue": "15.50"
	}`, pid)
	code, out := s.do(t, http.MethodPost, "/api/payments/create-order", body, nil)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "pending", out["status"])
	assert.NotEmpty(t, out["orderToken"])
	assert.Equal(t, map[string]any{"subtotal": 100.0, "shipping": 15.5, "total": 115.5}, out["amounts"])
	assert.Contains(t, out, "pix")
}

func TestCreateOrderEndpointErrors(t *testing.T) {
	s := newTestServer(t)

	code, out := s.do(t, http.MethodPost, "/api/payments/create-order", `{"shippingValue": 10}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, "checkoutItem", out["field"])

	code, _ = s.do(t, http.MethodPost, "/api/payments/create-order",
		`{"checkoutItem": {"id": 1, "totalValue": 10}, "provider": "paypal"}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateOrderEndpointWithPixProvider(t *testing.T) {
	s := newTestServer(t)
	pid := s.product(t, 5)

	token := s.createOrder(t, pid, 1, "mercadopago")
	code, out := s.do(t, http.MethodGet, "/api/payments/status?orderToken="+token, "", nil)
	require.Equal(t, http.StatusOK, code)

	pix := out["pix"].(map[string]any)
	assert.NotEmpty(t, pix["key"])
	assert.NotEmpty(t, pix["ticketUrl"])
	assert.Equal(t, "mercadopago", out["provider"])
	assert.NotEmpty(t, out["providerPaymentId"])
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	pid := s.product(t, 5)
	token := s.createOrder(t, pid, 1, "hybrid")

	code, out := s.do(t, http.MethodGet, "/api/payments/status?orderToken="+token, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, token, out["orderToken"])
	assert.Equal(t, "pending", out["status"])
	assert.Equal(t, "hybrid", out["provider"])
	assert.NotEmpty(t, out["updatedAt"])

	code, out = s.do(t, http.MethodGet, "/api/payments/status", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, out["ok"])

	code, out = s.do(t, http.MethodGet, "/api/payments/status?orderToken=does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, out["ok"])
	assert.NotEmpty(t, out["error"])
}

func TestHybridWebhookEndpoint(t *testing.T) {
	s := newTestServer(t)
	pid := s.product(t, 2)
	token := s.createOrder(t, pid, 2, "hybrid")

	body := fmt.Sprintf(`{"orderToken": %q, "status": "approved", "providerPaymentId": 987}`, token)
	code, out := s.do(t, http.MethodPost, "/api/payments/webhook/hybrid", body, hybridHeader())
	require.Equal(t, http.StatusOK, code, out)

	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "pending", out["previousStatus"])
	assert.Equal(t, "paid", out["status"])
	assert.Equal(t, true, out["stockDecremented"])
	assert.Equal(t, 0, s.stock(t, pid))

	code, out = s.do(t, http.MethodGet, "/api/payments/status?orderToken="+token, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid", out["status"])
	assert.Equal(t, "987", out["providerPaymentId"])
}

func TestHybridWebhookRejectsBadSecret(t *testing.T) {
	s := newTestServer(t)
	pid := s.product(t, 2)
	token := s.createOrder(t, pid, 1, "hybrid")
	body := fmt.Sprintf(`{"orderToken": %q, "status": "paid"}`, token)

	code, _ := s.do(t, http.MethodPost, "/api/payments/webhook/hybrid", body, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodPost, "/api/payments/webhook/hybrid", body, map[string]string{middleware.WebhookSecretHeader: "guess"})
	assert.Equal(t, http.StatusUnauthorized, code)

	_, out := s.do(t, http.MethodGet, "/api/payments/status?orderToken="+token, "", nil)
	assert.Equal(t, "pending", out["status"])
	assert.Equal(t, 2, s.stock(t, pid))
}

func TestHybridWebhookErrors(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/payments/webhook/hybrid", `{"status": "paid"}`, hybridHeader())
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/payments/webhook/hybrid", `{"orderToken": "nope", "status": "paid"}`, hybridHeader())
	assert.Equal(t, http.StatusNotFound, code)

	pid := s.product(t, 1)
	remote := s.createOrder(t, pid, 1, "mercadopago")
	body := fmt.Sprintf(`{"orderToken": %q, "status": "paid"}`, remote)
	code, _ = s.do(t, http.MethodPost, "/api/payments/webhook/hybrid", body, hybridHeader())
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 1, s.stock(t, pid))
}

func TestHybridWebhookInsufficientStock(t *testing.T) {
	s := newTestServer(t)
	pid := s.product(t, 3)
	token := s.createOrder(t, pid, 5, "hybrid")

	body := fmt.Sprintf(`{"orderToken": %q, "status": "paid"}`, token)
	code, out := s.do(t, http.MethodPost, "/api/payments/webhook/hybrid", body, hybridHeader())
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, float64(pid), out["productId"])

	_, status := s.do(t, http.MethodGet, "/api/payments/status?orderToken="+token, "", nil)
	assert.Equal(t, "pending", status["status"])
	assert.Equal(t, 3, s.stock(t, pid))
}

func TestConcurrentHybridWebhooks(t *testing.T) {
	s := newTestServer(t)
	pid := s.product(t, 2)
	token := s.createOrder(t, pid, 2, "hybrid")
	body := fmt.Sprintf(`{"orderToken": %q, "status": "paid"}`, token)

	codes := make([]int, 8)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook/hybrid", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(middleware.WebhookSecretHeader, hybridSecret)
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	for _, c := range codes {
		assert.Equal(t, http.StatusOK, c)
	}
	assert.Equal(t, 0, s.stock(t, pid))
}

func TestProviderWebhookEndpoint(t *testing.T) {
	s := newTestServer(t)
	pid := s.product(t, 4)
	token := s.createOrder(t, pid, 1, "mercadopago")

	_, status := s.do(t, http.MethodGet, "/api/payments/status?orderToken="+token, "", nil)
	paymentID := status["providerPaymentId"].(string)
	s.fake.SetStatus(paymentID, "approved")

	body := fmt.Sprintf(`{"type": "payment", "data": {"id": %q}}`, paymentID)
	code, out := s.do(t, http.MethodPost, "/api/payments/webhook/mercadopago?token=hook", body, nil)
	require.Equal(t, http.StatusOK, code, out)

	assert.Equal(t, "mercadopago", out["provider"])
	assert.Equal(t, token, out["orderToken"])
	assert.Equal(t, paymentID, out["paymentId"])
	assert.Equal(t, "paid", out["status"])
	assert.Equal(t, true, out["stockDecremented"])
	assert.Equal(t, 3, s.stock(t, pid))

	code, out = s.do(t, http.MethodGet, "/api/payments/webhook/mercadopago?token=hook&topic=payment&id="+paymentID, "", nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, 3, s.stock(t, pid))
}

func TestProviderWebhookEndpointErrors(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/payments/webhook/mercadopago", `{"data": {"id": "1"}}`, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodPost, "/api/payments/webhook/mercadopago?token=hook", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	s.fake.Put(payment.FakePayment("no-ref", "approved", ""))
	code, _ = s.do(t, http.MethodPost, "/api/payments/webhook/mercadopago?token=hook", `{"data": {"id": "no-ref"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	s.fake.Put(payment.FakePayment("lost", "approved", "unknown-order"))
	code, _ = s.do(t, http.MethodPost, "/api/payments/webhook/mercadopago?token=hook", `{"data": {"id": "lost"}}`, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, out := s.do(t, http.MethodPost, "/api/payments/webhook/mercadopago?token=hook", `{"type": "merchant_order", "data": {"id": "5"}}`, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["ignored"])
}

func TestCaptureEndpoint(t *testing.T) {
	s := newTestServer(t)
	pid := s.product(t, 4)
	token := s.createOrder(t, pid, 1, "mercadopago")

	code, out := s.do(t, http.MethodPost, "/api/payments/capture", fmt.Sprintf(`{"orderToken": %q}`, token), nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "paid", out["status"])
	assert.NotEmpty(t, out["captureId"])

	hybrid := s.createOrder(t, pid, 1, "hybrid")
	code, _ = s.do(t, http.MethodPost, "/api/payments/capture", fmt.Sprintf(`{"orderToken": %q}`, hybrid), nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConfirmedEndpoint(t *testing.T) {
	s := newTestServer(t)
	pid := s.product(t, 4)
	paid := s.createOrder(t, pid, 2, "hybrid")
	s.createOrder(t, pid, 1, "hybrid")

	body := fmt.Sprintf(`{"orderToken": %q, "status": "paid"}`, paid)
	code, _ := s.do(t, http.MethodPost, "/api/payments/webhook/hybrid", body, hybridHeader())
	require.Equal(t, http.StatusOK, code)

	code, out := s.do(t, http.MethodGet, "/api/payments/confirmed", "", nil)
	require.Equal(t, http.StatusOK, code)

	orders := out["orders"].([]any)
	require.Len(t, orders, 1)
	o := orders[0].(map[string]any)
	assert.Equal(t, paid, o["orderToken"])
	assert.Equal(t, "Ana", o["buyer"].(map[string]any)["name"])
	items := o["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, 2.0, items[0].(map[string]any)["qty"])
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	code, out := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["ok"])
}
