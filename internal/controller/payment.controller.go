package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"natrip-payments/internal/domain"
	"natrip-payments/internal/dto"
	"natrip-payments/internal/infrastructure/payment"
	"natrip-payments/internal/middleware"
	"natrip-payments/internal/service"
)

type PaymentController struct {
	Service service.PaymentService
	Log     logrus.FieldLogger
}

func NewPaymentController(s service.PaymentService, log logrus.FieldLogger) *PaymentController {
	return &PaymentController{Service: s, Log: log}
}

// Register mounts the payment routes. Webhook routes get the rate limiter
// and credential check.
func (ctl *PaymentController) Register(rg *gin.RouterGroup, limiter *middleware.IPRateLimiter) {
	rg.POST("/create-order", ctl.CreateOrder)
	rg.GET("/status", ctl.GetStatus)
	rg.GET("/confirmed", ctl.ListConfirmed)
	rg.POST("/capture", ctl.Capture)

	hooks := rg.Group("/webhook", middleware.RateLimit(limiter))
	hooks.POST("/hybrid", middleware.WebhookAuth(ctl.Service, payment.HybridProvider), ctl.HybridWebhook)
	hooks.POST("/:provider", middleware.WebhookAuth(ctl.Service, ""), ctl.ProviderWebhook)
	hooks.GET("/:provider", middleware.WebhookAuth(ctl.Service, ""), ctl.ProviderWebhook)
}

// POST /create-order
func (ctl *PaymentController) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	order, err := ctl.Service.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		Checkout:   req.CheckoutItem,
		Delivery:   req.DeliveryData,
		Shipping:   req.ShippingValue.Decimal,
		Provider:   req.Provider,
		PayerEmail: req.PayerEmail,
	})
	if err != nil {
		ctl.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewCreateOrderResponse(order))
}

// GET /status?orderToken=
func (ctl *PaymentController) GetStatus(c *gin.Context) {
	order, err := ctl.Service.GetStatus(c.Request.Context(), c.Query("orderToken"))
	if err != nil {
		ctl.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewStatusResponse(order))
}

// GET /confirmed
func (ctl *PaymentController) ListConfirmed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	orders, err := ctl.Service.ListConfirmed(c.Request.Context(), limit)
	if err != nil {
		ctl.fail(c, err)
		return
	}

	out := make([]dto.ConfirmedOrderDTO, 0, len(orders))
	for i := range orders {
		out = append(out, dto.NewConfirmedOrder(&orders[i]))
	}
	c.JSON(http.StatusOK, dto.ConfirmedResponse{OK: true, Orders: out})
}

// POST /capture
func (ctl *PaymentController) Capture(c *gin.Context) {
	var req dto.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	res, err := ctl.Service.Capture(c.Request.Context(), req.OrderToken)
	if err != nil {
		ctl.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CaptureResponse{
		OK:                true,
		OrderToken:        res.OrderToken,
		Status:            string(res.Status),
		ProviderPaymentID: res.ProviderPaymentID,
		CaptureID:         res.Payment.CaptureID,
		StockDecremented:  res.StockDecremented,
	})
}

// POST /webhook/hybrid
func (ctl *PaymentController) HybridWebhook(c *gin.Context) {
	var req dto.HybridWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	res, err := ctl.Service.HandleHybridWebhook(c.Request.Context(), service.HybridWebhookInput{
		OrderToken:        req.OrderToken,
		Status:            req.Status,
		ProviderPaymentID: string(req.ProviderPaymentID),
	})
	if err != nil {
		ctl.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.HybridWebhookResponse{
		OK:               true,
		OrderToken:       res.OrderToken,
		PreviousStatus:   string(res.PreviousStatus),
		Status:           string(res.Status),
		StockDecremented: res.StockDecremented,
	})
}

// POST|GET /webhook/:provider
func (ctl *PaymentController) ProviderWebhook(c *gin.Context) {
	provider := c.Param("provider")

	var req dto.ProviderWebhookRequest
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid JSON body"})
			return
		}
	}

	kind := req.Kind()
	if kind == "" {
		kind = c.Query("type")
	}
	if kind == "" {
		kind = c.Query("topic")
	}
	if kind != "" && kind != "payment" {
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true, "provider": provider, "topic": kind})
		return
	}

	paymentID := req.PaymentID()
	if paymentID == "" {
		paymentID = c.Query("data.id")
	}
	if paymentID == "" {
		paymentID = c.Query("id")
	}

	res, err := ctl.Service.HandleProviderWebhook(c.Request.Context(), provider, paymentID)
	if err != nil {
		ctl.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ProviderWebhookResponse{
		OK:               true,
		Provider:         provider,
		OrderToken:       res.OrderToken,
		PaymentID:        res.ProviderPaymentID,
		Status:           string(res.Status),
		StockDecremented: res.StockDecremented,
	})
}

// fail is the only place errors become HTTP status codes.
func (ctl *PaymentController) fail(c *gin.Context, err error) {
	var (
		verr *domain.ValidationError
		serr *domain.InsufficientStockError
		perr *domain.ProviderError
		code int
	)
	body := dto.ErrorResponse{Error: err.Error()}

	switch {
	case errors.As(err, &verr):
		code = http.StatusBadRequest
		body.Field = verr.Field
	case errors.As(err, &serr):
		code = http.StatusConflict
		body.ProductID = serr.ProductID
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, domain.ErrProviderNotConfigured),
		errors.Is(err, domain.ErrCaptureNotSupported),
		errors.Is(err, domain.ErrLookupNotSupported):
		code = http.StatusBadRequest
	case errors.As(err, &perr):
		code = http.StatusInternalServerError
		if perr.Rejected() {
			code = http.StatusBadRequest
		}
		ctl.Log.WithError(err).WithField("path", c.FullPath()).Warn("payment provider error")
	default:
		code = http.StatusInternalServerError
		body.Error = "internal error"
		ctl.Log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}

	c.JSON(code, body)
}
