package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// PaymentOrder is one checkout attempt. OrderToken is the client-facing key;
// ID is the row id and never leaves the store.
type PaymentOrder struct {
	ID                int64
	OrderToken        string
	Provider          string
	ProviderPaymentID string
	Status            Status
	AmountSubtotal    decimal.Decimal
	ShippingAmount    decimal.Decimal
	AmountTotal       decimal.Decimal
	Checkout          CheckoutData
	Delivery          DeliveryData
	Payment           PaymentData
	StockDecremented  bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
}

type StockItem struct {
	ProductID int64
	Qty       int
}

// StatusUpdate is the single write the order store accepts after creation.
type StatusUpdate struct {
	OrderToken        string
	Status            Status
	ProviderPaymentID string
	Payment           PaymentData
	StockDecremented  bool
	UpdatedAt         time.Time
}
