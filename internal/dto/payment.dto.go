package dto

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"natrip-payments/internal/domain"
)

type CreateOrderRequest struct {
	CheckoutItem  *domain.CheckoutData `json:"checkoutItem"`
	DeliveryData  domain.DeliveryData  `json:"deliveryData"`
	ShippingValue domain.Amount        `json:"shippingValue"`
	Provider      string               `json:"provider"`
	PayerEmail    string               `json:"payerEmail"`
}

type AmountsDTO struct {
	Subtotal domain.Amount `json:"subtotal"`
	Shipping domain.Amount `json:"shipping"`
	Total    domain.Amount `json:"total"`
}

// PixDTO is the payer instruction block. Key is the copy-and-paste code.
type PixDTO struct {
	Key         string `json:"key"`
	QRCodeImage string `json:"qrCodeImage"`
	TicketURL   string `json:"ticketUrl"`
}

type CreateOrderResponse struct {
	OK                bool       `json:"ok"`
	OrderToken        string     `json:"orderToken"`
	Status            string     `json:"status"`
	Provider          string     `json:"provider"`
	ProviderPaymentID string     `json:"providerPaymentId,omitempty"`
	Pix               PixDTO     `json:"pix"`
	ApproveURL        string     `json:"approveUrl,omitempty"`
	Amounts           AmountsDTO `json:"amounts"`
}

type StatusResponse struct {
	OK                bool       `json:"ok"`
	OrderToken        string     `json:"orderToken"`
	Status            string     `json:"status"`
	Provider          string     `json:"provider"`
	ProviderPaymentID string     `json:"providerPaymentId"`
	Amounts           AmountsDTO `json:"amounts"`
	Pix               PixDTO     `json:"pix"`
	ApproveURL        string     `json:"approveUrl,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type HybridWebhookRequest struct {
	OrderToken        string     `json:"orderToken"`
	Status            string     `json:"status"`
	ProviderPaymentID FlexibleID `json:"providerPaymentId"`
}

type HybridWebhookResponse struct {
	OK               bool   `json:"ok"`
	OrderToken       string `json:"orderToken"`
	PreviousStatus   string `json:"previousStatus"`
	Status           string `json:"status"`
	StockDecremented bool   `json:"stockDecremented"`
}

// ProviderWebhookRequest covers the notification shapes remote providers
// post: Mercado Pago's {type, data.id} and PayPal's {event_type, resource}.
type ProviderWebhookRequest struct {
	Type      string     `json:"type"`
	Topic     string     `json:"topic"`
	EventType string     `json:"event_type"`
	ID        FlexibleID `json:"id"`
	Data      struct {
		ID FlexibleID `json:"id"`
	} `json:"data"`
	Resource struct {
		ID                FlexibleID `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// Kind is the notification topic, empty when the provider sends none.
func (r ProviderWebhookRequest) Kind() string {
	if r.Type != "" {
		return r.Type
	}
	return r.Topic
}

// PaymentID prefers the most specific id the body carries. PayPal capture
// events point at the capture, so the related order id wins there.
func (r ProviderWebhookRequest) PaymentID() string {
	switch {
	case r.Data.ID != "":
		return string(r.Data.ID)
	case r.Resource.SupplementaryData.RelatedIDs.OrderID != "":
		return r.Resource.SupplementaryData.RelatedIDs.OrderID
	case r.Resource.ID != "":
		return string(r.Resource.ID)
	default:
		return string(r.ID)
	}
}

type ProviderWebhookResponse struct {
	OK               bool   `json:"ok"`
	Provider         string `json:"provider"`
	OrderToken       string `json:"orderToken"`
	PaymentID        string `json:"paymentId"`
	Status           string `json:"status"`
	StockDecremented bool   `json:"stockDecremented"`
}

type CaptureRequest struct {
	OrderToken string `json:"orderToken"`
}

type CaptureResponse struct {
	OK                bool   `json:"ok"`
	OrderToken        string `json:"orderToken"`
	Status            string `json:"status"`
	ProviderPaymentID string `json:"providerPaymentId"`
	CaptureID         string `json:"captureId,omitempty"`
	StockDecremented  bool   `json:"stockDecremented"`
}

type BuyerDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	CPF   string `json:"cpf"`
}

type LineItemDTO struct {
	ProductID string        `json:"productId"`
	Title     string        `json:"title"`
	Qty       int           `json:"qty"`
	Price     domain.Amount `json:"price"`
}

type ConfirmedOrderDTO struct {
	OrderToken        string              `json:"orderToken"`
	Provider          string              `json:"provider"`
	ProviderPaymentID string              `json:"providerPaymentId"`
	Status            string              `json:"status"`
	Buyer             BuyerDTO            `json:"buyer"`
	Delivery          domain.DeliveryData `json:"delivery"`
	Items             []LineItemDTO       `json:"items"`
	Amounts           AmountsDTO          `json:"amounts"`
	CreatedAt         time.Time           `json:"createdAt"`
	PaidAt            time.Time           `json:"paidAt"`
}

type ConfirmedResponse struct {
	OK     bool                `json:"ok"`
	Orders []ConfirmedOrderDTO `json:"orders"`
}

type ErrorResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	ProductID int64  `json:"productId,omitempty"`
}

// FlexibleID accepts an identifier sent as a JSON string or number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}
