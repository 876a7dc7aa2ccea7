package dto

import (
	"strconv"
	"strings"

	"natrip-payments/internal/domain"
)

func Amounts(o *domain.PaymentOrder) AmountsDTO {
	return AmountsDTO{
		Subtotal: domain.NewAmount(o.AmountSubtotal),
		Shipping: domain.NewAmount(o.ShippingAmount),
		Total:    domain.NewAmount(o.AmountTotal),
	}
}

func Pix(p domain.Payout) PixDTO {
	out := PixDTO{Key: p.QRCode, TicketURL: p.TicketURL}
	if p.QRCodeBase64 != "" {
		out.QRCodeImage = "data:image/png;base64," + p.QRCodeBase64
	}
	return out
}

func NewCreateOrderResponse(o *domain.PaymentOrder) CreateOrderResponse {
	return CreateOrderResponse{
		OK:                true,
		OrderToken:        o.OrderToken,
		Status:            string(o.Status),
		Provider:          o.Provider,
		ProviderPaymentID: o.ProviderPaymentID,
		Pix:               Pix(o.Payment.Payout()),
		ApproveURL:        o.Payment.ApproveURL,
		Amounts:           Amounts(o),
	}
}

func NewStatusResponse(o *domain.PaymentOrder) StatusResponse {
	return StatusResponse{
		OK:                true,
		OrderToken:        o.OrderToken,
		Status:            string(o.Status),
		Provider:          o.Provider,
		ProviderPaymentID: o.ProviderPaymentID,
		Amounts:           Amounts(o),
		Pix:               Pix(o.Payment.Payout()),
		ApproveURL:        o.Payment.ApproveURL,
		UpdatedAt:         o.UpdatedAt,
	}
}

func NewConfirmedOrder(o *domain.PaymentOrder) ConfirmedOrderDTO {
	lines := o.Checkout.Lines()
	items := make([]LineItemDTO, 0, len(lines))
	for _, l := range lines {
		id := l.ProductID
		if id == "" {
			id = l.ID
		}
		qty, err := strconv.Atoi(strings.TrimSpace(string(l.Qty)))
		if err != nil || qty <= 0 {
			qty = 1
		}
		items = append(items, LineItemDTO{
			ProductID: string(id),
			Title:     l.Title,
			Qty:       qty,
			Price:     l.Price,
		})
	}

	return ConfirmedOrderDTO{
		OrderToken:        o.OrderToken,
		Provider:          o.Provider,
		ProviderPaymentID: o.ProviderPaymentID,
		Status:            string(o.Status),
		Buyer: BuyerDTO{
			Name:  o.Delivery.Name,
			Email: o.Delivery.Email,
			Phone: o.Delivery.Phone,
			CPF:   o.Delivery.CPF,
		},
		Delivery:  o.Delivery,
		Items:     items,
		Amounts:   Amounts(o),
		CreatedAt: o.CreatedAt,
		PaidAt:    o.UpdatedAt,
	}
}
