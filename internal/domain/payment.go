package domain

// Payout is the provider-neutral payer instruction set. Only QR/PIX capable
// providers fill the QR fields.
type Payout struct {
	QRCode       string `json:"qrCode,omitempty"`
	QRCodeBase64 string `json:"qrCodeBase64,omitempty"`
	TicketURL    string `json:"ticketUrl,omitempty"`
}

// ProviderPayment is what an adapter reports back about a remote payment.
type ProviderPayment struct {
	ID                string
	RawStatus         string
	StatusDetail      string
	ExternalReference string
	ApproveURL        string
	CaptureID         string
	Payout            Payout
}

// PaymentData is the provider payload persisted with an order.
type PaymentData struct {
	ProviderStatus string `json:"providerStatus,omitempty"`
	StatusDetail   string `json:"statusDetail,omitempty"`
	QRCode         string `json:"qrCode,omitempty"`
	QRCodeBase64   string `json:"qrCodeBase64,omitempty"`
	TicketURL      string `json:"ticketUrl,omitempty"`
	ApproveURL     string `json:"approveUrl,omitempty"`
	CaptureID      string `json:"captureId,omitempty"`
}

// Merge overlays the non-empty fields of next onto d. An empty field in next
// reads as "not reported", so a stored value is never cleared by a later
// observation, unlike a plain key-by-key overwrite.
func (d PaymentData) Merge(next PaymentData) PaymentData {
	out := d
	if next.ProviderStatus != "" {
		out.ProviderStatus = next.ProviderStatus
	}
	if next.StatusDetail != "" {
		out.StatusDetail = next.StatusDetail
	}
	if next.QRCode != "" {
		out.QRCode = next.QRCode
	}
	if next.QRCodeBase64 != "" {
		out.QRCodeBase64 = next.QRCodeBase64
	}
	if next.TicketURL != "" {
		out.TicketURL = next.TicketURL
	}
	if next.ApproveURL != "" {
		out.ApproveURL = next.ApproveURL
	}
	if next.CaptureID != "" {
		out.CaptureID = next.CaptureID
	}
	return out
}

func (d PaymentData) Payout() Payout {
	return Payout{
		QRCode:       d.QRCode,
		QRCodeBase64: d.QRCodeBase64,
		TicketURL:    d.TicketURL,
	}
}

func PaymentDataFrom(p *ProviderPayment) PaymentData {
	if p == nil {
		return PaymentData{}
	}
	return PaymentData{
		ProviderStatus: p.RawStatus,
		StatusDetail:   p.StatusDetail,
		QRCode:         p.Payout.QRCode,
		QRCodeBase64:   p.Payout.QRCodeBase64,
		TicketURL:      p.Payout.TicketURL,
		ApproveURL:     p.ApproveURL,
		CaptureID:      p.CaptureID,
	}
}
