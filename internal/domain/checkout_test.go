package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeCheckout(t *testing.T, raw string) CheckoutData {
	t.Helper()
	var c CheckoutData
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return c
}

func TestStockItemsSingleItem(t *testing.T) {
	c := decodeCheckout(t, `{"productId": 7, "qty": 2, "title": "Camiseta", "totalValue": 100}`)

	items, err := c.StockItems()
	require.NoError(t, err)
	assert.Equal(t, []StockItem{{ProductID: 7, Qty: 2}}, items)
	assert.Equal(t, "Camiseta", c.Description())
	assert.Equal(t, "100.00", c.TotalValue.StringFixed(2))
}

func TestStockItemsDefaultsQtyAndFallsBackToID(t *testing.T) {
	c := decodeCheckout(t, `{"id": "12", "totalValue": "50"}`)

	items, err := c.StockItems()
	require.NoError(t, err)
	assert.Equal(t, []StockItem{{ProductID: 12, Qty: 1}}, items)
}

func TestStockItemsCart(t *testing.T) {
	c := decodeCheckout(t, `{
		"totalValue": 30,
		"items": [
			{"id": 1, "qty": 1, "price": 10},
			{"productId": "2", "qty": "2", "price": 10}
		]
	}`)

	items, err := c.StockItems()
	require.NoError(t, err)
	assert.Equal(t, []StockItem{{ProductID: 1, Qty: 1}, {ProductID: 2, Qty: 2}}, items)
	assert.Equal(t, "Carrinho com 2 itens", c.Description())
}

func TestStockItemsValidation(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing id", `{"qty": 1}`, "checkoutItem.id"},
		{"zero id", `{"id": 0}`, "checkoutItem.id"},
		{"negative qty", `{"id": 3, "qty": -1}`, "checkoutItem.qty"},
		{"fractional qty", `{"id": 3, "qty": 1.5}`, "checkoutItem.qty"},
		{"bad cart line", `{"items": [{"id": 1}, {"id": 2, "qty": 0}]}`, "checkoutItem.items[1].qty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeCheckout(t, tt.raw).StockItems()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateStockItems(t *testing.T) {
	assert.NoError(t, ValidateStockItems([]StockItem{{ProductID: 1, Qty: 1}}))

	var verr *ValidationError
	require.ErrorAs(t, ValidateStockItems([]StockItem{{ProductID: 1, Qty: 1}, {ProductID: 0, Qty: 1}}), &verr)
	assert.Equal(t, "items[1].id", verr.Field)

	require.ErrorAs(t, ValidateStockItems([]StockItem{{ProductID: 1, Qty: 0}}), &verr)
	assert.Equal(t, "items[0].qty", verr.Field)
}

func TestPaymentDataMerge(t *testing.T) {
	old := PaymentData{ProviderStatus: "pending", QRCode: "000201", TicketURL: "https://ticket"}
	merged := old.Merge(PaymentData{ProviderStatus: "approved", StatusDetail: "accredited"})

	assert.Equal(t, "approved", merged.ProviderStatus)
	assert.Equal(t, "accredited", merged.StatusDetail)
	assert.Equal(t, "000201", merged.QRCode)
	assert.Equal(t, "https://ticket", merged.TicketURL)
	assert.Equal(t, "pending", old.ProviderStatus)

	cleared := merged.Merge(PaymentData{ProviderStatus: "approved", QRCode: ""})
	assert.Equal(t, "000201", cleared.QRCode)
	assert.Equal(t, merged, cleared)
}
