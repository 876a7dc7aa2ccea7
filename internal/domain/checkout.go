package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CheckoutLine is one cart entry. Ids and quantities arrive either as JSON
// numbers or numeric strings.
type CheckoutLine struct {
	ID        json.Number `json:"id,omitempty"`
	ProductID json.Number `json:"productId,omitempty"`
	Qty       json.Number `json:"qty,omitempty"`
	Title     string      `json:"title,omitempty"`
	Price     Amount      `json:"price"`
}

// CheckoutData is the cart snapshot taken when the order is created. It is
// either a single item (the embedded line) or a cart with Items.
type CheckoutData struct {
	CheckoutLine
	TotalValue Amount         `json:"totalValue"`
	Items      []CheckoutLine `json:"items,omitempty"`
}

func (c CheckoutData) IsCart() bool {
	return len(c.Items) > 0
}

func (c CheckoutData) Lines() []CheckoutLine {
	if c.IsCart() {
		return c.Items
	}
	return []CheckoutLine{c.CheckoutLine}
}

func (c CheckoutData) Description() string {
	if c.Title != "" {
		return c.Title
	}
	if c.IsCart() {
		return fmt.Sprintf("Carrinho com %d itens", len(c.Items))
	}
	return "Pedido"
}

// StockItems derives what has to leave inventory when the order is paid.
func (c CheckoutData) StockItems() ([]StockItem, error) {
	lines := c.Lines()
	items := make([]StockItem, 0, len(lines))
	for i, line := range lines {
		field := "checkoutItem"
		if c.IsCart() {
			field = fmt.Sprintf("checkoutItem.items[%d]", i)
		}
		item, err := line.stockItem(field)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (l CheckoutLine) stockItem(field string) (StockItem, error) {
	rawID := l.ProductID
	if rawID == "" {
		rawID = l.ID
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(rawID)), 10, 64)
	if err != nil || id <= 0 {
		return StockItem{}, NewValidationError(field+".id", "must be a positive integer")
	}

	qty := 1
	if l.Qty != "" {
		q, err := strconv.Atoi(strings.TrimSpace(string(l.Qty)))
		if err != nil || q <= 0 {
			return StockItem{}, NewValidationError(field+".qty", "must be a positive integer")
		}
		qty = q
	}
	return StockItem{ProductID: id, Qty: qty}, nil
}

// ValidateStockItems is the ledger's precondition: every id and qty positive.
func ValidateStockItems(items []StockItem) error {
	for i, it := range items {
		if it.ProductID <= 0 {
			return NewValidationError(fmt.Sprintf("items[%d].id", i), "must be a positive integer")
		}
		if it.Qty <= 0 {
			return NewValidationError(fmt.Sprintf("items[%d].qty", i), "must be a positive integer")
		}
	}
	return nil
}

type DeliveryData struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	CPF        string `json:"cpf,omitempty"`
	Address    string `json:"address,omitempty"`
	Number     string `json:"number,omitempty"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	ZIP        string `json:"zip,omitempty"`
	Notes      string `json:"notes,omitempty"`
}
