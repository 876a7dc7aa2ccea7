package domain

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeMoney coerces value to a decimal rounded to cents. Anything that
// is not a finite number becomes zero.
func NormalizeMoney(value any) decimal.Decimal {
	var d decimal.Decimal
	switch v := value.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		d = v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero
		}
		d = *v
	case Amount:
		d = v.Decimal
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero
		}
		d = decimal.NewFromFloat(v)
	case float32:
		return NormalizeMoney(float64(v))
	case int:
		d = decimal.NewFromInt(int64(v))
	case int32:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case json.Number:
		return NormalizeMoney(string(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.Zero
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	default:
		return decimal.Zero
	}
	return d.Round(2)
}

// NormalizeStatus maps the internal/client vocabulary onto Status.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "approved", "completed":
		return StatusPaid
	case "failed", "cancelled", "canceled":
		return StatusFailed
	default:
		return StatusPending
	}
}

// NormalizeProviderStatus maps the PIX provider's payment statuses onto
// Status. It is kept apart from NormalizeStatus on purpose: the two
// vocabularies evolve independently.
func NormalizeProviderStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved":
		return StatusPaid
	case "rejected", "cancelled", "cancelled_by_user", "charged_back", "refunded":
		return StatusFailed
	default:
		return StatusPending
	}
}

// Amount is a money value that decodes leniently from JSON numbers or
// strings and encodes as a JSON number.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d.Round(2)}
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		a.Decimal = decimal.Zero
		return nil
	}
	a.Decimal = NormalizeMoney(v)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.Round(2).StringFixed(2)), nil
}
