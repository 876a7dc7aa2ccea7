package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMoney(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, "0"},
		{"float", 100.0, "100"},
		{"float rounds", 15.555, "15.56"},
		{"int", 42, "42"},
		{"int64", int64(7), "7"},
		{"numeric string", " 19.90 ", "19.9"},
		{"empty string", "", "0"},
		{"garbage string", "abc", "0"},
		{"json number", json.Number("3.333"), "3.33"},
		{"nan", math.NaN(), "0"},
		{"inf", math.Inf(1), "0"},
		{"decimal", decimal.RequireFromString("1.005"), "1.01"},
		{"unsupported type", []int{1}, "0"},
		{"bool", true, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeMoney(tt.value)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]Status{
		"paid":      StatusPaid,
		"APPROVED":  StatusPaid,
		"Completed": StatusPaid,
		"failed":    StatusFailed,
		"cancelled": StatusFailed,
		"CANCELED":  StatusFailed,
		"pending":   StatusPending,
		"":          StatusPending,
		"rejected":  StatusPending,
		"whatever":  StatusPending,
	}
	for raw, want := range tests {
		assert.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
}

func TestNormalizeProviderStatus(t *testing.T) {
	tests := map[string]Status{
		"approved":          StatusPaid,
		"rejected":          StatusFailed,
		"cancelled":         StatusFailed,
		"cancelled_by_user": StatusFailed,
		"charged_back":      StatusFailed,
		"in_process":        StatusPending,
		"pending":           StatusPending,
		"authorized":        StatusPending,
		"":                  StatusPending,
		"paid":              StatusPending,
	}
	for raw, want := range tests {
		assert.Equal(t, want, NormalizeProviderStatus(raw), "raw=%q", raw)
	}
}

func TestNormalizersAreTotal(t *testing.T) {
	inputs := []string{"", " ", "\x00", "ÁPPROVED", "paid ", "null", "123", "approved\n"}
	for _, in := range inputs {
		for _, got := range []Status{NormalizeStatus(in), NormalizeProviderStatus(in)} {
			assert.Contains(t, []Status{StatusPending, StatusPaid, StatusFailed}, got)
		}
	}
}

func TestAmountJSON(t *testing.T) {
	var body struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
		C Amount `json:"c"`
		D Amount `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a": 100, "b": "15.50", "c": "nope", "d": null}`), &body)
	require.NoError(t, err)

	assert.Equal(t, "100.00", body.A.StringFixed(2))
	assert.Equal(t, "15.50", body.B.StringFixed(2))
	assert.True(t, body.C.IsZero())
	assert.True(t, body.D.IsZero())

	out, err := json.Marshal(NewAmount(decimal.RequireFromString("115.5")))
	require.NoError(t, err)
	assert.Equal(t, "115.50", string(out))
}
