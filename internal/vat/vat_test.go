package vat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAmountExact(t *testing.T) {
	require.Equal(t, 20.0, Amount(200, 10))
	require.Equal(t, 7.5, Amount(100, 7.5))
	for _, rate := range []float64{0, 5, 7.5, 19, 100} {
		require.Equal(t, 0.0, Amount(0, rate))
	}
}

func TestTotalWithVat(t *testing.T) {
	require.Equal(t, 107.5, TotalWithVat(100, 7.5))
	require.Equal(t, 220.0, TotalWithVat(200, 10))
	require.Equal(t, 50.0, TotalWithVat(50, 0))
}

func TestExtractRoundTrip(t *testing.T) {
	subtotal, tax := ExtractFromTotal(TotalWithVat(100, 7.5), 7.5)
	require.InDelta(t, 100, subtotal, 1e-9)
	require.InDelta(t, 7.5, tax, 1e-9)

	cases := []struct {
		amount float64
		rate   float64
	}{
		{0, 0},
		{0.01, 7.5},
		{19.99, 16},
		{1234.56, 21},
		{1_000_000, 7.5},
		{3.33, 33.3},
	}
	for _, tc := range cases {
		sub, vatAmount := ExtractFromTotal(TotalWithVat(tc.amount, tc.rate), tc.rate)
		require.InDelta(t, tc.amount, sub, 1e-6, "subtotal for %v@%v", tc.amount, tc.rate)
		require.InDelta(t, Amount(tc.amount, tc.rate), vatAmount, 1e-6, "vat for %v@%v", tc.amount, tc.rate)
	}
}

func TestNegativeRateTreatedAsZero(t *testing.T) {
	require.Equal(t, 0.0, Amount(100, -5))
	sub, tax := ExtractFromTotal(100, -100)
	require.Equal(t, 100.0, sub)
	require.Equal(t, 0.0, tax)
}

func TestDecimalVariants(t *testing.T) {
	amount := decimal.RequireFromString("200")
	rate := decimal.RequireFromString("10")
	require.True(t, AmountDecimal(amount, rate).Equal(decimal.RequireFromString("20")))
	require.True(t, TotalWithVatDecimal(amount, rate).Equal(decimal.RequireFromString("220")))
}

func TestBreakdowns(t *testing.T) {
	ex := Exclusive(100, 7.5)
	require.Equal(t, Breakdown{Subtotal: 100, VAT: 7.5, Total: 107.5, RatePercent: 7.5}, ex)

	in := Inclusive(107.5, 7.5)
	require.InDelta(t, 100, in.Subtotal, 1e-9)
	require.InDelta(t, 7.5, in.VAT, 1e-9)
	require.Equal(t, 107.5, in.Total)
}

func TestQuoteHandler(t *testing.T) {
	h := Handler{DefaultRatePercent: 7.5}

	rr := httptest.NewRecorder()
	h.Quote(rr, httptest.NewRequest(http.MethodGet, "/api/v1/vat/quote?amount=200&rate=10", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data Breakdown `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 20.0, body.Data.VAT)
	require.Equal(t, 220.0, body.Data.Total)

	rr = httptest.NewRecorder()
	h.Quote(rr, httptest.NewRequest(http.MethodGet, "/api/v1/vat/quote?amount=107.5&mode=inclusive", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.InDelta(t, 100, body.Data.Subtotal, 1e-9)
	require.Equal(t, 7.5, body.Data.RatePercent)

	for _, target := range []string{
		"/api/v1/vat/quote?amount=-1",
		"/api/v1/vat/quote?amount=abc",
		"/api/v1/vat/quote?amount=10&rate=NaN",
		"/api/v1/vat/quote?amount=10&mode=gross",
	} {
		rr = httptest.NewRecorder()
		h.Quote(rr, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}
