package vat

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-groupbuy/internal/common"
)

// Handler exposes VAT quotes for checkout and reporting clients.
type Handler struct {
	DefaultRatePercent float64
}

// Quote renders a breakdown for ?amount=&rate=&mode=exclusive|inclusive.
func (h Handler) Quote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, ok := parseNonNegative(query.Get("amount"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must be a non-negative number", nil)
		return
	}
	rate := h.DefaultRatePercent
	if raw := strings.TrimSpace(query.Get("rate")); raw != "" {
		rate, ok = parseNonNegative(raw)
		if !ok {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "rate must be a non-negative number", nil)
			return
		}
	}
	var out Breakdown
	switch strings.ToLower(strings.TrimSpace(query.Get("mode"))) {
	case "", "exclusive":
		out = Exclusive(amount, rate)
	case "inclusive":
		out = Inclusive(amount, rate)
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "mode must be exclusive or inclusive", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func parseNonNegative(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
