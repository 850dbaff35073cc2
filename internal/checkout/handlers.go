package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-groupbuy/internal/common"
)

var validate = validator.New()

// Handler exposes the policy evaluator to checkout clients.
type Handler struct {
	Evaluator *Evaluator
}

type admissionRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// policies are per buyer and must never be served from a shared cache
func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

// Policy returns the caller's checkout policy. Anonymous callers get the default.
func (h *Handler) Policy(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	if h.Evaluator == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout policy not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Evaluator.Evaluate(r.Context(), userID)})
}

// Admission checks a requested quantity against the caller's MOQ.
func (h *Handler) Admission(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	if h.Evaluator == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout policy not configured", nil)
		return
	}
	var payload admissionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "quantity is required", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	decision, err := h.Evaluator.Admit(r.Context(), userID, *payload.Quantity)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": decision})
}
