package commitment

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-groupbuy/internal/common"
	"github.com/noah-isme/backend-groupbuy/internal/obs"
)

// CronSecretHeader carries the shared secret presented by the scheduler.
const CronSecretHeader = "X-Cron-Secret"

const unauthorizedMessage = "Unauthorized: Invalid cron secret"

// Sweep is the operation the HTTP handler drives.
type Sweep interface {
	Sweep(ctx context.Context) (Result, error)
}

// Handler exposes the sweep over HTTP for external schedulers.
type Handler struct {
	Sweeper Sweep
	Secret  string
	Logger  zerolog.Logger
}

type expireResponse struct {
	Success            bool `json:"success"`
	ExpiredCommitments int  `json:"expiredCommitments"`
}

// Expire authorises the caller and runs one sweep. Authorization is decided
// before the store is touched.
func (h Handler) Expire(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.Header.Get(CronSecretHeader)) {
		obs.ObserveSweep("unauthorized", 0, 0, 0, false, 0)
		h.Logger.Warn().Str("client_ip", common.ClientIP(r)).Msg("rejected sweep with invalid cron secret")
		common.JSONMessage(w, http.StatusUnauthorized, unauthorizedMessage)
		return
	}
	if h.Sweeper == nil {
		common.JSONMessage(w, http.StatusInternalServerError, ErrStoreUnavailable.Error())
		return
	}
	res, err := h.Sweeper.Sweep(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("commitment sweep failed")
		common.JSONMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, expireResponse{Success: true, ExpiredCommitments: res.Expired})
}

// The presented header must match byte for byte. An unset server secret
// rejects every caller.
func (h Handler) authorized(presented string) bool {
	if h.Secret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.Secret)) == 1
}
