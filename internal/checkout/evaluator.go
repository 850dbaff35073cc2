package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-groupbuy/internal/common"
	"github.com/noah-isme/backend-groupbuy/internal/obs"
)

const defaultLookupTimeout = 2 * time.Second

// ErrBelowMinimumQuantity is returned by Admit when the quantity is under the MOQ.
var ErrBelowMinimumQuantity = errors.New("checkout: quantity below minimum order quantity")

// PolicySource fetches the raw policy row for a user. A nil row with nil error
// means no row exists.
type PolicySource interface {
	FetchPolicyRow(ctx context.Context, userID uuid.UUID) (Row, error)
}

// Evaluator computes checkout policies. It holds no mutable state and is safe
// for concurrent use.
type Evaluator struct {
	Source        PolicySource
	StandardMOQ   int
	LookupTimeout time.Duration
	Logger        zerolog.Logger
}

// Evaluate returns the policy for userID. It never fails: anonymous callers,
// missing rows and lookup errors all resolve to the default policy.
func (e *Evaluator) Evaluate(ctx context.Context, userID string) Policy {
	fallback := DefaultPolicy(e.StandardMOQ)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		obs.CountPolicyEvaluation("anonymous")
		return fallback
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		obs.CountPolicyEvaluation("anonymous")
		e.Logger.Warn().Str("user_id", userID).Msg("checkout policy: unparsable user id, using default")
		return fallback
	}
	if e.Source == nil {
		obs.CountPolicyEvaluation("lookup_error")
		return fallback
	}

	ctx, span := otel.Tracer("checkout.policy").Start(ctx, "checkout.evaluate_policy")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.lookupTimeout())
	defer cancel()

	row, err := e.fetch(ctx, uid)
	if err != nil {
		span.RecordError(err)
		obs.CountPolicyEvaluation("lookup_error")
		e.Logger.Warn().Err(err).Str("user_id", userID).Msg("checkout policy lookup failed, using default")
		return fallback
	}
	if row == nil {
		obs.CountPolicyEvaluation("no_row")
		return fallback
	}
	policy := ParseRow(row, e.StandardMOQ)
	span.SetAttributes(
		attribute.Int("checkout.required_moq", policy.RequiredMOQ),
		attribute.Bool("checkout.influencer", policy.IsInfluencer),
	)
	obs.CountPolicyEvaluation("resolved")
	return policy
}

// sources that panic on malformed rows degrade like any other lookup error
func (e *Evaluator) fetch(ctx context.Context, uid uuid.UUID) (row Row, err error) {
	defer func() {
		if r := recover(); r != nil {
			row, err = nil, fmt.Errorf("policy source panic: %v", r)
		}
	}()
	return e.Source.FetchPolicyRow(ctx, uid)
}

func (e *Evaluator) lookupTimeout() time.Duration {
	if e.LookupTimeout <= 0 {
		return defaultLookupTimeout
	}
	return e.LookupTimeout
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Quantity int    `json:"quantity"`
	Policy   Policy `json:"policy"`
}

// Admit gates a checkout of quantity units. Quantities below 1 are rejected as
// invalid input; quantities below the MOQ return ErrBelowMinimumQuantity.
func (e *Evaluator) Admit(ctx context.Context, userID string, quantity int) (Decision, error) {
	if quantity < 1 {
		obs.CountAdmission("invalid")
		return Decision{}, common.BadRequest("quantity must be at least 1", nil)
	}
	policy := e.Evaluate(ctx, userID)
	decision := Decision{Allowed: quantity >= policy.RequiredMOQ, Quantity: quantity, Policy: policy}
	if !decision.Allowed {
		obs.CountAdmission("rejected")
		appErr := common.NewAppError("MOQ_NOT_MET",
			fmt.Sprintf("minimum order quantity is %d", policy.RequiredMOQ),
			http.StatusUnprocessableEntity, ErrBelowMinimumQuantity)
		return decision, appErr.WithDetails(decision)
	}
	obs.CountAdmission("allowed")
	return decision, nil
}
