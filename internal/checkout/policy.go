// Package checkout derives per-buyer admission requirements for group-buy checkout.
package checkout

import "github.com/noah-isme/backend-groupbuy/internal/common"

// StandardMOQ is the platform-wide minimum order quantity.
const StandardMOQ = 10

// Policy is the admission requirement computed for one checkout attempt.
type Policy struct {
	RequiredMOQ          int  `json:"required_moq"`
	IsInfluencer         bool `json:"is_influencer"`
	InfluencerMOQEnabled bool `json:"influencer_moq_enabled"`
	PaidOrdersLast30d    int  `json:"paid_orders_last_30d"`
}

// DefaultPolicy is the conservative baseline. It never relaxes the standard MOQ.
func DefaultPolicy(standardMOQ int) Policy {
	if standardMOQ < 1 {
		standardMOQ = StandardMOQ
	}
	return Policy{RequiredMOQ: standardMOQ}
}

// Row is the raw lookup result as decoded from the store.
type Row map[string]any

// ParseRow turns a loosely typed lookup row into a Policy. Missing or malformed
// fields take their defaults, so no field is ever left undefined.
func ParseRow(row Row, standardMOQ int) Policy {
	policy := DefaultPolicy(standardMOQ)
	if row == nil {
		return policy
	}
	policy.IsInfluencer = common.BoolOrDefault(row["is_influencer"], false)
	policy.InfluencerMOQEnabled = common.BoolOrDefault(row["influencer_moq_enabled"], false)
	if paid := common.IntOrDefault(row["paid_orders_last_30d"], 0); paid > 0 {
		policy.PaidOrdersLast30d = paid
	}
	if policy.InfluencerMOQEnabled && policy.IsInfluencer {
		if moq := common.IntOrDefault(row["required_moq"], 0); moq >= 1 {
			policy.RequiredMOQ = moq
		}
	}
	return policy
}
