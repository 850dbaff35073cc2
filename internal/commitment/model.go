// Package commitment owns group-buy commitments and the sweep that expires
// commitments whose payment window has lapsed.
package commitment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a commitment.
type Status string

const (
	StatusCommittedUnpaid      Status = "committed_unpaid"
	StatusPaid                 Status = "paid"
	StatusPaymentWindowExpired Status = "payment_window_expired"
)

// Terminal reports whether no transition out of s is defined.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusPaymentWindowExpired
}

// CanTransition reports whether this service may move a commitment from s to next.
// The only such move is committed_unpaid -> payment_window_expired; statuses
// unknown to this service are never mutated.
func (s Status) CanTransition(next Status) bool {
	return s == StatusCommittedUnpaid && next == StatusPaymentWindowExpired
}

// Commitment is a buyer's pledge to a campaign.
type Commitment struct {
	ID              uuid.UUID  `json:"id"`
	CampaignID      uuid.UUID  `json:"campaignId"`
	UserID          uuid.UUID  `json:"userId"`
	Status          Status     `json:"status"`
	PaymentDeadline *time.Time `json:"paymentDeadline,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Lapsed reports whether the commitment is eligible for expiry at now.
func (c Commitment) Lapsed(now time.Time) bool {
	return c.Status == StatusCommittedUnpaid && c.PaymentDeadline != nil && c.PaymentDeadline.Before(now)
}

// Cursor is a keyset position over (payment_deadline, id).
type Cursor struct {
	Deadline time.Time
	ID       uuid.UUID
}

// IsZero reports whether the cursor points before the first row.
func (c Cursor) IsZero() bool {
	return c.Deadline.IsZero() && c.ID == uuid.Nil
}

// After reports whether (deadline, id) sorts strictly after the cursor.
func (c Cursor) After(deadline time.Time, id uuid.UUID) bool {
	if c.IsZero() {
		return true
	}
	if !deadline.Equal(c.Deadline) {
		return deadline.After(c.Deadline)
	}
	return compareUUID(id, c.ID) > 0
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}
