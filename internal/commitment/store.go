package commitment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the commitment store dependency is not configured.
var ErrStoreUnavailable = errors.New("commitment: store unavailable")

// Store is the persistence contract the sweeper relies on.
type Store interface {
	// ListLapsed returns up to limit committed_unpaid commitments with a deadline
	// before now, ordered by (payment_deadline, id) and strictly after cursor.
	ListLapsed(ctx context.Context, now time.Time, after Cursor, limit int) ([]Commitment, error)
	// MarkExpired moves one commitment to payment_window_expired only if it is
	// still committed_unpaid. It reports false when the guard did not match.
	MarkExpired(ctx context.Context, id uuid.UUID) (bool, error)
}

// NewPGStore constructs a Store backed by a pgx connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// PGStore reads and guards writes on group_buy_commitments.
type PGStore struct {
	pool *pgxpool.Pool
}

const listLapsedSQL = `SELECT id, campaign_id, user_id, status, payment_deadline, created_at
FROM group_buy_commitments
WHERE status = $1
  AND payment_deadline IS NOT NULL
  AND payment_deadline < $2
  AND (payment_deadline, id) > ($3, $4)
ORDER BY payment_deadline, id
LIMIT $5`

const listLapsedFirstSQL = `SELECT id, campaign_id, user_id, status, payment_deadline, created_at
FROM group_buy_commitments
WHERE status = $1
  AND payment_deadline IS NOT NULL
  AND payment_deadline < $2
ORDER BY payment_deadline, id
LIMIT $3`

const markExpiredSQL = `UPDATE group_buy_commitments
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3`

// ListLapsed implements Store.
func (s *PGStore) ListLapsed(ctx context.Context, now time.Time, after Cursor, limit int) ([]Commitment, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	var (
		rows pgx.Rows
		err  error
	)
	if after.IsZero() {
		rows, err = s.pool.Query(ctx, listLapsedFirstSQL, string(StatusCommittedUnpaid), now, limit)
	} else {
		rows, err = s.pool.Query(ctx, listLapsedSQL, string(StatusCommittedUnpaid), now, after.Deadline, after.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Commitment, 0, limit)
	for rows.Next() {
		var (
			c      Commitment
			status string
		)
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.UserID, &status, &c.PaymentDeadline, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Status = Status(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkExpired implements Store.
func (s *PGStore) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	if s == nil || s.pool == nil {
		return false, ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, markExpiredSQL, id, string(StatusPaymentWindowExpired), string(StatusCommittedUnpaid))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
