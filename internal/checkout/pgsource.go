package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource reads the policy row through the get_checkout_policy SQL function.
// The row is decoded as JSON so that column types drifting upstream surface as
// coercion defaults rather than scan errors.
type PGSource struct {
	Pool *pgxpool.Pool
}

const fetchPolicySQL = `SELECT to_jsonb(p) FROM get_checkout_policy($1) AS p LIMIT 1`

// FetchPolicyRow implements PolicySource.
func (s PGSource) FetchPolicyRow(ctx context.Context, userID uuid.UUID) (Row, error) {
	if s.Pool == nil {
		return nil, errors.New("checkout: policy source not configured")
	}
	var raw []byte
	if err := s.Pool.QueryRow(ctx, fetchPolicySQL, userID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeRow(raw)
}

func decodeRow(raw []byte) (Row, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var row Row
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&row); err != nil {
		return nil, fmt.Errorf("decode policy row: %w", err)
	}
	return row, nil
}
