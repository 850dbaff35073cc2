package commitment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-groupbuy/internal/events"
	"github.com/noah-isme/backend-groupbuy/internal/obs"
)

const (
	defaultPageSize    = 200
	maxPageSize        = 1000
	defaultMaxPages    = 5
	defaultConcurrency = 4
	defaultTimeout     = 25 * time.Second
)

// EventPublisher receives a domain event after each successful expiry.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) error
}

// Result summarises one sweep invocation.
type Result struct {
	Expired   int  `json:"expired"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Scanned   int  `json:"scanned"`
	Pages     int  `json:"pages"`
	Truncated bool `json:"truncated"`
}

// Sweeper expires lapsed commitments in bounded, keyset-paged passes. A Sweeper
// holds configuration only; every Sweep call owns its own worker semaphore.
type Sweeper struct {
	Store       Store
	Events      EventPublisher
	Logger      zerolog.Logger
	PageSize    int
	MaxPages    int
	Concurrency int
	Timeout     time.Duration
	Now         func() time.Time
}

// Sweep runs one pass. Selection errors abort the pass; per-row write errors are
// logged, counted in Result.Failed and left for the next invocation.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	if s == nil || s.Store == nil {
		return res, ErrStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	ctx, span := otel.Tracer("commitment.sweeper").Start(ctx, "commitment.sweep")
	defer span.End()

	start := time.Now()
	now := s.now().UTC()
	pageSize := s.pageSize()
	var cursor Cursor

	for page := 0; ; page++ {
		if page == s.maxPages() {
			res.Truncated = true
			break
		}
		batch, err := s.Store.ListLapsed(ctx, now, cursor, pageSize)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "select lapsed commitments")
			obs.ObserveSweep("error", res.Expired, res.Skipped, res.Failed, false, obs.DurationMillis(time.Since(start)))
			return res, fmt.Errorf("select lapsed commitments: %w", err)
		}
		res.Pages++
		res.Scanned += len(batch)
		if len(batch) == 0 {
			break
		}

		s.expirePage(ctx, now, batch, &res)

		last := batch[len(batch)-1]
		if last.PaymentDeadline == nil {
			break
		}
		cursor = Cursor{Deadline: *last.PaymentDeadline, ID: last.ID}
		if len(batch) < pageSize {
			break
		}
		if err := ctx.Err(); err != nil {
			res.Truncated = true
			break
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.expired", res.Expired),
		attribute.Int("sweep.skipped", res.Skipped),
		attribute.Int("sweep.failed", res.Failed),
		attribute.Int("sweep.pages", res.Pages),
		attribute.Bool("sweep.truncated", res.Truncated),
	)
	elapsed := time.Since(start)
	obs.ObserveSweep("ok", res.Expired, res.Skipped, res.Failed, res.Truncated, obs.DurationMillis(elapsed))
	s.Logger.Info().
		Int("expired", res.Expired).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("scanned", res.Scanned).
		Int("pages", res.Pages).
		Bool("truncated", res.Truncated).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("commitment sweep finished")
	return res, nil
}

func (s *Sweeper) expirePage(ctx context.Context, now time.Time, batch []Commitment, res *Result) {
	sem := make(chan struct{}, s.concurrency())
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range batch {
		// rows the store returned outside the selection predicate are not ours to touch
		if !c.Lapsed(now) {
			mu.Lock()
			res.Skipped++
			mu.Unlock()
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(c Commitment) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := s.expireOne(ctx, now, c)
			mu.Lock()
			switch outcome {
			case outcomeExpired:
				res.Expired++
			case outcomeSkipped:
				res.Skipped++
			default:
				res.Failed++
			}
			mu.Unlock()
		}(c)
	}
	wg.Wait()
}

type outcome int

const (
	outcomeExpired outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *Sweeper) expireOne(ctx context.Context, now time.Time, c Commitment) outcome {
	ok, err := s.Store.MarkExpired(ctx, c.ID)
	if err != nil {
		lvl := s.Logger.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			lvl = s.Logger.Warn()
		}
		lvl.Err(err).Str("commitment_id", c.ID.String()).Msg("expire commitment failed")
		return outcomeFailed
	}
	if !ok {
		return outcomeSkipped
	}
	if s.Events != nil {
		payload := map[string]any{
			"commitmentId":    c.ID,
			"campaignId":      c.CampaignID,
			"userId":          c.UserID,
			"paymentDeadline": c.PaymentDeadline,
			"expiredAt":       now,
		}
		if err := s.Events.Publish(ctx, events.TopicCommitmentPaymentWindowExpired, c.ID, payload); err != nil {
			s.Logger.Warn().Err(err).Str("commitment_id", c.ID.String()).Msg("publish expiry event failed")
		}
	}
	return outcomeExpired
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sweeper) pageSize() int {
	switch {
	case s.PageSize <= 0:
		return defaultPageSize
	case s.PageSize > maxPageSize:
		return maxPageSize
	default:
		return s.PageSize
	}
}

func (s *Sweeper) maxPages() int {
	if s.MaxPages <= 0 {
		return defaultMaxPages
	}
	return s.MaxPages
}

func (s *Sweeper) concurrency() int {
	if s.Concurrency <= 0 {
		return defaultConcurrency
	}
	return s.Concurrency
}

func (s *Sweeper) timeout() time.Duration {
	if s.Timeout <= 0 {
		return defaultTimeout
	}
	return s.Timeout
}
