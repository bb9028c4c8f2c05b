// Package collector writes market PB observations into the valuation history.
// It never creates or touches signals.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
	"ValueSentinel/internal/valuation"
)

// Collector fetches quotes for every tracked asset and stores them.
type Collector struct {
	Fetcher      Fetcher
	db           *store.DB
	valuations   *valuation.Service
	historyYears int
	log          zerolog.Logger
	now          func() time.Time
}

// NewCollector creates a new Collector. historyYears bounds the backfill of assets without history.
func NewCollector(fetcher Fetcher, db *store.DB, vals *valuation.Service, historyYears int, log zerolog.Logger) *Collector {
	return &Collector{
		Fetcher:      fetcher,
		db:           db,
		valuations:   vals,
		historyYears: historyYears,
		log:          log.With().Str("service", "collector").Str("source", fetcher.Name()).Logger(),
		now:          time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (c *Collector) SetClock(now func() time.Time) { c.now = now }

// Result counts what one Collect run did.
type Result struct {
	Assets     int      `json:"assets"`
	Quotes     int      `json:"quotes"`
	Backfilled int      `json:"backfilled"`
	Failed     []string `json:"failed,omitempty"`
}

// Collect stores today's quote for each of the user's assets, backfilling history for
// assets that have none. A failing asset is skipped; failures are returned joined.
func (c *Collector) Collect(ctx context.Context, userID int64) (*Result, error) {
	assets, err := c.db.Queries().ListAssets(ctx, userID, store.AssetFilter{})
	if err != nil {
		return nil, err
	}
	res := &Result{Assets: len(assets)}
	var errs []error
	for i := range assets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		a := &assets[i]
		n, err := c.collectOne(ctx, a)
		if err != nil {
			c.log.Warn().Err(err).Str("code", a.Code).Msg("collect failed")
			res.Failed = append(res.Failed, a.Code)
			errs = append(errs, fmt.Errorf("%s: %w", a.Code, err))
			continue
		}
		res.Quotes++
		res.Backfilled += n
	}
	c.log.Info().Int64("user_id", userID).Int("assets", res.Assets).Int("quotes", res.Quotes).
		Int("backfilled", res.Backfilled).Int("failed", len(res.Failed)).Msg("collect finished")
	return res, errors.Join(errs...)
}

func (c *Collector) collectOne(ctx context.Context, a *model.Asset) (int, error) {
	latest, err := c.valuations.Latest(ctx, a.UserID, a.ID)
	if err != nil {
		return 0, err
	}
	backfilled := 0
	if latest == nil && c.historyYears > 0 {
		since := model.Day(c.now()).AddDate(-c.historyYears, 0, 0)
		points, err := c.Fetcher.FetchHistory(ctx, a, since)
		if err != nil {
			return 0, fmt.Errorf("fetch history: %w", err)
		}
		for _, p := range points {
			if err := c.valuations.Upsert(ctx, &model.Valuation{
				UserID: a.UserID, AssetID: a.ID, Date: p.Date, PB: p.PB, Price: p.Price,
				Source: c.Fetcher.Name(), FetchedAt: c.now(),
			}); err != nil {
				return backfilled, err
			}
			backfilled++
		}
	}

	q, err := c.Fetcher.FetchQuote(ctx, a)
	if err != nil {
		return backfilled, fmt.Errorf("fetch quote: %w", err)
	}
	if q.PB != nil && *q.PB <= 0 {
		// loss-making companies report negative book value
		q.PB = nil
	}
	c.log.Debug().Str("code", a.Code).Str("pb", describe(q.PB)).Str("price", describe(q.Price)).Msg("quote")
	return backfilled, c.valuations.Upsert(ctx, &model.Valuation{
		UserID:            a.UserID,
		AssetID:           a.ID,
		Date:              c.now(),
		PB:                q.PB,
		Price:             q.Price,
		BookValuePerShare: q.BookValue,
		Source:            c.Fetcher.Name(),
		FetchedAt:         c.now(),
	})
}
