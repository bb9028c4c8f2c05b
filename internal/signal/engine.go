// Package signal turns the latest PB of each monitored asset into BUY, ADD or SELL signals.
package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ValueSentinel/internal/config"
	"ValueSentinel/internal/keylock"
	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
	"ValueSentinel/internal/valuation"
)

// Engine evaluates thresholds and persists accepted signals.
type Engine struct {
	db         *store.DB
	valuations *valuation.Service
	filters    []Filter
	years      int
	log        zerolog.Logger
	now        func() time.Time
	locks      keylock.Map
}

// NewEngine builds an Engine with the filters enabled in cfg.
func NewEngine(db *store.DB, vals *valuation.Service, cfg config.SignalConfig, fundamentals Fundamentals, log zerolog.Logger) *Engine {
	var filters []Filter
	if !cfg.DisableCooldown {
		filters = append(filters, Cooldown{Days: cfg.CooldownDays})
	}
	if cfg.QualityGateEnabled {
		if fundamentals == nil {
			fundamentals = NoFundamentals{}
		}
		filters = append(filters, QualityGate{Source: fundamentals, MinROE: cfg.MinROE})
	}
	return &Engine{
		db:         db,
		valuations: vals,
		filters:    filters,
		years:      cfg.PercentileYears,
		log:        log.With().Str("service", "signal").Logger(),
		now:        time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Evaluate checks one asset. It returns nil when nothing applies: no threshold,
// no valuation, null PB, no trigger or a filtered trigger. If an OPEN signal
// already exists for today it is returned unchanged.
func (e *Engine) Evaluate(ctx context.Context, userID, assetID int64) (*model.Signal, error) {
	s, _, err := e.evaluate(ctx, userID, assetID)
	return s, err
}

// Scan evaluates every monitored asset of the user and returns the signals created by this call.
// A failing asset is logged and skipped; the failures are returned joined.
func (e *Engine) Scan(ctx context.Context, userID int64) ([]model.Signal, error) {
	assets, err := e.db.Queries().ListAssets(ctx, userID, store.AssetFilter{MonitoredOnly: true})
	if err != nil {
		return nil, err
	}

	var (
		created []model.Signal
		errs    []error
	)
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		s, isNew, err := e.evaluate(ctx, userID, a.ID)
		if err != nil {
			e.log.Error().Err(err).Str("code", a.Code).Msg("evaluate failed")
			errs = append(errs, fmt.Errorf("%s: %w", a.Code, err))
			continue
		}
		if isNew {
			created = append(created, *s)
		}
	}
	e.log.Info().Int64("user_id", userID).Int("assets", len(assets)).Int("signals", len(created)).Msg("scan finished")
	return created, errors.Join(errs...)
}

func (e *Engine) evaluate(ctx context.Context, userID, assetID int64) (*model.Signal, bool, error) {
	defer e.locks.Lock(fmt.Sprintf("%d:%d", userID, assetID))()

	q := e.db.Queries()
	logger := e.log.With().Int64("user_id", userID).Int64("asset_id", assetID).Logger()

	asset, err := q.GetAsset(ctx, userID, assetID)
	if err != nil {
		return nil, false, err
	}
	th, err := q.GetThreshold(ctx, userID, assetID)
	if errors.Is(err, model.ErrNotFound) {
		logger.Debug().Msg("no threshold, skipped")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	latest, err := q.LatestValuation(ctx, userID, assetID)
	if errors.Is(err, model.ErrNotFound) {
		logger.Debug().Msg("no valuation, skipped")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if latest.PB == nil {
		logger.Debug().Msg("latest pb is null, skipped")
		return nil, false, nil
	}
	pb := *latest.PB

	today := model.Day(e.now())
	existing, err := q.OpenSignalOn(ctx, userID, assetID, today)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, false, err
	}

	pos, err := q.GetPosition(ctx, userID, assetID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, false, err
	}
	tr, ok := Decide(th, pb, pos.Held())
	if !ok {
		return nil, false, nil
	}

	c := Candidate{Asset: asset, Trigger: tr, PB: pb, Today: today}
	for _, f := range e.filters {
		allowed, why, err := f.Allow(ctx, q, c)
		if err != nil {
			return nil, false, fmt.Errorf("%s filter: %w", f.Name(), err)
		}
		if !allowed {
			logger.Debug().Str("filter", f.Name()).Str("type", string(tr.Type)).Str("why", why).Msg("signal suppressed")
			return nil, false, nil
		}
	}

	pct, err := e.valuations.Percentile(ctx, userID, assetID, pb, e.years)
	if err != nil {
		return nil, false, err
	}
	s := &model.Signal{
		UserID:             userID,
		AssetID:            assetID,
		Date:               today,
		Type:               tr.Type,
		PB:                 pb,
		TriggeredThreshold: tr.Level,
		Explanation:        Explain(tr, pb, pct, e.years),
		Status:             model.SignalOpen,
	}
	if err := q.CreateSignal(ctx, s, e.now()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// another process won the race for today's row
			existing, rerr := q.OpenSignalOn(ctx, userID, assetID, today)
			if rerr != nil {
				return nil, false, rerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	logger.Info().Str("code", asset.Code).Str("type", string(s.Type)).Float64("pb", pb).
		Float64("threshold", tr.Level).Msg("signal created")
	return s, true, nil
}
