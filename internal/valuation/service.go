// Package valuation answers PB questions over the stored time series.
package valuation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ValueSentinel/internal/calculator"
	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
)

// Service is the read side of the valuation history, plus the ingestion write path.
type Service struct {
	db  *store.DB
	log zerolog.Logger
	now func() time.Time
}

// NewService creates a valuation Service.
func NewService(db *store.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With().Str("service", "valuation").Logger(),
		now: time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Upsert stores one observation, replacing any existing row for (asset, date).
func (s *Service) Upsert(ctx context.Context, v *model.Valuation) error {
	if v.PB != nil && *v.PB <= 0 {
		return model.NewValidationError("pb must be positive, got %.4f", *v.PB)
	}
	if v.Date.IsZero() {
		return model.NewValidationError("valuation date is required")
	}
	v.Date = model.Day(v.Date)
	if v.FetchedAt.IsZero() {
		v.FetchedAt = s.now()
	}
	if _, err := s.db.Queries().GetAsset(ctx, v.UserID, v.AssetID); err != nil {
		return err
	}
	return s.db.Queries().UpsertValuation(ctx, v)
}

// Latest returns the observation with the greatest date, or nil if there is none.
func (s *Service) Latest(ctx context.Context, userID, assetID int64) (*model.Valuation, error) {
	v, err := s.db.Queries().LatestValuation(ctx, userID, assetID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// History returns observations of the last years years in ascending date order.
// years <= 0 returns the full history.
func (s *Service) History(ctx context.Context, userID, assetID int64, years int) ([]model.Valuation, error) {
	var since time.Time
	if years > 0 {
		since = s.since(years)
	}
	return s.db.Queries().ListValuations(ctx, userID, assetID, since)
}

// Percentile returns the share (0~100) of PB observations within the lookback that are <= value.
// It returns nil when there is no history.
func (s *Service) Percentile(ctx context.Context, userID, assetID int64, value float64, years int) (*float64, error) {
	series, err := s.db.Queries().PBSeries(ctx, userID, assetID, s.since(years))
	if err != nil {
		return nil, err
	}
	p, err := calculator.Percentile(series, value)
	if errors.Is(err, calculator.ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Stats returns min/max/avg/count over the lookback, or nil when there is no history.
func (s *Service) Stats(ctx context.Context, userID, assetID int64, years int) (*model.PBStats, error) {
	series, err := s.db.Queries().PBSeries(ctx, userID, assetID, s.since(years))
	if err != nil {
		return nil, err
	}
	sum, err := calculator.Summarize(series)
	if errors.Is(err, calculator.ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.PBStats{Min: sum.Min, Max: sum.Max, Avg: sum.Avg, Count: sum.Count, Years: years}, nil
}

// Recommend derives threshold levels from the lookback's PB quantiles.
func (s *Service) Recommend(ctx context.Context, userID, assetID int64, years int) (*calculator.Recommendation, error) {
	series, err := s.db.Queries().PBSeries(ctx, userID, assetID, s.since(years))
	if err != nil {
		return nil, err
	}
	r, err := calculator.RecommendThresholds(series)
	if err != nil {
		return nil, model.NewValidationError("%s: have %d points, need %d", err, len(series), calculator.MinRecommendSamples)
	}
	s.log.Debug().Int64("asset_id", assetID).Int("points", len(series)).
		Float64("buy_pb", r.BuyPB).Msg("thresholds recommended")
	return &r, nil
}

func (s *Service) since(years int) time.Time {
	if years <= 0 {
		years = 5
	}
	return model.Day(s.now()).AddDate(-years, 0, 0)
}
