package pool

import (
	"context"
	"strings"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
)

// RiskPreference scales industry default thresholds.
type RiskPreference string

const (
	Conservative RiskPreference = "conservative"
	Moderate     RiskPreference = "moderate"
	Aggressive   RiskPreference = "aggressive"
)

// multipliers for buy, add and sell levels
var preferenceScale = map[RiskPreference][3]float64{
	Conservative: {0.9, 0.85, 0.95},
	Aggressive:   {1.1, 1.15, 1.05},
}

// SaveIndustry creates or replaces an industry config.
func (s *Service) SaveIndustry(ctx context.Context, c model.IndustryConfig) (*model.IndustryConfig, error) {
	c.Industry = strings.TrimSpace(c.Industry)
	if c.Industry == "" {
		return nil, model.NewValidationError("industry is required")
	}
	if err := c.Threshold(0).Validate(); err != nil {
		return nil, err
	}
	if m := c.RecommendedMaxPosition; m != nil && (*m <= 0 || *m > 100) {
		return nil, model.NewValidationError("recommended_max_position must be in (0, 100], got %.2f", *m)
	}
	if err := s.db.Queries().UpsertIndustry(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Industry returns one industry config.
func (s *Service) Industry(ctx context.Context, userID int64, industry string) (*model.IndustryConfig, error) {
	return s.db.Queries().GetIndustry(ctx, userID, industry)
}

// Industries lists the user's industry configs.
func (s *Service) Industries(ctx context.Context, userID int64) ([]model.IndustryConfig, error) {
	return s.db.Queries().ListIndustries(ctx, userID)
}

// DeleteIndustry removes an industry config. Thresholds already derived from it stay.
func (s *Service) DeleteIndustry(ctx context.Context, userID int64, industry string) error {
	return s.db.Queries().DeleteIndustry(ctx, userID, industry)
}

// IndustryThreshold returns the industry default levels scaled for pref.
func (s *Service) IndustryThreshold(ctx context.Context, userID int64, industry string, pref RiskPreference) (*model.Threshold, error) {
	c, err := s.Industry(ctx, userID, industry)
	if err != nil {
		return nil, err
	}
	t := c.Threshold(0)
	if k, ok := preferenceScale[pref]; ok {
		t.BuyPB *= k[0]
		if t.AddPB != nil {
			v := *t.AddPB * k[1]
			t.AddPB = &v
		}
		if t.SellPB != nil {
			v := *t.SellPB * k[2]
			t.SellPB = &v
		}
	}
	return t, nil
}

// ApplyIndustryDefaults gives every unmonitored asset of the industry its default threshold.
// It returns the number of assets updated.
func (s *Service) ApplyIndustryDefaults(ctx context.Context, userID int64, industry string) (int, error) {
	c, err := s.Industry(ctx, userID, industry)
	if err != nil {
		return 0, err
	}
	assets, err := s.List(ctx, userID, store.AssetFilter{Industry: industry})
	if err != nil {
		return 0, err
	}
	monitored, err := s.List(ctx, userID, store.AssetFilter{Industry: industry, MonitoredOnly: true})
	if err != nil {
		return 0, err
	}
	skip := make(map[int64]bool, len(monitored))
	for _, a := range monitored {
		skip[a.ID] = true
	}

	n := 0
	for _, a := range assets {
		if skip[a.ID] {
			continue
		}
		if err := s.db.Queries().UpsertThreshold(ctx, c.Threshold(a.ID), s.now()); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		s.log.Info().Str("industry", industry).Int("assets", n).Msg("industry defaults applied")
	}
	return n, nil
}
