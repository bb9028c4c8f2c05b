package action

import (
	"context"
	"time"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
)

// History lists actions of the last days days. assetID and typ are optional filters.
func (s *Service) History(ctx context.Context, userID int64, days int, assetID int64, typ model.ActionType) ([]model.Action, error) {
	return s.db.Queries().ListActions(ctx, userID, store.ActionFilter{
		AssetID: assetID,
		Type:    typ,
		Since:   s.since(days),
	})
}

// Recent lists the newest limit actions.
func (s *Service) Recent(ctx context.Context, userID int64, limit int) ([]model.Action, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.db.Queries().ListActions(ctx, userID, store.ActionFilter{Limit: limit})
}

// ComplianceStats summarizes the non-HOLD actions of the last days days.
// With no actions the rate is 100.
func (s *Service) ComplianceStats(ctx context.Context, userID int64, days int) (*model.ComplianceStats, error) {
	actions, err := s.db.Queries().ListActions(ctx, userID, store.ActionFilter{
		Since:       s.since(days),
		ExcludeHold: true,
	})
	if err != nil {
		return nil, err
	}
	stats := &model.ComplianceStats{ComplianceRate: 100, Violations: []model.ComplianceViolation{}}
	for _, a := range actions {
		stats.TotalActions++
		if a.RuleCompliance {
			stats.CompliantActions++
			continue
		}
		stats.Violations = append(stats.Violations, model.ComplianceViolation{
			ActionID: a.ID,
			AssetID:  a.AssetID,
			Date:     a.ActionDate,
			Type:     a.Type,
			Note:     a.ComplianceNote,
		})
	}
	if stats.TotalActions > 0 {
		stats.ComplianceRate = float64(stats.CompliantActions) / float64(stats.TotalActions) * 100
	}
	return stats, nil
}

func (s *Service) since(days int) time.Time {
	if days <= 0 {
		days = 90
	}
	return model.Day(s.now()).AddDate(0, 0, -days)
}
