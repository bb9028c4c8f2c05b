// Package pool manages the user's tracked assets, their PB thresholds and industry defaults.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
)

// Service owns writes to assets, thresholds and industry configs.
type Service struct {
	db  *store.DB
	log zerolog.Logger
	now func() time.Time
}

// NewService creates a pool Service.
func NewService(db *store.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With().Str("service", "pool").Logger(),
		now: time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// AddRequest is the input of Add. A nil Threshold falls back to the industry default, if any.
type AddRequest struct {
	Code            string           `json:"code"`
	Name            string           `json:"name"`
	Market          string           `json:"market"`
	Industry        string           `json:"industry"`
	Tags            string           `json:"tags"`
	CompetenceScore int              `json:"competence_score"`
	Notes           string           `json:"notes"`
	Threshold       *model.Threshold `json:"threshold,omitempty"`
}

// Add creates an asset and, when possible, its threshold in one transaction.
func (s *Service) Add(ctx context.Context, userID int64, req AddRequest) (*model.Asset, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, model.NewValidationError("code is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, model.NewValidationError("name is required")
	}
	market, err := model.ParseMarket(req.Market)
	if err != nil {
		return nil, model.NewValidationError("%v", err)
	}
	score := req.CompetenceScore
	if score == 0 {
		score = 3
	}
	if score < 1 || score > 5 {
		return nil, model.NewValidationError("competence_score must be 1~5, got %d", score)
	}
	if req.Threshold != nil {
		if err := req.Threshold.Validate(); err != nil {
			return nil, err
		}
	}

	a := &model.Asset{
		UserID:          userID,
		Code:            code,
		Name:            strings.TrimSpace(req.Name),
		Market:          market,
		Industry:        strings.TrimSpace(req.Industry),
		Tags:            req.Tags,
		CompetenceScore: score,
		Notes:           req.Notes,
	}
	now := s.now()
	err = s.db.InTx(ctx, func(q *store.Queries) error {
		if err := q.CreateAsset(ctx, a, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("asset %s already in pool: %w", code, err)
			}
			return err
		}
		th := req.Threshold
		if th == nil && a.Industry != "" {
			ind, err := q.GetIndustry(ctx, userID, a.Industry)
			switch {
			case errors.Is(err, model.ErrNotFound):
			case err != nil:
				return err
			default:
				th = ind.Threshold(a.ID)
			}
		}
		if th == nil {
			return nil
		}
		th.UserID, th.AssetID = userID, a.ID
		if err := th.Validate(); err != nil {
			return err
		}
		return q.UpsertThreshold(ctx, th, now)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", userID).Str("code", a.Code).Str("industry", a.Industry).Msg("asset added")
	return a, nil
}

// UpdateRequest carries optional field changes for Update.
type UpdateRequest struct {
	Name            *string `json:"name,omitempty"`
	Market          *string `json:"market,omitempty"`
	Industry        *string `json:"industry,omitempty"`
	Tags            *string `json:"tags,omitempty"`
	CompetenceScore *int    `json:"competence_score,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

// Update changes the supplied fields of the asset identified by code.
func (s *Service) Update(ctx context.Context, userID int64, code string, req UpdateRequest) (*model.Asset, error) {
	a, err := s.Get(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, model.NewValidationError("name is required")
		}
		a.Name = strings.TrimSpace(*req.Name)
	}
	if req.Market != nil {
		m, err := model.ParseMarket(*req.Market)
		if err != nil {
			return nil, model.NewValidationError("%v", err)
		}
		a.Market = m
	}
	if req.Industry != nil {
		a.Industry = strings.TrimSpace(*req.Industry)
	}
	if req.Tags != nil {
		a.Tags = *req.Tags
	}
	if req.CompetenceScore != nil {
		if *req.CompetenceScore < 1 || *req.CompetenceScore > 5 {
			return nil, model.NewValidationError("competence_score must be 1~5, got %d", *req.CompetenceScore)
		}
		a.CompetenceScore = *req.CompetenceScore
	}
	if req.Notes != nil {
		a.Notes = *req.Notes
	}
	if err := s.db.Queries().UpdateAsset(ctx, a, s.now()); err != nil {
		return nil, err
	}
	return a, nil
}

// Remove deletes an asset together with its threshold, valuations, signals, actions and position.
func (s *Service) Remove(ctx context.Context, userID int64, code string) error {
	a, err := s.Get(ctx, userID, code)
	if err != nil {
		return err
	}
	if err := s.db.Queries().DeleteAsset(ctx, userID, a.ID); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", userID).Str("code", a.Code).Msg("asset removed")
	return nil
}

// Get loads an asset by code. Codes are matched case-insensitively.
func (s *Service) Get(ctx context.Context, userID int64, code string) (*model.Asset, error) {
	return s.db.Queries().GetAssetByCode(ctx, userID, strings.ToUpper(strings.TrimSpace(code)))
}

// List returns the user's assets matching f.
func (s *Service) List(ctx context.Context, userID int64, f store.AssetFilter) ([]model.Asset, error) {
	return s.db.Queries().ListAssets(ctx, userID, f)
}

// Search matches the keyword against code and name.
func (s *Service) Search(ctx context.Context, userID int64, keyword string) ([]model.Asset, error) {
	return s.List(ctx, userID, store.AssetFilter{Keyword: keyword})
}

// SetThreshold validates and stores the PB levels of the asset identified by code.
func (s *Service) SetThreshold(ctx context.Context, userID int64, code string, t model.Threshold) (*model.Threshold, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	a, err := s.Get(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	t.UserID, t.AssetID = userID, a.ID
	if err := s.db.Queries().UpsertThreshold(ctx, &t, s.now()); err != nil {
		return nil, err
	}
	s.log.Info().Str("code", a.Code).Float64("buy_pb", t.BuyPB).Msg("threshold updated")
	return &t, nil
}

// Threshold returns the PB levels of an asset, or model.ErrNotFound if it is not monitored.
func (s *Service) Threshold(ctx context.Context, userID, assetID int64) (*model.Threshold, error) {
	return s.db.Queries().GetThreshold(ctx, userID, assetID)
}

// SetAIAnnotation stores an opaque score (1~5) and summary. Nothing in the decision path reads them.
func (s *Service) SetAIAnnotation(ctx context.Context, userID, assetID int64, score int, summary string) error {
	if score < 1 || score > 5 {
		return model.NewValidationError("ai score must be 1~5, got %d", score)
	}
	return s.db.Queries().SetAIAnnotation(ctx, userID, assetID, score, summary, s.now())
}
