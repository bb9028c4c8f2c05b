// Package action records trade decisions and applies them to positions and cash.
package action

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"ValueSentinel/internal/keylock"
	"ValueSentinel/internal/model"
	"ValueSentinel/internal/risk"
	"ValueSentinel/internal/store"
)

// MinReasonLength is the shortest accepted trade reason, in characters after trimming.
const MinReasonLength = 5

// Service is the only writer of actions, positions and signal status.
type Service struct {
	db    *store.DB
	risk  *risk.Checker
	log   zerolog.Logger
	now   func() time.Time
	locks keylock.Map
}

// NewService creates an action Service.
func NewService(db *store.DB, checker *risk.Checker, log zerolog.Logger) *Service {
	return &Service{
		db:   db,
		risk: checker,
		log:  log.With().Str("service", "action").Logger(),
		now:  time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ExecuteRequest is one user trade decision.
type ExecuteRequest struct {
	AssetID            int64            `json:"asset_id"`
	Type               model.ActionType `json:"action_type"`
	PlannedPositionPct float64          `json:"planned_position_pct"`
	Reason             string           `json:"reason"`
	SignalID           *int64           `json:"signal_id,omitempty"`
	Price              *float64         `json:"price,omitempty"`
	Shares             *int64           `json:"shares,omitempty"`
	Emotion            string           `json:"emotion,omitempty"`
	Force              bool             `json:"force_execute,omitempty"`
	ForceReason        string           `json:"force_reason,omitempty"`
	Cost               model.Cost       `json:"cost"`
}

func validateReason(reason string) error {
	if utf8.RuneCountInString(strings.TrimSpace(reason)) < MinReasonLength {
		return model.NewValidationError("reason must be at least %d characters", MinReasonLength)
	}
	return nil
}

func (s *Service) lockUser(userID int64) func() {
	return s.locks.Lock(strconv.FormatInt(userID, 10))
}

// Execute validates, risk-checks and applies a trade in one transaction. It returns the
// stored action and a one-line summary for the user.
func (s *Service) Execute(ctx context.Context, userID int64, req ExecuteRequest) (*model.Action, string, error) {
	if err := validateReason(req.Reason); err != nil {
		return nil, "", err
	}
	typ, err := model.ParseActionType(string(req.Type))
	if err != nil {
		return nil, "", model.NewValidationError("%v", err)
	}
	req.Type = typ
	if req.Type != model.ActionHold && req.PlannedPositionPct <= 0 {
		return nil, "", model.NewValidationError("planned_position_pct must be positive, got %.2f", req.PlannedPositionPct)
	}
	if req.Price != nil && *req.Price <= 0 {
		return nil, "", model.NewValidationError("price must be positive, got %.4f", *req.Price)
	}
	if req.Cost.Fee < 0 || req.Cost.Tax < 0 || req.Cost.Slippage < 0 {
		return nil, "", model.NewValidationError("costs must not be negative")
	}

	defer s.lockUser(userID)()

	var (
		act     *model.Action
		asset   *model.Asset
		warning string
	)
	now := s.now()
	err = s.db.InTx(ctx, func(q *store.Queries) error {
		var err error
		asset, err = q.GetAsset(ctx, userID, req.AssetID)
		if err != nil {
			return err
		}
		if req.SignalID != nil {
			sig, err := q.GetSignal(ctx, userID, *req.SignalID)
			if err != nil {
				return err
			}
			if sig.AssetID != req.AssetID {
				return model.NewValidationError("signal %d belongs to another asset", sig.ID)
			}
			if sig.Status != model.SignalOpen {
				return model.NewValidationError("signal %d is already %s", sig.ID, sig.Status)
			}
		}
		pf, err := q.GetPortfolio(ctx, userID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}

		act = &model.Action{
			UserID:             userID,
			AssetID:            req.AssetID,
			SignalID:           req.SignalID,
			ActionDate:         model.Day(now),
			Type:               req.Type,
			PlannedPositionPct: req.PlannedPositionPct,
			Shares:             req.Shares,
			Price:              req.Price,
			Reason:             strings.TrimSpace(req.Reason),
			Emotion:            req.Emotion,
			RuleCompliance:     true,
		}
		if !req.Cost.IsZero() {
			act.Costs = []model.Cost{req.Cost}
		}

		switch req.Type {
		case model.ActionBuy, model.ActionAdd:
			res, err := s.risk.Comprehensive(ctx, q, userID, risk.Request{
				AssetID:     req.AssetID,
				Type:        req.Type,
				PositionPct: req.PlannedPositionPct,
				Amount:      pf.Notional(req.PlannedPositionPct),
				Costs:       req.Cost.Total(),
			})
			if err != nil {
				return err
			}
			if !res.Passed {
				if !req.Force {
					return &model.RiskViolationError{Reason: res.ViolationReason}
				}
				if strings.TrimSpace(req.ForceReason) == "" {
					return model.NewValidationError("force_reason is required to override: %s", res.ViolationReason)
				}
				act.RuleCompliance = false
				act.ComplianceNote = fmt.Sprintf("forced: %s. reason: %s", res.ViolationReason, strings.TrimSpace(req.ForceReason))
			}
			warning = res.Warning
			act.ExecutedPositionPct = req.PlannedPositionPct
		case model.ActionSell:
			res, err := s.risk.CheckSell(ctx, q, userID, req.AssetID, req.PlannedPositionPct)
			if err != nil {
				return err
			}
			if !res.Passed {
				return &model.HardRejectionError{Reason: res.ViolationReason}
			}
			act.ExecutedPositionPct = req.PlannedPositionPct
		}
		act.ExecutedAmount = pf.Notional(act.ExecutedPositionPct)
		if left := cashAfter(pf, act); left < -eps {
			overdraft := fmt.Sprintf("cash overdrawn to %.2f", left)
			act.ComplianceNote = joinNote(act.ComplianceNote, overdraft)
			warning = joinNote(warning, overdraft)
		}

		if err := q.CreateAction(ctx, act, now); err != nil {
			return err
		}
		if err := applyPosition(ctx, q, act, now); err != nil {
			return err
		}
		if err := applyCash(ctx, q, pf, act, now); err != nil {
			return err
		}
		if req.SignalID != nil {
			if err := q.CloseSignal(ctx, userID, *req.SignalID, model.SignalDone); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	ev := s.log.Info()
	if !act.RuleCompliance || act.ComplianceNote != "" {
		ev = s.log.Warn().Str("note", act.ComplianceNote)
	}
	ev.Int64("user_id", userID).Str("code", asset.Code).Str("type", string(act.Type)).
		Float64("pct", act.ExecutedPositionPct).Bool("compliant", act.RuleCompliance).Msg("action executed")
	return act, summary(asset, act, warning), nil
}

// applyPosition moves the position by the executed delta. Buys re-average the cost basis
// weighted by percentage; sells are floored at zero.
func applyPosition(ctx context.Context, q *store.Queries, act *model.Action, now time.Time) error {
	if act.Type == model.ActionHold {
		return nil
	}
	pos, err := q.GetPosition(ctx, act.UserID, act.AssetID)
	if errors.Is(err, model.ErrNotFound) {
		pos = &model.Position{UserID: act.UserID, AssetID: act.AssetID}
	} else if err != nil {
		return err
	}

	delta := act.ExecutedPositionPct
	if act.Type == model.ActionSell {
		pos.PositionPct = max(0, pos.PositionPct-delta)
		if act.Shares != nil {
			pos.Shares = max(0, pos.Shares-*act.Shares)
		}
		return q.UpsertPosition(ctx, pos, now)
	}

	next := pos.PositionPct + delta
	if act.Price != nil {
		cost := *act.Price
		if pos.AvgCost != nil && pos.PositionPct > 0 && next > 0 {
			cost = (pos.PositionPct*(*pos.AvgCost) + delta*(*act.Price)) / next
		}
		pos.AvgCost = &cost
	}
	pos.PositionPct = next
	if act.Shares != nil {
		pos.Shares += *act.Shares
	}
	return q.UpsertPosition(ctx, pos, now)
}

const eps = 1e-9

// cashAfter is the portfolio cash once act is applied. Buys debit notional plus costs and
// sells credit notional minus costs. It is zero without a portfolio.
func cashAfter(pf *model.Portfolio, act *model.Action) float64 {
	if !pf.Configured() {
		return 0
	}
	if act.Type == model.ActionHold {
		return pf.Cash
	}
	var costs float64
	for _, c := range act.Costs {
		costs += c.Total()
	}
	if act.Type.IsBuySide() {
		return pf.Cash - act.ExecutedAmount - costs
	}
	return pf.Cash + act.ExecutedAmount - costs
}

// applyCash stores cashAfter. A forced buy may leave it negative.
func applyCash(ctx context.Context, q *store.Queries, pf *model.Portfolio, act *model.Action, now time.Time) error {
	if !pf.Configured() || act.Type == model.ActionHold {
		return nil
	}
	pf.Cash = cashAfter(pf, act)
	return q.UpsertPortfolio(ctx, pf, now)
}

func joinNote(note, extra string) string {
	if note == "" {
		return extra
	}
	return note + "; " + extra
}

func summary(asset *model.Asset, act *model.Action, warning string) string {
	parts := []string{fmt.Sprintf("recorded %s for %s", act.Type, asset.Name)}
	if act.ExecutedPositionPct != 0 {
		parts = append(parts, fmt.Sprintf("position change: %.1f%%", act.ExecutedPositionPct))
	}
	if act.Price != nil {
		parts = append(parts, fmt.Sprintf("price: %.2f", *act.Price))
	}
	if !act.RuleCompliance {
		parts = append(parts, "[violation] "+act.ComplianceNote)
	} else if warning != "" {
		parts = append(parts, "[warning] "+warning)
	}
	return strings.Join(parts, " | ")
}

// Ignore closes an OPEN signal as IGNORED and records a HOLD action referencing it.
func (s *Service) Ignore(ctx context.Context, userID, signalID int64, reason string) (*model.Signal, error) {
	if err := validateReason(reason); err != nil {
		return nil, err
	}
	defer s.lockUser(userID)()

	var sig *model.Signal
	now := s.now()
	err := s.db.InTx(ctx, func(q *store.Queries) error {
		var err error
		sig, err = q.GetSignal(ctx, userID, signalID)
		if err != nil {
			return err
		}
		if sig.Status != model.SignalOpen {
			return model.NewValidationError("signal %d is already %s", sig.ID, sig.Status)
		}
		if err := q.CreateAction(ctx, &model.Action{
			UserID:         userID,
			AssetID:        sig.AssetID,
			SignalID:       &sig.ID,
			ActionDate:     model.Day(now),
			Type:           model.ActionHold,
			Reason:         strings.TrimSpace(reason),
			RuleCompliance: true,
		}, now); err != nil {
			return err
		}
		if err := q.CloseSignal(ctx, userID, signalID, model.SignalIgnored); err != nil {
			return err
		}
		sig.Status = model.SignalIgnored
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", userID).Int64("signal_id", signalID).Msg("signal ignored")
	return sig, nil
}

// OverridePosition sets a position directly, bypassing signals and risk checks.
func (s *Service) OverridePosition(ctx context.Context, userID, assetID int64, pct float64, avgCost *float64, shares *int64) (*model.Position, error) {
	if pct < 0 || pct > 100 {
		return nil, model.NewValidationError("position_pct must be in [0, 100], got %.2f", pct)
	}
	if avgCost != nil && *avgCost <= 0 {
		return nil, model.NewValidationError("avg_cost must be positive, got %.4f", *avgCost)
	}
	if shares != nil && *shares < 0 {
		return nil, model.NewValidationError("shares must not be negative, got %d", *shares)
	}
	defer s.lockUser(userID)()

	var pos *model.Position
	err := s.db.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.GetAsset(ctx, userID, assetID); err != nil {
			return err
		}
		var err error
		pos, err = q.GetPosition(ctx, userID, assetID)
		if errors.Is(err, model.ErrNotFound) {
			pos = &model.Position{UserID: userID, AssetID: assetID}
		} else if err != nil {
			return err
		}
		pos.PositionPct = pct
		if avgCost != nil {
			pos.AvgCost = avgCost
		}
		if shares != nil {
			pos.Shares = *shares
		}
		return q.UpsertPosition(ctx, pos, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.log.Warn().Int64("user_id", userID).Int64("asset_id", assetID).Float64("pct", pct).Msg("position overridden")
	return pos, nil
}

// SetPortfolio records total assets and cash.
func (s *Service) SetPortfolio(ctx context.Context, userID int64, totalAsset, cash float64) (*model.Portfolio, error) {
	if totalAsset < 0 || cash < 0 {
		return nil, model.NewValidationError("total_asset and cash must not be negative")
	}
	if cash > totalAsset {
		return nil, model.NewValidationError("cash %.2f exceeds total_asset %.2f", cash, totalAsset)
	}
	defer s.lockUser(userID)()

	pf := &model.Portfolio{UserID: userID, TotalAsset: totalAsset, Cash: cash}
	if err := s.db.Queries().UpsertPortfolio(ctx, pf, s.now()); err != nil {
		return nil, err
	}
	return pf, nil
}

// Portfolio returns the cash account, or model.ErrNotFound.
func (s *Service) Portfolio(ctx context.Context, userID int64) (*model.Portfolio, error) {
	return s.db.Queries().GetPortfolio(ctx, userID)
}
