// Package risk evaluates position, cash, industry and turnover limits before a trade.
// Every check is read-only and takes the Queries it runs against, so the same check
// can preview a trade or guard it inside the executing transaction.
package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ValueSentinel/internal/config"
	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
)

// tolerance for float sums of percentages such as 0.1+0.2
const eps = 1e-9

// Rule names the check that produced a violation.
type Rule string

const (
	RuleSingleCap Rule = "single_cap"
	RuleTotalCap  Rule = "total_cap"
	RuleSellSize  Rule = "sell_size"
	RuleCash      Rule = "cash"
	RuleIndustry  Rule = "industry"
	RuleTurnover  Rule = "turnover"
)

// Result is the outcome of one or more checks. A set ViolationReason means Passed is false;
// Warning may be set on a passing result.
type Result struct {
	Passed          bool    `json:"passed"`
	CurrentPosition float64 `json:"current_position"`
	PlannedPosition float64 `json:"planned_position"`
	MaxPosition     float64 `json:"max_position"`
	Rule            Rule    `json:"rule,omitempty"`
	ViolationReason string  `json:"violation_reason,omitempty"`
	Warning         string  `json:"warning,omitempty"`
}

func (r *Result) fail(rule Rule, format string, args ...any) *Result {
	r.Passed = false
	r.Rule = rule
	r.ViolationReason = fmt.Sprintf(format, args...)
	return r
}

func (r *Result) warn(format string, args ...any) {
	w := fmt.Sprintf(format, args...)
	if r.Warning == "" {
		r.Warning = w
		return
	}
	r.Warning += "; " + w
}

// Checker holds the configured limits.
type Checker struct {
	db  *store.DB
	cfg config.RiskConfig
	log zerolog.Logger
	now func() time.Time
}

// NewChecker creates a Checker.
func NewChecker(db *store.DB, cfg config.RiskConfig, log zerolog.Logger) *Checker {
	return &Checker{
		db:  db,
		cfg: cfg,
		log: log.With().Str("service", "risk").Logger(),
		now: time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (c *Checker) SetClock(now func() time.Time) { c.now = now }

// Limits returns the configured limits.
func (c *Checker) Limits() config.RiskConfig { return c.cfg }

func currentPosition(ctx context.Context, q *store.Queries, userID, assetID int64) (float64, error) {
	p, err := q.GetPosition(ctx, userID, assetID)
	if errors.Is(err, model.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return p.PositionPct, nil
}

func portfolio(ctx context.Context, q *store.Queries, userID int64) (*model.Portfolio, error) {
	p, err := q.GetPortfolio(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// CheckPosition applies the single-asset cap, the total cap and the near-cap warning to
// buying delta percentage points of an asset.
func (c *Checker) CheckPosition(ctx context.Context, q *store.Queries, userID, assetID int64, delta float64) (*Result, error) {
	current, err := currentPosition(ctx, q, userID, assetID)
	if err != nil {
		return nil, err
	}
	res := &Result{Passed: true, CurrentPosition: current, PlannedPosition: delta, MaxPosition: c.cfg.MaxSinglePosition}

	next := current + delta
	if next > c.cfg.MaxSinglePosition+eps {
		return res.fail(RuleSingleCap, "single position would reach %.1f%%, cap is %.1f%%", next, c.cfg.MaxSinglePosition), nil
	}

	total, err := q.TotalPosition(ctx, userID)
	if err != nil {
		return nil, err
	}
	totalNext := total - current + next
	if totalNext > c.cfg.MaxTotalPosition+eps {
		res.MaxPosition = c.cfg.MaxTotalPosition
		return res.fail(RuleTotalCap, "total position would reach %.1f%%, cap is %.1f%%", totalNext, c.cfg.MaxTotalPosition), nil
	}

	if next >= c.cfg.MaxSinglePosition*c.cfg.NearCapRatio-eps {
		res.warn("position would reach %.1f%%, close to the %.1f%% cap", next, c.cfg.MaxSinglePosition)
	}
	return res, nil
}

// CheckSell rejects selling more than is held.
func (c *Checker) CheckSell(ctx context.Context, q *store.Queries, userID, assetID int64, sellPct float64) (*Result, error) {
	current, err := currentPosition(ctx, q, userID, assetID)
	if err != nil {
		return nil, err
	}
	res := &Result{Passed: true, CurrentPosition: current, PlannedPosition: sellPct, MaxPosition: current}
	if sellPct > current+eps {
		return res.fail(RuleSellSize, "sell %.1f%% exceeds holding %.1f%%", sellPct, current), nil
	}
	return res, nil
}

// CheckCash rejects a purchase of amount that cash cannot cover or that would leave cash
// below the configured floor. It passes when no portfolio is configured.
func (c *Checker) CheckCash(ctx context.Context, q *store.Queries, userID int64, amount float64) (*Result, error) {
	res := &Result{Passed: true}
	if c.cfg.DisableCash {
		return res, nil
	}
	pf, err := portfolio(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	if !pf.Configured() {
		c.log.Debug().Int64("user_id", userID).Msg("no portfolio, cash check skipped")
		return res, nil
	}
	if amount > pf.Cash+eps {
		return res.fail(RuleCash, "trade needs %.2f, available cash is %.2f", amount, pf.Cash), nil
	}
	ratio := (pf.Cash - amount) / pf.TotalAsset * 100
	if ratio < c.cfg.MinCashRatio-eps {
		return res.fail(RuleCash, "cash would fall to %.1f%% of assets, floor is %.1f%%", ratio, c.cfg.MinCashRatio), nil
	}
	return res, nil
}

// CheckIndustry caps the combined position of all holdings that share the asset's industry.
// The cap is the industry's recommended max position when configured, else the global default.
func (c *Checker) CheckIndustry(ctx context.Context, q *store.Queries, asset *model.Asset, delta float64) (*Result, error) {
	res := &Result{Passed: true}
	if c.cfg.DisableIndustry || asset.Industry == "" {
		return res, nil
	}
	limit := c.cfg.MaxIndustryPosition
	ind, err := q.GetIndustry(ctx, asset.UserID, asset.Industry)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return nil, err
	case ind.RecommendedMaxPosition != nil:
		limit = *ind.RecommendedMaxPosition
	}

	others, err := q.IndustryPosition(ctx, asset.UserID, asset.Industry, asset.ID)
	if err != nil {
		return nil, err
	}
	current, err := currentPosition(ctx, q, asset.UserID, asset.ID)
	if err != nil {
		return nil, err
	}
	next := others + current + delta
	res.CurrentPosition, res.PlannedPosition, res.MaxPosition = others+current, delta, limit
	if next > limit+eps {
		return res.fail(RuleIndustry, "industry %s would reach %.1f%%, cap is %.1f%%", asset.Industry, next, limit), nil
	}
	if next >= limit*c.cfg.IndustryWarnRatio-eps {
		res.warn("industry %s would reach %.1f%%, close to the %.1f%% cap", asset.Industry, next, limit)
	}
	return res, nil
}

// CheckTurnover caps today's traded notional, including amount, as a share of total assets.
// It passes when no portfolio is configured.
func (c *Checker) CheckTurnover(ctx context.Context, q *store.Queries, userID int64, amount float64) (*Result, error) {
	res := &Result{Passed: true}
	if c.cfg.DisableTurnover {
		return res, nil
	}
	pf, err := portfolio(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	if !pf.Configured() {
		c.log.Debug().Int64("user_id", userID).Msg("no portfolio, turnover check skipped")
		return res, nil
	}
	done, err := q.TurnoverOn(ctx, userID, model.Day(c.now()))
	if err != nil {
		return nil, err
	}
	pct := (done + amount) / pf.TotalAsset * 100
	if pct > c.cfg.MaxDailyTurnover+eps {
		return res.fail(RuleTurnover, "daily turnover would reach %.1f%%, cap is %.1f%%", pct, c.cfg.MaxDailyTurnover), nil
	}
	return res, nil
}

// Request describes a proposed trade.
type Request struct {
	AssetID     int64            `json:"asset_id"`
	Type        model.ActionType `json:"action_type"`
	PositionPct float64          `json:"position_pct"`
	// Amount is the trade notional. Zero means PositionPct of total assets.
	Amount float64 `json:"amount,omitempty"`
	// Costs are added to the cash the trade needs. Turnover counts the notional only.
	Costs float64 `json:"costs,omitempty"`
}

// Comprehensive runs the checks that apply to req.Type. BUY and ADD go through position caps,
// cash, industry and turnover in that order and stop at the first violation; warnings of
// passing checks are joined. SELL only checks the sell size. HOLD always passes.
func (c *Checker) Comprehensive(ctx context.Context, q *store.Queries, userID int64, req Request) (*Result, error) {
	switch req.Type {
	case model.ActionSell:
		return c.CheckSell(ctx, q, userID, req.AssetID, req.PositionPct)
	case model.ActionHold:
		current, err := currentPosition(ctx, q, userID, req.AssetID)
		if err != nil {
			return nil, err
		}
		return &Result{Passed: true, CurrentPosition: current, MaxPosition: c.cfg.MaxSinglePosition}, nil
	case model.ActionBuy, model.ActionAdd:
	default:
		return nil, model.NewValidationError("unknown action type %q", req.Type)
	}
	if req.PositionPct < 0 {
		return nil, model.NewValidationError("position_pct must not be negative, got %.2f", req.PositionPct)
	}

	asset, err := q.GetAsset(ctx, userID, req.AssetID)
	if err != nil {
		return nil, err
	}
	amount := req.Amount
	if amount == 0 {
		pf, err := portfolio(ctx, q, userID)
		if err != nil {
			return nil, err
		}
		amount = pf.Notional(req.PositionPct)
	}

	res, err := c.CheckPosition(ctx, q, userID, req.AssetID, req.PositionPct)
	if err != nil || !res.Passed {
		return res, err
	}
	steps := []func() (*Result, error){
		func() (*Result, error) { return c.CheckCash(ctx, q, userID, amount+req.Costs) },
		func() (*Result, error) { return c.CheckIndustry(ctx, q, asset, req.PositionPct) },
		func() (*Result, error) { return c.CheckTurnover(ctx, q, userID, amount) },
	}
	for _, step := range steps {
		r, err := step()
		if err != nil {
			return nil, err
		}
		if !r.Passed {
			res.Passed, res.Rule, res.ViolationReason = false, r.Rule, r.ViolationReason
			return res, nil
		}
		if r.Warning != "" {
			res.warn("%s", r.Warning)
		}
	}
	return res, nil
}

// Preview runs Comprehensive outside any transaction.
func (c *Checker) Preview(ctx context.Context, userID int64, req Request) (*Result, error) {
	return c.Comprehensive(ctx, c.db.Queries(), userID, req)
}

// PositionSummary reports open holdings against the configured caps.
func (c *Checker) PositionSummary(ctx context.Context, userID int64) (*model.PositionSummary, error) {
	lines, err := c.db.Queries().PositionLines(ctx, userID)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, l := range lines {
		total += l.PositionPct
	}
	return &model.PositionSummary{
		TotalPositionPct:  total,
		CashPositionPct:   100 - total,
		StockCount:        len(lines),
		MaxSinglePosition: c.cfg.MaxSinglePosition,
		MaxTotalPosition:  c.cfg.MaxTotalPosition,
		Positions:         lines,
	}, nil
}

// AvailablePosition returns how many percentage points can still be bought. With assetID > 0
// it is the smaller of the asset's remaining single cap and the portfolio's remaining total cap.
func (c *Checker) AvailablePosition(ctx context.Context, userID, assetID int64) (float64, error) {
	q := c.db.Queries()
	total, err := q.TotalPosition(ctx, userID)
	if err != nil {
		return 0, err
	}
	avail := c.cfg.MaxTotalPosition - total
	if assetID > 0 {
		current, err := currentPosition(ctx, q, userID, assetID)
		if err != nil {
			return 0, err
		}
		avail = min(c.cfg.MaxSinglePosition-current, avail)
	}
	return max(0, avail), nil
}

// Describe renders a result for chat messages and logs.
func (r *Result) Describe() string {
	var b strings.Builder
	if r.Passed {
		b.WriteString("passed")
	} else {
		fmt.Fprintf(&b, "blocked (%s): %s", r.Rule, r.ViolationReason)
	}
	if r.Warning != "" {
		fmt.Fprintf(&b, ", warning: %s", r.Warning)
	}
	return b.String()
}
