package risk

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ValueSentinel/internal/config"
	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
)

var today = time.Date(2024, 6, 3, 10, 0, 0, 0, time.Local)

type fixture struct {
	db      *store.DB
	checker *Checker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := store.OpenTemp(t)
	c := NewChecker(db, config.DefaultRisk(), zerolog.Nop())
	c.SetClock(func() time.Time { return today })
	return &fixture{db: db, checker: c}
}

func (fx *fixture) asset(t *testing.T, code, industry string, pct float64) *model.Asset {
	t.Helper()
	ctx := context.Background()
	a := &model.Asset{UserID: 1, Code: code, Name: code, Market: model.MarketAShare, Industry: industry}
	require.NoError(t, fx.db.Queries().CreateAsset(ctx, a, today))
	if pct > 0 {
		require.NoError(t, fx.db.Queries().UpsertPosition(ctx, &model.Position{UserID: 1, AssetID: a.ID, PositionPct: pct}, today))
	}
	return a
}

func (fx *fixture) check(t *testing.T, req Request) *Result {
	t.Helper()
	res, err := fx.checker.Preview(context.Background(), 1, req)
	require.NoError(t, err)
	return res
}

func TestCheckPosition_SingleCap(t *testing.T) {
	fx := newFixture(t)
	a := fx.asset(t, "A", "", 5)

	res := fx.check(t, Request{AssetID: a.ID, Type: model.ActionBuy, PositionPct: 7})
	assert.False(t, res.Passed)
	assert.Equal(t, RuleSingleCap, res.Rule)
	assert.Equal(t, "single position would reach 12.0%, cap is 10.0%", res.ViolationReason)

	res = fx.check(t, Request{AssetID: a.ID, Type: model.ActionAdd, PositionPct: 5})
	assert.True(t, res.Passed)
	assert.Equal(t, 5.0, res.CurrentPosition)
	assert.Contains(t, res.Warning, "close to the 10.0% cap")

	res = fx.check(t, Request{AssetID: a.ID, Type: model.ActionBuy, PositionPct: 2})
	assert.True(t, res.Passed)
	assert.Empty(t, res.Warning)
}

func TestCheckPosition_TotalCap(t *testing.T) {
	fx := newFixture(t)
	for i, code := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"} {
		fx.asset(t, code, string(rune('a'+i)), 10)
	}
	j := fx.asset(t, "J", "", 5)

	res := fx.check(t, Request{AssetID: j.ID, Type: model.ActionBuy, PositionPct: 5})
	assert.True(t, res.Passed)

	res = fx.check(t, Request{AssetID: j.ID, Type: model.ActionBuy, PositionPct: 5.5})
	assert.False(t, res.Passed)
	assert.Equal(t, RuleSingleCap, res.Rule)

	k := fx.asset(t, "K", "", 0)
	res = fx.check(t, Request{AssetID: k.ID, Type: model.ActionBuy, PositionPct: 6})
	assert.False(t, res.Passed)
	assert.Equal(t, RuleTotalCap, res.Rule)
	assert.Equal(t, "total position would reach 101.0%, cap is 100.0%", res.ViolationReason)
}

func TestCheckSell(t *testing.T) {
	fx := newFixture(t)
	a := fx.asset(t, "A", "", 5)

	res := fx.check(t, Request{AssetID: a.ID, Type: model.ActionSell, PositionPct: 6})
	assert.False(t, res.Passed)
	assert.Equal(t, RuleSellSize, res.Rule)
	assert.Equal(t, "sell 6.0% exceeds holding 5.0%", res.ViolationReason)

	res = fx.check(t, Request{AssetID: a.ID, Type: model.ActionSell, PositionPct: 5})
	assert.True(t, res.Passed)
}

func TestCheckIndustry_BanksScenario(t *testing.T) {
	fx := newFixture(t)
	fx.asset(t, "BANK1", "Banks", 15)
	fx.asset(t, "BANK2", "Banks", 15)
	third := fx.asset(t, "BANK3", "Banks", 0)

	res := fx.check(t, Request{AssetID: third.ID, Type: model.ActionBuy, PositionPct: 5})
	assert.False(t, res.Passed)
	assert.Equal(t, RuleIndustry, res.Rule)
	assert.Equal(t, "industry Banks would reach 35.0%, cap is 30.0%", res.ViolationReason)
}

func TestCheckIndustry_WarningAndConfiguredCap(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.asset(t, "BANK1", "Banks", 15)
	second := fx.asset(t, "BANK2", "Banks", 5)

	res := fx.check(t, Request{AssetID: second.ID, Type: model.ActionAdd, PositionPct: 4})
	assert.True(t, res.Passed)
	assert.Contains(t, res.Warning, "industry Banks would reach 24.0%")
	// near single cap warning is joined with the industry warning
	assert.Contains(t, res.Warning, "position would reach 9.0%")

	limit := 20.0
	require.NoError(t, fx.db.Queries().UpsertIndustry(ctx, &model.IndustryConfig{
		UserID: 1, Industry: "Banks", DefaultBuyPB: 0.8, RecommendedMaxPosition: &limit,
	}))
	res = fx.check(t, Request{AssetID: second.ID, Type: model.ActionAdd, PositionPct: 1})
	assert.False(t, res.Passed)
	assert.Equal(t, RuleIndustry, res.Rule)
	assert.Equal(t, "industry Banks would reach 21.0%, cap is 20.0%", res.ViolationReason)
}

func TestCheckCash(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	a := fx.asset(t, "A", "", 0)

	// unconfigured portfolio: not applicable
	res := fx.check(t, Request{AssetID: a.ID, Type: model.ActionBuy, PositionPct: 5})
	assert.True(t, res.Passed)

	require.NoError(t, fx.db.Queries().UpsertPortfolio(ctx, &model.Portfolio{UserID: 1, TotalAsset: 100000, Cash: 8000}, today))

	res = fx.check(t, Request{AssetID: a.ID, Type: model.ActionBuy, PositionPct: 5})
	assert.False(t, res.Passed)
	assert.Equal(t, RuleCash, res.Rule)
	assert.Equal(t, "cash would fall to 3.0% of assets, floor is 5.0%", res.ViolationReason)

	res = fx.check(t, Request{AssetID: a.ID, Type: model.ActionBuy, PositionPct: 5, Amount: 9000})
	assert.False(t, res.Passed)
	assert.Equal(t, "trade needs 9000.00, available cash is 8000.00", res.ViolationReason)

	res = fx.check(t, Request{AssetID: a.ID, Type: model.ActionBuy, PositionPct: 3})
	assert.True(t, res.Passed)

	// costs count towards the cash floor
	res = fx.check(t, Request{AssetID: a.ID, Type: model.ActionBuy, PositionPct: 3, Costs: 50})
	assert.False(t, res.Passed)
	assert.Equal(t, RuleCash, res.Rule)
}

func TestCheckTurnover(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	a := fx.asset(t, "A", "", 0)
	q := fx.db.Queries()
	require.NoError(t, q.UpsertPortfolio(ctx, &model.Portfolio{UserID: 1, TotalAsset: 100000, Cash: 100000}, today))
	require.NoError(t, q.CreateAction(ctx, &model.Action{
		UserID: 1, AssetID: a.ID, ActionDate: today, Type: model.ActionSell,
		ExecutedPositionPct: 10, ExecutedAmount: 28000, Reason: "trim position", RuleCompliance: true,
	}, today))

	res := fx.check(t, Request{AssetID: a.ID, Type: model.ActionBuy, PositionPct: 2})
	assert.True(t, res.Passed)

	res = fx.check(t, Request{AssetID: a.ID, Type: model.ActionBuy, PositionPct: 3})
	assert.False(t, res.Passed)
	assert.Equal(t, RuleTurnover, res.Rule)
	assert.Equal(t, "daily turnover would reach 31.0%, cap is 30.0%", res.ViolationReason)

	// costs do not count as turnover
	res = fx.check(t, Request{AssetID: a.ID, Type: model.ActionBuy, PositionPct: 2, Costs: 500})
	assert.True(t, res.Passed)
}

func TestComprehensive_ShortCircuitsOnPositionCap(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.asset(t, "BANK1", "Banks", 15)
	fx.asset(t, "BANK2", "Banks", 15)
	third := fx.asset(t, "BANK3", "Banks", 0)
	require.NoError(t, fx.db.Queries().UpsertPortfolio(ctx, &model.Portfolio{UserID: 1, TotalAsset: 100, Cash: 1}, today))

	res := fx.check(t, Request{AssetID: third.ID, Type: model.ActionBuy, PositionPct: 11})
	assert.Equal(t, RuleSingleCap, res.Rule)

	res = fx.check(t, Request{AssetID: third.ID, Type: model.ActionBuy, PositionPct: 5})
	assert.Equal(t, RuleCash, res.Rule)
}

func TestComprehensive_HoldAndUnknown(t *testing.T) {
	fx := newFixture(t)
	a := fx.asset(t, "A", "", 4)

	res := fx.check(t, Request{AssetID: a.ID, Type: model.ActionHold})
	assert.True(t, res.Passed)
	assert.Equal(t, 4.0, res.CurrentPosition)

	_, err := fx.checker.Preview(context.Background(), 1, Request{AssetID: a.ID, Type: "SHORT"})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSummaryAndAvailable(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	a := fx.asset(t, "A", "", 8)
	fx.asset(t, "B", "", 60)
	fx.asset(t, "C", "", 0)

	sum, err := fx.checker.PositionSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 68.0, sum.TotalPositionPct)
	assert.Equal(t, 32.0, sum.CashPositionPct)
	assert.Equal(t, 2, sum.StockCount)
	assert.Equal(t, "B", sum.Positions[0].Code)

	avail, err := fx.checker.AvailablePosition(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, avail, 1e-9)

	avail, err = fx.checker.AvailablePosition(ctx, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 32.0, avail, 1e-9)

	fx.asset(t, "D", "", 40)
	avail, err = fx.checker.AvailablePosition(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, avail)
}

func TestResultDescribe(t *testing.T) {
	r := &Result{Passed: false, Rule: RuleCash, ViolationReason: "short", Warning: "w"}
	assert.Equal(t, "blocked (cash): short, warning: w", r.Describe())
	assert.Equal(t, "passed", (&Result{Passed: true}).Describe())
}
