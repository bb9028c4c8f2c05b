package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
)

var today = time.Date(2024, 6, 3, 10, 0, 0, 0, time.Local)

func newTestService(t *testing.T) (*Service, *model.Asset) {
	t.Helper()
	db := store.OpenTemp(t)
	a := &model.Asset{UserID: 1, Code: "600036", Name: "CMB", Market: model.MarketAShare}
	require.NoError(t, db.Queries().CreateAsset(context.Background(), a, today))
	svc := NewService(db, zerolog.Nop())
	svc.SetClock(func() time.Time { return today })
	return svc, a
}

func pb(v float64) *float64 { return &v }

func TestLatest_EmptyHistoryIsNil(t *testing.T) {
	svc, a := newTestService(t)
	v, err := svc.Latest(context.Background(), 1, a.ID)
	require.NoError(t, err)
	assert.Nil(t, v)

	p, err := svc.Percentile(context.Background(), 1, a.ID, 1.0, 5)
	require.NoError(t, err)
	assert.Nil(t, p)

	st, err := svc.Stats(context.Background(), 1, a.ID, 5)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestPercentileAndStats_RespectLookback(t *testing.T) {
	ctx := context.Background()
	svc, a := newTestService(t)

	// outside the 5 year window
	require.NoError(t, svc.Upsert(ctx, &model.Valuation{UserID: 1, AssetID: a.ID, Date: today.AddDate(-6, 0, 0), PB: pb(0.1)}))
	for i, v := range []float64{0.6, 0.8, 1.0, 1.2, 1.4} {
		require.NoError(t, svc.Upsert(ctx, &model.Valuation{UserID: 1, AssetID: a.ID, Date: today.AddDate(0, 0, -i), PB: pb(v)}))
	}

	p, err := svc.Percentile(ctx, 1, a.ID, 0.8, 5)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 40.0, *p, 1e-9)

	st, err := svc.Stats(ctx, 1, a.ID, 5)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 0.6, st.Min)
	assert.Equal(t, 1.4, st.Max)
	assert.Equal(t, 5, st.Count)

	latest, err := svc.Latest(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.6, *latest.PB)

	all, err := svc.History(ctx, 1, a.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestUpsert_Validation(t *testing.T) {
	ctx := context.Background()
	svc, a := newTestService(t)

	var verr *model.ValidationError
	assert.ErrorAs(t, svc.Upsert(ctx, &model.Valuation{UserID: 1, AssetID: a.ID, Date: today, PB: pb(-1)}), &verr)
	assert.ErrorAs(t, svc.Upsert(ctx, &model.Valuation{UserID: 1, AssetID: a.ID, PB: pb(1)}), &verr)
	assert.ErrorIs(t, svc.Upsert(ctx, &model.Valuation{UserID: 2, AssetID: a.ID, Date: today, PB: pb(1)}), model.ErrNotFound)
}

func TestRecommend_NeedsHistory(t *testing.T) {
	ctx := context.Background()
	svc, a := newTestService(t)

	var verr *model.ValidationError
	_, err := svc.Recommend(ctx, 1, a.ID, 5)
	assert.ErrorAs(t, err, &verr)

	for i := 0; i < 60; i++ {
		require.NoError(t, svc.Upsert(ctx, &model.Valuation{UserID: 1, AssetID: a.ID, Date: today.AddDate(0, 0, -i), PB: pb(0.5 + float64(i)/100)}))
	}
	r, err := svc.Recommend(ctx, 1, a.ID, 5)
	require.NoError(t, err)
	assert.Less(t, r.AddPB, r.BuyPB)
	assert.Less(t, r.BuyPB, r.SellPB)
}
