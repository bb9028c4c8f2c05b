package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
	"ValueSentinel/internal/valuation"
)

func TestYahooSymbol(t *testing.T) {
	tests := []struct {
		code   string
		market model.Market
		want   string
	}{
		{"600036", model.MarketAShare, "600036.SS"},
		{"000651", model.MarketAShare, "000651.SZ"},
		{"700", model.MarketHK, "0700.HK"},
		{"00005", model.MarketHK, "0005.HK"},
		{"ko", model.MarketUS, "KO"},
		{"BRK-B", model.MarketUS, "BRK-B"},
		{"0941.HK", model.MarketHK, "0941.HK"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, YahooSymbol(&model.Asset{Code: tt.code, Market: tt.market}), tt.code)
	}
}

func newYahooServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v7/finance/quote"):
			assert.Equal(t, "600036.SS", r.URL.Query().Get("symbols"))
			fmt.Fprint(w, `{"quoteResponse":{"result":[{"symbol":"600036.SS","regularMarketPrice":36.0,"bookValue":40.0,"priceToBook":0.9}]}}`)
		case strings.HasPrefix(r.URL.Path, "/v8/finance/chart/600036.SS"):
			fmt.Fprint(w, `{"chart":{"result":[{"timestamp":[1704153600,1704240000,1704326400],
				"indicators":{"quote":[{"close":[32.0,null,40.0]}]}}]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestYahooFetcher_QuoteAndHistory(t *testing.T) {
	srv := newYahooServer(t)
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	asset := &model.Asset{Code: "600036", Market: model.MarketAShare}

	q, err := f.FetchQuote(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, 0.9, *q.PB)
	assert.Equal(t, 40.0, *q.BookValue)

	points, err := f.FetchHistory(context.Background(), asset, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 0.8, *points[0].PB, 1e-9)
	assert.InDelta(t, 1.0, *points[1].PB, 1e-9)
}

func TestYahooFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	_, err := f.FetchQuote(context.Background(), &model.Asset{Code: "KO", Market: model.MarketUS})
	assert.ErrorContains(t, err, "status 401")
}

func TestCollect_BackfillsThenQuotes(t *testing.T) {
	ctx := context.Background()
	db := store.OpenTemp(t)
	now := time.Now()
	for _, code := range []string{"A", "B"} {
		require.NoError(t, db.Queries().CreateAsset(ctx, &model.Asset{UserID: 1, Code: code, Name: code, Market: model.MarketUS}, now))
	}
	vals := valuation.NewService(db, zerolog.Nop())
	c := NewCollector(&MockFetcher{PB: map[string]float64{"A": 1.2}, Default: 2.0, Price: 10}, db, vals, 1, zerolog.Nop())

	res, err := c.Collect(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Assets)
	assert.Equal(t, 2, res.Quotes)
	assert.Greater(t, res.Backfilled, 200)

	a, err := db.Queries().GetAssetByCode(ctx, 1, "A")
	require.NoError(t, err)
	latest, err := vals.Latest(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.2, *latest.PB)
	assert.Equal(t, "mock", latest.Source)
	assert.True(t, latest.Date.Equal(model.Day(now)))

	// second run only refreshes today's quote
	res, err = c.Collect(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Backfilled)

	signals, err := db.Queries().ListSignals(ctx, 1, store.SignalFilter{})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestCollect_ReportsFailures(t *testing.T) {
	ctx := context.Background()
	db := store.OpenTemp(t)
	require.NoError(t, db.Queries().CreateAsset(ctx, &model.Asset{UserID: 1, Code: "A", Name: "A", Market: model.MarketUS}, time.Now()))
	vals := valuation.NewService(db, zerolog.Nop())
	boom := errors.New("upstream down")
	c := NewCollector(&MockFetcher{Default: 1, Price: 1, Err: boom}, db, vals, 1, zerolog.Nop())

	res, err := c.Collect(ctx, 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"A"}, res.Failed)
}
