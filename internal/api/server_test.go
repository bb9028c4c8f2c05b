package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ValueSentinel/internal/action"
	"ValueSentinel/internal/config"
	"ValueSentinel/internal/pool"
	"ValueSentinel/internal/risk"
	"ValueSentinel/internal/signal"
	"ValueSentinel/internal/store"
	"ValueSentinel/internal/valuation"
)

var testNow = time.Date(2024, 3, 4, 16, 0, 0, 0, time.Local)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	clock := func() time.Time { return testNow }
	log := zerolog.Nop()
	db := store.OpenTemp(t)

	pools := pool.NewService(db, log)
	pools.SetClock(clock)
	vals := valuation.NewService(db, log)
	vals.SetClock(clock)
	eng := signal.NewEngine(db, vals, config.DefaultSignal(), nil, log)
	eng.SetClock(clock)
	checker := risk.NewChecker(db, config.DefaultRisk(), log)
	checker.SetClock(clock)
	actions := action.NewService(db, checker, log)
	actions.SetClock(clock)

	return New(Config{
		Log: log,
		Services: Services{
			Pool: pools, Valuations: vals, Signals: eng, Risk: checker, Actions: actions,
		},
	}).Handler()
}

type client struct {
	t    *testing.T
	h    http.Handler
	user string
}

func (c client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if c.user != "" {
		req.Header.Set(userHeader, c.user)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestHealth(t *testing.T) {
	code, body := client{t: t, h: newTestServer(t)}.do("GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestDecisionFlow(t *testing.T) {
	c := client{t: t, h: newTestServer(t), user: "1"}

	code, body := c.do("POST", "/api/assets", map[string]any{
		"code": "600036", "name": "CMB", "market": "A", "industry": "Banks",
		"threshold": map[string]any{"buy_pb": 1.5, "sell_pb": 3.0},
	})
	require.Equal(t, http.StatusCreated, code, body)

	code, _ = c.do("POST", "/api/assets/600036/valuations", map[string]any{"date": "2024-03-04", "pb": 1.2})
	require.Equal(t, http.StatusCreated, code)

	code, body = c.do("POST", "/api/signals/scan", nil)
	require.Equal(t, http.StatusOK, code)
	created := body["created"].([]any)
	require.Len(t, created, 1)
	sig := created[0].(map[string]any)
	assert.Equal(t, "BUY", sig["signal_type"])

	code, body = c.do("GET", "/api/signals", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["signals"], 1)

	code, _ = c.do("PUT", "/api/portfolio", map[string]any{"total_asset": 100000, "cash": 100000})
	require.Equal(t, http.StatusOK, code)

	buy := map[string]any{
		"code": "600036", "action_type": "BUY", "planned_position_pct": 12,
		"reason": "PB at a five year low", "signal_id": sig["id"],
	}
	code, body = c.do("POST", "/api/actions", buy)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, true, body["forceable"])
	assert.Contains(t, body["reason"], "cap is 10.0%")

	buy["force_execute"] = true
	buy["force_reason"] = "conviction position"
	code, body = c.do("POST", "/api/actions", buy)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Contains(t, body["summary"], "[violation] forced:")

	code, body = c.do("GET", "/api/signals?status=DONE", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["signals"], 1)

	code, body = c.do("POST", "/api/actions", map[string]any{
		"code": "600036", "action_type": "SELL", "planned_position_pct": 20, "reason": "take profit",
		"force_execute": true, "force_reason": "please",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, false, body["forceable"])

	code, body = c.do("GET", "/api/actions/compliance?days=30", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total_actions"])
	assert.EqualValues(t, 0, body["compliance_rate"])

	code, body = c.do("GET", "/api/positions/summary", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 12, body["total_position_pct"])

	code, body = c.do("POST", "/api/risk/check", map[string]any{
		"code": "600036", "action_type": "add", "position_pct": 1,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["description"], "blocked (single_cap)")

	code, body = c.do("GET", "/api/portfolio", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 88000, body["cash"])
}

func TestErrorMapping(t *testing.T) {
	h := newTestServer(t)
	c := client{t: t, h: h, user: "1"}

	code, _ := c.do("GET", "/api/assets/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, code)

	asset := map[string]any{"code": "KO", "name": "Coca-Cola", "market": "US"}
	code, _ = c.do("POST", "/api/assets", asset)
	require.Equal(t, http.StatusCreated, code)
	code, _ = c.do("POST", "/api/assets", asset)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = c.do("PUT", "/api/assets/ko/threshold", map[string]any{"buy_pb": 2, "add_pb": 3})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = c.do("POST", "/api/actions", map[string]any{
		"code": "KO", "action_type": "BUY", "planned_position_pct": 1, "reason": "meh",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = c.do("POST", "/api/assets", map[string]any{"code": "X", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = client{t: t, h: h, user: "abc"}.do("GET", "/api/assets", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = c.do("GET", "/api/signals?status=MAYBE", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = c.do("POST", "/api/assets/KO/annotate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestUserIsolation(t *testing.T) {
	h := newTestServer(t)
	alice := client{t: t, h: h, user: "1"}
	bob := client{t: t, h: h, user: "2"}

	code, _ := alice.do("POST", "/api/assets", map[string]any{"code": "KO", "name": "Coca-Cola", "market": "US"})
	require.Equal(t, http.StatusCreated, code)

	code, body := bob.do("GET", "/api/assets", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["assets"])

	code, _ = bob.do("GET", "/api/assets/KO", nil)
	assert.Equal(t, http.StatusNotFound, code)

	// no header falls back to the default user
	code, body = client{t: t, h: h}.do("GET", "/api/assets", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["assets"], 1)
}

func TestIndustryRoutes(t *testing.T) {
	c := client{t: t, h: newTestServer(t), user: "1"}

	code, body := c.do("PUT", "/api/industries/Banks", map[string]any{
		"default_buy_pb": 0.8, "default_sell_pb": 1.5, "recommended_max_position": 25,
	})
	require.Equal(t, http.StatusOK, code, body)

	code, body = c.do("GET", "/api/industries/Banks/threshold?preference=conservative", nil)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 0.72, body["buy_pb"], 1e-9)

	code, _ = c.do("GET", "/api/industries/Banks/threshold?preference=yolo", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = c.do("POST", "/api/assets", map[string]any{"code": "601398", "name": "ICBC", "market": "A", "industry": "Banks"})
	require.Equal(t, http.StatusCreated, code)
	code, body = c.do("GET", "/api/assets/601398/threshold", nil)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 0.8, body["buy_pb"], 1e-9)

	code, _ = c.do("DELETE", "/api/industries/Banks", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, body = c.do("GET", "/api/industries", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["industries"])
}
