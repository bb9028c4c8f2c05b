package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ValueSentinel/internal/model"
)

func newTestNotifier(url string) *TelegramNotifier {
	tn := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	tn.BaseURL = url
	return tn
}

func TestSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestNotifier(srv.URL).Send(context.Background(), "<b>hi</b>"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "<b>hi</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestSendWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "flood", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tn := newTestNotifier(srv.URL)
	require.NoError(t, tn.SendWithRetry(context.Background(), "x", 1))
	assert.EqualValues(t, 2, calls.Load())
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).SendWithRetry(context.Background(), "x", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestStartPolling_RepliesToOwnChatOnly(t *testing.T) {
	var (
		mu      sync.Mutex
		served  bool
		replies = make(chan string, 4)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			mu.Lock()
			first := !served
			served = true
			mu.Unlock()
			if first {
				w.Write([]byte(`{"ok":true,"result":[
					{"update_id":7,"message":{"text":"/positions","chat":{"id":99}}},
					{"update_id":8,"message":{"text":" /signals ","chat":{"id":42}}}]}`))
				return
			}
			assert.Equal(t, "9", r.URL.Query().Get("offset"))
			time.Sleep(10 * time.Millisecond)
			w.Write([]byte(`{"ok":true,"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			replies <- body["text"]
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		newTestNotifier(srv.URL).StartPolling(ctx, func(_ context.Context, cmd string) string {
			seen = append(seen, cmd)
			return "reply to " + cmd
		})
	}()

	select {
	case r := <-replies:
		assert.Equal(t, "reply to /signals", r)
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	<-done
	assert.Equal(t, []string{"/signals"}, seen)
}

func TestFormatScanReport(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	assets := map[int64]model.Asset{1: {ID: 1, Code: "600036", Name: "CMB & Co"}}
	msg := FormatScanReport(day, []model.Signal{
		{ID: 5, AssetID: 1, Type: model.SignalBuy, PB: 0.85, TriggeredThreshold: 0.9, Explanation: "PB 0.85 <= buy level 0.90"},
		{ID: 6, AssetID: 2, Type: model.SignalSell, PB: 3, TriggeredThreshold: 2.5},
	}, assets)

	assert.Contains(t, msg, "2024-03-04")
	assert.Contains(t, msg, "2 new signal(s)")
	assert.Contains(t, msg, "CMB &amp; Co (600036)")
	assert.Contains(t, msg, "PB 0.85 &lt;= buy level 0.90")
	assert.Contains(t, msg, "asset #2")
	assert.Contains(t, msg, "PB 3.00 | level 2.50 | #6")

	assert.Contains(t, FormatScanReport(day, nil, nil), "No new signals")
}

func TestFormatPositionSummary(t *testing.T) {
	cost := 36.5
	msg := FormatPositionSummary(&model.PositionSummary{
		TotalPositionPct: 18, CashPositionPct: 82, StockCount: 2,
		MaxSinglePosition: 10, MaxTotalPosition: 100,
		Positions: []model.PositionLine{
			{Code: "600036", Name: "CMB", Industry: "Banks", PositionPct: 10, AvgCost: &cost},
			{Code: "KO", Name: "Coca-Cola", PositionPct: 8},
		},
	})
	assert.Contains(t, msg, "Invested: 18.0% (cap 100.0%)")
	assert.Contains(t, msg, "CMB (600036): 10.0% [Banks] @ 36.50")
	assert.Contains(t, msg, "Coca-Cola (KO): 8.0%\n")
}

func TestFormatIngestFailure(t *testing.T) {
	msg := FormatIngestFailure([]string{"KO", "600036"}, errors.New("timeout <5s>"))
	assert.Contains(t, msg, "KO, 600036")
	assert.Contains(t, msg, "timeout &lt;5s&gt;")
}
