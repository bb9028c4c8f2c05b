package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ValueSentinel/internal/collector"
	"ValueSentinel/internal/config"
	"ValueSentinel/internal/model"
	"ValueSentinel/internal/pool"
	"ValueSentinel/internal/risk"
	"ValueSentinel/internal/signal"
	"ValueSentinel/internal/store"
	"ValueSentinel/internal/valuation"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) Send(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
	return nil
}

func (r *recordingNotifier) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

type fixture struct {
	sched   *Scheduler
	fetcher *collector.MockFetcher
	note    *recordingNotifier
	pools   *pool.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2024, 3, 4, 16, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }
	log := zerolog.Nop()

	db := store.OpenTemp(t)
	vals := valuation.NewService(db, log)
	vals.SetClock(clock)
	pools := pool.NewService(db, log)
	pools.SetClock(clock)
	eng := signal.NewEngine(db, vals, config.DefaultSignal(), nil, log)
	eng.SetClock(clock)
	checker := risk.NewChecker(db, config.DefaultRisk(), log)
	checker.SetClock(clock)

	fetcher := &collector.MockFetcher{Default: 2, Price: 10}
	col := collector.NewCollector(fetcher, db, vals, 0, log)
	col.SetClock(clock)

	note := &recordingNotifier{}
	sched := NewScheduler(context.Background(), db, col, eng, checker, note, 1, log)
	sched.SetClock(clock)
	return &fixture{sched: sched, fetcher: fetcher, note: note, pools: pools}
}

func (fx *fixture) add(t *testing.T, user int64, code string, buy float64) {
	t.Helper()
	_, err := fx.pools.Add(context.Background(), user, pool.AddRequest{
		Code: code, Name: code, Market: "US", Threshold: &model.Threshold{BuyPB: buy},
	})
	require.NoError(t, err)
}

func TestRunNow_ScansAndNotifiesChatUser(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.add(t, 1, "KO", 1.5)
	fx.add(t, 1, "PEP", 1.0)
	fx.add(t, 2, "JNJ", 1.5)
	fx.fetcher.PB = map[string]float64{"KO": 1.2, "JNJ": 1.1}

	created, err := fx.sched.RunNow(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, model.SignalBuy, created[0].Type)

	msgs := fx.note.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "1 new signal(s)")
	assert.Contains(t, msgs[0], "KO (KO)")

	// user 2 was scanned too, without a chat message
	other, err := fx.sched.Engine.Open(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, other, 1)

	// a second run the same day creates nothing new
	created, err = fx.sched.RunNow(ctx)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Contains(t, fx.note.messages()[1], "No new signals")
}

func TestIngest_ReportsFailures(t *testing.T) {
	fx := newFixture(t)
	fx.add(t, 1, "KO", 1.5)
	fx.fetcher.Err = errors.New("upstream down")

	err := fx.sched.Ingest(context.Background())
	require.Error(t, err)
	msgs := fx.note.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Data collection failed")
	assert.Contains(t, msgs[0], "KO")
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.add(t, 1, "KO", 1.5)
	fx.fetcher.PB = map[string]float64{"KO": 1.2}

	assert.Contains(t, fx.sched.HandleCommand(ctx, "/signals"), "Nothing pending")

	assert.Empty(t, fx.sched.HandleCommand(ctx, "/scan@ValueSentinelBot"))
	require.Len(t, fx.note.messages(), 1)

	reply := fx.sched.HandleCommand(ctx, "/signals")
	assert.Contains(t, reply, "BUY")
	assert.Contains(t, reply, "2024-03-04")

	assert.Contains(t, fx.sched.HandleCommand(ctx, "/positions"), "Holdings: 0")
	assert.Contains(t, fx.sched.HandleCommand(ctx, "hello"), "/signals")
}

func TestRegisterAll(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.sched.RegisterAll("0 30 15 * * 1-5", "0 45 15 * * 1-5"))
	assert.Len(t, fx.sched.Cron.Entries(), 2)

	assert.Error(t, newFixture(t).sched.RegisterAll("bogus", "0 45 15 * * 1-5"))
}
