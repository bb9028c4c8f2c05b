package signal

import (
	"context"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
)

// Get loads one signal.
func (e *Engine) Get(ctx context.Context, userID, signalID int64) (*model.Signal, error) {
	return e.db.Queries().GetSignal(ctx, userID, signalID)
}

// Open lists every OPEN signal, newest first.
func (e *Engine) Open(ctx context.Context, userID int64) ([]model.Signal, error) {
	return e.ByStatus(ctx, userID, model.SignalOpen)
}

// ByStatus lists signals in one status. An empty status lists all.
func (e *Engine) ByStatus(ctx context.Context, userID int64, status model.SignalStatus) ([]model.Signal, error) {
	return e.db.Queries().ListSignals(ctx, userID, store.SignalFilter{Status: status})
}

// Today lists the signals dated today.
func (e *Engine) Today(ctx context.Context, userID int64) ([]model.Signal, error) {
	return e.db.Queries().ListSignals(ctx, userID, store.SignalFilter{On: model.Day(e.now())})
}

// History lists the signals of the last days days, optionally for one asset (assetID > 0).
func (e *Engine) History(ctx context.Context, userID int64, days int, assetID int64) ([]model.Signal, error) {
	if days <= 0 {
		days = 30
	}
	since := model.Day(e.now()).AddDate(0, 0, -days)
	return e.db.Queries().ListSignals(ctx, userID, store.SignalFilter{AssetID: assetID, Since: since})
}
