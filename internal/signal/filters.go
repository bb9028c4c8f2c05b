package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/store"
)

// Candidate is a trigger that has fired but is not yet persisted.
type Candidate struct {
	Asset   *model.Asset
	Trigger Trigger
	PB      float64
	Today   time.Time
}

// Filter may veto a candidate. A veto is silent: no signal, no error.
type Filter interface {
	Name() string
	// Allow returns false and a short reason to suppress the candidate.
	Allow(ctx context.Context, q *store.Queries, c Candidate) (bool, string, error)
}

// Cooldown suppresses a signal type that already fired for the asset in the last Days days,
// whatever happened to the earlier signal.
type Cooldown struct {
	Days int
}

func (Cooldown) Name() string { return "cooldown" }

func (f Cooldown) Allow(ctx context.Context, q *store.Queries, c Candidate) (bool, string, error) {
	if f.Days <= 0 {
		return true, "", nil
	}
	prev, err := q.LatestSignalOfType(ctx, c.Asset.UserID, c.Asset.ID, c.Trigger.Type)
	if errors.Is(err, model.ErrNotFound) {
		return true, "", nil
	}
	if err != nil {
		return false, "", err
	}
	cutoff := c.Today.AddDate(0, 0, -f.Days)
	if prev.Date.After(cutoff) {
		return false, fmt.Sprintf("last %s on %s, within %d days", prev.Type, prev.Date.Format(model.DateLayout), f.Days), nil
	}
	return true, "", nil
}

// Fundamentals supplies trailing financial metrics for an asset.
type Fundamentals interface {
	// ROE returns trailing return on equity in percent, or nil when unknown.
	ROE(ctx context.Context, asset *model.Asset) (*float64, error)
}

// NoFundamentals knows nothing, so every asset passes the quality gate.
type NoFundamentals struct{}

func (NoFundamentals) ROE(context.Context, *model.Asset) (*float64, error) { return nil, nil }

// QualityGate suppresses buy-side signals for assets whose ROE is below MinROE.
// Unknown ROE passes.
type QualityGate struct {
	Source Fundamentals
	MinROE float64
}

func (QualityGate) Name() string { return "quality" }

func (g QualityGate) Allow(ctx context.Context, _ *store.Queries, c Candidate) (bool, string, error) {
	if c.Trigger.Type == model.SignalSell || g.Source == nil {
		return true, "", nil
	}
	roe, err := g.Source.ROE(ctx, c.Asset)
	if err != nil {
		return false, "", fmt.Errorf("roe of %s: %w", c.Asset.Code, err)
	}
	if roe != nil && *roe < g.MinROE {
		return false, fmt.Sprintf("roe %.1f%% below %.1f%%", *roe, g.MinROE), nil
	}
	return true, "", nil
}
