package model

import "time"

// Position is the current holding of one asset, as a share of total portfolio notional.
type Position struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	AssetID     int64     `json:"asset_id"`
	PositionPct float64   `json:"position_pct"` // 0~100
	Shares      int64     `json:"shares"`
	AvgCost     *float64  `json:"avg_cost,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Held reports whether the position is open.
func (p *Position) Held() bool {
	return p != nil && p.PositionPct > 0
}

// Portfolio is the per-user cash account.
type Portfolio struct {
	UserID     int64     `json:"user_id"`
	TotalAsset float64   `json:"total_asset"`
	Cash       float64   `json:"cash"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Configured reports whether cash-based checks can be evaluated.
func (p *Portfolio) Configured() bool {
	return p != nil && p.TotalAsset > 0
}

// Notional converts a position percentage into an amount of money.
func (p *Portfolio) Notional(pct float64) float64 {
	if !p.Configured() {
		return 0
	}
	return pct / 100 * p.TotalAsset
}

// PositionLine is one holding in a position summary.
type PositionLine struct {
	AssetID     int64    `json:"asset_id"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Industry    string   `json:"industry,omitempty"`
	PositionPct float64  `json:"position_pct"`
	AvgCost     *float64 `json:"avg_cost,omitempty"`
}

// PositionSummary is the portfolio-wide allocation view.
type PositionSummary struct {
	TotalPositionPct  float64        `json:"total_position_pct"`
	CashPositionPct   float64        `json:"cash_position_pct"`
	StockCount        int            `json:"stock_count"`
	MaxSinglePosition float64        `json:"max_single_position"`
	MaxTotalPosition  float64        `json:"max_total_position"`
	Positions         []PositionLine `json:"positions"`
}
