package model

import "time"

// DateLayout is the persisted form of calendar dates.
const DateLayout = "2006-01-02"

// Day truncates t to local midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Valuation is one PB observation for an asset on a given date.
type Valuation struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	AssetID           int64     `json:"asset_id"`
	Date              time.Time `json:"date"`
	PB                *float64  `json:"pb"`
	Price             *float64  `json:"price,omitempty"`
	BookValuePerShare *float64  `json:"book_value_per_share,omitempty"`
	Source            string    `json:"source"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// PBStats summarizes the PB series over a lookback window.
type PBStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
	Years int     `json:"years"`
}
