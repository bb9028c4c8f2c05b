package model

import (
	"fmt"
	"strings"
	"time"
)

// Market identifies the exchange group an asset trades on.
type Market string

const (
	MarketAShare Market = "A_SHARE"
	MarketHK     Market = "HK"
	MarketUS     Market = "US"
)

// ParseMarket accepts the persisted value or a common alias.
func ParseMarket(s string) (Market, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A_SHARE", "A", "CN", "A股":
		return MarketAShare, nil
	case "HK", "港股":
		return MarketHK, nil
	case "US", "美股":
		return MarketUS, nil
	}
	return "", fmt.Errorf("unknown market %q", s)
}

// Asset is a tracked security in a user's pool.
type Asset struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	Market          Market    `json:"market"`
	Industry        string    `json:"industry,omitempty"`
	Tags            string    `json:"tags,omitempty"`
	CompetenceScore int       `json:"competence_score"` // 1~5, user assigned
	AIScore         *int      `json:"ai_score,omitempty"`
	AISummary       string    `json:"ai_summary,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Threshold holds the PB trigger levels for one asset.
type Threshold struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	AssetID   int64     `json:"asset_id"`
	BuyPB     float64   `json:"buy_pb"`            // invitation price
	AddPB     *float64  `json:"add_pb,omitempty"`  // overwhelming-advantage price
	SellPB    *float64  `json:"sell_pb,omitempty"` // exit price
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate enforces positive levels and add_pb < buy_pb < sell_pb.
func (t *Threshold) Validate() error {
	if t.BuyPB <= 0 {
		return NewValidationError("buy_pb must be positive, got %.2f", t.BuyPB)
	}
	if t.AddPB != nil {
		if *t.AddPB <= 0 {
			return NewValidationError("add_pb must be positive, got %.2f", *t.AddPB)
		}
		if *t.AddPB >= t.BuyPB {
			return NewValidationError("add_pb %.2f must be lower than buy_pb %.2f", *t.AddPB, t.BuyPB)
		}
	}
	if t.SellPB != nil && *t.SellPB <= t.BuyPB {
		return NewValidationError("sell_pb %.2f must be higher than buy_pb %.2f", *t.SellPB, t.BuyPB)
	}
	return nil
}

// IndustryConfig carries per-industry default thresholds and sizing hints.
type IndustryConfig struct {
	UserID                 int64    `json:"user_id"`
	Industry               string   `json:"industry"`
	DefaultBuyPB           float64  `json:"default_buy_pb"`
	DefaultAddPB           *float64 `json:"default_add_pb,omitempty"`
	DefaultSellPB          *float64 `json:"default_sell_pb,omitempty"`
	RecommendedMaxPosition *float64 `json:"recommended_max_position,omitempty"`
	Cyclical               bool     `json:"cyclical"`
}

// Threshold builds a threshold for assetID from the industry defaults.
func (c *IndustryConfig) Threshold(assetID int64) *Threshold {
	return &Threshold{
		UserID:  c.UserID,
		AssetID: assetID,
		BuyPB:   c.DefaultBuyPB,
		AddPB:   c.DefaultAddPB,
		SellPB:  c.DefaultSellPB,
	}
}
