package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ValueSentinel/internal/model"
)

// Quote is the current market snapshot of one asset. Any field may be unknown.
type Quote struct {
	Price     *float64
	PB        *float64
	BookValue *float64 // per share
	ChangePct *float64
}

// Point is one day of PB history.
type Point struct {
	Date  time.Time
	PB    *float64
	Price *float64
}

// Fetcher defines the interface for fetching valuation data.
type Fetcher interface {
	FetchQuote(ctx context.Context, asset *model.Asset) (*Quote, error)
	// FetchHistory returns points dated on or after since, oldest first.
	FetchHistory(ctx context.Context, asset *model.Asset, since time.Time) ([]Point, error)
	Name() string
}

// YahooSymbol maps an asset code to its Yahoo Finance ticker.
func YahooSymbol(a *model.Asset) string {
	code := strings.ToUpper(strings.TrimSpace(a.Code))
	if strings.Contains(code, ".") {
		return code
	}
	switch a.Market {
	case model.MarketAShare:
		if strings.HasPrefix(code, "6") || strings.HasPrefix(code, "9") {
			return code + ".SS"
		}
		return code + ".SZ"
	case model.MarketHK:
		code = strings.TrimLeft(code, "0")
		if len(code) < 4 {
			code = strings.Repeat("0", 4-len(code)) + code
		}
		return code + ".HK"
	}
	return code
}

func describe(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}
