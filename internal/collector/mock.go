package collector

import (
	"context"
	"time"

	"ValueSentinel/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	PB      map[string]float64 // by asset code; missing codes get Default
	Default float64
	Price   float64
	Err     error
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) pb(code string) float64 {
	if v, ok := m.PB[code]; ok {
		return v
	}
	return m.Default
}

func (m *MockFetcher) FetchQuote(_ context.Context, asset *model.Asset) (*Quote, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	pb := m.pb(asset.Code)
	price := m.Price
	bvps := price / pb
	return &Quote{Price: &price, PB: &pb, BookValue: &bvps}, nil
}

// FetchHistory returns one point per weekday since since, oscillating around the current PB.
func (m *MockFetcher) FetchHistory(_ context.Context, asset *model.Asset, since time.Time) ([]Point, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	base := m.pb(asset.Code)
	today := model.Day(time.Now())
	var points []Point
	for d, i := model.Day(since), 0; d.Before(today); d, i = d.AddDate(0, 0, 1), i+1 {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		pb := base * (1 + float64(i%40-20)*0.01)
		price := m.Price * pb / base
		points = append(points, Point{Date: d, PB: &pb, Price: &price})
	}
	return points, nil
}
