package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"ValueSentinel/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using the Yahoo Finance public API.
// PB comes from the quote's priceToBook; history divides daily closes by the
// current book value per share.
type YahooFetcher struct {
	Client  *http.Client
	BaseURL string
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL: yahooBaseURL,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

type yahooQuote struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string   `json:"symbol"`
			RegularMarketPrice         *float64 `json:"regularMarketPrice"`
			RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
			PriceToBook                *float64 `json:"priceToBook"`
			BookValue                  *float64 `json:"bookValue"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (f *YahooFetcher) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("yahoo decode: %w", err)
	}
	return nil
}

func (f *YahooFetcher) FetchQuote(ctx context.Context, asset *model.Asset) (*Quote, error) {
	var q yahooQuote
	if err := f.get(ctx, "/v7/finance/quote?symbols="+url.QueryEscape(YahooSymbol(asset)), &q); err != nil {
		return nil, err
	}
	if q.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", q.QuoteResponse.Error.Description)
	}
	if len(q.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no quote for %s", YahooSymbol(asset))
	}
	r := q.QuoteResponse.Result[0]
	quote := &Quote{
		Price:     r.RegularMarketPrice,
		PB:        r.PriceToBook,
		BookValue: r.BookValue,
		ChangePct: r.RegularMarketChangePercent,
	}
	if quote.PB == nil && quote.Price != nil && quote.BookValue != nil && *quote.BookValue > 0 {
		pb := *quote.Price / *quote.BookValue
		quote.PB = &pb
	}
	return quote, nil
}

func (f *YahooFetcher) FetchHistory(ctx context.Context, asset *model.Asset, since time.Time) ([]Point, error) {
	quote, err := f.FetchQuote(ctx, asset)
	if err != nil {
		return nil, err
	}
	if quote.BookValue == nil || *quote.BookValue <= 0 {
		return nil, fmt.Errorf("yahoo: no book value for %s", YahooSymbol(asset))
	}
	bvps := *quote.BookValue

	path := fmt.Sprintf("/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		url.PathEscape(YahooSymbol(asset)), since.Unix(), time.Now().Unix())
	var chart yahooChart
	if err := f.get(ctx, path, &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}

	result := chart.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	points := make([]Point, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue // holidays and suspensions
		}
		price := *closes[i]
		pb := price / bvps
		points = append(points, Point{Date: model.Day(time.Unix(ts, 0)), PB: &pb, Price: &price})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
