// Package yahoo implements the upstream market-data client.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	chartBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"
	quoteBaseURL = "https://query1.finance.yahoo.com/v7/finance/quote"

	// Cooperative throttling between requests
	barInterval         = 1 * time.Second
	fundamentalInterval = 3 * time.Second
)

// Client is a Yahoo Finance API client
type Client struct {
	client      *http.Client
	batchClient *http.Client
	log         zerolog.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		batchClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// ProviderSymbol converts an NSE/BSE ticker to the provider's namespace.
// Bare tickers get the NSE suffix; tickers already carrying a suffix pass
// through unchanged.
func ProviderSymbol(symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ".NS"
}

// throttle blocks until at least interval has elapsed since the last request
func (c *Client) throttle(ctx context.Context, interval time.Duration) error {
	c.mu.Lock()
	wait := interval - time.Since(c.lastRequest)
	if wait < 0 {
		wait = 0
	}
	// Reserve the slot before sleeping so concurrent callers queue up
	c.lastRequest = time.Now().Add(wait)
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchBars fetches daily OHLCV bars for one symbol over [from, to].
// Returned bars are sorted ascending by date and deduplicated; rows with
// null OHLC values are discarded.
func (c *Client) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error) {
	if err := c.throttle(ctx, barInterval); err != nil {
		return nil, err
	}
	return c.fetchChart(ctx, c.client, symbol, from, to)
}

// FetchBarsBatch fetches bars for many symbols. The provider has no true
// multi-symbol chart endpoint, so the batch is drained sequentially under
// the longer batch deadline; each symbol gets its own result. A non-nil
// error means the whole batch failed and callers should fall back to
// per-symbol fetches.
func (c *Client) FetchBarsBatch(ctx context.Context, symbols []string, from, to time.Time) (map[string]BatchResult, error) {
	results := make(map[string]BatchResult, len(symbols))

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("batch aborted: %w", err)
		}
		if err := c.throttle(ctx, barInterval); err != nil {
			return results, fmt.Errorf("batch aborted: %w", err)
		}

		bars, err := c.fetchChart(ctx, c.batchClient, symbol, from, to)
		results[symbol] = BatchResult{Bars: bars, Err: err}
	}

	return results, nil
}

func (c *Client) fetchChart(ctx context.Context, httpClient *http.Client, symbol string, from, to time.Time) ([]Bar, error) {
	yfSymbol := ProviderSymbol(symbol)

	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("period1", fmt.Sprintf("%d", from.Unix()))
	params.Add("period2", fmt.Sprintf("%d", to.Unix()))

	reqURL := chartBaseURL + url.PathEscape(yfSymbol) + "?" + params.Encode()

	body, err := c.get(ctx, httpClient, reqURL)
	if err != nil {
		return nil, err
	}

	// Parse response
	var result struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Open   []*float64 `json:"open"`
						High   []*float64 `json:"high"`
						Low    []*float64 `json:"low"`
						Close  []*float64 `json:"close"`
						Volume []*int64   `json:"volume"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error *struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %v: %w", err, ErrTransient)
	}

	if result.Chart.Error != nil {
		if result.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("no data for %s: %w", symbol, ErrSymbolUnknown)
		}
		return nil, fmt.Errorf("provider error %s: %s: %w",
			result.Chart.Error.Code, result.Chart.Error.Description, ErrTransient)
	}

	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart data for %s: %w", symbol, ErrSymbolUnknown)
	}

	chartData := result.Chart.Result[0]
	if len(chartData.Indicators.Quote) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No quote data in chart response")
		return []Bar{}, nil
	}

	quote := chartData.Indicators.Quote[0]

	var bars []Bar
	seen := make(map[string]bool)
	for i, ts := range chartData.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		// Rows with any null OHLC value are discarded
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}

		date := time.Unix(ts, 0).UTC().Truncate(24 * time.Hour)
		key := date.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true

		volume := int64(0)
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}

		bars = append(bars, Bar{
			Date:   date,
			Open:   *quote.Open[i],
			High:   *quote.High[i],
			Low:    *quote.Low[i],
			Close:  *quote.Close[i],
			Volume: volume,
		})
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})

	c.log.Debug().
		Str("symbol", symbol).
		Int("count", len(bars)).
		Msg("Fetched bars")

	return bars, nil
}

// FetchFundamentals fetches per-issuer attributes from the quote API
func (c *Client) FetchFundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	if err := c.throttle(ctx, fundamentalInterval); err != nil {
		return nil, err
	}

	yfSymbol := ProviderSymbol(symbol)

	params := url.Values{}
	params.Add("symbols", yfSymbol)
	params.Add("fields", "symbol,longName,shortName,sector,industry,fullExchangeName,"+
		"regularMarketPrice,currentPrice,marketCap,trailingPE,priceToBook,beta,"+
		"returnOnEquity,returnOnAssets,grossMargins,operatingMargins,profitMargins,"+
		"dividendYield,debtToEquity,currentRatio,totalCash,totalDebt,enterpriseValue,"+
		"bookValue,fiftyTwoWeekHigh,fiftyTwoWeekLow,regularMarketVolume,sharesOutstanding")

	reqURL := quoteBaseURL + "?" + params.Encode()

	body, err := c.get(ctx, c.client, reqURL)
	if err != nil {
		return nil, err
	}

	var result struct {
		QuoteResponse struct {
			Result []map[string]interface{} `json:"result"`
			Error  interface{}              `json:"error"`
		} `json:"quoteResponse"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %v: %w", err, ErrTransient)
	}

	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("provider error: %v: %w", result.QuoteResponse.Error, ErrTransient)
	}

	if len(result.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote data for %s: %w", symbol, ErrSymbolUnknown)
	}

	info := result.QuoteResponse.Result[0]

	currentPrice := getFloat64(info, "currentPrice")
	if currentPrice == nil {
		currentPrice = getFloat64(info, "regularMarketPrice")
	}

	companyName := getStringPtr(info, "longName")
	if companyName == nil {
		companyName = getStringPtr(info, "shortName")
	}

	return &Fundamentals{
		Symbol:            symbol,
		CompanyName:       companyName,
		Sector:            getStringPtr(info, "sector"),
		Industry:          getStringPtr(info, "industry"),
		Exchange:          getStringPtr(info, "fullExchangeName"),
		MarketCap:         getInt64(info, "marketCap"),
		CurrentPrice:      currentPrice,
		PERatio:           getFloat64(info, "trailingPE"),
		PBRatio:           getFloat64(info, "priceToBook"),
		Beta:              getFloat64(info, "beta"),
		ROE:               getFloat64(info, "returnOnEquity"),
		ROA:               getFloat64(info, "returnOnAssets"),
		GrossMargin:       getFloat64(info, "grossMargins"),
		OperatingMargin:   getFloat64(info, "operatingMargins"),
		ProfitMargin:      getFloat64(info, "profitMargins"),
		DividendYield:     getFloat64(info, "dividendYield"),
		DebtToEquity:      getFloat64(info, "debtToEquity"),
		CurrentRatio:      getFloat64(info, "currentRatio"),
		TotalCash:         getInt64(info, "totalCash"),
		TotalDebt:         getInt64(info, "totalDebt"),
		EnterpriseValue:   getInt64(info, "enterpriseValue"),
		BookValue:         getFloat64(info, "bookValue"),
		Week52High:        getFloat64(info, "fiftyTwoWeekHigh"),
		Week52Low:         getFloat64(info, "fiftyTwoWeekLow"),
		Volume:            getInt64(info, "regularMarketVolume"),
		SharesOutstanding: getInt64(info, "sharesOutstanding"),
	}, nil
}

// get performs an HTTP GET with browser headers and maps failures onto the
// error taxonomy.
func (c *Client) get(ctx context.Context, httpClient *http.Client, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, classifyNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyNetworkError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, string(body))
	}

	return body, nil
}

// Helper functions to safely extract values from map

func getFloat64(m map[string]interface{}, key string) *float64 {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			return &v
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		}
	}
	return nil
}

func getInt64(m map[string]interface{}, key string) *int64 {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			i := int64(v)
			return &i
		case int:
			i := int64(v)
			return &i
		case int64:
			return &v
		}
	}
	return nil
}

func getStringPtr(m map[string]interface{}, key string) *string {
	if val, ok := m[key]; ok && val != nil {
		if s, ok := val.(string); ok && s != "" {
			return &s
		}
	}
	return nil
}
