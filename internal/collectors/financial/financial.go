// Package financial collects stock quotes for the profile's tracked
// entities. Alpha Vantage is used when its key is configured; otherwise the
// collector falls back to Yahoo Finance's keyless chart endpoint, so it is
// always available.
package financial

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/cache"
	"github.com/moltpulse/moltpulse/internal/httpx"
	"github.com/moltpulse/moltpulse/internal/profile"
	"github.com/moltpulse/moltpulse/internal/pulse"
)

// KeyAlphaVantage selects the primary provider when configured.
const KeyAlphaVantage = "ALPHA_VANTAGE_API_KEY"

const (
	defaultAlphaVantageURL = "https://www.alphavantage.co/query"
	defaultYahooURL        = "https://query1.finance.yahoo.com/v8/finance/chart"

	// quoteRelevance: quotes for tracked entities are always relevant.
	quoteRelevance = 0.8
)

// LookupFunc resolves credentials.
type LookupFunc func(name string) (string, bool)

// Collector implements pulse.Collector for market quotes.
type Collector struct {
	client          *httpx.Client
	lookup          LookupFunc
	clock           pulse.Clock
	logger          *zap.Logger
	alphaVantageURL string
	yahooURL        string
}

// Option configures a Collector.
type Option func(*Collector)

// WithBaseURLs overrides the provider endpoints.
func WithBaseURLs(alphaVantage, yahoo string) Option {
	return func(c *Collector) {
		c.alphaVantageURL = alphaVantage
		c.yahooURL = yahoo
	}
}

// New builds the financial collector.
func New(client *httpx.Client, lookup LookupFunc, clock pulse.Clock, logger *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		client:          client,
		lookup:          lookup,
		clock:           clock,
		logger:          logger,
		alphaVantageURL: defaultAlphaVantageURL,
		yahooURL:        defaultYahooURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) Name() string { return "financial" }

func (c *Collector) Type() string { return string(pulse.ItemFinancial) }

// RequiredCredentials is empty: the Yahoo fallback needs no key.
func (c *Collector) RequiredCredentials() []string { return nil }

func (c *Collector) RequiresAny() bool { return false }

// Collect fetches one quote per tracked symbol. Per-symbol failures are
// collected; the result is an error only when nothing was fetched at all.
func (c *Collector) Collect(ctx context.Context, req pulse.CollectRequest) pulse.CollectorResult {
	symbols := req.Profile.Symbols()
	if len(symbols) == 0 {
		return pulse.ResultOf(nil, nil)
	}
	if len(symbols) > req.Limits.MaxItems {
		symbols = symbols[:req.Limits.MaxItems]
	}

	apiKey, useAlphaVantage := c.lookup(KeyAlphaVantage)

	var items []pulse.Item
	var sources []pulse.Source
	var errs []string
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err().Error())
			break
		}
		var item *pulse.Item
		var err error
		if useAlphaVantage {
			item, err = c.fetchAlphaVantage(ctx, req, symbol, apiKey)
		} else {
			item, err = c.fetchYahoo(ctx, req, symbol)
		}
		if err != nil {
			c.logger.Debug("quote fetch failed",
				zap.String("symbol", symbol), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", symbol, err))
			continue
		}
		if item == nil {
			continue
		}
		items = append(items, *item)
		sources = append(sources, pulse.Source{
			Name:     item.SourceName,
			URL:      item.URL,
			Accessed: c.clock.Now(),
		})
	}

	if len(items) == 0 && len(errs) > 0 {
		return pulse.FailedResult(errors.New(strings.Join(errs, "; ")), items, sources)
	}
	return pulse.ResultOf(items, sources)
}

type alphaVantageResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		PreviousClose string `json:"08. previous close"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

func (c *Collector) fetchAlphaVantage(ctx context.Context, req pulse.CollectRequest, symbol, apiKey string) (*pulse.Item, error) {
	var resp alphaVantageResponse
	err := c.client.GetJSON(ctx, httpx.Request{
		Source: "alphavantage",
		URL:    c.alphaVantageURL,
		Query: url.Values{
			"function": {"GLOBAL_QUOTE"},
			"symbol":   {symbol},
			"apikey":   {apiKey},
		},
		CacheKey: cache.Key("financial", "alphavantage", symbol, c.clock.Now().Format("2006-01-02")),
		NoCache:  req.NoCache,
	}, &resp)
	if err != nil {
		return nil, err
	}

	quote := resp.GlobalQuote
	if quote.Price == "" {
		// Alpha Vantage signals quota exhaustion with an empty quote body.
		return nil, fmt.Errorf("empty quote for %s", symbol)
	}
	price, err := strconv.ParseFloat(quote.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("unparsable price %q for %s", quote.Price, symbol)
	}

	var changePct *float64
	if raw := strings.TrimSuffix(quote.ChangePercent, "%"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			changePct = &v
		}
	}

	return c.quoteItem(req.Profile, symbol, price, changePct, "Alpha Vantage",
		fmt.Sprintf("%s?function=GLOBAL_QUOTE&symbol=%s", c.alphaVantageURL, symbol)), nil
}

type yahooResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"previousClose"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
		} `json:"result"`
	} `json:"chart"`
}

func (c *Collector) fetchYahoo(ctx context.Context, req pulse.CollectRequest, symbol string) (*pulse.Item, error) {
	var resp yahooResponse
	err := c.client.GetJSON(ctx, httpx.Request{
		Source: "yahoo",
		URL:    c.yahooURL + "/" + symbol,
		Query: url.Values{
			"interval": {"1d"},
			"range":    {"1d"},
		},
		CacheKey: cache.Key("financial", "yahoo", symbol, c.clock.Now().Format("2006-01-02")),
		NoCache:  req.NoCache,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart data for %s", symbol)
	}
	meta := resp.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 {
		return nil, fmt.Errorf("no market price for %s", symbol)
	}

	prevClose := meta.PreviousClose
	if prevClose == 0 {
		prevClose = meta.ChartPreviousClose
	}
	var changePct *float64
	if prevClose > 0 {
		v := (meta.RegularMarketPrice - prevClose) / prevClose * 100
		changePct = &v
	}

	return c.quoteItem(req.Profile, symbol, meta.RegularMarketPrice, changePct, "Yahoo Finance",
		"https://finance.yahoo.com/quote/"+symbol), nil
}

func (c *Collector) quoteItem(prof *profile.Profile, symbol string, price float64, changePct *float64, sourceName, sourceURL string) *pulse.Item {
	entityName := symbol
	for _, e := range prof.AllEntities() {
		if e.Symbol == symbol {
			entityName = e.Name
			break
		}
	}

	title := fmt.Sprintf("%s (%s) $%.2f", entityName, symbol, price)
	if changePct != nil {
		title = fmt.Sprintf("%s %+.2f%%", title, *changePct)
	}

	return &pulse.Item{
		ID:          pulse.ItemID(sourceName, symbol+":"+c.clock.Now().Format("2006-01-02")),
		Type:        pulse.ItemFinancial,
		Title:       title,
		URL:         sourceURL,
		SourceName:  sourceName,
		PublishedAt: c.clock.Now(),
		Relevance:   quoteRelevance,
		Financial: &pulse.FinancialDetail{
			Symbol:     symbol,
			EntityName: entityName,
			MetricType: "stock_price",
			Value:      price,
			ChangePct:  changePct,
		},
	}
}
