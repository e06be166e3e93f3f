// Package news collects articles from NewsData.io, falling back to NewsAPI
// when only that key is configured. Either credential alone makes the
// collector available.
package news

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/cache"
	"github.com/moltpulse/moltpulse/internal/httpx"
	"github.com/moltpulse/moltpulse/internal/pulse"
)

// Credential keys, in preference order.
const (
	KeyNewsData = "NEWSDATA_API_KEY"
	KeyNewsAPI  = "NEWSAPI_API_KEY"
)

const (
	defaultNewsDataURL = "https://newsdata.io/api/1/news"
	defaultNewsAPIURL  = "https://newsapi.org/v2/everything"

	// maxQueryTerms bounds the OR-joined search query; provider query
	// length limits are tight.
	maxQueryTerms = 5
)

// LookupFunc resolves credentials.
type LookupFunc func(name string) (string, bool)

// Collector implements pulse.Collector for news providers.
type Collector struct {
	client      *httpx.Client
	lookup      LookupFunc
	clock       pulse.Clock
	logger      *zap.Logger
	newsDataURL string
	newsAPIURL  string
}

// Option configures a Collector.
type Option func(*Collector)

// WithBaseURLs overrides the provider endpoints.
func WithBaseURLs(newsData, newsAPI string) Option {
	return func(c *Collector) {
		c.newsDataURL = newsData
		c.newsAPIURL = newsAPI
	}
}

// New builds the news collector.
func New(client *httpx.Client, lookup LookupFunc, clock pulse.Clock, logger *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		client:      client,
		lookup:      lookup,
		clock:       clock,
		logger:      logger,
		newsDataURL: defaultNewsDataURL,
		newsAPIURL:  defaultNewsAPIURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) Name() string { return "news" }

func (c *Collector) Type() string { return string(pulse.ItemNews) }

func (c *Collector) RequiredCredentials() []string { return []string{KeyNewsData, KeyNewsAPI} }

func (c *Collector) RequiresAny() bool { return true }

// Collect queries whichever provider has a configured key, NewsData.io
// preferred.
func (c *Collector) Collect(ctx context.Context, req pulse.CollectRequest) pulse.CollectorResult {
	query := buildQuery(req.Profile.SearchKeywords())
	if query == "" {
		return pulse.FailedResult(fmt.Errorf("no search keywords for domain %s", req.Profile.Domain.Name), nil, nil)
	}

	if key, ok := c.lookup(KeyNewsData); ok {
		return c.collectNewsData(ctx, req, key, query)
	}
	if key, ok := c.lookup(KeyNewsAPI); ok {
		return c.collectNewsAPI(ctx, req, key, query)
	}
	return pulse.FailedResult(fmt.Errorf("no news provider key configured"), nil, nil)
}

func buildQuery(keywords []string) string {
	if len(keywords) > maxQueryTerms {
		keywords = keywords[:maxQueryTerms]
	}
	return strings.Join(keywords, " OR ")
}

type newsDataResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Title       string   `json:"title"`
		Link        string   `json:"link"`
		Description string   `json:"description"`
		PubDate     string   `json:"pubDate"`
		SourceID    string   `json:"source_id"`
		Category    []string `json:"category"`
	} `json:"results"`
}

func (c *Collector) collectNewsData(ctx context.Context, req pulse.CollectRequest, key, query string) pulse.CollectorResult {
	var resp newsDataResponse
	err := c.client.GetJSON(ctx, httpx.Request{
		Source: "newsdata",
		URL:    c.newsDataURL,
		Query: url.Values{
			"apikey":   {key},
			"q":        {query},
			"language": {"en"},
		},
		CacheKey: cache.Key("news", "newsdata", query, req.From.Format("2006-01-02"), req.To.Format("2006-01-02")),
		NoCache:  req.NoCache,
	}, &resp)
	if err != nil {
		return pulse.FailedResult(fmt.Errorf("newsdata search: %w", err), nil, nil)
	}

	keywords := req.Profile.SearchKeywords()
	items := make([]pulse.Item, 0, len(resp.Results))
	for _, article := range resp.Results {
		if article.Title == "" || article.Link == "" {
			continue
		}
		if len(items) >= req.Limits.MaxItems {
			break
		}
		sourceName := article.SourceID
		if sourceName == "" {
			sourceName = "NewsData.io"
		}
		items = append(items, pulse.Item{
			ID:          pulse.ItemID(sourceName, article.Link),
			Type:        pulse.ItemNews,
			Title:       article.Title,
			URL:         article.Link,
			SourceName:  sourceName,
			PublishedAt: parseNewsDataTime(article.PubDate),
			Snippet:     article.Description,
			Relevance:   pulse.KeywordRelevance(article.Title+" "+article.Description, keywords),
			News:        &pulse.NewsDetail{Categories: article.Category},
		})
	}

	return pulse.ResultOf(items, []pulse.Source{{
		Name:     "NewsData.io",
		URL:      c.newsDataURL,
		Accessed: c.clock.Now(),
	}})
}

// parseNewsDataTime handles the provider's "2006-01-02 15:04:05" format plus
// plain dates.
func parseNewsDataTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (c *Collector) collectNewsAPI(ctx context.Context, req pulse.CollectRequest, key, query string) pulse.CollectorResult {
	var resp newsAPIResponse
	err := c.client.GetJSON(ctx, httpx.Request{
		Source: "newsapi",
		URL:    c.newsAPIURL,
		Query: url.Values{
			"apiKey":   {key},
			"q":        {query},
			"from":     {req.From.Format("2006-01-02")},
			"sortBy":   {"relevancy"},
			"language": {"en"},
			"pageSize": {strconv.Itoa(req.Limits.MaxItems)},
		},
		CacheKey: cache.Key("news", "newsapi", query, req.From.Format("2006-01-02"), req.To.Format("2006-01-02")),
		NoCache:  req.NoCache,
	}, &resp)
	if err != nil {
		return pulse.FailedResult(fmt.Errorf("newsapi search: %w", err), nil, nil)
	}

	keywords := req.Profile.SearchKeywords()
	items := make([]pulse.Item, 0, len(resp.Articles))
	for _, article := range resp.Articles {
		if article.Title == "" || article.URL == "" {
			continue
		}
		if len(items) >= req.Limits.MaxItems {
			break
		}
		published, err := time.Parse(time.RFC3339, article.PublishedAt)
		if err != nil {
			c.logger.Debug("unparsable article timestamp",
				zap.String("value", article.PublishedAt))
			published = time.Time{}
		}
		sourceName := article.Source.Name
		if sourceName == "" {
			sourceName = "NewsAPI"
		}
		items = append(items, pulse.Item{
			ID:          pulse.ItemID(sourceName, article.URL),
			Type:        pulse.ItemNews,
			Title:       article.Title,
			URL:         article.URL,
			SourceName:  sourceName,
			PublishedAt: published.UTC(),
			Snippet:     article.Description,
			Relevance:   pulse.KeywordRelevance(article.Title+" "+article.Description, keywords),
			News:        &pulse.NewsDetail{},
		})
	}

	return pulse.ResultOf(items, []pulse.Source{{
		Name:     "NewsAPI",
		URL:      c.newsAPIURL,
		Accessed: c.clock.Now(),
	}})
}
