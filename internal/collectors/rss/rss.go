// Package rss collects articles from the domain's publication feeds. It is
// keyless and always available; the per-depth item budget is split evenly
// across feeds so one noisy publication cannot crowd out the rest.
package rss

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/cache"
	"github.com/moltpulse/moltpulse/internal/httpx"
	"github.com/moltpulse/moltpulse/internal/pulse"
)

// feedRelevance is the base estimate for feed items; the pipeline refines it
// with profile keywords.
const feedRelevance = 0.6

// Collector implements pulse.Collector for RSS/Atom feeds.
type Collector struct {
	client *httpx.Client
	clock  pulse.Clock
	logger *zap.Logger
	parser *gofeed.Parser
}

// New builds the RSS collector.
func New(client *httpx.Client, clock pulse.Clock, logger *zap.Logger) *Collector {
	return &Collector{
		client: client,
		clock:  clock,
		logger: logger,
		parser: gofeed.NewParser(),
	}
}

func (c *Collector) Name() string { return "rss" }

func (c *Collector) Type() string { return string(pulse.ItemNews) }

func (c *Collector) RequiredCredentials() []string { return nil }

func (c *Collector) RequiresAny() bool { return false }

// Collect fetches every configured feed, keeping items inside the date
// window. Per-feed failures are accumulated; the result is an error only
// when every feed failed.
func (c *Collector) Collect(ctx context.Context, req pulse.CollectRequest) pulse.CollectorResult {
	feeds := req.Profile.Feeds()
	if len(feeds) == 0 {
		return pulse.FailedResult(errors.New("no RSS feeds configured"), nil, nil)
	}

	perFeed := req.Limits.MaxItems / len(feeds)
	if perFeed < 1 {
		perFeed = 1
	}

	keywords := req.Profile.SearchKeywords()
	var items []pulse.Item
	var sources []pulse.Source
	var errs []string
	for _, feed := range feeds {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err().Error())
			break
		}
		feedItems, err := c.fetchFeed(ctx, req, feed.Name, feed.RSS, keywords)
		if err != nil {
			c.logger.Debug("feed fetch failed",
				zap.String("feed", feed.Name), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", feed.Name, err))
			continue
		}
		if len(feedItems) > perFeed {
			feedItems = feedItems[:perFeed]
		}
		if len(feedItems) > 0 {
			items = append(items, feedItems...)
			sources = append(sources, pulse.Source{
				Name:     feed.Name,
				URL:      feed.RSS,
				Accessed: c.clock.Now(),
			})
		}
	}

	if len(items) == 0 && len(errs) > 0 {
		return pulse.FailedResult(errors.New(strings.Join(errs, "; ")), items, sources)
	}
	return pulse.ResultOf(items, sources)
}

func (c *Collector) fetchFeed(ctx context.Context, req pulse.CollectRequest, name, feedURL string, keywords []string) ([]pulse.Item, error) {
	data, err := c.client.Do(ctx, httpx.Request{
		Source:   "rss",
		URL:      feedURL,
		CacheKey: cache.Key("rss", feedURL, req.From.Format("2006-01-02"), req.To.Format("2006-01-02")),
		NoCache:  req.NoCache,
	})
	if err != nil {
		return nil, err
	}

	feed, err := c.parser.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	var items []pulse.Item
	for _, entry := range feed.Items {
		if entry.Title == "" || entry.Link == "" {
			continue
		}
		var published time.Time
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}
		// Dated items outside the window are dropped here so the per-feed
		// budget is spent on in-range articles.
		if !published.IsZero() && (published.Before(req.From) || published.After(req.To)) {
			continue
		}
		snippet := strings.TrimSpace(entry.Description)
		items = append(items, pulse.Item{
			ID:          pulse.ItemID(name, entry.Link),
			Type:        pulse.ItemNews,
			Title:       entry.Title,
			URL:         entry.Link,
			SourceName:  name,
			PublishedAt: published,
			Snippet:     snippet,
			Relevance:   relevanceOf(entry.Title, snippet, keywords),
			News:        &pulse.NewsDetail{Categories: entry.Categories},
		})
	}
	return items, nil
}

func relevanceOf(title, snippet string, keywords []string) float64 {
	rel := pulse.KeywordRelevance(title+" "+snippet, keywords)
	if rel < feedRelevance {
		return feedRelevance
	}
	return rel
}
