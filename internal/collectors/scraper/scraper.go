// Package scraper harvests items from the domain's configured scrape
// targets using CSS selectors. It is registered only when scraping is
// enabled in configuration; sites without feeds or APIs are reached this
// way.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/profile"
	"github.com/moltpulse/moltpulse/internal/pulse"
	"github.com/moltpulse/moltpulse/internal/trace"
)

// scrapeRelevance is the base estimate for scraped items.
const scrapeRelevance = 0.6

// Collector implements pulse.Collector for CSS-selector scraping.
type Collector struct {
	clock     pulse.Clock
	logger    *zap.Logger
	userAgent string
	timeout   time.Duration
}

// New builds the scraping collector.
func New(clock pulse.Clock, logger *zap.Logger, userAgent string, timeout time.Duration) *Collector {
	return &Collector{
		clock:     clock,
		logger:    logger,
		userAgent: userAgent,
		timeout:   timeout,
	}
}

func (c *Collector) Name() string { return "scraper" }

func (c *Collector) Type() string { return string(pulse.ItemNews) }

func (c *Collector) RequiredCredentials() []string { return nil }

func (c *Collector) RequiresAny() bool { return false }

// Collect scrapes every target, splitting the item budget across them.
// Per-target failures accumulate; the result is an error only when every
// target failed.
func (c *Collector) Collect(ctx context.Context, req pulse.CollectRequest) pulse.CollectorResult {
	targets := req.Profile.Domain.ScrapeTargets
	if len(targets) == 0 {
		return pulse.ResultOf(nil, nil)
	}

	perTarget := req.Limits.MaxItems / len(targets)
	if perTarget < 1 {
		perTarget = 1
	}

	keywords := req.Profile.SearchKeywords()
	var items []pulse.Item
	var sources []pulse.Source
	var errs []string
	for _, target := range targets {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err().Error())
			break
		}
		scraped, err := c.scrape(ctx, target, perTarget, keywords)
		trace.Record(ctx, trace.APICall{
			Endpoint:  target.URL,
			Method:    "GET",
			Timestamp: c.clock.Now(),
			Error:     errText(err),
		})
		if err != nil {
			c.logger.Debug("scrape failed",
				zap.String("target", target.Name), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", target.Name, err))
			continue
		}
		if len(scraped) > 0 {
			items = append(items, scraped...)
			sources = append(sources, pulse.Source{
				Name:     target.Name,
				URL:      target.URL,
				Accessed: c.clock.Now(),
			})
		}
	}

	if len(items) == 0 && len(errs) > 0 {
		return pulse.FailedResult(errors.New(strings.Join(errs, "; ")), items, sources)
	}
	return pulse.ResultOf(items, sources)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (c *Collector) scrape(ctx context.Context, target profile.ScrapeTarget, limit int, keywords []string) ([]pulse.Item, error) {
	collector := colly.NewCollector(
		colly.UserAgent(c.userAgent),
		colly.MaxDepth(1),
	)
	collector.SetRequestTimeout(c.timeout)
	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	var items []pulse.Item
	collector.OnHTML(target.ItemSelector, func(e *colly.HTMLElement) {
		if len(items) >= limit {
			return
		}
		item, ok := c.parseElement(e, target, keywords)
		if ok {
			items = append(items, item)
		}
	})

	var fetchErr error
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(target.URL); err != nil {
		return nil, err
	}
	collector.Wait()
	if fetchErr != nil {
		return nil, fetchErr
	}
	return items, nil
}

func (c *Collector) parseElement(e *colly.HTMLElement, target profile.ScrapeTarget, keywords []string) (pulse.Item, bool) {
	title := selectText(e.DOM, target.TitleSelector)
	if title == "" {
		title = strings.TrimSpace(e.DOM.Text())
	}
	if title == "" {
		return pulse.Item{}, false
	}

	link := selectHref(e.DOM, target.LinkSelector)
	if link != "" {
		link = e.Request.AbsoluteURL(link)
	}

	return pulse.Item{
		ID:         pulse.ItemID(target.Name, firstNonEmpty(link, title)),
		Type:       pulse.ItemNews,
		Title:      title,
		URL:        link,
		SourceName: target.Name,
		Relevance:  relevanceOf(title, keywords),
		News:       &pulse.NewsDetail{},
	}, true
}

func selectText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

func selectHref(sel *goquery.Selection, selector string) string {
	if selector == "" {
		selector = "a"
	}
	href, _ := sel.Find(selector).First().Attr("href")
	return strings.TrimSpace(href)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func relevanceOf(text string, keywords []string) float64 {
	rel := pulse.KeywordRelevance(text, keywords)
	if rel < scrapeRelevance {
		return scrapeRelevance
	}
	return rel
}
