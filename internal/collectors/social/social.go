// Package social collects X posts from tracked thought leaders through the
// xAI responses API and its x_search tool. The model returns posts as a JSON
// array embedded in the response output; anything unparsable degrades to an
// error result, never a panic.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/cache"
	"github.com/moltpulse/moltpulse/internal/httpx"
	"github.com/moltpulse/moltpulse/internal/pulse"
)

// KeyXAI is the required credential.
const KeyXAI = "XAI_API_KEY"

const (
	defaultBaseURL = "https://api.x.ai/v1/responses"
	searchModel    = "grok-4-1-fast"
	titleLimit     = 80
)

// Engagement blend weights for the raw social signal.
const (
	likesWeight   = 0.55
	repostsWeight = 0.25
	repliesWeight = 0.15
	quotesWeight  = 0.05
)

// LookupFunc resolves credentials.
type LookupFunc func(name string) (string, bool)

// Collector implements pulse.Collector for X search.
type Collector struct {
	client  *httpx.Client
	lookup  LookupFunc
	clock   pulse.Clock
	logger  *zap.Logger
	baseURL string
}

// Option configures a Collector.
type Option func(*Collector)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Collector) { c.baseURL = u }
}

// New builds the social collector.
func New(client *httpx.Client, lookup LookupFunc, clock pulse.Clock, logger *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		client:  client,
		lookup:  lookup,
		clock:   clock,
		logger:  logger,
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) Name() string { return "social" }

func (c *Collector) Type() string { return string(pulse.ItemSocial) }

func (c *Collector) RequiredCredentials() []string { return []string{KeyXAI} }

func (c *Collector) RequiresAny() bool { return false }

type searchRequest struct {
	Model string         `json:"model"`
	Tools []toolSpec     `json:"tools"`
	Input []inputMessage `json:"input"`
}

type toolSpec struct {
	Type string `json:"type"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type searchResponse struct {
	Output []struct {
		Type    string          `json:"type"`
		Content json.RawMessage `json:"content"`
	} `json:"output"`
}

type post struct {
	ID           string  `json:"id"`
	Text         string  `json:"text"`
	URL          string  `json:"url"`
	AuthorHandle string  `json:"author_handle"`
	Date         string  `json:"date"`
	Likes        int64   `json:"likes"`
	Reposts      int64   `json:"reposts"`
	Replies      int64   `json:"replies"`
	Quotes       int64   `json:"quotes"`
	Relevance    float64 `json:"relevance"`
}

// Collect searches X for posts from the profile's handles.
func (c *Collector) Collect(ctx context.Context, req pulse.CollectRequest) pulse.CollectorResult {
	key, ok := c.lookup(KeyXAI)
	if !ok {
		return pulse.FailedResult(fmt.Errorf("%s not configured", KeyXAI), nil, nil)
	}
	handles := req.Profile.Handles()
	if len(handles) == 0 {
		return pulse.ResultOf(nil, nil)
	}

	prompt := buildPrompt(handles, req.From, req.To, req.Limits.MaxItems)
	var resp searchResponse
	err := c.client.GetJSON(ctx, httpx.Request{
		Source: "xai",
		Method: "POST",
		URL:    c.baseURL,
		Headers: map[string]string{
			"Authorization": "Bearer " + key,
		},
		Body: searchRequest{
			Model: searchModel,
			Tools: []toolSpec{{Type: "x_search"}},
			Input: []inputMessage{{Role: "user", Content: prompt}},
		},
		CacheKey: cache.Key("social", strings.Join(handles, ","),
			req.From.Format("2006-01-02"), req.To.Format("2006-01-02")),
		NoCache: req.NoCache,
	}, &resp)
	if err != nil {
		return pulse.FailedResult(fmt.Errorf("xai search: %w", err), nil, nil)
	}

	posts := extractPosts(resp)
	if len(posts) > req.Limits.MaxItems {
		posts = posts[:req.Limits.MaxItems]
	}

	var items []pulse.Item
	var sources []pulse.Source
	for _, p := range posts {
		if p.Text == "" {
			continue
		}
		items = append(items, c.itemFromPost(p))
		if p.URL != "" {
			sources = append(sources, pulse.Source{
				Name:     "X - @" + strings.TrimPrefix(p.AuthorHandle, "@"),
				URL:      p.URL,
				Accessed: c.clock.Now(),
			})
		}
	}
	return pulse.ResultOf(items, sources)
}

func (c *Collector) itemFromPost(p post) pulse.Item {
	handle := strings.TrimPrefix(p.AuthorHandle, "@")
	title := truncateTitle(p.Text, titleLimit)

	var published time.Time
	if t, err := time.Parse("2006-01-02", p.Date); err == nil {
		published = t.UTC()
	}

	engagement := rawEngagement(p)

	id := p.ID
	if id == "" {
		id = p.URL
	}
	return pulse.Item{
		ID:            pulse.ItemID("x:"+handle, id),
		Type:          pulse.ItemSocial,
		Title:         title,
		URL:           p.URL,
		SourceName:    "X",
		PublishedAt:   published,
		Snippet:       p.Text,
		Engagement:    engagement,
		HasEngagement: engagement > 0,
		Relevance:     p.Relevance,
		Social: &pulse.SocialDetail{
			Platform:     "x",
			AuthorHandle: handle,
			Likes:        p.Likes,
			Reposts:      p.Reposts,
			Replies:      p.Replies,
			Quotes:       p.Quotes,
		},
	}
}

// rawEngagement blends the post's counters on a log scale so one viral
// metric does not drown the rest.
func rawEngagement(p post) float64 {
	if p.Likes <= 0 && p.Reposts <= 0 && p.Replies <= 0 {
		return 0
	}
	return likesWeight*math.Log1p(float64(max64(p.Likes, 0))) +
		repostsWeight*math.Log1p(float64(max64(p.Reposts, 0))) +
		repliesWeight*math.Log1p(float64(max64(p.Replies, 0))) +
		quotesWeight*math.Log1p(float64(max64(p.Quotes, 0)))
}

// truncateTitle cuts text to at most limit runes, never mid-rune, and marks
// the cut with an ellipsis.
func truncateTitle(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "…"
}

func max64(v, floor int64) int64 {
	if v < floor {
		return floor
	}
	return v
}

func buildPrompt(handles []string, from, to time.Time, maxItems int) string {
	prefixed := make([]string, len(handles))
	for i, h := range handles {
		prefixed[i] = "@" + strings.TrimPrefix(h, "@")
	}
	return fmt.Sprintf(`Search X/Twitter for recent posts from these thought leaders: %s

Focus on posts from %s to %s.

For each relevant post found, extract the post text, author handle, post URL, date, and engagement metrics.

Return up to %d posts, prioritizing industry trends and high engagement.

Return the results as a JSON array with these fields:
- id: post ID
- text: post content
- url: link to post
- author_handle: @username
- date: YYYY-MM-DD format
- likes: number
- reposts: number
- replies: number
- quotes: number
- relevance: 0.0-1.0 score`,
		strings.Join(prefixed, ", "),
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
		maxItems)
}

// extractPosts pulls post arrays out of tool results and, failing that, out
// of a JSON array embedded in free text.
func extractPosts(resp searchResponse) []post {
	var posts []post
	for _, out := range resp.Output {
		switch out.Type {
		case "tool_result":
			posts = append(posts, parseToolResult(out.Content)...)
		case "text":
			posts = append(posts, parseTextContent(out.Content)...)
		}
	}
	return posts
}

func parseToolResult(content json.RawMessage) []post {
	var text string
	if err := json.Unmarshal(content, &text); err != nil {
		return nil
	}
	var posts []post
	if err := json.Unmarshal([]byte(text), &posts); err == nil {
		return posts
	}
	var wrapped struct {
		Posts []post `json:"posts"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil {
		return wrapped.Posts
	}
	return nil
}

func parseTextContent(content json.RawMessage) []post {
	var text string
	if err := json.Unmarshal(content, &text); err != nil {
		return nil
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil
	}
	var posts []post
	if err := json.Unmarshal([]byte(text[start:end+1]), &posts); err != nil {
		return nil
	}
	return posts
}
