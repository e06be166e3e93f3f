// Package report assembles the pipeline's ordered items into a report
// document: typed sections in a fixed order plus a deduplicated citation
// list. Rendering is deliberately minimal; delivery layers own presentation.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/moltpulse/moltpulse/internal/pulse"
)

// sectionOrder fixes the section sequence regardless of item scores.
var sectionOrder = []pulse.ItemType{pulse.ItemFinancial, pulse.ItemNews, pulse.ItemSocial}

var sectionTitles = map[pulse.ItemType]string{
	pulse.ItemFinancial: "Market Movements",
	pulse.ItemNews:      "Industry News",
	pulse.ItemSocial:    "Social Pulse",
}

// Section groups the delivered items of one type, preserving their pipeline
// order.
type Section struct {
	Type  pulse.ItemType `json:"type"`
	Title string         `json:"title"`
	Items []pulse.Item   `json:"items"`
}

// Window is the collection date range.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Report is one assembled run output.
type Report struct {
	RunID       string         `json:"run_id"`
	Domain      string         `json:"domain"`
	Profile     string         `json:"profile"`
	ReportType  string         `json:"report_type"`
	GeneratedAt time.Time      `json:"generated_at"`
	Window      Window         `json:"window"`
	Sections    []Section      `json:"sections"`
	Sources     []pulse.Source `json:"sources"`
}

// Meta identifies the run a report belongs to.
type Meta struct {
	RunID       string
	Domain      string
	Profile     string
	ReportType  string
	GeneratedAt time.Time
	Window      Window
}

// Assemble groups items into typed sections and deduplicates the citation
// list by name and URL. Empty sections are omitted.
func Assemble(meta Meta, items []pulse.Item, sources []pulse.Source) *Report {
	byType := make(map[pulse.ItemType][]pulse.Item, len(sectionOrder))
	for _, item := range items {
		byType[item.Type] = append(byType[item.Type], item)
	}

	var sections []Section
	for _, t := range sectionOrder {
		grouped := byType[t]
		if len(grouped) == 0 {
			continue
		}
		sections = append(sections, Section{Type: t, Title: sectionTitles[t], Items: grouped})
	}

	return &Report{
		RunID:       meta.RunID,
		Domain:      meta.Domain,
		Profile:     meta.Profile,
		ReportType:  meta.ReportType,
		GeneratedAt: meta.GeneratedAt,
		Window:      meta.Window,
		Sections:    sections,
		Sources:     dedupeSources(sources),
	}
}

func dedupeSources(sources []pulse.Source) []pulse.Source {
	seen := make(map[string]struct{}, len(sources))
	out := make([]pulse.Source, 0, len(sources))
	for _, s := range sources {
		key := strings.ToLower(s.Name) + "|" + strings.ToLower(s.URL)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ItemCount returns the total items across sections.
func (r *Report) ItemCount() int {
	total := 0
	for _, s := range r.Sections {
		total += len(s.Items)
	}
	return total
}

// RenderMarkdown produces a plain markdown rendition of the report.
func (r *Report) RenderMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — %s\n\n", r.Domain, r.ReportType)
	fmt.Fprintf(&b, "Profile: %s | Window: %s to %s | Run: %s\n\n",
		r.Profile,
		r.Window.From.Format("2006-01-02"),
		r.Window.To.Format("2006-01-02"),
		r.RunID)

	for _, section := range r.Sections {
		fmt.Fprintf(&b, "## %s\n\n", section.Title)
		for _, item := range section.Items {
			title := item.Title
			if title == "" {
				title = item.ID
			}
			if item.URL != "" {
				fmt.Fprintf(&b, "- [%s](%s)", title, item.URL)
			} else {
				fmt.Fprintf(&b, "- %s", title)
			}
			fmt.Fprintf(&b, " — %s (%.2f)\n", item.SourceName, item.Score)
			if item.Snippet != "" {
				fmt.Fprintf(&b, "  %s\n", item.Snippet)
			}
		}
		b.WriteString("\n")
	}

	if len(r.Sources) > 0 {
		b.WriteString("## Sources\n\n")
		for _, s := range r.Sources {
			fmt.Fprintf(&b, "- %s (%s)\n", s.Name, s.URL)
		}
	}
	return b.String()
}
