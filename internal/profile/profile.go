// Package profile loads domain and profile definitions from YAML. A domain
// describes an industry's entities, publications, and scrape targets; a
// profile narrows a domain to one reader's focus (priority entities, thought
// leaders, boost and filter keywords).
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSourcePriority is assumed for sources a domain does not rank.
const DefaultSourcePriority = 100

// Entity is one tracked company, agency, or person.
type Entity struct {
	Name     string   `yaml:"name"`
	Symbol   string   `yaml:"symbol"`
	Keywords []string `yaml:"keywords"`
	Handles  []string `yaml:"x_handles"`
	Priority int      `yaml:"-"`
}

// Publication is a ranked industry outlet, optionally with an RSS feed.
type Publication struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	RSS      string `yaml:"rss"`
	Priority int    `yaml:"priority"`
}

// ScrapeTarget describes a page the scraping collector may harvest.
type ScrapeTarget struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	ItemSelector  string `yaml:"item_selector"`
	TitleSelector string `yaml:"title_selector"`
	LinkSelector  string `yaml:"link_selector"`
}

// Report names a report type the domain supports.
type Report struct {
	Type string `yaml:"type"`
}

// Domain is a loaded domain definition.
type Domain struct {
	Name          string              `yaml:"domain"`
	DisplayName   string              `yaml:"display_name"`
	Keywords      []string            `yaml:"keywords"`
	EntityTypes   map[string][]Entity `yaml:"entity_types"`
	Collectors    []string            `yaml:"collectors"`
	Publications  []Publication       `yaml:"publications"`
	Reports       []Report            `yaml:"reports"`
	ScrapeTargets []ScrapeTarget      `yaml:"scrape_targets"`
}

// ReportTypes returns the report types the domain defines.
func (d *Domain) ReportTypes() []string {
	types := make([]string, 0, len(d.Reports))
	for _, r := range d.Reports {
		if r.Type != "" {
			types = append(types, r.Type)
		}
	}
	return types
}

// SupportsReport reports whether reportType is defined for the domain. A
// domain with no reports section accepts anything.
func (d *Domain) SupportsReport(reportType string) bool {
	if len(d.Reports) == 0 {
		return true
	}
	for _, r := range d.Reports {
		if r.Type == reportType {
			return true
		}
	}
	return false
}

// FocusList ranks and excludes entities of one type.
type FocusList struct {
	Priority1 []string `yaml:"priority_1"`
	Priority2 []string `yaml:"priority_2"`
	Exclude   []string `yaml:"exclude"`
}

// ThoughtLeader is an individual tracked on X.
type ThoughtLeader struct {
	Name     string `yaml:"name"`
	XHandle  string `yaml:"x_handle"`
	Priority int    `yaml:"priority"`
}

// Keywords holds the profile's boost and filter terms.
type Keywords struct {
	Boost  []string `yaml:"boost"`
	Filter []string `yaml:"filter"`
}

// Profile is a loaded profile merged with its domain.
type Profile struct {
	Name           string               `yaml:"profile_name"`
	Extends        string               `yaml:"extends"`
	Focus          map[string]FocusList `yaml:"focus"`
	ThoughtLeaders []ThoughtLeader      `yaml:"thought_leaders"`
	Publications   []string             `yaml:"publications"`
	Keywords       Keywords             `yaml:"keywords"`

	Domain *Domain `yaml:"-"`
}

// Entities returns the domain's entities of entityType, with the profile's
// exclusions removed and priority entities first.
func (p *Profile) Entities(entityType string) []Entity {
	all := p.Domain.EntityTypes[entityType]
	focus, ok := p.Focus[entityType]
	if !ok {
		return all
	}

	inList := func(e Entity, names []string) bool {
		for _, n := range names {
			if n == e.Name || (e.Symbol != "" && n == e.Symbol) {
				return true
			}
		}
		return false
	}

	result := make([]Entity, 0, len(all))
	for _, e := range all {
		if inList(e, focus.Exclude) {
			continue
		}
		switch {
		case inList(e, focus.Priority1):
			e.Priority = 1
		case inList(e, focus.Priority2):
			e.Priority = 2
		default:
			e.Priority = 3
		}
		result = append(result, e)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority < result[j].Priority
	})
	return result
}

// AllEntities returns every focused entity across all types.
func (p *Profile) AllEntities() []Entity {
	types := make([]string, 0, len(p.Domain.EntityTypes))
	for t := range p.Domain.EntityTypes {
		types = append(types, t)
	}
	sort.Strings(types)

	var all []Entity
	for _, t := range types {
		all = append(all, p.Entities(t)...)
	}
	return all
}

// Symbols returns the ticker symbols of all focused entities.
func (p *Profile) Symbols() []string {
	var symbols []string
	for _, e := range p.AllEntities() {
		if e.Symbol != "" {
			symbols = append(symbols, e.Symbol)
		}
	}
	return symbols
}

// SearchKeywords returns the deduplicated search terms for the profile:
// domain keywords, entity names, per-entity keywords, and boost terms.
func (p *Profile) SearchKeywords() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" {
			return
		}
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, term)
	}

	for _, k := range p.Domain.Keywords {
		add(k)
	}
	for _, e := range p.AllEntities() {
		add(e.Name)
		for _, k := range e.Keywords {
			add(k)
		}
	}
	for _, k := range p.Keywords.Boost {
		add(k)
	}
	return out
}

// Handles returns X handles for focused entities and thought leaders.
func (p *Profile) Handles() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(h string) {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if h == "" {
			return
		}
		if _, ok := seen[strings.ToLower(h)]; ok {
			return
		}
		seen[strings.ToLower(h)] = struct{}{}
		out = append(out, h)
	}
	for _, e := range p.AllEntities() {
		for _, h := range e.Handles {
			add(h)
		}
	}
	for _, tl := range p.ThoughtLeaders {
		add(tl.XHandle)
	}
	return out
}

// Feeds returns the publications that expose RSS feeds, honoring the
// profile's publication subset when one is set.
func (p *Profile) Feeds() []Publication {
	subset := make(map[string]struct{}, len(p.Publications))
	for _, name := range p.Publications {
		subset[name] = struct{}{}
	}
	var feeds []Publication
	for _, pub := range p.Domain.Publications {
		if pub.RSS == "" {
			continue
		}
		if len(subset) > 0 {
			if _, ok := subset[pub.Name]; !ok {
				continue
			}
		}
		feeds = append(feeds, pub)
	}
	return feeds
}

// SourcePriority maps publication names to their rank. Unlisted sources get
// DefaultSourcePriority.
func (p *Profile) SourcePriority() map[string]int {
	out := make(map[string]int, len(p.Domain.Publications))
	for _, pub := range p.Domain.Publications {
		priority := pub.Priority
		if priority <= 0 {
			priority = DefaultSourcePriority
		}
		out[pub.Name] = priority
	}
	return out
}

// FilterKeywords returns terms whose presence drops an item.
func (p *Profile) FilterKeywords() []string { return p.Keywords.Filter }

// BoostKeywords returns terms that raise an item's relevance.
func (p *Profile) BoostKeywords() []string { return p.Keywords.Boost }

// ListDomains returns the domain names available under dir.
func ListDomains(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading domains directory %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), "domain.yaml")); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListProfiles returns the profile names defined for a domain.
func ListProfiles(dir, domain string) ([]string, error) {
	profilesDir := filepath.Join(dir, domain, "profiles")
	entries, err := os.ReadDir(profilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading profiles directory %s: %w", profilesDir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadDomain reads dir/<name>/domain.yaml.
func LoadDomain(dir, name string) (*Domain, error) {
	path := filepath.Join(dir, name, "domain.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading domain %q: %w", name, err)
	}
	var d Domain
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if d.Name == "" {
		d.Name = name
	}
	if d.DisplayName == "" {
		d.DisplayName = d.Name
	}
	return &d, nil
}

// LoadProfile reads dir/<domain>/profiles/<name>.yaml and attaches the
// domain. A missing "default" profile yields an empty one so every domain
// works without profile files.
func LoadProfile(dir string, domain *Domain, name string) (*Profile, error) {
	path := filepath.Join(dir, domain.Name, "profiles", name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && name == "default" {
			return &Profile{Name: "default", Domain: domain}, nil
		}
		return nil, fmt.Errorf("loading profile %q for domain %q: %w", name, domain.Name, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	p.Domain = domain
	return &p, nil
}
