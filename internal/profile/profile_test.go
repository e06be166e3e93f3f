package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const domainYAML = `
domain: advertising
display_name: Advertising
keywords:
  - programmatic
  - adtech
entity_types:
  company:
    - name: Omnicom
      symbol: OMC
      keywords: [media buying]
      x_handles: ["@Omnicom"]
    - name: Publicis
      symbol: PUBGY
    - name: Dentsu
      symbol: DNTUY
  person:
    - name: Jane Doe
      x_handles: [janedoe]
collectors: [news, financial, social, rss]
publications:
  - name: Adweek
    url: https://www.adweek.com
    rss: https://www.adweek.com/feed/
    priority: 1
  - name: Campaign
    url: https://www.campaignlive.com
    priority: 2
reports:
  - type: daily_brief
scrape_targets:
  - name: Awards Wire
    url: https://example.com/awards
    item_selector: "article"
    title_selector: "h2"
    link_selector: "a"
`

const profileYAML = `
profile_name: agency-watch
focus:
  company:
    priority_1: [OMC]
    exclude: [Dentsu]
thought_leaders:
  - name: Ad Guru
    x_handle: "@adguru"
    priority: 1
keywords:
  boost: [holding company]
  filter: [sponsored]
`

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	domainDir := filepath.Join(dir, "advertising")
	require.NoError(t, os.MkdirAll(filepath.Join(domainDir, "profiles"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(domainDir, "domain.yaml"), []byte(domainYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(domainDir, "profiles", "agency-watch.yaml"), []byte(profileYAML), 0o644))
	return dir
}

func TestLoadDomain(t *testing.T) {
	t.Parallel()

	dir := writeFixtures(t)
	d, err := LoadDomain(dir, "advertising")
	require.NoError(t, err)
	require.Equal(t, "advertising", d.Name)
	require.Equal(t, "Advertising", d.DisplayName)
	require.Len(t, d.EntityTypes["company"], 3)
	require.Equal(t, []string{"daily_brief"}, d.ReportTypes())
	require.True(t, d.SupportsReport("daily_brief"))
	require.False(t, d.SupportsReport("weekly_digest"))
	require.Len(t, d.ScrapeTargets, 1)
}

func TestLoadDomain_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadDomain(t.TempDir(), "nope")
	require.Error(t, err)
}

func TestProfile_FocusOrderingAndExclusion(t *testing.T) {
	t.Parallel()

	dir := writeFixtures(t)
	d, err := LoadDomain(dir, "advertising")
	require.NoError(t, err)
	p, err := LoadProfile(dir, d, "agency-watch")
	require.NoError(t, err)

	companies := p.Entities("company")
	require.Len(t, companies, 2)
	require.Equal(t, "Omnicom", companies[0].Name)
	require.Equal(t, 1, companies[0].Priority)
	require.Equal(t, "Publicis", companies[1].Name)
}

func TestProfile_Helpers(t *testing.T) {
	t.Parallel()

	dir := writeFixtures(t)
	d, err := LoadDomain(dir, "advertising")
	require.NoError(t, err)
	p, err := LoadProfile(dir, d, "agency-watch")
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"OMC", "PUBGY"}, p.Symbols())

	keywords := p.SearchKeywords()
	require.Contains(t, keywords, "programmatic")
	require.Contains(t, keywords, "Omnicom")
	require.Contains(t, keywords, "media buying")
	require.Contains(t, keywords, "holding company")
	require.NotContains(t, keywords, "Dentsu")

	require.ElementsMatch(t, []string{"Omnicom", "janedoe", "adguru"}, p.Handles())

	feeds := p.Feeds()
	require.Len(t, feeds, 1)
	require.Equal(t, "Adweek", feeds[0].Name)

	priorities := p.SourcePriority()
	require.Equal(t, 1, priorities["Adweek"])
	require.Equal(t, 2, priorities["Campaign"])

	require.Equal(t, []string{"sponsored"}, p.FilterKeywords())
}

func TestLoadProfile_DefaultFallback(t *testing.T) {
	t.Parallel()

	dir := writeFixtures(t)
	d, err := LoadDomain(dir, "advertising")
	require.NoError(t, err)

	p, err := LoadProfile(dir, d, "default")
	require.NoError(t, err)
	require.Equal(t, "default", p.Name)
	require.Len(t, p.Entities("company"), 3)

	_, err = LoadProfile(dir, d, "nonexistent")
	require.Error(t, err)
}

func TestListDomainsAndProfiles(t *testing.T) {
	t.Parallel()

	dir := writeFixtures(t)
	domains, err := ListDomains(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"advertising"}, domains)

	profiles, err := ListProfiles(dir, "advertising")
	require.NoError(t, err)
	require.Equal(t, []string{"agency-watch"}, profiles)
}
