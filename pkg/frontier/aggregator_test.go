package frontier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-harvester/pkg/classify"
	"portal-harvester/pkg/config"
	"portal-harvester/pkg/models"
	"portal-harvester/pkg/parse"
	"portal-harvester/pkg/sitemap"
)

const base = "https://mosdac.gov.in"

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

type fakeSitemaps struct {
	entries []sitemap.Entry
}

func (s *fakeSitemaps) Collect(_ context.Context, urls []string) ([]sitemap.Entry, string) {
	if len(s.entries) == 0 {
		return nil, ""
	}
	return s.entries, urls[0]
}

// fakePages answers probes from a status map (default 404) and links from a link map
type fakePages struct {
	mu     sync.Mutex
	status map[string]int
	links  map[string][]string
	probed []string
	loaded []string
}

func (p *fakePages) Probe(_ context.Context, u string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, u)
	if code, ok := p.status[u]; ok {
		if code < 0 {
			return 0, errors.New("connection refused")
		}
		return code, nil
	}
	return http.StatusNotFound, nil
}

func (p *fakePages) Links(_ context.Context, u string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = append(p.loaded, u)
	links, ok := p.links[u]
	if !ok {
		return nil, errors.New("status 404")
	}
	return links, nil
}

type denyPrefix string

func (d denyPrefix) Allowed(_ context.Context, u string) bool {
	return !strings.HasPrefix(u, string(d))
}

func testAppConfig(t *testing.T, mutate func(p *config.PortalConfig)) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		Portal: config.PortalConfig{
			BaseURL:        base,
			SitemapURLs:    []string{base + "/sitemap.xml"},
			EntitySuffixes: []string{"", "-introduction"},
			FallbackURLs:   []string{base + "/", base + "/help"},
		},
		Budget: config.BudgetConfig{MaxTotalPages: 50},
	}
	if mutate != nil {
		mutate(&cfg.Portal)
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

func newTestAggregator(cfg *config.AppConfig, sm SitemapSource, pages PageProber, robots RobotsGate) *Aggregator {
	return NewAggregator(cfg, Deps{
		Normalizer: parse.NewNormalizer(cfg.Portal.Domain, cfg.Portal.PreservedQueryParams),
		Classifier: classify.New(cfg.Classifier),
		Sitemaps:   sm,
		Pages:      pages,
		Robots:     robots,
	}, testLogger())
}

func TestSystematicURLs(t *testing.T) {
	got := SystematicURLs(config.PortalConfig{
		BaseURL:         base + "/",
		Entities:        []string{"oceansat-2", "insat-3d"},
		EntitySuffixes:  []string{"", "-payloads"},
		CatalogEntities: []string{"insat-3d"},
		SpecialURLs:     []string{"/gallery", "https://mosdac.gov.in/live"},
	})
	assert.Equal(t, []string{
		base + "/oceansat-2", base + "/oceansat-2-payloads",
		base + "/insat-3d", base + "/insat-3d-payloads",
		base + "/internal/catalog-insat3d",
		base + "/gallery", base + "/live",
	}, got)
}

func TestAggregate_SystematicBeatsSitemapAndDeadProbesDropped(t *testing.T) {
	cfg := testAppConfig(t, func(p *config.PortalConfig) {
		p.Entities = []string{"oceansat-2", "mission-x"}
	})
	sm := &fakeSitemaps{entries: []sitemap.Entry{{URL: base + "/oceansat-2", Priority: 0.5}}}
	pages := &fakePages{status: map[string]int{
		base + "/oceansat-2":              200,
		base + "/oceansat-2-introduction": 200,
		base + "/mission-x":               -1,
	}}

	f, err := newTestAggregator(cfg, sm, pages, nil).Aggregate(context.Background())
	require.NoError(t, err)

	got, ok := f.Get(base + "/oceansat-2")
	require.True(t, ok)
	assert.Equal(t, models.SourceSystematic, got.Source)
	assert.Equal(t, 0.9, got.Priority)
	assert.Equal(t, models.Category("missions"), got.Category)

	_, ok = f.Get(base + "/oceansat-2-introduction")
	assert.True(t, ok)
	_, ok = f.Get(base + "/mission-x-introduction")
	assert.False(t, ok, "404 probe must be dropped")
	_, ok = f.Get(base + "/mission-x")
	assert.False(t, ok, "probe error must be dropped")

	assert.Equal(t, 4, f.Stats.Probed)
	assert.Equal(t, 2, f.Stats.ProbeAlive)
	assert.False(t, f.Stats.FallbackUsed)
	_, ok = f.Get(base + "/help")
	assert.False(t, ok, "fallback unused when sitemap yields URLs")
}

func TestAggregate_FallbackWhenSitemapEmpty(t *testing.T) {
	cfg := testAppConfig(t, nil)
	f, err := newTestAggregator(cfg, &fakeSitemaps{}, &fakePages{}, nil).Aggregate(context.Background())
	require.NoError(t, err)

	assert.True(t, f.Stats.FallbackUsed)
	got, ok := f.Get(base + "/help")
	require.True(t, ok)
	assert.Equal(t, models.SourceFallback, got.Source)
	assert.Equal(t, 1.0, got.Priority)
}

func TestAggregate_BlockListAndForeignHosts(t *testing.T) {
	cfg := testAppConfig(t, nil)
	sm := &fakeSitemaps{entries: []sitemap.Entry{
		{URL: base + "/insat-3d", Priority: 0.5},
		{URL: base + "/docs/manual.pdf", Priority: 0.5},
		{URL: "https://other.example/insat", Priority: 0.5},
	}}
	f, err := newTestAggregator(cfg, sm, &fakePages{}, nil).Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.Len())
	assert.Equal(t, 2, f.Stats.ScopeDropped)
}

func TestAggregate_SeedExploration(t *testing.T) {
	cfg := testAppConfig(t, func(p *config.PortalConfig) {
		p.SeedURLs = []string{base + "/missions"}
		p.SeedMaxDepth = 2
		p.SeedLinksPerPage = 2
	})
	pages := &fakePages{links: map[string][]string{
		base + "/missions": {
			base + "/about-us",
			base + "/insat-3d",
			base + "/oceansat-2",
			base + "/kalpana-1",
		},
		base + "/insat-3d": {base + "/insat-3d-payloads", base + "/missions"},
	}}

	f, err := newTestAggregator(cfg, &fakeSitemaps{entries: []sitemap.Entry{{URL: base + "/", Priority: 0.5}}}, pages, nil).Aggregate(context.Background())
	require.NoError(t, err)

	seed, ok := f.Get(base + "/missions")
	require.True(t, ok)
	assert.Equal(t, models.SourceDiscovered, seed.Source)
	assert.Equal(t, 0, seed.Depth)

	d1, ok := f.Get(base + "/insat-3d")
	require.True(t, ok)
	assert.Equal(t, 1, d1.Depth)
	assert.InDelta(t, 0.8, d1.Priority, 1e-9)

	d2, ok := f.Get(base + "/insat-3d-payloads")
	require.True(t, ok)
	assert.Equal(t, 2, d2.Depth)
	assert.InDelta(t, 0.7, d2.Priority, 1e-9)

	_, ok = f.Get(base + "/about-us")
	assert.False(t, ok, "links not matching seed patterns are skipped")
	_, ok = f.Get(base + "/kalpana-1")
	assert.False(t, ok, "fan-out bounded per page")

	assert.NotContains(t, pages.loaded, base+"/insat-3d-payloads", "pages at max depth are not loaded")
	assert.Equal(t, 1, f.Stats.SeedsExplored)
}

func TestAggregate_LanguageClonesAndManual(t *testing.T) {
	cfg := testAppConfig(t, func(p *config.PortalConfig) {
		p.CriticalURLs = []string{base + "/insat-3d", base + "/catalog/satellite.php"}
	})
	sm := &fakeSitemaps{entries: []sitemap.Entry{
		{URL: base + "/insat-3d?language=hi", Priority: 0.6},
		{URL: base + "/insat-3d", Priority: 0.5},
	}}
	f, err := newTestAggregator(cfg, sm, &fakePages{}, nil).Aggregate(context.Background())
	require.NoError(t, err)

	hindi, ok := f.Get(base + "/insat-3d?language=hi")
	require.True(t, ok)
	assert.Equal(t, 0.6, hindi.Priority)

	twin, ok := f.Get(base + "/insat-3d")
	require.True(t, ok)
	assert.Equal(t, models.SourceSitemap, twin.Source, "manual injection never modifies an existing entry")
	assert.Equal(t, 0.6, twin.Priority)

	manual, ok := f.Get(base + "/catalog/satellite.php")
	require.True(t, ok)
	assert.Equal(t, models.SourceManual, manual.Source)
	assert.Equal(t, 0.9, manual.Priority)
	assert.Equal(t, 1, f.Stats.ManualInjected)
}

func TestAggregate_RobotsGate(t *testing.T) {
	cfg := testAppConfig(t, func(p *config.PortalConfig) { p.RespectRobots = true })
	sm := &fakeSitemaps{entries: []sitemap.Entry{
		{URL: base + "/insat-3d", Priority: 0.5},
		{URL: base + "/internal/archive", Priority: 0.5},
	}}
	f, err := newTestAggregator(cfg, sm, &fakePages{}, denyPrefix(base+"/internal")).Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.Len())
	assert.Equal(t, 1, f.Stats.RobotsDropped)
}

func TestAggregate_Cancelled(t *testing.T) {
	cfg := testAppConfig(t, func(p *config.PortalConfig) { p.Entities = []string{"oceansat-2"} })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestAggregator(cfg, &fakeSitemaps{}, &fakePages{}, nil).Aggregate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
