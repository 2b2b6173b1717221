package frontier

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"portal-harvester/pkg/classify"
	"portal-harvester/pkg/config"
	"portal-harvester/pkg/fetch"
	"portal-harvester/pkg/models"
	"portal-harvester/pkg/parse"
	"portal-harvester/pkg/sitemap"
	"portal-harvester/pkg/utils"
)

const (
	SystematicPriority = 0.9
	FallbackPriority   = 1.0
	ManualPriority     = 0.9
	minSeedPriority    = 0.1
)

// SitemapSource flattens configured sitemaps; the first one yielding entries wins
type SitemapSource interface {
	Collect(ctx context.Context, sitemapURLs []string) ([]sitemap.Entry, string)
}

// PageProber is the subset of the page fetcher used while building the frontier
type PageProber interface {
	Probe(ctx context.Context, rawURL string) (int, error)
	Links(ctx context.Context, pageURL string) ([]string, error)
}

// RobotsGate decides whether a URL may be fetched
type RobotsGate interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Deps are the collaborators of an Aggregator. Sitemaps, Gate and Robots may be nil.
type Deps struct {
	Normalizer *parse.Normalizer
	Classifier *classify.Classifier
	Sitemaps   SitemapSource
	Pages      PageProber
	Gate       *fetch.Gate
	Robots     RobotsGate
}

// Aggregator merges every frontier source into one de-duplicated Frontier
type Aggregator struct {
	portal config.PortalConfig
	agg    config.AggregationConfig
	deps   Deps
	base   string
	log    *logrus.Entry
}

// NewAggregator creates an Aggregator. cfg must already be validated.
func NewAggregator(cfg *config.AppConfig, deps Deps, log *logrus.Entry) *Aggregator {
	return &Aggregator{
		portal: cfg.Portal,
		agg:    cfg.Aggregation,
		deps:   deps,
		base:   strings.TrimRight(cfg.Portal.BaseURL, "/"),
		log:    log.WithField("component", "frontier_aggregator"),
	}
}

// Aggregate runs the sources in order: sitemap, systematic, discovered, fallback,
// language clones, manual critical URLs and finally the optional robots gate.
// It returns ctx.Err() if cancelled, along with whatever was gathered.
func (a *Aggregator) Aggregate(ctx context.Context) (*Frontier, error) {
	f := New()

	sitemapCount := a.addSitemap(ctx, f)
	a.addSystematic(ctx, f)
	a.addDiscovered(ctx, f)
	if sitemapCount == 0 {
		f.Stats.FallbackUsed = true
		for _, u := range a.portal.FallbackURLs {
			a.offer(f, u, models.SourceFallback, FallbackPriority, 0)
		}
		a.log.Infof("Sitemap yielded nothing, added %d fallback URLs", len(a.portal.FallbackURLs))
	}
	a.addLanguageClones(f)
	a.addManual(f)
	a.applyRobots(ctx, f)

	a.log.WithFields(logrus.Fields{
		"size":      f.Len(),
		"by_source": f.CountBySource(),
	}).Info("Frontier aggregated")
	return f, ctx.Err()
}

// offer normalizes, scope-checks and merges one raw URL
func (a *Aggregator) offer(f *Frontier, raw string, source models.Source, priority float64, depth int) AddResult {
	n, err := a.deps.Normalizer.Normalize(raw, a.base)
	if err != nil {
		f.Stats.ScopeDropped++
		a.log.WithField("url", raw).Debugf("Dropping candidate: %v", err)
		return Unchanged
	}
	category := models.CategoryOther
	if source == models.SourceManual {
		category = a.deps.Classifier.Categorize(n)
	} else {
		var ok bool
		if category, ok = a.deps.Classifier.Classify(n); !ok {
			f.Stats.ScopeDropped++
			a.log.WithField("url", n).Debug("Dropping blocked candidate")
			return Unchanged
		}
	}
	c, err := models.NewCandidateURL(n, source, priority, category, depth)
	if err != nil {
		a.log.Warnf("Invalid candidate: %v", err)
		return Unchanged
	}
	if source == models.SourceManual {
		if f.AddIfAbsent(c) {
			return Inserted
		}
		return Unchanged
	}
	return f.Add(c)
}

func (a *Aggregator) addSitemap(ctx context.Context, f *Frontier) int {
	if a.deps.Sitemaps == nil || len(a.portal.SitemapURLs) == 0 {
		return 0
	}
	entries, used := a.deps.Sitemaps.Collect(ctx, a.portal.SitemapURLs)
	f.Stats.SitemapUsed = used
	f.Stats.SitemapEntries = len(entries)
	for _, e := range entries {
		a.offer(f, e.URL, models.SourceSitemap, e.Priority, 0)
	}
	return len(entries)
}

// SystematicURLs builds the entity x suffix product, the catalog pages and the special pages
func SystematicURLs(p config.PortalConfig) []string {
	base := strings.TrimRight(p.BaseURL, "/")
	var out []string
	for _, entity := range p.Entities {
		for _, suffix := range p.EntitySuffixes {
			out = append(out, base+"/"+entity+suffix)
		}
	}
	for _, entity := range p.CatalogEntities {
		out = append(out, base+"/internal/catalog-"+strings.ReplaceAll(entity, "-", ""))
	}
	for _, special := range p.SpecialURLs {
		if strings.HasPrefix(special, "http://") || strings.HasPrefix(special, "https://") {
			out = append(out, special)
			continue
		}
		out = append(out, base+"/"+strings.TrimLeft(special, "/"))
	}
	return out
}

// addSystematic probes every generated URL and keeps the ones answering 200
func (a *Aggregator) addSystematic(ctx context.Context, f *Frontier) {
	if a.deps.Pages == nil {
		return
	}
	urls := SystematicURLs(a.portal)
	if len(urls) == 0 {
		return
	}
	alive := make([]bool, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.agg.ProbeWorkers, 1))
	for i, u := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer a.recoverTask("probe", u)
			release, err := a.enter(gctx, u)
			if err != nil {
				a.log.WithField("url", u).Debugf("Probe not admitted: %v", err)
				return nil
			}
			code, err := a.deps.Pages.Probe(gctx, u)
			release()
			if err != nil {
				a.log.WithField("url", u).Debugf("Probe failed: %v", err)
				return nil
			}
			alive[i] = code == http.StatusOK
			return nil
		})
	}
	_ = g.Wait()

	f.Stats.Probed = len(urls)
	for i, u := range urls {
		if alive[i] {
			f.Stats.ProbeAlive++
			a.offer(f, u, models.SourceSystematic, SystematicPriority, 0)
		}
	}
	a.log.Infof("Systematic probe: %d of %d URLs alive", f.Stats.ProbeAlive, len(urls))
}

// DiscoveredPriority decays base by decay per level below the first, floored at 0.1
func DiscoveredPriority(base, decay float64, depth int) float64 {
	steps := depth - 1
	if steps < 0 {
		steps = 0
	}
	p := base - decay*float64(steps)
	if p < minSeedPriority {
		p = minSeedPriority
	}
	if p > 1 {
		p = 1
	}
	return p
}

// addDiscovered explores each seed in its own task with its own visited set
func (a *Aggregator) addDiscovered(ctx context.Context, f *Frontier) {
	if a.deps.Pages == nil || len(a.portal.SeedURLs) == 0 {
		return
	}
	results := make([][]models.WorkItem, len(a.portal.SeedURLs))
	loaded := make([]int, len(a.portal.SeedURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.portal.SeedWorkers, 1))
	for i, seed := range a.portal.SeedURLs {
		g.Go(func() error {
			defer a.recoverTask("seed", seed)
			results[i], loaded[i] = a.exploreSeed(gctx, seed)
			return nil
		})
	}
	_ = g.Wait()

	f.Stats.SeedsExplored = len(a.portal.SeedURLs)
	added := 0
	for i, items := range results {
		f.Stats.SeedPagesLoaded += loaded[i]
		for _, it := range items {
			if a.offer(f, it.URL, models.SourceDiscovered, DiscoveredPriority(a.agg.DiscoveredBasePriority, a.agg.DiscoveredPriorityDecay, it.Depth), it.Depth) == Inserted {
				added++
			}
		}
	}
	a.log.Infof("Seed exploration: %d seeds, %d pages loaded, %d new candidates", len(a.portal.SeedURLs), f.Stats.SeedPagesLoaded, added)
}

// exploreSeed walks an explicit (url, depth) worklist from one seed.
// Pages shallower than seed_max_depth are loaded for links; deeper links are recorded only.
func (a *Aggregator) exploreSeed(ctx context.Context, seed string) ([]models.WorkItem, int) {
	seedLog := a.log.WithField("seed", seed)
	start, err := a.deps.Normalizer.Normalize(seed, a.base)
	if err != nil {
		seedLog.Warnf("Skipping seed: %v", err)
		return nil, 0
	}

	visited := map[string]bool{start: true}
	found := []models.WorkItem{{URL: start, Depth: 0}}
	worklist := []models.WorkItem{{URL: start, Depth: 0}}
	loaded := 0

	for len(worklist) > 0 {
		if ctx.Err() != nil {
			break
		}
		item := worklist[0]
		worklist = worklist[1:]
		if item.Depth >= a.portal.SeedMaxDepth {
			continue
		}

		release, err := a.enter(ctx, item.URL)
		if err != nil {
			seedLog.Debugf("Seed fetch not admitted: %v", err)
			break
		}
		links, err := a.deps.Pages.Links(ctx, item.URL)
		release()
		if err != nil {
			seedLog.WithField("url", item.URL).Debugf("Seed page failed: %v", err)
			continue
		}
		loaded++

		taken := 0
		for _, link := range links {
			if taken >= a.portal.SeedLinksPerPage {
				break
			}
			if visited[link] || !a.deps.Classifier.InScope(link) || !classify.MatchesAny(link, a.portal.SeedLinkPatterns) {
				continue
			}
			visited[link] = true
			taken++
			next := models.WorkItem{URL: link, Depth: item.Depth + 1}
			found = append(found, next)
			worklist = append(worklist, next)
		}
	}
	return found, loaded
}

// addLanguageClones adds the primary-language twin of every secondary-language URL
func (a *Aggregator) addLanguageClones(f *Frontier) {
	key, value, ok := strings.Cut(a.portal.SecondaryLanguageMarker, "=")
	if !ok || key == "" {
		return
	}
	for _, c := range f.All() {
		u, err := url.Parse(c.NormalizedURL)
		if err != nil || u.Query().Get(key) != value {
			continue
		}
		twin, err := parse.StripQueryParam(c.NormalizedURL, key)
		if err != nil {
			continue
		}
		clone, err := models.NewCandidateURL(twin, c.Source, c.Priority, a.deps.Classifier.Categorize(twin), c.Depth)
		if err != nil {
			continue
		}
		if f.Add(clone) == Inserted {
			f.Stats.LanguageClones++
		}
	}
}

func (a *Aggregator) addManual(f *Frontier) {
	for _, u := range a.portal.CriticalURLs {
		if a.offer(f, u, models.SourceManual, ManualPriority, 0) == Inserted {
			f.Stats.ManualInjected++
		}
	}
	a.log.Infof("Injected %d of %d critical URLs", f.Stats.ManualInjected, len(a.portal.CriticalURLs))
}

func (a *Aggregator) applyRobots(ctx context.Context, f *Frontier) {
	if !a.portal.RespectRobots || a.deps.Robots == nil {
		return
	}
	for _, c := range f.All() {
		if !a.deps.Robots.Allowed(ctx, c.NormalizedURL) {
			f.Remove(c.NormalizedURL)
			f.Stats.RobotsDropped++
			a.log.WithField("url", c.NormalizedURL).Debugf("Dropping candidate: %v", utils.ErrRobotsDisallowed)
		}
	}
	if f.Stats.RobotsDropped > 0 {
		a.log.Infof("robots.txt excluded %d candidates", f.Stats.RobotsDropped)
	}
}

// enter passes the shared aggregation gate, if any
func (a *Aggregator) enter(ctx context.Context, rawURL string) (func(), error) {
	if a.deps.Gate == nil {
		return func() {}, ctx.Err()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	release, err := a.deps.Gate.Enter(ctx, u.Hostname())
	if err != nil {
		if errors.Is(err, utils.ErrSemaphoreTimeout) {
			a.log.WithField("url", rawURL).Warn("Host permit timed out")
		}
		return nil, err
	}
	return release, nil
}

func (a *Aggregator) recoverTask(kind, u string) {
	if r := recover(); r != nil {
		a.log.WithFields(logrus.Fields{
			"task":        kind,
			"url":         u,
			"panic_info":  r,
			"stack_trace": string(debug.Stack()),
		}).Error("PANIC recovered in aggregation task")
	}
}
