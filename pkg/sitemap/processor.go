package sitemap

import (
	"context"
	"net/url"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"portal-harvester/pkg/fetch"
	"portal-harvester/pkg/parse"
)

const (
	// DefaultPriority applies to entries without a usable <priority>
	DefaultPriority = 0.5
	// DefaultMaxNesting bounds sitemap-of-sitemaps recursion
	DefaultMaxNesting = 5

	nestedWorkers = 4
)

// Entry is one page URL read from a sitemap
type Entry struct {
	URL      string
	LastMod  string
	Priority float64
}

// Processor fetches and flattens sitemaps. Scope filtering is left to the caller.
type Processor struct {
	fetcher    *fetch.Fetcher
	gate       *fetch.Gate
	maxNesting int
	log        *logrus.Entry
}

// NewProcessor creates a sitemap Processor. gate may be nil.
func NewProcessor(fetcher *fetch.Fetcher, gate *fetch.Gate, maxNesting int, log *logrus.Entry) *Processor {
	if maxNesting <= 0 {
		maxNesting = DefaultMaxNesting
	}
	return &Processor{
		fetcher:    fetcher,
		gate:       gate,
		maxNesting: maxNesting,
		log:        log.WithField("component", "sitemap_processor"),
	}
}

// Collect tries each sitemap URL in order and returns the entries of the first
// one that yields anything, along with that URL.
func (p *Processor) Collect(ctx context.Context, sitemapURLs []string) ([]Entry, string) {
	for _, smURL := range sitemapURLs {
		if ctx.Err() != nil {
			return nil, ""
		}
		entries := p.Process(ctx, smURL)
		if len(entries) > 0 {
			p.log.WithFields(logrus.Fields{"sitemap_url": smURL, "entries": len(entries)}).Info("Sitemap yielded URLs")
			return entries, smURL
		}
		p.log.WithField("sitemap_url", smURL).Info("Sitemap yielded nothing, trying next")
	}
	return nil, ""
}

// Process flattens one sitemap, following nested indexes up to the nesting bound.
// Entries keep document order; failures are logged and contribute nothing.
func (p *Processor) Process(ctx context.Context, sitemapURL string) []Entry {
	w := &walk{seen: make(map[string]bool)}
	return p.process(ctx, w, sitemapURL, 0)
}

type walk struct {
	mu   sync.Mutex
	seen map[string]bool
}

// mark returns true the first time a sitemap URL is seen in this walk
func (w *walk) mark(u string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[u] {
		return false
	}
	w.seen[u] = true
	return true
}

func (p *Processor) process(ctx context.Context, w *walk, smURL string, depth int) []Entry {
	smLog := p.log.WithFields(logrus.Fields{"sitemap_url": smURL, "nesting": depth})
	if depth > p.maxNesting {
		smLog.Warn("Sitemap nesting limit reached, skipping")
		return nil
	}
	if !w.mark(smURL) {
		smLog.Debug("Sitemap already visited in this walk")
		return nil
	}

	body, err := p.fetch(ctx, smURL)
	if err != nil {
		smLog.Errorf("Fetch failed: %v", err)
		return nil
	}
	nested, urls, err := parse.ParseSitemap(body)
	if err != nil {
		smLog.Errorf("Malformed sitemap: %v", err)
		return nil
	}

	if len(nested) == 0 {
		entries := make([]Entry, 0, len(urls))
		for _, u := range urls {
			entries = append(entries, Entry{
				URL:      u.Loc,
				LastMod:  u.LastMod,
				Priority: parse.SitemapPriority(u.Priority, DefaultPriority),
			})
		}
		smLog.Infof("Parsed as URL set, found %d URLs", len(entries))
		return entries
	}

	smLog.Infof("Parsed as sitemap index, found %d references", len(nested))
	results := make([][]Entry, len(nested))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nestedWorkers)
	for i, child := range nested {
		if _, err := url.ParseRequestURI(child); err != nil {
			smLog.WithField("nested_sitemap", child).Warnf("Invalid nested sitemap URL: %v", err)
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					smLog.WithFields(logrus.Fields{
						"nested_sitemap": child,
						"panic_info":     r,
						"stack_trace":    string(debug.Stack()),
					}).Error("PANIC recovered in nested sitemap processing")
				}
			}()
			results[i] = p.process(gctx, w, child, depth+1)
			return nil
		})
	}
	_ = g.Wait()

	var entries []Entry
	for _, r := range results {
		entries = append(entries, r...)
	}
	return entries
}

func (p *Processor) fetch(ctx context.Context, smURL string) ([]byte, error) {
	if p.gate != nil {
		u, err := url.Parse(smURL)
		if err != nil {
			return nil, err
		}
		release, err := p.gate.Enter(ctx, u.Hostname())
		if err != nil {
			return nil, err
		}
		defer release()
	}
	return p.fetcher.Get(ctx, smURL)
}
