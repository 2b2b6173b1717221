package orchestrate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/classify"
	"portal-harvester/pkg/config"
	"portal-harvester/pkg/fetch"
	"portal-harvester/pkg/frontier"
	"portal-harvester/pkg/log"
	"portal-harvester/pkg/parse"
	"portal-harvester/pkg/process"
	"portal-harvester/pkg/sitemap"
)

// Components is the object graph shared by every harvest entry point
type Components struct {
	Config     *config.AppConfig
	Client     *http.Client
	Fetcher    *fetch.Fetcher
	Gate       *fetch.Gate
	Normalizer *parse.Normalizer
	Classifier *classify.Classifier
	Tokenizer  *process.Tokenizer
	Extractor  *process.Extractor
	Pages      *fetch.PageFetcher
	Sitemaps   *sitemap.Processor
	Robots     *fetch.RobotsChecker // nil unless portal.respect_robots
}

// NewComponents wires the shared HTTP stack, classifier and fetchers. cfg must already be validated.
func NewComponents(cfg *config.AppConfig, logger *logrus.Entry) (*Components, error) {
	tok, err := process.NewTokenizer(cfg.Output.TokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}

	client := fetch.NewClient(cfg.HTTPClientSettings, log.Component(logger, "http"))
	fetcher := fetch.NewFetcher(client, cfg.Fetch, log.Component(logger, "fetcher"))
	hosts := fetch.NewHostSemaphorePool(cfg.Aggregation.MaxConcurrentPerHost, cfg.Aggregation.SemaphoreAcquireTimeout, logger)
	gate := fetch.NewGate(cfg.Aggregation.RequestsPerSecond, hosts)

	normalizer := parse.NewNormalizer(cfg.Portal.Domain, cfg.Portal.PreservedQueryParams)
	classifier := classify.New(cfg.Classifier)
	extractor := process.NewExtractor(normalizer, log.Component(logger, "extractor"))

	pages := fetch.NewPageFetcher(client, extractor, classifier, tok, fetch.PageOptions{
		UserAgent:           cfg.Fetch.UserAgent,
		Timeout:             cfg.HTTPClientSettings.Timeout,
		ProbeTimeout:        cfg.Aggregation.ProbeTimeout,
		ConnectivityTimeout: cfg.Fetch.ConnectivityTimeout,
		MinContentLength:    cfg.Budget.MinContentLength,
		MaxBodyLength:       cfg.Budget.MaxBodyLength,
	}, log.Component(logger, "page_fetcher"))

	c := &Components{
		Config:     cfg,
		Client:     client,
		Fetcher:    fetcher,
		Gate:       gate,
		Normalizer: normalizer,
		Classifier: classifier,
		Tokenizer:  tok,
		Extractor:  extractor,
		Pages:      pages,
		Sitemaps:   sitemap.NewProcessor(fetcher, gate, cfg.Portal.SitemapMaxNesting, log.Component(logger, "sitemap")),
	}
	if cfg.Portal.RespectRobots {
		c.Robots = fetch.NewRobotsChecker(fetcher, gate, cfg.Fetch.UserAgent, log.Component(logger, "robots"))
	}
	return c, nil
}

// Aggregator returns a frontier aggregator over these components
func (c *Components) Aggregator(logger *logrus.Entry) *frontier.Aggregator {
	deps := frontier.Deps{
		Normalizer: c.Normalizer,
		Classifier: c.Classifier,
		Sitemaps:   c.Sitemaps,
		Pages:      c.Pages,
		Gate:       c.Gate,
	}
	if c.Robots != nil {
		deps.Robots = c.Robots
	}
	return frontier.NewAggregator(c.Config, deps, logger)
}

// BuildFrontier runs aggregation only
func (c *Components) BuildFrontier(ctx context.Context, logger *logrus.Entry) (*frontier.Frontier, error) {
	return c.Aggregator(logger).Aggregate(ctx)
}

// DiagnosticURLs lists the base URL, the sitemap locations and the critical pages
func (c *Components) DiagnosticURLs() []string {
	p := c.Config.Portal
	urls := []string{p.BaseURL}
	urls = append(urls, p.SitemapURLs...)
	urls = append(urls, p.CriticalURLs...)
	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// Check runs a diagnostic pass over DiagnosticURLs followed by the connectivity pre-check.
// The diagnoses are returned even when the pre-check fails.
func (c *Components) Check(ctx context.Context) ([]fetch.Diagnosis, error) {
	diags := c.Pages.Diagnose(ctx, c.DiagnosticURLs())
	return diags, c.Pages.CheckConnectivity(ctx, c.Config.Portal.BaseURL)
}
