package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"portal-harvester/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	w, err := c.Portal.validate()
	warnings = append(warnings, w...)
	if err != nil {
		return warnings, err
	}

	warnings = append(warnings, c.Classifier.validate()...)

	w, err = c.Budget.validate()
	warnings = append(warnings, w...)
	if err != nil {
		return warnings, err
	}

	warnings = append(warnings, c.Aggregation.validate()...)
	c.validateHTTPClientSettings()
	warnings = append(warnings, c.Fetch.validate()...)
	warnings = append(warnings, c.Output.validate()...)

	w, err = c.Index.validate()
	warnings = append(warnings, w...)
	if err != nil {
		return warnings, err
	}

	if c.Watch.Interval <= 0 {
		c.Watch.Interval = 24 * time.Hour
	}
	if c.Watch.StateDir == "" {
		c.Watch.StateDir = "./harvest_state"
	}

	return warnings, nil
}

func (p *PortalConfig) validate() (warnings []string, err error) {
	if p.BaseURL == "" {
		return nil, fmt.Errorf("%w: portal.base_url is required", utils.ErrConfigValidation)
	}
	base, perr := url.Parse(p.BaseURL)
	if perr != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: portal.base_url '%s' is not an absolute http(s) URL", utils.ErrConfigValidation, p.BaseURL)
	}
	p.BaseURL = strings.TrimRight(p.BaseURL, "/")

	if p.Domain == "" {
		p.Domain = strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")
		warnings = append(warnings, fmt.Sprintf("portal.domain is empty, deriving '%s' from base_url", p.Domain))
	}
	p.Domain = strings.ToLower(p.Domain)

	if len(p.SitemapURLs) == 0 {
		p.SitemapURLs = []string{p.BaseURL + "/sitemap.xml", p.BaseURL + "/sitemap_index.xml", p.BaseURL + "/sitemap"}
	}
	if p.SitemapMaxNesting <= 0 {
		p.SitemapMaxNesting = 5
	}
	if len(p.EntitySuffixes) == 0 && len(p.Entities) > 0 {
		p.EntitySuffixes = append([]string(nil), defaultSuffixes...)
	}
	if p.SeedMaxDepth <= 0 {
		p.SeedMaxDepth = 2
	}
	if p.SeedLinksPerPage <= 0 {
		p.SeedLinksPerPage = 10
	}
	if p.SeedWorkers <= 0 {
		p.SeedWorkers = 4
	}
	if p.SeedLinkPatterns == nil {
		p.SeedLinkPatterns = append([]string(nil), defaultSeedLinkPatterns...)
	}
	if len(p.FallbackURLs) == 0 {
		for _, path := range []string{"/", "/missions", "/catalog", "/services", "/data-access", "/help", "/tools", "/forecasts"} {
			p.FallbackURLs = append(p.FallbackURLs, p.BaseURL+path)
		}
	}
	if p.SecondaryLanguageMarker == "" {
		p.SecondaryLanguageMarker = "language=hi"
	}
	if p.PreservedQueryParams == nil {
		p.PreservedQueryParams = []string{"language"}
	}
	return warnings, nil
}

func (c *ClassifierConfig) validate() (warnings []string) {
	if c.BlockPatterns == nil {
		c.BlockPatterns = append([]string(nil), defaultBlockPatterns...)
	}
	if len(c.Categories) == 0 {
		c.Categories = cloneCategories(defaultCategories)
	}
	seen := make(map[string]bool, len(c.Categories))
	kept := c.Categories[:0]
	for _, rule := range c.Categories {
		if rule.Name == "" || rule.Name == "other" {
			warnings = append(warnings, "classifier category with empty or reserved name 'other' ignored")
			continue
		}
		if seen[rule.Name] {
			warnings = append(warnings, fmt.Sprintf("duplicate classifier category '%s' ignored", rule.Name))
			continue
		}
		seen[rule.Name] = true
		kept = append(kept, rule)
	}
	c.Categories = kept
	if c.OtherTiers.Important == nil {
		c.OtherTiers.Important = append([]string(nil), defaultOtherTiers.Important...)
	}
	if c.OtherTiers.Data == nil {
		c.OtherTiers.Data = append([]string(nil), defaultOtherTiers.Data...)
	}
	return warnings
}

func (b *BudgetConfig) validate() (warnings []string, err error) {
	if b.MaxTotalPages <= 0 {
		warnings = append(warnings, "budget.max_total_pages should be > 0, defaulting to 200")
		b.MaxTotalPages = 200
	}
	if b.MaxDepth < 0 {
		warnings = append(warnings, "budget.max_depth cannot be negative, setting to 0 (no link discovery)")
		b.MaxDepth = 0
	} else if b.MaxDepth == 0 {
		b.MaxDepth = 3
	}
	if b.PolitenessDelay < 0 {
		return warnings, fmt.Errorf("%w: budget.politeness_delay cannot be negative", utils.ErrConfigValidation)
	}
	if b.PolitenessDelay == 0 {
		b.PolitenessDelay = 800 * time.Millisecond
	}
	if b.RetryDelayFactor < 1 {
		if b.RetryDelayFactor != 0 {
			warnings = append(warnings, fmt.Sprintf("budget.retry_delay_factor %.2f < 1, defaulting to 1.5", b.RetryDelayFactor))
		}
		b.RetryDelayFactor = 1.5
	}
	if b.RetryLimit < 0 {
		warnings = append(warnings, "budget.retry_limit cannot be negative, setting to 0 (no retries)")
		b.RetryLimit = 0
	} else if b.RetryLimit == 0 {
		b.RetryLimit = 20
	}
	if b.MinContentLength <= 0 {
		b.MinContentLength = 100
	}
	if b.MaxBodyLength <= 0 {
		b.MaxBodyLength = 6000
	}
	if b.MaxBodyLength < b.MinContentLength {
		warnings = append(warnings, fmt.Sprintf(
			"budget.max_body_length (%d) < min_content_length (%d), raising max_body_length",
			b.MaxBodyLength, b.MinContentLength))
		b.MaxBodyLength = b.MinContentLength
	}
	if b.DiscoverySlice <= 0 {
		b.DiscoverySlice = 30
	}
	if len(b.PriorityCategories) == 0 {
		b.PriorityCategories = append([]CategoryCap(nil), defaultPriorityCaps...)
	}
	if len(b.SecondaryCategories) == 0 {
		b.SecondaryCategories = append([]CategoryCap(nil), defaultSecondaryCaps...)
	}
	if b.DefaultSecondaryCap <= 0 {
		b.DefaultSecondaryCap = 25
	}
	for i := range b.PriorityCategories {
		if b.PriorityCategories[i].Cap < 0 {
			warnings = append(warnings, fmt.Sprintf("negative cap for priority category '%s', setting to 0", b.PriorityCategories[i].Name))
			b.PriorityCategories[i].Cap = 0
		}
	}
	for i := range b.SecondaryCategories {
		if b.SecondaryCategories[i].Cap < 0 {
			warnings = append(warnings, fmt.Sprintf("negative cap for secondary category '%s', setting to 0", b.SecondaryCategories[i].Name))
			b.SecondaryCategories[i].Cap = 0
		}
	}
	if b.OtherTierCaps == (OtherTierCaps{}) {
		b.OtherTierCaps = OtherTierCaps{Important: 15, Data: 15, Rest: 10}
	}
	return warnings, nil
}

func (a *AggregationConfig) validate() (warnings []string) {
	if a.ProbeTimeout <= 0 {
		a.ProbeTimeout = 5 * time.Second
	}
	if a.ProbeWorkers <= 0 {
		a.ProbeWorkers = 4
	}
	if a.RequestsPerSecond <= 0 {
		a.RequestsPerSecond = 5
	}
	if a.MaxConcurrentPerHost <= 0 {
		a.MaxConcurrentPerHost = 2
	}
	if a.SemaphoreAcquireTimeout <= 0 {
		a.SemaphoreAcquireTimeout = 30 * time.Second
	}
	if a.DiscoveredBasePriority <= 0 || a.DiscoveredBasePriority > 1 {
		if a.DiscoveredBasePriority != 0 {
			warnings = append(warnings, "aggregation.discovered_base_priority must be in (0,1], defaulting to 0.8")
		}
		a.DiscoveredBasePriority = 0.8
	}
	if a.DiscoveredPriorityDecay < 0 {
		warnings = append(warnings, "aggregation.discovered_priority_decay cannot be negative, defaulting to 0.1")
		a.DiscoveredPriorityDecay = 0.1
	} else if a.DiscoveredPriorityDecay == 0 {
		a.DiscoveredPriorityDecay = 0.1
	}
	return warnings
}

func (f *FetchConfig) validate() (warnings []string) {
	if f.UserAgent == "" {
		f.UserAgent = "portal-harvester/1.0"
	}
	if f.MaxRetries < 0 {
		warnings = append(warnings, "fetch.max_retries cannot be negative, setting to 0")
		f.MaxRetries = 0
	}
	if f.MaxRetries == 0 && f.InitialRetryDelay == 0 {
		f.MaxRetries = 3
	}
	if f.MaxRetries > 0 {
		if f.InitialRetryDelay <= 0 {
			f.InitialRetryDelay = 1 * time.Second
		}
		if f.MaxRetryDelay <= 0 {
			f.MaxRetryDelay = 30 * time.Second
		}
	}
	if f.InitialRetryDelay > f.MaxRetryDelay && f.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"fetch.initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			f.InitialRetryDelay, f.MaxRetryDelay))
		f.InitialRetryDelay = f.MaxRetryDelay
	}
	if f.ConnectivityTimeout <= 0 {
		f.ConnectivityTimeout = 10 * time.Second
	}
	return warnings
}

func (o *OutputConfig) validate() (warnings []string) {
	if o.Dir == "" {
		warnings = append(warnings, "output.dir is empty, defaulting to './harvest_output'")
		o.Dir = "./harvest_output"
	}
	if o.ChunkMaxTokens <= 0 {
		o.ChunkMaxTokens = 512
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkMaxTokens {
		warnings = append(warnings, "output.chunk_overlap out of range, defaulting to 50")
		o.ChunkOverlap = 50
	}
	if o.TokenEncoding == "" {
		o.TokenEncoding = "cl100k_base"
	}
	return warnings
}

func (i *IndexConfig) validate() (warnings []string, err error) {
	switch i.Sink {
	case "":
		i.Sink = "none"
	case "none":
	case "badger":
		if i.BadgerDir == "" {
			i.BadgerDir = "./harvest_index"
			warnings = append(warnings, "index.badger_dir is empty, defaulting to './harvest_index'")
		}
	case "kafka":
		if len(i.KafkaBrokers) == 0 || i.KafkaTopic == "" {
			return warnings, fmt.Errorf("%w: index sink 'kafka' needs kafka_brokers and kafka_topic", utils.ErrConfigValidation)
		}
	default:
		return warnings, fmt.Errorf("%w: unknown index.sink '%s' (supported: none, badger, kafka)", utils.ErrConfigValidation, i.Sink)
	}
	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 10 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
