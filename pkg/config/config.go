package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PortalConfig describes the target portal and every frontier source
type PortalConfig struct {
	BaseURL           string   `yaml:"base_url"`
	Domain            string   `yaml:"domain"`
	SitemapURLs       []string `yaml:"sitemap_urls"`
	SitemapMaxNesting int      `yaml:"sitemap_max_nesting,omitempty"`

	// Systematic source: entity x suffix product, catalog pages and special pages
	Entities        []string `yaml:"entities"`
	EntitySuffixes  []string `yaml:"entity_suffixes"`
	CatalogEntities []string `yaml:"catalog_entities,omitempty"`
	SpecialURLs     []string `yaml:"special_urls,omitempty"`

	// Seed exploration
	SeedURLs         []string `yaml:"seed_urls"`
	SeedMaxDepth     int      `yaml:"seed_max_depth,omitempty"`
	SeedLinksPerPage int      `yaml:"seed_links_per_page,omitempty"`
	SeedWorkers      int      `yaml:"seed_workers,omitempty"`
	SeedLinkPatterns []string `yaml:"seed_link_patterns,omitempty"`

	FallbackURLs []string `yaml:"fallback_urls"`
	CriticalURLs []string `yaml:"critical_urls"`

	SecondaryLanguageMarker string   `yaml:"secondary_language_marker,omitempty"`
	PreservedQueryParams    []string `yaml:"preserved_query_params,omitempty"`
	RespectRobots           bool     `yaml:"respect_robots,omitempty"`
}

// CategoryRule is one entry of the ordered classification list
type CategoryRule struct {
	Name      string   `yaml:"name"`
	Patterns  []string `yaml:"patterns"`
	MatchRoot bool     `yaml:"match_root,omitempty"`
}

// OtherTiersConfig holds keyword lists used to sub-prioritize uncategorized URLs
type OtherTiersConfig struct {
	Important []string `yaml:"important"`
	Data      []string `yaml:"data"`
}

// ClassifierConfig holds scope and categorization patterns
type ClassifierConfig struct {
	BlockPatterns []string         `yaml:"block_patterns"`
	Categories    []CategoryRule   `yaml:"categories"`
	OtherTiers    OtherTiersConfig `yaml:"other_tiers"`
}

// CategoryCap is a soft cap on fetch attempts for one category within a phase
type CategoryCap struct {
	Name string `yaml:"name"`
	Cap  int    `yaml:"cap"`
}

// OtherTierCaps are slice sizes for the three uncategorized tiers
type OtherTierCaps struct {
	Important int `yaml:"important"`
	Data      int `yaml:"data"`
	Rest      int `yaml:"rest"`
}

// BudgetConfig holds the page budget and phase sizing
type BudgetConfig struct {
	MaxTotalPages       int           `yaml:"max_total_pages"`
	MaxDepth            int           `yaml:"max_depth"`
	PolitenessDelay     time.Duration `yaml:"politeness_delay"`
	RetryDelayFactor    float64       `yaml:"retry_delay_factor,omitempty"`
	RetryLimit          int           `yaml:"retry_limit"`
	MinContentLength    int           `yaml:"min_content_length"`
	MaxBodyLength       int           `yaml:"max_body_length"`
	DiscoverySlice      int           `yaml:"discovery_slice"`
	PriorityCategories  []CategoryCap `yaml:"priority_categories"`
	SecondaryCategories []CategoryCap `yaml:"secondary_categories"`
	DefaultSecondaryCap int           `yaml:"default_secondary_cap,omitempty"`
	OtherTierCaps       OtherTierCaps `yaml:"other_tier_caps"`
}

// AggregationConfig tunes the concurrent frontier-building stage
type AggregationConfig struct {
	ProbeTimeout            time.Duration `yaml:"probe_timeout,omitempty"`
	ProbeWorkers            int           `yaml:"probe_workers,omitempty"`
	RequestsPerSecond       float64       `yaml:"aggregation_rps,omitempty"`
	MaxConcurrentPerHost    int           `yaml:"max_concurrent_per_host,omitempty"`
	SemaphoreAcquireTimeout time.Duration `yaml:"semaphore_acquire_timeout,omitempty"`
	DiscoveredBasePriority  float64       `yaml:"discovered_base_priority,omitempty"`
	DiscoveredPriorityDecay float64       `yaml:"discovered_priority_decay,omitempty"`
}

// FetchConfig holds request identity and retry settings for auxiliary fetches
type FetchConfig struct {
	UserAgent           string        `yaml:"user_agent,omitempty"`
	MaxRetries          int           `yaml:"max_retries,omitempty"`
	InitialRetryDelay   time.Duration `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay       time.Duration `yaml:"max_retry_delay,omitempty"`
	ConnectivityTimeout time.Duration `yaml:"connectivity_timeout,omitempty"`
}

// OutputConfig controls run artifacts
type OutputConfig struct {
	Dir            string `yaml:"dir"`
	WriteChunks    bool   `yaml:"write_chunks,omitempty"`
	ChunkMaxTokens int    `yaml:"chunk_max_tokens,omitempty"`
	ChunkOverlap   int    `yaml:"chunk_overlap,omitempty"`
	TokenEncoding  string `yaml:"token_encoding,omitempty"`
}

// IndexConfig selects the document hand-off sink
type IndexConfig struct {
	Sink         string   `yaml:"sink"`
	BadgerDir    string   `yaml:"badger_dir,omitempty"`
	KafkaBrokers []string `yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `yaml:"kafka_topic,omitempty"`
}

// WatchConfig controls periodic re-harvesting
type WatchConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"`
	StateDir string        `yaml:"state_dir,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	Portal             PortalConfig      `yaml:"portal"`
	Classifier         ClassifierConfig  `yaml:"classifier"`
	Budget             BudgetConfig      `yaml:"budget"`
	Aggregation        AggregationConfig `yaml:"aggregation"`
	HTTPClientSettings HTTPClientConfig  `yaml:"http_client"`
	Fetch              FetchConfig       `yaml:"fetch"`
	Output             OutputConfig      `yaml:"output"`
	Index              IndexConfig       `yaml:"index"`
	Watch              WatchConfig       `yaml:"watch"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// Load reads and parses a YAML config file. Defaults are not applied; call Validate.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML '%s': %w", path, err)
	}
	return &cfg, nil
}

// CapFor returns the configured cap for a category in the given list, or fallback.
func CapFor(caps []CategoryCap, name string, fallback int) int {
	for _, c := range caps {
		if c.Name == name {
			return c.Cap
		}
	}
	return fallback
}

// CategoryNames returns the names of a cap list in order
func CategoryNames(caps []CategoryCap) []string {
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.Name)
	}
	return names
}
