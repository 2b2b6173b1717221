package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"portal-harvester/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalConfig() AppConfig {
	return AppConfig{Portal: PortalConfig{BaseURL: "https://www.portal.example/"}}
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := minimalConfig()
	warnings, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, "https://www.portal.example", cfg.Portal.BaseURL)
	assert.Equal(t, "portal.example", cfg.Portal.Domain)
	assert.Len(t, cfg.Portal.SitemapURLs, 3)
	assert.Equal(t, 2, cfg.Portal.SeedMaxDepth)
	assert.Equal(t, 10, cfg.Portal.SeedLinksPerPage)
	assert.Equal(t, "language=hi", cfg.Portal.SecondaryLanguageMarker)
	assert.Equal(t, []string{"language"}, cfg.Portal.PreservedQueryParams)
	assert.Len(t, cfg.Portal.FallbackURLs, 8)

	assert.Equal(t, 200, cfg.Budget.MaxTotalPages)
	assert.Equal(t, 3, cfg.Budget.MaxDepth)
	assert.Equal(t, 800*time.Millisecond, cfg.Budget.PolitenessDelay)
	assert.Equal(t, 1.5, cfg.Budget.RetryDelayFactor)
	assert.Equal(t, 20, cfg.Budget.RetryLimit)
	assert.Equal(t, 100, cfg.Budget.MinContentLength)
	assert.Equal(t, 6000, cfg.Budget.MaxBodyLength)
	assert.Equal(t, 30, cfg.Budget.DiscoverySlice)
	assert.Equal(t, OtherTierCaps{Important: 15, Data: 15, Rest: 10}, cfg.Budget.OtherTierCaps)
	assert.Equal(t, 50, CapFor(cfg.Budget.PriorityCategories, "missions", 0))

	require.NotEmpty(t, cfg.Classifier.Categories)
	assert.Equal(t, "homepage", cfg.Classifier.Categories[0].Name)
	assert.True(t, cfg.Classifier.Categories[0].MatchRoot)
	assert.Contains(t, cfg.Classifier.BlockPatterns, "mailto:")

	assert.Equal(t, 10*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, "none", cfg.Index.Sink)
	assert.Equal(t, 24*time.Hour, cfg.Watch.Interval)

	assert.True(t, containsWarning(warnings, "portal.domain is empty"))
	assert.True(t, containsWarning(warnings, "max_total_pages should be > 0"))
	assert.True(t, containsWarning(warnings, "output.dir is empty"))
}

func TestAppConfig_Validate_MissingBaseURL(t *testing.T) {
	cfg := AppConfig{}
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestAppConfig_Validate_RelativeBaseURL(t *testing.T) {
	cfg := AppConfig{Portal: PortalConfig{BaseURL: "/just/a/path"}}
	_, err := cfg.Validate()
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestAppConfig_Validate_PreservesExplicitValues(t *testing.T) {
	cfg := minimalConfig()
	cfg.Portal.Domain = "Portal.Example"
	cfg.Budget = BudgetConfig{
		MaxTotalPages:    25,
		MaxDepth:         1,
		PolitenessDelay:  50 * time.Millisecond,
		RetryDelayFactor: 2,
		RetryLimit:       3,
		MinContentLength: 200,
		MaxBodyLength:    4000,
		DiscoverySlice:   5,
		PriorityCategories: []CategoryCap{
			{Name: "missions", Cap: 7},
		},
	}
	cfg.Output.Dir = "/out"

	warnings, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, "portal.example", cfg.Portal.Domain)
	assert.Equal(t, 25, cfg.Budget.MaxTotalPages)
	assert.Equal(t, 1, cfg.Budget.MaxDepth)
	assert.Equal(t, 2.0, cfg.Budget.RetryDelayFactor)
	assert.Equal(t, 200, cfg.Budget.MinContentLength)
	assert.Equal(t, 4000, cfg.Budget.MaxBodyLength)
	assert.Equal(t, []string{"missions"}, CategoryNames(cfg.Budget.PriorityCategories))
	assert.False(t, containsWarning(warnings, "max_total_pages"))
	assert.False(t, containsWarning(warnings, "output.dir"))
}

func TestBudgetConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		budget  BudgetConfig
		check   func(t *testing.T, b BudgetConfig)
		wantErr bool
		warning string
	}{
		{
			name:    "negative politeness delay is fatal",
			budget:  BudgetConfig{PolitenessDelay: -time.Second},
			wantErr: true,
		},
		{
			name:    "negative retry limit disables retries",
			budget:  BudgetConfig{RetryLimit: -1},
			check:   func(t *testing.T, b BudgetConfig) { assert.Equal(t, 0, b.RetryLimit) },
			warning: "retry_limit cannot be negative",
		},
		{
			name:    "negative max depth disables discovery",
			budget:  BudgetConfig{MaxDepth: -2},
			check:   func(t *testing.T, b BudgetConfig) { assert.Equal(t, 0, b.MaxDepth) },
			warning: "max_depth cannot be negative",
		},
		{
			name:    "body length raised to content threshold",
			budget:  BudgetConfig{MinContentLength: 500, MaxBodyLength: 300},
			check:   func(t *testing.T, b BudgetConfig) { assert.Equal(t, 500, b.MaxBodyLength) },
			warning: "max_body_length (300) < min_content_length (500)",
		},
		{
			name:    "retry factor below one",
			budget:  BudgetConfig{RetryDelayFactor: 0.5},
			check:   func(t *testing.T, b BudgetConfig) { assert.Equal(t, 1.5, b.RetryDelayFactor) },
			warning: "retry_delay_factor",
		},
		{
			name:    "negative caps clamped",
			budget:  BudgetConfig{PriorityCategories: []CategoryCap{{Name: "tools", Cap: -4}}},
			check:   func(t *testing.T, b BudgetConfig) { assert.Equal(t, 0, b.PriorityCategories[0].Cap) },
			warning: "negative cap for priority category 'tools'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.budget
			warnings, err := b.validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, utils.ErrConfigValidation)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, b)
			}
			if tt.warning != "" {
				assert.True(t, containsWarning(warnings, tt.warning), "warnings: %v", warnings)
			}
		})
	}
}

func TestClassifierConfig_Validate_DropsReservedAndDuplicates(t *testing.T) {
	c := ClassifierConfig{Categories: []CategoryRule{
		{Name: "missions", Patterns: []string{"insat"}},
		{Name: "other", Patterns: []string{"x"}},
		{Name: "missions", Patterns: []string{"dup"}},
		{Name: "tools", Patterns: []string{"tool"}},
	}}
	warnings := c.validate()

	require.Len(t, c.Categories, 2)
	assert.Equal(t, "missions", c.Categories[0].Name)
	assert.Equal(t, []string{"insat"}, c.Categories[0].Patterns)
	assert.Equal(t, "tools", c.Categories[1].Name)
	assert.Len(t, warnings, 2)
}

func TestIndexConfig_Validate(t *testing.T) {
	t.Run("kafka requires brokers and topic", func(t *testing.T) {
		i := IndexConfig{Sink: "kafka"}
		_, err := i.validate()
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
	})
	t.Run("unknown sink rejected", func(t *testing.T) {
		i := IndexConfig{Sink: "elastic"}
		_, err := i.validate()
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
	})
	t.Run("badger defaults directory", func(t *testing.T) {
		i := IndexConfig{Sink: "badger"}
		warnings, err := i.validate()
		require.NoError(t, err)
		assert.Equal(t, "./harvest_index", i.BadgerDir)
		assert.Len(t, warnings, 1)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
portal:
  base_url: https://www.portal.example
  entities: [mission-x]
  entity_suffixes: ["", "-introduction"]
budget:
  max_total_pages: 25
  politeness_delay: 250ms
  priority_categories:
    - name: missions
      cap: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://www.portal.example", cfg.Portal.BaseURL)
	assert.Equal(t, []string{"mission-x"}, cfg.Portal.Entities)
	assert.Equal(t, 25, cfg.Budget.MaxTotalPages)
	assert.Equal(t, 250*time.Millisecond, cfg.Budget.PolitenessDelay)
	assert.Equal(t, 10, CapFor(cfg.Budget.PriorityCategories, "missions", 0))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
