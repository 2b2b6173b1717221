package classify

import (
	"net/url"
	"strings"

	"portal-harvester/pkg/config"
	"portal-harvester/pkg/models"
)

// rule is a compiled category rule with lowercased patterns
type rule struct {
	category  models.Category
	patterns  []string
	matchRoot bool
}

// Classifier decides scope and topical category for normalized URLs.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	blocked   []string
	rules     []rule
	important []string
	data      []string
}

// New compiles a Classifier from configuration. Patterns are matched case-insensitively.
func New(cfg config.ClassifierConfig) *Classifier {
	c := &Classifier{
		blocked:   lowerAll(cfg.BlockPatterns),
		important: lowerAll(cfg.OtherTiers.Important),
		data:      lowerAll(cfg.OtherTiers.Data),
	}
	for _, r := range cfg.Categories {
		c.rules = append(c.rules, rule{
			category:  models.Category(r.Name),
			patterns:  lowerAll(r.Patterns),
			matchRoot: r.MatchRoot,
		})
	}
	return c
}

// InScope reports whether u contains none of the blocked patterns
func (c *Classifier) InScope(u string) bool {
	lower := strings.ToLower(u)
	for _, p := range c.blocked {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

// Categorize returns the first category whose patterns hit the URL's path or query,
// or models.CategoryOther when none does.
func (c *Classifier) Categorize(u string) models.Category {
	target, isRoot := matchTarget(u)
	for _, r := range c.rules {
		if r.matchRoot && isRoot {
			return r.category
		}
		if containsAny(target, r.patterns) {
			return r.category
		}
	}
	return models.CategoryOther
}

// Classify combines InScope and Categorize. The category is empty when out of scope.
func (c *Classifier) Classify(u string) (models.Category, bool) {
	if !c.InScope(u) {
		return "", false
	}
	return c.Categorize(u), true
}

// Tier splits uncategorized URLs into important, data and rest slices
func (c *Classifier) Tier(u string) models.OtherTier {
	target, _ := matchTarget(u)
	switch {
	case containsAny(target, c.important):
		return models.TierImportant
	case containsAny(target, c.data):
		return models.TierData
	default:
		return models.TierRest
	}
}

// Categories returns the configured category names in rule order
func (c *Classifier) Categories() []models.Category {
	out := make([]models.Category, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.category)
	}
	return out
}

// MatchesAny reports whether u contains any of patterns. An empty list matches everything.
func MatchesAny(u string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	return containsAny(strings.ToLower(u), lowerAll(patterns))
}

// matchTarget returns the lowercased path plus query and whether the path is the root
func matchTarget(u string) (string, bool) {
	parsed, err := url.Parse(u)
	if err != nil {
		return strings.ToLower(u), false
	}
	path := strings.ToLower(parsed.Path)
	isRoot := path == "" || path == "/"
	if parsed.RawQuery != "" {
		return path + "?" + strings.ToLower(parsed.RawQuery), isRoot
	}
	return path, isRoot
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
