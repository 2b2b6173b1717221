package frontier

import (
	"sort"
	"sync"

	"portal-harvester/pkg/models"
)

// AddResult reports what Add did with a candidate
type AddResult int

const (
	Unchanged AddResult = iota
	Inserted
	Upgraded
)

func (r AddResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Upgraded:
		return "upgraded"
	}
	return "unchanged"
}

// Stats records what each aggregation stage contributed
type Stats struct {
	SitemapUsed     string `json:"sitemap_used,omitempty" yaml:"sitemap_used,omitempty"`
	SitemapEntries  int    `json:"sitemap_entries" yaml:"sitemap_entries"`
	Probed          int    `json:"probed" yaml:"probed"`
	ProbeAlive      int    `json:"probe_alive" yaml:"probe_alive"`
	SeedsExplored   int    `json:"seeds_explored" yaml:"seeds_explored"`
	SeedPagesLoaded int    `json:"seed_pages_loaded" yaml:"seed_pages_loaded"`
	FallbackUsed    bool   `json:"fallback_used" yaml:"fallback_used"`
	LanguageClones  int    `json:"language_clones" yaml:"language_clones"`
	ManualInjected  int    `json:"manual_injected" yaml:"manual_injected"`
	ScopeDropped    int    `json:"scope_dropped" yaml:"scope_dropped"`
	RobotsDropped   int    `json:"robots_dropped" yaml:"robots_dropped"`
}

// Frontier is the de-duplicated candidate set. It keeps insertion order.
type Frontier struct {
	mu      sync.RWMutex
	entries map[string]*models.CandidateURL
	order   []string

	Stats Stats
}

// New creates an empty Frontier
func New() *Frontier {
	return &Frontier{entries: make(map[string]*models.CandidateURL)}
}

// Add inserts c or merges it into the existing entry for the same URL.
// A strictly higher priority wins and brings its source; at equal priority the source
// only moves to a stronger origin. Depth keeps the minimum.
func (f *Frontier) Add(c models.CandidateURL) AddResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[c.NormalizedURL]
	if !ok {
		stored := c
		f.entries[c.NormalizedURL] = &stored
		f.order = append(f.order, c.NormalizedURL)
		return Inserted
	}

	changed := false
	switch {
	case c.Priority > e.Priority:
		e.Priority = c.Priority
		e.Source = c.Source
		changed = true
	case c.Priority == e.Priority && c.Source.Rank() < e.Source.Rank():
		e.Source = c.Source
		changed = true
	}
	if c.Depth < e.Depth {
		e.Depth = c.Depth
		changed = true
	}
	if changed {
		return Upgraded
	}
	return Unchanged
}

// AddIfAbsent inserts c only when its URL is not already present
func (f *Frontier) AddIfAbsent(c models.CandidateURL) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[c.NormalizedURL]; ok {
		return false
	}
	stored := c
	f.entries[c.NormalizedURL] = &stored
	f.order = append(f.order, c.NormalizedURL)
	return true
}

// Remove drops a URL from the frontier
func (f *Frontier) Remove(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[u]; !ok {
		return false
	}
	delete(f.entries, u)
	for i, o := range f.order {
		if o == u {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the entry for u
func (f *Frontier) Get(u string) (models.CandidateURL, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[u]
	if !ok {
		return models.CandidateURL{}, false
	}
	return *e, true
}

func (f *Frontier) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.order)
}

// All returns copies of every entry in insertion order
func (f *Frontier) All() []models.CandidateURL {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.CandidateURL, 0, len(f.order))
	for _, u := range f.order {
		out = append(out, *f.entries[u])
	}
	return out
}

// CountBySource tallies entries per origin
func (f *Frontier) CountBySource() map[models.Source]int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	counts := make(map[models.Source]int)
	for _, e := range f.entries {
		counts[e.Source]++
	}
	return counts
}

// CountByCategory tallies entries per category
func (f *Frontier) CountByCategory() map[models.Category]int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	counts := make(map[models.Category]int)
	for _, e := range f.entries {
		counts[e.Category]++
	}
	return counts
}

// ByCategory returns the entries of one category, priority descending, ties in insertion order
func (f *Frontier) ByCategory(cat models.Category) []models.CandidateURL {
	f.mu.RLock()
	var out []models.CandidateURL
	for _, u := range f.order {
		if e := f.entries[u]; e.Category == cat {
			out = append(out, *e)
		}
	}
	f.mu.RUnlock()
	SortByPriority(out)
	return out
}

// SortByPriority orders candidates by priority descending, keeping the existing order on ties
func SortByPriority(cs []models.CandidateURL) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Priority > cs[j].Priority })
}
