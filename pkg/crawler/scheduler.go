package crawler

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/classify"
	"portal-harvester/pkg/config"
	"portal-harvester/pkg/fetch"
	"portal-harvester/pkg/frontier"
	"portal-harvester/pkg/models"
	"portal-harvester/pkg/parse"
	"portal-harvester/pkg/queue"
	"portal-harvester/pkg/utils"
)

// PageFetcher performs one classified page fetch
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string, depth int) models.FetchOutcome
}

// Options carries the scheduler's settings
type Options struct {
	Budget                  config.BudgetConfig
	DiscoveredBasePriority  float64
	DiscoveredPriorityDecay float64
}

// Progress is a point-in-time view of a running schedule
type Progress struct {
	Phase        models.Phase `json:"phase"`
	PagesFetched int          `json:"pages_fetched"`
	MaxPages     int          `json:"max_pages"`
	Documents    int          `json:"documents"`
	Failures     int          `json:"failures"`
	CurrentURL   string       `json:"current_url,omitempty"`
}

// Scheduler spends the page budget across the crawl phases. It owns the Budget and the
// VisitedSet for one run and is the only writer of the Frontier while running.
type Scheduler struct {
	opts       Options
	frontier   *frontier.Frontier
	pages      PageFetcher
	classifier *classify.Classifier
	normalizer *parse.Normalizer
	limiter    *fetch.RateLimiter
	log        *logrus.Entry

	mu         sync.Mutex
	budget     *Budget
	visited    *VisitedSet
	result     *RunResult
	phase      models.Phase
	currentURL string

	documentURLs  map[string]bool
	attemptDepth  map[string]int
	priorityFinds []string
	fill          *queue.CandidateQueue
}

// NewScheduler creates a Scheduler over an aggregated frontier
func NewScheduler(opts Options, f *frontier.Frontier, pages PageFetcher, classifier *classify.Classifier,
	normalizer *parse.Normalizer, limiter *fetch.RateLimiter, log *logrus.Entry) *Scheduler {
	if opts.Budget.RetryDelayFactor <= 0 {
		opts.Budget.RetryDelayFactor = 1
	}
	return &Scheduler{
		opts:         opts,
		frontier:     f,
		pages:        pages,
		classifier:   classifier,
		normalizer:   normalizer,
		limiter:      limiter,
		log:          log.WithField("component", "scheduler"),
		budget:       NewBudget(opts.Budget.MaxTotalPages),
		visited:      NewVisitedSet(),
		result:       newRunResult(),
		documentURLs: make(map[string]bool),
		attemptDepth: make(map[string]int),
	}
}

// Run executes PRIORITY, DISCOVERY, SECONDARY, RETRY and PROGRESSIVE_FILL in order and
// always ends in DONE. It returns early once the budget is spent or ctx is cancelled;
// the partial result is returned together with ctx.Err().
func (s *Scheduler) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	steps := []struct {
		phase models.Phase
		run   func(context.Context)
	}{
		{models.PhasePriority, s.runPriority},
		{models.PhaseDiscovery, s.runDiscovery},
		{models.PhaseSecondary, s.runSecondary},
		{models.PhaseRetry, s.runRetry},
		{models.PhaseProgressiveFill, s.runProgressiveFill},
	}
	for _, step := range steps {
		if s.exhausted() {
			s.log.Infof("Budget of %d pages spent, skipping to %s", s.budget.Max(), models.PhaseDone)
			break
		}
		if ctx.Err() != nil {
			s.log.Warnf("Context cancelled, stopping before %s: %v", step.phase, ctx.Err())
			break
		}
		s.enter(step.phase)
		before := s.fetched()
		step.run(ctx)
		s.log.WithFields(logrus.Fields{"phase": step.phase, "fetched": s.fetched() - before}).Info("Phase complete")
	}
	s.enter(models.PhaseDone)

	s.mu.Lock()
	res := s.result
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{
		"pages_fetched": res.PagesFetched,
		"documents":     len(res.Documents),
		"duration":      time.Since(start),
	}).Info("Schedule finished")
	return res, ctx.Err()
}

// Progress returns a snapshot safe to call from other goroutines
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	failures := 0
	for status, n := range s.result.ByStatus {
		if status != models.StatusSuccess {
			failures += n
		}
	}
	return Progress{
		Phase:        s.phase,
		PagesFetched: s.budget.Used(),
		MaxPages:     s.budget.Max(),
		Documents:    len(s.result.Documents),
		Failures:     failures,
		CurrentURL:   s.currentURL,
	}
}

func (s *Scheduler) enter(p models.Phase) {
	s.mu.Lock()
	s.phase = p
	s.result.Phases = append(s.result.Phases, p)
	s.mu.Unlock()
	s.log.WithField("phase", p).Info("Entering phase")
}

func (s *Scheduler) exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget.Exhausted()
}

func (s *Scheduler) fetched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget.Used()
}

// runCapped attempts candidates in order until cap attempts were made. Visited URLs are
// skipped without counting. depth < 0 fetches at each candidate's own depth.
func (s *Scheduler) runCapped(ctx context.Context, label string, cands []models.CandidateURL, limit, depth int) {
	attempts := 0
	for _, c := range cands {
		if attempts >= limit || s.exhausted() || ctx.Err() != nil {
			break
		}
		d := depth
		if d < 0 {
			d = c.Depth
		}
		if s.attempt(ctx, c, d, s.opts.Budget.PolitenessDelay, false) {
			attempts++
		}
	}
	s.log.WithFields(logrus.Fields{"slice": label, "attempts": attempts, "cap": limit, "candidates": len(cands)}).Debug("Slice done")
}

func (s *Scheduler) runPriority(ctx context.Context) {
	for _, cc := range s.opts.Budget.PriorityCategories {
		s.runCapped(ctx, cc.Name, s.frontier.ByCategory(models.Category(cc.Name)), cc.Cap, 0)
	}
}

// runDiscovery fetches the best URLs that priority-phase fetches added to the frontier
func (s *Scheduler) runDiscovery(ctx context.Context) {
	cands := make([]models.CandidateURL, 0, len(s.priorityFinds))
	for _, u := range s.priorityFinds {
		if c, ok := s.frontier.Get(u); ok {
			cands = append(cands, c)
		}
	}
	frontier.SortByPriority(cands)
	s.runCapped(ctx, "discovered", cands, s.opts.Budget.DiscoverySlice, 1)
}

// SecondaryOrder lists the secondary-phase categories: configured order first, then any other
// non-priority category in classifier order, with "other" always last.
func SecondaryOrder(b config.BudgetConfig, classifierOrder []models.Category) []models.Category {
	used := map[models.Category]bool{models.CategoryOther: true}
	for _, cc := range b.PriorityCategories {
		used[models.Category(cc.Name)] = true
	}
	var order []models.Category
	for _, cc := range b.SecondaryCategories {
		cat := models.Category(cc.Name)
		if !used[cat] {
			used[cat] = true
			order = append(order, cat)
		}
	}
	for _, cat := range classifierOrder {
		if !used[cat] {
			used[cat] = true
			order = append(order, cat)
		}
	}
	return append(order, models.CategoryOther)
}

func (s *Scheduler) runSecondary(ctx context.Context) {
	b := s.opts.Budget
	for _, cat := range SecondaryOrder(b, s.classifier.Categories()) {
		if s.exhausted() || ctx.Err() != nil {
			return
		}
		if cat != models.CategoryOther {
			s.runCapped(ctx, string(cat), s.frontier.ByCategory(cat), config.CapFor(b.SecondaryCategories, string(cat), b.DefaultSecondaryCap), -1)
			continue
		}

		tiers := map[models.OtherTier][]models.CandidateURL{}
		for _, c := range s.frontier.ByCategory(models.CategoryOther) {
			tier := s.classifier.Tier(c.NormalizedURL)
			tiers[tier] = append(tiers[tier], c)
		}
		s.runCapped(ctx, "other/important", tiers[models.TierImportant], b.OtherTierCaps.Important, -1)
		s.runCapped(ctx, "other/data", tiers[models.TierData], b.OtherTierCaps.Data, -1)
		s.runCapped(ctx, "other/rest", tiers[models.TierRest], b.OtherTierCaps.Rest, -1)
	}
}

// runRetry re-attempts failed URLs once each, in attempt order, with a longer delay
func (s *Scheduler) runRetry(ctx context.Context) {
	s.mu.Lock()
	var eligible []string
	for _, u := range s.visited.Order() {
		if !s.documentURLs[u] {
			eligible = append(eligible, u)
		}
	}
	limit := min(s.opts.Budget.RetryLimit, s.budget.Remaining())
	s.mu.Unlock()

	delay := time.Duration(float64(s.opts.Budget.PolitenessDelay) * s.opts.Budget.RetryDelayFactor)
	s.log.Infof("Retrying up to %d of %d failed URLs", limit, len(eligible))

	retried := 0
	for _, u := range eligible {
		if retried >= limit || s.exhausted() || ctx.Err() != nil {
			break
		}
		s.mu.Lock()
		retryable := s.visited.Retryable(u)
		depth := s.attemptDepth[u]
		s.mu.Unlock()
		if !retryable {
			continue
		}

		c, ok := s.frontier.Get(u)
		if !ok {
			c = models.CandidateURL{NormalizedURL: u, Source: models.SourceDiscovered, Category: s.classifier.Categorize(u), Depth: depth}
		}
		if !s.attempt(ctx, c, depth, delay, true) {
			continue
		}
		retried++

		s.mu.Lock()
		s.result.RetriesAttempted++
		if s.documentURLs[u] {
			s.result.RetriesRecovered++
		}
		s.mu.Unlock()
	}
}

// runProgressiveFill drains never-attempted candidates by priority; links found on the
// way are pushed into the same queue.
func (s *Scheduler) runProgressiveFill(ctx context.Context) {
	s.fill = queue.NewCandidateQueue(s.log)
	defer func() { s.fill = nil }()

	for _, c := range s.frontier.All() {
		s.mu.Lock()
		attempted := s.everAttempted(c.NormalizedURL)
		s.mu.Unlock()
		if !attempted {
			s.fill.Push(c)
		}
	}
	s.log.Infof("Progressive fill queue holds %d candidates", s.fill.Len())

	for !s.exhausted() && ctx.Err() == nil {
		c, ok := s.fill.Pop()
		if !ok {
			break
		}
		s.attempt(ctx, c, c.Depth, s.opts.Budget.PolitenessDelay, false)
	}
}

// everAttempted reports URLs that were attempted at some point, including forgotten ones
func (s *Scheduler) everAttempted(u string) bool {
	_, ok := s.attemptDepth[u]
	return ok
}

// attempt fetches one candidate if budget remains and it is unvisited, or for a retry,
// visited exactly once so far. It marks the URL visited, consumes a slot and records
// the attempt. Returns whether a fetch was made; on false the VisitedSet is untouched.
func (s *Scheduler) attempt(ctx context.Context, c models.CandidateURL, depth int, delay time.Duration, retry bool) bool {
	u := c.NormalizedURL
	s.mu.Lock()
	eligible := !s.visited.Contains(u)
	if retry {
		eligible = s.visited.Retryable(u)
	}
	if !eligible || s.budget.Exhausted() {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	host := hostOf(u)
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, host, delay); err != nil {
			s.log.WithField("url", u).Debugf("Politeness wait interrupted: %v", err)
			return false
		}
	}

	s.mu.Lock()
	if !s.budget.Consume() {
		s.mu.Unlock()
		return false
	}
	if retry {
		s.visited.Forget(u)
	}
	s.visited.Add(u)
	s.attemptDepth[u] = depth
	s.currentURL = u
	phase := s.phase
	s.mu.Unlock()

	outcome := s.pages.Fetch(ctx, u, depth)
	if s.limiter != nil {
		s.limiter.Done(host)
	}

	rec := models.AttemptRecord{
		URL:      u,
		Phase:    phase,
		Status:   outcome.Status,
		HTTPCode: outcome.HTTPCode,
		Category: c.Category,
		Depth:    depth,
		Elapsed:  outcome.Elapsed,
	}
	if outcome.Err != nil {
		rec.Error = utils.CategorizeError(outcome.Err)
	}

	s.mu.Lock()
	rec.Seq = len(s.result.Attempts) + 1
	s.result.record(rec, outcome.Document)
	if outcome.Document != nil {
		s.documentURLs[u] = true
	}
	s.currentURL = ""
	s.mu.Unlock()

	entry := s.log.WithFields(logrus.Fields{"url": u, "phase": phase, "status": outcome.Status, "depth": depth})
	if outcome.Succeeded() {
		entry.WithField("length", outcome.Document.Length).Info("Fetched")
	} else {
		entry.WithField("http_code", outcome.HTTPCode).Warnf("Fetch failed: %v", outcome.Err)
	}

	if len(outcome.Links) > 0 && depth < s.opts.Budget.MaxDepth && !s.exhausted() {
		s.discover(outcome.URL, outcome.Links, depth+1, phase)
	}
	return true
}

// discover adds a fetched page's links to the frontier at the next depth
func (s *Scheduler) discover(pageURL string, links []string, depth int, phase models.Phase) {
	priority := frontier.DiscoveredPriority(s.opts.DiscoveredBasePriority, s.opts.DiscoveredPriorityDecay, depth)
	added := 0
	for _, link := range links {
		n, err := s.normalizer.Normalize(link, pageURL)
		if err != nil {
			continue
		}
		cat, ok := s.classifier.Classify(n)
		if !ok {
			continue
		}
		c, err := models.NewCandidateURL(n, models.SourceDiscovered, priority, cat, depth)
		if err != nil {
			continue
		}
		if s.frontier.Add(c) != frontier.Inserted {
			continue
		}
		added++
		switch {
		case phase == models.PhasePriority:
			s.priorityFinds = append(s.priorityFinds, n)
		case s.fill != nil:
			s.fill.Push(c)
		}
	}
	if added > 0 {
		s.log.WithFields(logrus.Fields{"url": pageURL, "new": added, "depth": depth}).Debug("Discovered links")
	}
}

func hostOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
