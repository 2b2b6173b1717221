package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/config"
	"portal-harvester/pkg/crawler"
	"portal-harvester/pkg/fetch"
	"portal-harvester/pkg/frontier"
	"portal-harvester/pkg/log"
	"portal-harvester/pkg/models"
	"portal-harvester/pkg/output"
	"portal-harvester/pkg/storage"
	"portal-harvester/pkg/utils"
)

// Stages reported by Runner.Progress
const (
	StageIdle         = "idle"
	StageConnectivity = "connectivity"
	StageAggregating  = "aggregating"
	StageCrawling     = "crawling"
	StageWriting      = "writing"
	StageIndexing     = "indexing"
	StageDone         = "done"
)

const sinkSubmitTimeout = 2 * time.Minute

// Report is the outcome of one harvest run
type Report struct {
	Summary   *models.RunSummary
	OutputDir string
	Chunks    int
}

// Progress is a point-in-time view of a harvest
type Progress struct {
	RunID        string `json:"run_id"`
	Stage        string `json:"stage"`
	FrontierSize int    `json:"frontier_size"`
	crawler.Progress
}

// Runner executes one harvest end to end: connectivity pre-check, aggregation,
// scheduling, artifact writing and the index hand-off.
type Runner struct {
	comp *Components
	sink storage.IndexSink
	log  *logrus.Entry

	mu        sync.Mutex
	runID     string
	stage     string
	scheduler *crawler.Scheduler
	frontier  *frontier.Frontier
}

// NewRunner creates a Runner. sink may be nil, which disables the hand-off.
func NewRunner(comp *Components, sink storage.IndexSink, logger *logrus.Entry) *Runner {
	if sink == nil {
		sink = storage.NoopSink{}
	}
	return &Runner{
		comp:  comp,
		sink:  sink,
		log:   log.Component(logger, "runner"),
		stage: StageIdle,
	}
}

// Run harvests the configured portal once. A failed connectivity pre-check aborts the run
// before any page is fetched; the summary is still written with Aborted set. Cancellation
// keeps the partial result and also records Aborted.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	cfg := r.comp.Config
	runID := uuid.NewString()
	summary := models.NewRunSummary(runID, cfg.Portal.BaseURL, cfg.Budget.MaxTotalPages)
	out := output.NewOutputManager(cfg.Output, cfg.Portal.Domain, runID, r.comp.Tokenizer, r.log)
	report := &Report{Summary: summary, OutputDir: out.Dir()}
	runLog := r.log.WithField("run_id", runID)

	r.mu.Lock()
	r.runID, r.scheduler, r.frontier = runID, nil, nil
	r.mu.Unlock()

	r.setStage(StageConnectivity)
	if err := r.comp.Pages.CheckConnectivity(ctx, cfg.Portal.BaseURL); err != nil {
		runLog.Errorf("Connectivity pre-check failed: %v", err)
		return report, r.abort(out, summary, err)
	}

	r.setStage(StageAggregating)
	f, err := r.comp.Aggregator(runLog).Aggregate(ctx)
	if err != nil {
		return report, r.abort(out, summary, err)
	}
	r.mu.Lock()
	r.frontier = f
	r.mu.Unlock()
	runLog.Infof("Frontier built: %d candidates %v", f.Len(), f.CountBySource())
	if err := out.WriteFrontier(f.All()); err != nil {
		runLog.Errorf("Failed to write frontier: %v", err)
	}

	r.setStage(StageCrawling)
	sched := crawler.NewScheduler(crawler.Options{
		Budget:                  cfg.Budget,
		DiscoveredBasePriority:  cfg.Aggregation.DiscoveredBasePriority,
		DiscoveredPriorityDecay: cfg.Aggregation.DiscoveredPriorityDecay,
	}, f, r.comp.Pages, r.comp.Classifier, r.comp.Normalizer,
		fetch.NewRateLimiter(cfg.Budget.PolitenessDelay, runLog), runLog)
	r.mu.Lock()
	r.scheduler = sched
	r.mu.Unlock()

	res, runErr := sched.Run(ctx)

	r.setStage(StageWriting)
	var errs []error
	if err := out.WriteDocuments(res.Documents); err != nil {
		errs = append(errs, err)
	}
	if report.Chunks, err = out.WriteChunks(res.Documents); err != nil {
		errs = append(errs, err)
	}
	if err := out.WriteAttempts(res.Attempts); err != nil {
		errs = append(errs, err)
	}

	r.setStage(StageIndexing)
	if len(res.Documents) > 0 {
		subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkSubmitTimeout)
		if err := r.sink.Submit(subCtx, res.Documents); err != nil {
			runLog.Errorf("Index hand-off to %s failed: %v", r.sink.Name(), err)
			errs = append(errs, err)
		}
		cancel()
	}

	summary.FrontierSize = f.Len()
	summary.FrontierBySource = f.CountBySource()
	res.Fill(summary)
	summary.FinishedAt = time.Now().UTC()
	if runErr != nil {
		summary.Aborted = fmt.Sprintf("cancelled: %v", runErr)
		errs = append(errs, runErr)
	}
	if err := out.WriteSummary(summary); err != nil {
		errs = append(errs, err)
	}
	LogSummary(runLog, summary)
	r.setStage(StageDone)
	return report, errors.Join(errs...)
}

func (r *Runner) abort(out *output.OutputManager, summary *models.RunSummary, cause error) error {
	summary.Aborted = cause.Error()
	summary.FinishedAt = time.Now().UTC()
	summary.PhasesExecuted = []models.Phase{models.PhaseDone}
	if err := out.WriteSummary(summary); err != nil {
		r.log.Errorf("Failed to write summary of aborted run: %v", err)
	}
	r.setStage(StageDone)
	return cause
}

func (r *Runner) setStage(stage string) {
	r.mu.Lock()
	r.stage = stage
	r.mu.Unlock()
	r.log.Debugf("Stage: %s", stage)
}

// Progress is safe to call while Run is in flight
func (r *Runner) Progress() Progress {
	r.mu.Lock()
	p := Progress{RunID: r.runID, Stage: r.stage}
	sched, f := r.scheduler, r.frontier
	r.mu.Unlock()

	if sched != nil {
		p.Progress = sched.Progress()
	}
	if f != nil {
		p.FrontierSize = f.Len()
	}
	return p
}

// IsConnectivityFailure reports whether err came from the connectivity pre-check
func IsConnectivityFailure(err error) bool {
	return errors.Is(err, utils.ErrConnectivity)
}

// LogSummary logs a run summary in sections
func LogSummary(l *logrus.Entry, s *models.RunSummary) {
	l.Info("============================================")
	l.Infof("Harvest %s of %s", s.RunID, s.BaseURL)
	if s.Aborted != "" {
		l.Warnf("Aborted: %s", s.Aborted)
	}
	l.Infof("Duration: %v", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	l.Infof("Phases: %s", joinPhases(s.PhasesExecuted))

	l.Info("--- Frontier ---")
	l.Infof("  Size: %d", s.FrontierSize)
	for _, src := range []models.Source{models.SourceSitemap, models.SourceSystematic, models.SourceDiscovered, models.SourceFallback, models.SourceManual} {
		if n := s.FrontierBySource[src]; n > 0 {
			l.Infof("  %s: %d", src, n)
		}
	}

	l.Info("--- Fetching ---")
	l.Infof("  Pages fetched: %d / %d", s.PagesFetched, s.MaxTotalPages)
	l.Infof("  Documents: %d (success rate %.1f%%, coverage %.1f%%)", s.Documents, s.SuccessRate*100, s.Coverage*100)
	l.Infof("  Retries: %d attempted, %d recovered", s.RetriesAttempted, s.RetriesRecovered)
	for _, st := range models.AllOutcomeStatuses {
		if n := s.ByStatus[st]; n > 0 {
			l.Infof("  %s: %d", st, n)
		}
	}
	codes := make([]int, 0, len(s.ByHTTPCode))
	for c := range s.ByHTTPCode {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		l.Infof("  HTTP %d: %d", c, s.ByHTTPCode[c])
	}

	l.Info("--- Documents ---")
	cats := make([]string, 0, len(s.DocsByCategory))
	for c := range s.DocsByCategory {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		l.Infof("  %s: %d", c, s.DocsByCategory[models.Category(c)])
	}
	l.Infof("  Quality: high=%d medium=%d low=%d, average length %d",
		s.QualityCounts[models.QualityHigh], s.QualityCounts[models.QualityMedium], s.QualityCounts[models.QualityLow], s.AverageLength)
	l.Info("============================================")
}

func joinPhases(ps []models.Phase) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, " -> ")
}

// ApplyOverrides adjusts a validated config from command-line or tool arguments.
// Zero values leave the configured setting untouched.
func ApplyOverrides(cfg *config.AppConfig, maxPages, maxDepth int, outputDir string) {
	if maxPages > 0 {
		cfg.Budget.MaxTotalPages = maxPages
	}
	if maxDepth > 0 {
		cfg.Budget.MaxDepth = maxDepth
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
}
