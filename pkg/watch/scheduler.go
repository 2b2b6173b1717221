package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/orchestrate"
)

// Harvester runs one harvest of the configured portal
type Harvester interface {
	Run(ctx context.Context) (*orchestrate.Report, error)
}

// GarbageCollector is implemented by index sinks that need periodic compaction
type GarbageCollector interface {
	CollectGarbage()
}

// Scheduler re-harvests one portal every interval, persisting the outcome of each run
type Scheduler struct {
	portal    string
	interval  time.Duration
	harvester Harvester
	gc        GarbageCollector
	state     *StateManager
	log       *logrus.Entry

	tick    time.Duration
	running sync.Mutex
}

// NewScheduler creates a watch scheduler. gc may be nil.
func NewScheduler(portal string, interval time.Duration, stateDir string, harvester Harvester, gc GarbageCollector, log *logrus.Entry) *Scheduler {
	s := &Scheduler{
		portal:    portal,
		interval:  interval,
		harvester: harvester,
		gc:        gc,
		state:     NewStateManager(stateDir),
		log:       log.WithField("component", "watch"),
	}
	s.tick = tickInterval(interval)
	return s
}

// State exposes the persisted run history
func (s *Scheduler) State() *StateManager { return s.state }

// Run blocks until ctx is cancelled, harvesting whenever the portal is due.
// An in-flight harvest is allowed to finish its artifact writing before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.state.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}
	s.logSchedule()

	s.runIfDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			return nil
		case <-ticker.C:
			s.runIfDue(ctx)
		}
	}
}

// RunOnce harvests immediately regardless of schedule and records the outcome
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.running.Lock()
	defer s.running.Unlock()

	s.log.Infof("Harvesting %s", s.portal)
	report, err := s.harvester.Run(ctx)
	if report == nil {
		report = &orchestrate.Report{}
	}
	s.state.Record(s.portal, report.Summary, report.OutputDir, err)
	if err != nil {
		s.log.Errorf("Harvest of %s failed: %v", s.portal, err)
	}
	if saveErr := s.state.Save(); saveErr != nil {
		s.log.Errorf("Failed to save watch state: %v", saveErr)
	}
	if s.gc != nil {
		s.gc.CollectGarbage()
	}
	s.logNextRun()
	return err
}

func (s *Scheduler) runIfDue(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.state.ShouldRun(s.portal, s.interval) {
		return
	}
	_ = s.RunOnce(ctx)
}

// tickInterval checks at least every minute and at most every ten, or a tenth of the interval
func tickInterval(interval time.Duration) time.Duration {
	check := interval / 10
	if check < time.Minute {
		check = time.Minute
	}
	if check > 10*time.Minute {
		check = 10 * time.Minute
	}
	return check
}

func (s *Scheduler) logSchedule() {
	s.log.Infof("Watching %s every %s", s.portal, FormatInterval(s.interval))
	st, ok := s.state.Get(s.portal)
	if !ok {
		s.log.Infof("  %s: never harvested, running now", s.portal)
		return
	}
	status := "success"
	if !st.LastRunSuccess {
		status = "failed"
	}
	s.log.Infof("  %s: last run %s (%s, %d documents), next run %s",
		s.portal, st.LastRunTime.Format(time.RFC3339), status, st.Documents,
		s.state.NextRunTime(s.portal, s.interval).Format(time.RFC3339))
}

func (s *Scheduler) logNextRun() {
	next := s.state.NextRunTime(s.portal, s.interval)
	until := time.Until(next)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next harvest of %s in %v (at %s)", s.portal, until.Round(time.Second), next.Format("15:04:05"))
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a Go duration, additionally accepting a day prefix such as 7d or 1d12h
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}
	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
