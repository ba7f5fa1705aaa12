package watch

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/orchestrate"
)

// CrawlFunc crawls a set of sites and returns one result per key
type CrawlFunc func(ctx context.Context, siteKeys []string) []orchestrate.SiteResult

// Scheduler re-crawls sites whenever their interval has elapsed
type Scheduler struct {
	siteKeys []string
	interval time.Duration
	crawl    CrawlFunc
	state    *StateManager
	log      *logrus.Entry
	tick     time.Duration
}

// NewScheduler creates a scheduler that persists its state under stateDir
func NewScheduler(siteKeys []string, interval time.Duration, stateDir string, crawl CrawlFunc, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		siteKeys: slices.Clone(siteKeys),
		interval: interval,
		crawl:    crawl,
		state:    NewStateManager(stateDir),
		log:      log.WithField("component", "watch"),
		tick:     tickInterval(interval),
	}
}

// OrchestratorCrawl adapts an orchestrator to a CrawlFunc
func OrchestratorCrawl(o *orchestrate.Orchestrator) CrawlFunc {
	return o.Run
}

// State exposes the scheduler's state manager
func (s *Scheduler) State() *StateManager {
	return s.state
}

// Run crawls due sites immediately and then on every tick until ctx is done.
// Crawls run synchronously so a shutdown waits for the crawl in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.state.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Watching %d site(s) every %s", len(s.siteKeys), FormatInterval(s.interval))
	s.logSchedule()
	s.RunDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler stopped")
			return nil
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue crawls every due site once and records the outcomes. Returns the keys crawled.
func (s *Scheduler) RunDue(ctx context.Context) []string {
	var due []string
	for _, key := range s.siteKeys {
		if s.state.ShouldRun(key, s.interval) {
			due = append(due, key)
		}
	}
	if len(due) == 0 {
		s.logNextRun()
		return nil
	}

	s.log.Infof("Crawling %d due site(s): %v", len(due), due)
	results := s.crawl(ctx, due)

	for _, r := range results {
		if ctx.Err() != nil && !r.Success {
			// An interrupted run is retried on the next start instead of waiting an interval
			continue
		}
		st := SiteState{
			LastRunSuccess: r.Success,
			Profile:        r.Profile,
			PagesSaved:     r.PagesSaved,
			DocumentPath:   r.DocumentPath,
		}
		if r.Error != nil {
			st.ErrorMessage = r.Error.Error()
		}
		s.state.Record(r.SiteKey, st)
	}
	if err := s.state.Save(); err != nil {
		s.log.Errorf("Failed to save watch state: %v", err)
	}

	s.logNextRun()
	return due
}

func (s *Scheduler) logSchedule() {
	for _, key := range s.siteKeys {
		st, ok := s.state.SiteState(key)
		if !ok {
			s.log.Infof("  %s: never run, will run immediately", key)
			continue
		}
		status := "success"
		if !st.LastRunSuccess {
			status = "failed"
		}
		s.log.Infof("  %s: last run %s (%s, %d pages), next run %s",
			key, st.LastRunTime.Format(time.RFC3339), status, st.PagesSaved,
			s.state.NextRunTime(key, s.interval).Format(time.RFC3339))
	}
}

func (s *Scheduler) logNextRun() {
	if len(s.siteKeys) == 0 {
		return
	}
	next := slices.MinFunc(s.siteKeys, func(a, b string) int {
		return s.state.NextRunTime(a, s.interval).Compare(s.state.NextRunTime(b, s.interval))
	})
	at := s.state.NextRunTime(next, s.interval)
	until := max(time.Until(at), 0)
	s.log.Infof("Next crawl: %s in %v (at %s)", next, until.Round(time.Second), at.Format("15:04:05"))
}

// tickInterval checks for due sites every tenth of the interval, clamped to [1m, 10m]
func tickInterval(interval time.Duration) time.Duration {
	return min(max(interval/10, time.Minute), 10*time.Minute)
}

// FormatInterval formats a duration using d/h/m/s units
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if mins := int(d.Minutes()) % 60; mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	if hours := int(d.Hours()) % 24; hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a Go duration with an optional leading day count ("7d", "1d12h")
func ParseInterval(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("interval must be positive: %s", s)
		}
		return d, nil
	}

	dayPart, rest, found := strings.Cut(s, "d")
	days, err := strconv.Atoi(dayPart)
	if !found || err != nil || days <= 0 {
		return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
	}
	d := time.Duration(days) * 24 * time.Hour
	if rest != "" {
		extra, err := time.ParseDuration(rest)
		if err != nil {
			return 0, fmt.Errorf("invalid interval format: %s", s)
		}
		d += extra
	}
	return d, nil
}
