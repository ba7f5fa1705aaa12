package pipeline

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Reporter observes pipeline events. Report is called synchronously from the run and from
// page workers, so implementations must be safe for concurrent use and should return quickly.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(Event)

// Report calls f(e)
func (f ReporterFunc) Report(e Event) { f(e) }

// NopReporter discards every event
type NopReporter struct{}

// Report does nothing
func (NopReporter) Report(Event) {}

// MultiReporter fans events out to several reporters in order
type MultiReporter []Reporter

// Report forwards e to every reporter
func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		r.Report(e)
	}
}

// LogReporter writes lifecycle events to a logrus entry, with a progress line every N pages
type LogReporter struct {
	log       *logrus.Entry
	every     int64
	processed atomic.Int64
	failed    atomic.Int64
}

// NewLogReporter creates a LogReporter; every <= 0 means 25
func NewLogReporter(log *logrus.Entry, every int) *LogReporter {
	if every <= 0 {
		every = 25
	}
	return &LogReporter{log: log, every: int64(every)}
}

// Report logs e
func (l *LogReporter) Report(e Event) {
	switch ev := e.(type) {
	case Started:
		l.processed.Store(0)
		l.failed.Store(0)
		l.log.WithFields(logrus.Fields{"run_id": ev.RunID, "base_url": ev.BaseURL}).Info("Pipeline run started")
	case URLsDiscovered:
		l.log.WithField("from_cache", ev.FromCache).Infof("Discovered %d URL(s)", ev.Count)
	case CacheHit:
		l.log.WithField("key", ev.Key).Debug("Cache hit")
	case ChunkStarted:
		l.log.WithField("chunk", ev.Index+1).Debugf("Processing chunk %d/%d (%d URLs)", ev.Index+1, ev.Total, ev.Size)
	case ChunkCompleted:
		l.log.WithField("chunk", ev.Index+1).Debugf("Chunk %d/%d done", ev.Index+1, ev.Total)
	case PageProcessed:
		if !ev.Result.Success && !ev.Result.Duplicate {
			l.failed.Add(1)
			l.log.WithFields(logrus.Fields{
				"url":        ev.Result.URL,
				"error_kind": ev.Result.ErrorKind,
			}).Warnf("Page failed: %s", ev.Result.Error)
		}
		if n := l.processed.Add(1); n%l.every == 0 {
			l.log.WithFields(logrus.Fields{"processed": n, "failed": l.failed.Load()}).Info("Crawl Progress")
		}
	case MemoryWarning:
		l.log.WithFields(logrus.Fields{
			"used_mb":   ev.UsedMB,
			"limit_mb":  ev.LimitMB,
			"threshold": ev.Threshold,
		}).Warn("Memory usage above threshold, flushing buffer")
	case BufferFlushing:
		l.log.Debugf("Flushing %d result(s)", ev.Size)
	case BufferFlushed:
		if ev.Err != nil {
			l.log.Errorf("Failed to persist batch of %d result(s): %v", ev.Size, ev.Err)
		}
	case Completed:
		m := ev.Metrics
		l.log.WithFields(logrus.Fields{
			"total":      m.TotalPages,
			"successful": m.SuccessfulPages,
			"failed":     m.FailedPages,
			"duplicates": m.DuplicatePages,
			"cached":     m.CachedPages,
			"duration":   m.Elapsed().String(),
		}).Info("Pipeline run completed")
	}
}

var (
	_ Reporter = ReporterFunc(nil)
	_ Reporter = NopReporter{}
	_ Reporter = MultiReporter(nil)
	_ Reporter = (*LogReporter)(nil)
)
