package metrics

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
)

// TopK bounds the slowest and largest page lists
const TopK = 10

// Aggregator accumulates run metrics. All methods are safe for concurrent use.
type Aggregator struct {
	mu        sync.Mutex
	m         models.RunMetrics
	submitted int
	now       func() time.Time
	finalized bool
}

// New starts an aggregator at now(). A nil clock means time.Now.
func New(now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		m: models.RunMetrics{
			StartTime:         now(),
			ErrorDistribution: make(map[models.ErrorKind]int),
		},
		now: now,
	}
}

// RecordSubmitted counts a URL handed to a worker, before its outcome is known
func (a *Aggregator) RecordSubmitted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitted++
}

// RecordSuccess records a freshly processed page
func (a *Aggregator) RecordSuccess(url string, d time.Duration, bytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.m.TotalPages++
	a.m.SuccessfulPages++
	a.m.TotalBytes += bytes

	a.m.SlowestPages = insertTop(a.m.SlowestPages, models.PageTiming{URL: url, ProcessingTime: d},
		func(x, y models.PageTiming) bool { return x.ProcessingTime > y.ProcessingTime })
	a.m.LargestPages = insertTop(a.m.LargestPages, models.PageSize{URL: url, Size: bytes},
		func(x, y models.PageSize) bool { return x.Size > y.Size })
}

// RecordFailure records a failed page under exactly one kind
func (a *Aggregator) RecordFailure(url string, kind models.ErrorKind) {
	if !kind.IsValid() {
		kind = models.ErrorKindParsing
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.m.TotalPages++
	a.m.FailedPages++
	a.m.ErrorDistribution[kind]++
}

// RecordDuplicate records a URL skipped because it was already seen in this run
func (a *Aggregator) RecordDuplicate(url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.m.TotalPages++
	a.m.DuplicatePages++
}

// RecordCacheHit records a page served from the result cache
func (a *Aggregator) RecordCacheHit(url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.m.TotalPages++
	a.m.CachedPages++
}

// Submitted returns how many URLs were handed out
func (a *Aggregator) Submitted() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submitted
}

// Snapshot returns a copy of the current counters; derived fields are left as last finalized
func (a *Aggregator) Snapshot() models.RunMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyLocked()
}

// Finalize stamps EndTime and computes the derived fields. Later calls return the same result.
func (a *Aggregator) Finalize() models.RunMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.finalized {
		a.finalized = true
		a.m.EndTime = a.now()
		if a.m.SuccessfulPages > 0 {
			a.m.AveragePageSize = float64(a.m.TotalBytes) / float64(a.m.SuccessfulPages)
		}
		if secs := a.m.Elapsed().Seconds(); secs > 0 {
			a.m.ThroughputPagesPerSecond = float64(a.m.TotalPages) / secs
		}
	}
	return a.copyLocked()
}

func (a *Aggregator) copyLocked() models.RunMetrics {
	out := a.m
	out.ErrorDistribution = maps.Clone(a.m.ErrorDistribution)
	out.SlowestPages = slices.Clone(a.m.SlowestPages)
	out.LargestPages = slices.Clone(a.m.LargestPages)
	return out
}

// insertTop appends v, stable-sorts descending by greater and truncates to TopK
func insertTop[T any](list []T, v T, greater func(a, b T) bool) []T {
	list = append(list, v)
	slices.SortStableFunc(list, func(a, b T) int {
		switch {
		case greater(a, b):
			return -1
		case greater(b, a):
			return 1
		}
		return 0
	})
	if len(list) > TopK {
		list = list[:TopK]
	}
	return list
}
