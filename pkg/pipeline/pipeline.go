package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	rtmetrics "runtime/metrics"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/cache"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/fetch"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/metrics"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/parse"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/queue"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// chunkMemoryThreshold is the fraction of MaxMemoryMB checked between chunks
const chunkMemoryThreshold = 0.8

// Discoverer returns the page URLs linked from a site's navigation
type Discoverer interface {
	DiscoverLinks(ctx context.Context, baseURL, navSelector string) ([]string, error)
}

// PageConverter fetches one page and converts it to Markdown
type PageConverter interface {
	FetchAndConvert(ctx context.Context, req models.PageRequest) (*models.ConvertedPage, error)
}

// BatchSink persists flushed results
type BatchSink interface {
	PersistBatch(ctx context.Context, batch []models.PageResult) error
}

// CacheStore persists result cache snapshots between processes
type CacheStore interface {
	SaveEntries(ctx context.Context, entries []cache.Entry[models.CacheValue]) error
	LoadEntries(ctx context.Context) ([]cache.Entry[models.CacheValue], error)
}

// Collaborators are the pipeline's external dependencies. Store and Reporter are optional.
type Collaborators struct {
	Discoverer Discoverer
	Converter  PageConverter
	Sink       BatchSink
	Store      CacheStore
	Reporter   Reporter
}

// MemoryReader returns the current heap usage in bytes
type MemoryReader func() uint64

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// HeapAlloc reads the bytes held by live and unswept heap objects, the same figure as
// MemStats.HeapAlloc, without stopping the world
func HeapAlloc() uint64 {
	sample := []rtmetrics.Sample{{Name: heapObjectsMetric}}
	rtmetrics.Read(sample)
	if sample[0].Value.Kind() != rtmetrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithMemoryReader replaces the heap reader used for backpressure
func WithMemoryReader(r MemoryReader) Option {
	return func(p *Pipeline) { p.readMemory = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline runs discovery, chunked bounded-concurrency page processing, batching and
// backpressure for one site. The result cache outlives individual runs.
type Pipeline struct {
	cfg        config.PipelineConfig
	extract    config.ExtractionConfig
	collab     Collaborators
	cache      *cache.Cache[models.CacheValue]
	readMemory MemoryReader
	now        func() time.Time
	log        *logrus.Entry

	loadOnce sync.Once
	current  atomic.Pointer[run]
}

// New validates cfg and builds a pipeline
func New(cfg config.PipelineConfig, extract config.ExtractionConfig, collab Collaborators, log *logrus.Entry, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if collab.Discoverer == nil || collab.Converter == nil || collab.Sink == nil {
		return nil, fmt.Errorf("%w: pipeline needs a discoverer, a converter and a sink", utils.ErrConfigValidation)
	}
	if collab.Reporter == nil {
		collab.Reporter = NopReporter{}
	}

	p := &Pipeline{
		cfg:        cfg,
		extract:    extract,
		collab:     collab,
		readMemory: HeapAlloc,
		now:        time.Now,
		log:        log.WithField("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cache = cache.New[models.CacheValue](cfg.Cache.MaxSize, cfg.Cache.TTL, cache.WithClock(p.now))
	return p, nil
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() config.PipelineConfig {
	return p.cfg
}

// CacheSize returns the number of entries in the result cache
func (p *Pipeline) CacheSize() int {
	return p.cache.Size()
}

// BufferLen returns the number of unflushed results of the current run
func (p *Pipeline) BufferLen() int {
	if r := p.current.Load(); r != nil {
		return r.buffer.len()
	}
	return 0
}

// Run discovers the pages linked from baseURL and processes them. Metrics are always
// returned; the error reports a discovery failure, sink failures or cancellation.
func (p *Pipeline) Run(ctx context.Context, baseURL string) (models.RunMetrics, error) {
	r := p.start(ctx, baseURL)

	urls, err := r.discover(ctx)
	if err != nil {
		r.log.Errorf("Discovery failed: %v", err)
		m, _ := r.finish(ctx)
		return m, err
	}
	return r.process(ctx, urls)
}

// RunURLs processes urls without discovery
func (p *Pipeline) RunURLs(ctx context.Context, baseURL string, urls []string) (models.RunMetrics, error) {
	r := p.start(ctx, baseURL)
	r.emit(URLsDiscovered{Count: len(urls)})
	return r.process(ctx, urls)
}

func (p *Pipeline) start(ctx context.Context, baseURL string) *run {
	p.loadOnce.Do(func() { p.loadCache(ctx) })

	runID := uuid.NewString()
	r := &run{
		p:       p,
		baseURL: baseURL,
		runID:   runID,
		metrics: metrics.New(p.now),
		seen:    make(map[string]struct{}),
		log:     p.log.WithFields(logrus.Fields{"run_id": runID, "base_url": baseURL}),
	}
	r.buffer = newResultBuffer(p.collab.Sink, p.cfg.BatchSize, r.emit, r.log)
	p.current.Store(r)

	r.emit(Started{RunID: runID, BaseURL: baseURL})
	return r
}

func (p *Pipeline) loadCache(ctx context.Context) {
	if !p.cfg.Cache.PersistToDisk || p.collab.Store == nil {
		return
	}
	entries, err := p.collab.Store.LoadEntries(ctx)
	if err != nil {
		p.log.Warnf("Could not load persisted cache, starting cold: %v", err)
		return
	}
	n := p.cache.Load(entries)
	p.log.Infof("Loaded %d cached entr(ies) from disk", n)
}

// run holds the state of a single Run or RunURLs call
type run struct {
	p       *Pipeline
	baseURL string
	runID   string
	metrics *metrics.Aggregator
	buffer  *resultBuffer
	log     *logrus.Entry

	seenMu sync.Mutex
	seen   map[string]struct{}
}

func (r *run) emit(e Event) {
	r.p.collab.Reporter.Report(e)
}

func discoveryKey(baseURL string) string { return "urls:" + baseURL }
func pageKey(url string) string          { return "page:" + url }

func (r *run) discover(ctx context.Context) ([]string, error) {
	key := discoveryKey(r.baseURL)
	if v, ok := r.p.cache.Get(key); ok {
		r.emit(CacheHit{Key: key})
		r.emit(URLsDiscovered{Count: len(v.URLs), FromCache: true})
		return slices.Clone(v.URLs), nil
	}

	urls, err := r.p.collab.Discoverer.DiscoverLinks(ctx, r.baseURL, r.p.extract.NavSelector)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrDiscovery, r.baseURL, err)
	}
	if len(urls) > 0 {
		r.p.cache.Put(key, models.CacheValue{URLs: slices.Clone(urls)}, r.p.cfg.Cache.TTL)
	}
	r.emit(URLsDiscovered{Count: len(urls)})
	return urls, nil
}

func (r *run) process(ctx context.Context, urls []string) (models.RunMetrics, error) {
	if len(urls) == 0 {
		r.log.Warn("No URLs to process")
		return r.finish(ctx)
	}

	stopTicker := r.startFlushTicker(ctx)
	chunks := queue.Chunks(queue.Tasks(urls), r.p.cfg.ChunkSize)
	r.log.Infof("Processing %d URL(s) in %d chunk(s), concurrency %d", len(urls), len(chunks), r.p.cfg.Concurrency)

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			r.log.Warnf("Stopping before chunk %d/%d: %v", i+1, len(chunks), ctx.Err())
			break
		}
		r.emit(ChunkStarted{Index: i, Total: len(chunks), Size: len(chunk)})

		var g errgroup.Group
		g.SetLimit(r.p.cfg.Concurrency)
		started := 0
		for _, task := range chunk {
			if ctx.Err() != nil {
				break
			}
			started++
			g.Go(func() error {
				r.processTask(ctx, task)
				return nil
			})
		}
		g.Wait()
		r.emit(ChunkCompleted{Index: i, Total: len(chunks), Processed: started})

		if r.buffer.len() >= r.p.cfg.BatchSize {
			r.buffer.flush(ctx)
		}
		if used, over := r.memoryOver(chunkMemoryThreshold); over {
			r.emit(MemoryWarning{UsedMB: used, LimitMB: r.p.cfg.MaxMemoryMB, Threshold: chunkMemoryThreshold})
			r.buffer.flush(ctx)
		}
	}

	stopTicker()
	m, err := r.finish(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return m, errors.Join(ctxErr, err)
	}
	return m, err
}

// startFlushTicker flushes on FlushIntervalHint while chunks are processed
func (r *run) startFlushTicker(ctx context.Context) func() {
	if r.p.cfg.FlushIntervalHint <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.p.cfg.FlushIntervalHint)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.buffer.flush(ctx)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// processTask handles one URL; every submitted URL ends up in exactly one metrics bucket
func (r *run) processTask(ctx context.Context, task models.PageTask) {
	taskLog := r.log.WithFields(logrus.Fields{"url": task.URL, "index": task.Index})
	r.metrics.RecordSubmitted()

	recorded := false
	defer func() {
		if rec := recover(); rec != nil {
			taskLog.WithField("stack_trace", string(debug.Stack())).Errorf("PANIC recovered in page worker: %v", rec)
			if recorded {
				return
			}
			res := models.PageResult{
				URL:         task.URL,
				Index:       task.Index,
				ErrorKind:   models.ErrorKindParsing,
				Error:       fmt.Sprintf("panic: %v", rec),
				ProcessedAt: r.p.now(),
			}
			r.metrics.RecordFailure(task.URL, models.ErrorKindParsing)
			r.buffer.add(ctx, res)
			r.emit(PageProcessed{Result: res})
		}
	}()

	if !r.markSeen(task.URL) {
		recorded = true
		r.metrics.RecordDuplicate(task.URL)
		taskLog.Debug("Skipping duplicate URL")
		r.emit(PageProcessed{Result: models.PageResult{URL: task.URL, Index: task.Index, Duplicate: true, ProcessedAt: r.p.now()}})
		return
	}

	key := pageKey(task.URL)
	if v, ok := r.p.cache.Get(key); ok && v.Page != nil {
		recorded = true
		res := *v.Page
		res.Index = task.Index
		res.FromCache = true
		r.emit(CacheHit{Key: key})
		r.metrics.RecordCacheHit(task.URL)
		r.buffer.add(ctx, res)
		r.emit(PageProcessed{Result: res})
		return
	}

	pageCtx := ctx
	if r.p.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, r.p.cfg.PageTimeout)
		defer cancel()
	}

	start := r.p.now()
	page, err := r.p.collab.Converter.FetchAndConvert(pageCtx, models.PageRequest{
		URL:             task.URL,
		ContentSelector: r.p.extract.ContentSelector,
		DownloadImages:  r.p.extract.DownloadImages,
		ImagesDir:       r.p.extract.ImagesDir,
	})
	elapsed := r.p.now().Sub(start)

	res := models.PageResult{
		URL:         task.URL,
		Index:       task.Index,
		Duration:    elapsed,
		ProcessedAt: r.p.now(),
	}
	if err != nil {
		res.ErrorKind = classify(err)
		res.Error = err.Error()
		if res.ErrorKind == models.ErrorKindHTTP {
			res.StatusCode = fetch.StatusCode(err)
		}
		r.metrics.RecordFailure(task.URL, res.ErrorKind)
		taskLog.WithField("error_kind", res.ErrorKind).Debugf("Page failed: %v", err)
	} else {
		res.Success = true
		res.Title = page.Title
		res.Markdown = page.Markdown
		res.ByteSize = page.ByteSize
		res.ImageCount = page.ImageCount
		r.metrics.RecordSuccess(task.URL, elapsed, int64(page.ByteSize))
		cached := res
		r.p.cache.Put(key, models.CacheValue{Page: &cached}, r.p.cfg.Cache.TTL)
	}
	recorded = true
	r.buffer.add(ctx, res)
	r.emit(PageProcessed{Result: res})

	r.applyBackpressure(ctx, taskLog)
}

// markSeen records url for this run and reports whether it was new
func (r *run) markSeen(url string) bool {
	key := parse.DedupKey(url)
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if _, dup := r.seen[key]; dup {
		return false
	}
	r.seen[key] = struct{}{}
	return true
}

func classify(err error) models.ErrorKind {
	if errors.Is(err, utils.ErrContentSelector) {
		return models.ErrorKindContent
	}
	return fetch.Classify(err)
}

// memoryOver reports heap usage in MB and whether it exceeds MaxMemoryMB*fraction
func (r *run) memoryOver(fraction float64) (float64, bool) {
	usedMB := float64(r.p.readMemory()) / (1 << 20)
	return usedMB, usedMB > float64(r.p.cfg.MaxMemoryMB)*fraction
}

// applyBackpressure flushes and yields the calling worker when memory is above the threshold
func (r *run) applyBackpressure(ctx context.Context, log *logrus.Entry) {
	threshold := r.p.cfg.BackpressureThreshold
	used, over := r.memoryOver(threshold)
	if !over {
		return
	}
	r.emit(MemoryWarning{UsedMB: used, LimitMB: r.p.cfg.MaxMemoryMB, Threshold: threshold})
	r.buffer.flush(ctx)

	log.Debugf("Backpressure: yielding for %v", r.p.cfg.BackpressureYield)
	timer := time.NewTimer(r.p.cfg.BackpressureYield)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// finish drains the buffer, persists the cache and finalizes metrics
func (r *run) finish(ctx context.Context) (models.RunMetrics, error) {
	r.buffer.wait()
	r.buffer.flush(ctx)

	if r.p.cfg.Cache.PersistToDisk && r.p.collab.Store != nil {
		entries := r.p.cache.Entries()
		if err := r.p.collab.Store.SaveEntries(context.WithoutCancel(ctx), entries); err != nil {
			r.log.Warnf("%v", utils.WrapErrorf(fmt.Errorf("%w: %w", utils.ErrCachePersist, err), "saving %d entries", len(entries)))
		} else {
			r.log.Debugf("Persisted %d cache entr(ies)", len(entries))
		}
	}

	m := r.metrics.Finalize()
	r.emit(Completed{Metrics: m})

	r.log.Info("========================================================================")
	r.log.Info("PIPELINE RUN FINISHED")
	r.log.Infof("Duration:   %v", m.Elapsed())
	r.log.Infof("Pages:      %d total, %d ok, %d failed, %d duplicate, %d cached",
		m.TotalPages, m.SuccessfulPages, m.FailedPages, m.DuplicatePages, m.CachedPages)
	r.log.Info("========================================================================")

	if errs := r.buffer.sinkErrors(); len(errs) > 0 {
		return m, fmt.Errorf("%d batch(es) failed to persist: %w", len(errs), errors.Join(errs...))
	}
	return m, nil
}
