package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/fetch"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/output"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/pipeline"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/process"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/storage"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/strategy"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// storeGCInterval is how often badger value-log GC runs during a persisted-cache crawl
const storeGCInterval = 5 * time.Minute

// SiteResult contains the result of crawling a single site
type SiteResult struct {
	SiteKey      string
	Success      bool
	Error        error
	Analysis     models.SiteAnalysis
	Profile      models.Profile
	Overridden   bool // Profile differs from the analyzer's recommendation
	Fallback     bool // Discovery failed and only the base page was processed
	Metrics      models.RunMetrics
	PagesSaved   int
	DocumentPath string
	Duration     time.Duration
}

// Options tune an Orchestrator
type Options struct {
	Resume      bool              // Reuse the persisted cache of previous runs
	Profile     models.Profile    // Forces a profile for every site; empty = analyzer decides
	Reporter    pipeline.Reporter // Receives every pipeline event in addition to the log reporter
	ReportEvery int               // Pages between progress log lines; 0 = pipeline default
}

// Orchestrator runs the analyze, select, crawl and assemble sequence for configured sites
type Orchestrator struct {
	app     config.AppConfig
	opts    Options
	log     *logrus.Entry
	limiter *fetch.HostLimiter // Shared by all sites

	results   []SiteResult
	resultsMu sync.Mutex
}

// NewOrchestrator creates an orchestrator. app is copied with defaults applied.
func NewOrchestrator(app config.AppConfig, opts Options, log *logrus.Entry) *Orchestrator {
	app, warnings := app.WithDefaults()
	for _, w := range warnings {
		log.Warn(w)
	}

	var limiter *fetch.HostLimiter
	if app.RequestsPerSecond > 0 {
		limiter = fetch.NewHostLimiter(app.RequestsPerSecond, app.RequestBurst, log)
	}

	return &Orchestrator{
		app:     app,
		opts:    opts,
		log:     log.WithField("component", "orchestrator"),
		limiter: limiter,
	}
}

// Config returns the effective application configuration
func (o *Orchestrator) Config() config.AppConfig {
	return o.app
}

// Run crawls siteKeys in parallel, at most MaxParallelSites at a time, and returns one
// result per key in the order given. A failing site never stops the others.
func (o *Orchestrator) Run(ctx context.Context, siteKeys []string) []SiteResult {
	startTime := time.Now()
	o.log.Infof("Starting crawl of %d site(s) with up to %d in parallel: %v", len(siteKeys), o.app.MaxParallelSites, siteKeys)

	results := make([]SiteResult, len(siteKeys))
	g := new(errgroup.Group)
	g.SetLimit(o.app.MaxParallelSites)
	for i, key := range siteKeys {
		g.Go(func() error {
			results[i] = o.CrawlSite(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	o.resultsMu.Lock()
	o.results = append(o.results, results...)
	o.resultsMu.Unlock()

	o.logSummary(results, time.Since(startTime))
	return results
}

// Results returns every site result collected by Run so far
func (o *Orchestrator) Results() []SiteResult {
	o.resultsMu.Lock()
	defer o.resultsMu.Unlock()
	return slices.Clone(o.results)
}

// site looks up and validates a configured site
func (o *Orchestrator) site(siteKey string) (config.SiteConfig, error) {
	raw, ok := o.app.Sites[siteKey]
	if !ok {
		return config.SiteConfig{}, fmt.Errorf("%w: site '%s' not found in configuration", utils.ErrConfigValidation, siteKey)
	}
	site, warnings, err := raw.Validate()
	if err != nil {
		return config.SiteConfig{}, fmt.Errorf("site '%s': %w", siteKey, err)
	}
	for _, w := range warnings {
		o.log.WithField("site", siteKey).Warn(w)
	}
	return site, nil
}

// siteEnv holds the per-site HTTP plumbing
type siteEnv struct {
	site      config.SiteConfig
	client    *http.Client
	userAgent string
	reqCfg    fetch.RequestConfig
	log       *logrus.Entry
}

func (o *Orchestrator) newSiteEnv(site config.SiteConfig, log *logrus.Entry) (*siteEnv, error) {
	client, err := fetch.NewClient(o.app.HTTPClientSettings, config.GetEffectiveProxyURL(site, o.app), log)
	if err != nil {
		return nil, err
	}
	ua := config.GetEffectiveUserAgent(site, o.app)
	return &siteEnv{
		site:      site,
		client:    client,
		userAgent: ua,
		reqCfg:    fetch.RequestConfig{UserAgent: ua},
		log:       log,
	}, nil
}

func (e *siteEnv) fetcher(policy config.RetryPolicy, limiter *fetch.HostLimiter) *fetch.Fetcher {
	opts := []fetch.Option{fetch.WithUserAgent(e.userAgent)}
	if limiter != nil {
		opts = append(opts, fetch.WithRateLimiter(limiter))
	}
	return fetch.NewFetcher(e.client, policy, e.log, opts...)
}

func (o *Orchestrator) discoverer(env *siteEnv, fetcher *fetch.Fetcher) (*process.NavDiscoverer, error) {
	disallowed, err := utils.CompileRegexPatterns(env.site.DisallowedPathPatterns)
	if err != nil {
		return nil, err
	}
	robots := fetch.NewRobotsHandlerForSite(fetcher, o.app, env.site, env.log)
	return process.NewNavDiscoverer(fetcher, robots, disallowed, env.reqCfg, env.log), nil
}

// AnalyzeSite probes a configured site and returns the analyzer's recommendation
func (o *Orchestrator) AnalyzeSite(ctx context.Context, siteKey string) (models.SiteAnalysis, error) {
	site, err := o.site(siteKey)
	if err != nil {
		return models.SiteAnalysis{}, err
	}
	return o.analyze(ctx, site, o.log.WithField("site", siteKey))
}

// AnalyzeURL probes an arbitrary documentation URL with the global settings
func (o *Orchestrator) AnalyzeURL(ctx context.Context, rawURL, navSelector string) (models.SiteAnalysis, error) {
	site, _, err := config.SiteConfig{BaseURL: rawURL, NavSelector: navSelector}.Validate()
	if err != nil {
		return models.SiteAnalysis{}, err
	}
	return o.analyze(ctx, site, o.log.WithFields(logrus.Fields{"site": utils.SiteSlug(rawURL), "url": rawURL}))
}

func (o *Orchestrator) analyze(ctx context.Context, site config.SiteConfig, log *logrus.Entry) (models.SiteAnalysis, error) {
	env, err := o.newSiteEnv(site, log)
	if err != nil {
		return models.SiteAnalysis{}, err
	}
	policy := config.ForSite(o.app, site, "").Retry
	disc, err := o.discoverer(env, env.fetcher(policy, o.limiter))
	if err != nil {
		return models.SiteAnalysis{}, err
	}
	return strategy.NewAnalyzer(disc, strategy.SettingsFor(o.app, site), log).Analyze(ctx, site.BaseURL)
}

// CrawlSite analyzes one configured site, picks its profile, runs the pipeline and
// writes the assembled document. When discovery fails the base page alone is processed.
func (o *Orchestrator) CrawlSite(ctx context.Context, siteKey string) SiteResult {
	startTime := time.Now()
	result := SiteResult{SiteKey: siteKey}
	log := o.log.WithField("site", siteKey)

	fail := func(err error) SiteResult {
		result.Error = err
		result.Duration = time.Since(startTime)
		log.Errorf("Crawl failed: %v", err)
		return result
	}

	site, err := o.site(siteKey)
	if err != nil {
		return fail(err)
	}
	env, err := o.newSiteEnv(site, log)
	if err != nil {
		return fail(err)
	}

	analysis, err := o.analyze(ctx, site, log)
	if err != nil {
		return fail(err)
	}
	result.Analysis = analysis

	sel := strategy.SelectConfig(analysis, o.app, site, o.opts.Profile)
	result.Profile, result.Overridden = sel.Profile, sel.Overridden
	log.WithFields(logrus.Fields{
		"profile":     sel.Profile,
		"recommended": analysis.RecommendedProfile,
		"confidence":  analysis.Confidence,
		"concurrency": sel.Pipeline.Concurrency,
	}).Info("Profile selected")

	fetcher := env.fetcher(sel.Pipeline.Retry, o.limiter)
	disc, err := o.discoverer(env, fetcher)
	if err != nil {
		return fail(err)
	}

	writer, err := output.NewWriter(output.Options{
		Dir:       filepath.Join(o.app.OutputBaseDir, utils.SanitizeFilename(siteKey)),
		SiteKey:   siteKey,
		BaseURL:   site.BaseURL,
		Profile:   sel.Profile,
		Config:    sel.Output,
		Tokenizer: o.tokenizer(sel.Output, log),
	}, log)
	if err != nil {
		return fail(err)
	}
	defer writer.Close()

	extract := config.ExtractionForSite(o.app, site, writer.ImagesDir())
	var images *process.ImageDownloader
	if extract.DownloadImages {
		images = process.NewImageDownloader(fetcher, env.reqCfg, sel.Pipeline.Concurrency, log)
	}

	collab := pipeline.Collaborators{
		Discoverer: disc,
		Converter:  process.NewPageConverter(fetcher, env.reqCfg, images, log),
		Sink:       writer,
		Reporter:   o.reporter(log),
	}

	if sel.Pipeline.Cache.PersistToDisk {
		store, err := storage.NewBadgerStore(o.app.StateDir, siteKey, o.opts.Resume, log)
		if err != nil {
			return fail(err)
		}
		defer store.Close()

		gcCtx, stopGC := context.WithCancel(ctx)
		defer stopGC()
		go store.RunGC(gcCtx, storeGCInterval)

		collab.Store = store
	}

	p, err := pipeline.New(sel.Pipeline, extract, collab, log)
	if err != nil {
		return fail(err)
	}

	metrics, runErr := p.Run(ctx, site.BaseURL)
	if runErr != nil && errors.Is(runErr, utils.ErrDiscovery) && ctx.Err() == nil {
		log.Warnf("Discovery failed, processing the base page only: %v", runErr)
		result.Fallback = true
		metrics, runErr = p.RunURLs(ctx, site.BaseURL, []string{site.BaseURL})
	}
	result.Metrics = metrics

	docPath, finErr := writer.Finalize(&metrics)
	result.DocumentPath = docPath
	result.PagesSaved = writer.PagesSaved()

	if err := errors.Join(runErr, finErr); err != nil {
		return fail(err)
	}
	result.Success = true
	result.Duration = time.Since(startTime)
	log.Infof("Crawl completed: %d page(s) saved to %s", result.PagesSaved, docPath)
	return result
}

// tokenizer loads the configured encoding when some output needs token counts
func (o *Orchestrator) tokenizer(cfg config.OutputConfig, log *logrus.Entry) *process.Tokenizer {
	if !cfg.EnableJSONL && !cfg.EnableChunks && !cfg.EnableMetadata {
		return nil
	}
	tok, err := process.NewTokenizer(cfg.TokenizerEncoding)
	if err != nil {
		log.Warnf("Token counts disabled: %v", err)
		return nil
	}
	return tok
}

func (o *Orchestrator) reporter(log *logrus.Entry) pipeline.Reporter {
	logRep := pipeline.NewLogReporter(log, o.opts.ReportEvery)
	if o.opts.Reporter == nil {
		return logRep
	}
	return pipeline.MultiReporter{logRep, o.opts.Reporter}
}

// logSummary logs a summary of all crawl results
func (o *Orchestrator) logSummary(results []SiteResult, totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Crawl completed in %v", totalDuration)
	o.log.Info("Site Results:")

	totalPages := 0
	successCount := 0
	failCount := 0

	for _, r := range results {
		status := "SUCCESS"
		if !r.Success {
			status = "FAILED"
			failCount++
		} else {
			successCount++
		}
		totalPages += r.PagesSaved

		o.log.Infof("  %s: %s - %d pages (%s profile) in %v", r.SiteKey, status, r.PagesSaved, r.Profile, r.Duration.Round(time.Millisecond))
		if r.Fallback {
			o.log.Infof("    Discovery failed, base page only")
		}
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d sites (%d success, %d failed), %d pages saved",
		len(results), successCount, failCount, totalPages)
	o.log.Info("============================================")
}

// ValidateSiteKeys checks that all provided site keys exist in the config
func ValidateSiteKeys(app config.AppConfig, siteKeys []string) error {
	for _, key := range siteKeys {
		if _, exists := app.Sites[key]; !exists {
			return fmt.Errorf("%w: site '%s' not found. Available sites: %v", utils.ErrConfigValidation, key, GetAllSiteKeys(app))
		}
	}
	return nil
}

// GetAllSiteKeys returns all site keys from the config, sorted
func GetAllSiteKeys(app config.AppConfig) []string {
	keys := make([]string, 0, len(app.Sites))
	for k := range app.Sites {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
