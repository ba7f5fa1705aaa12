package config

import (
	"fmt"
	"maps"
	"net/url"
	"time"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// DefaultRetryPolicy returns the retry policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          10 * time.Second,
		MaxJitter:         1 * time.Second,
		RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
	}
}

// DefaultPipelineConfig returns a fully populated pipeline configuration
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Concurrency:           5,
		ChunkSize:             50,
		BatchSize:             20,
		MaxMemoryMB:           512,
		BackpressureThreshold: 0.8,
		BackpressureYield:     100 * time.Millisecond,
		Cache: CacheOptions{
			TTL:     1 * time.Hour,
			MaxSize: 1000,
		},
		Retry: DefaultRetryPolicy(),
	}
}

// DefaultConfidenceSnap returns the default ceiling rule: >= 0.9 with more than 20 pages snaps to 1.0
func DefaultConfidenceSnap() ConfidenceSnap {
	return ConfidenceSnap{MinConfidence: 0.9, MinPages: 20, Value: 1.0}
}

// WithDefaults returns a copy of the retry policy with unset fields filled in. The zero policy
// becomes DefaultRetryPolicy; otherwise MaxRetries and MaxJitter are taken as given, zero included.
// Policies decoded from YAML already carry defaults for omitted keys.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.isZero() {
		return d
	}
	out := p.clone()
	if out.BaseDelay <= 0 {
		out.BaseDelay = d.BaseDelay
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = d.MaxDelay
	}
	if out.MaxDelay < out.BaseDelay {
		out.MaxDelay = out.BaseDelay
	}
	if out.MaxJitter < 0 {
		out.MaxJitter = 0
	}
	if len(out.RetryableStatuses) == 0 {
		out.RetryableStatuses = d.RetryableStatuses
	}
	return out
}

func (p RetryPolicy) isZero() bool {
	return p.MaxRetries == 0 && p.BaseDelay == 0 && p.MaxDelay == 0 && p.MaxJitter == 0 && len(p.RetryableStatuses) == 0
}

// Validate checks the retry policy invariants
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0, got %d", utils.ErrConfigValidation, p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("%w: base_delay must be > 0", utils.ErrConfigValidation)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("%w: max_delay (%v) must be >= base_delay (%v)", utils.ErrConfigValidation, p.MaxDelay, p.BaseDelay)
	}
	if p.MaxJitter < 0 {
		return fmt.Errorf("%w: max_jitter cannot be negative", utils.ErrConfigValidation)
	}
	return nil
}

// WithDefaults returns a copy of the pipeline configuration with zero fields filled in
func (c PipelineConfig) WithDefaults() PipelineConfig {
	d := DefaultPipelineConfig()
	out := c
	if out.Concurrency <= 0 {
		out.Concurrency = d.Concurrency
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = d.ChunkSize
	}
	if out.BatchSize <= 0 {
		out.BatchSize = d.BatchSize
	}
	if out.MaxMemoryMB <= 0 {
		out.MaxMemoryMB = d.MaxMemoryMB
	}
	if out.BackpressureThreshold <= 0 || out.BackpressureThreshold > 1 {
		out.BackpressureThreshold = d.BackpressureThreshold
	}
	if out.BackpressureYield <= 0 {
		out.BackpressureYield = d.BackpressureYield
	}
	if out.Cache.TTL <= 0 {
		out.Cache.TTL = d.Cache.TTL
	}
	if out.Cache.MaxSize <= 0 {
		out.Cache.MaxSize = d.Cache.MaxSize
	}
	out.Retry = out.Retry.WithDefaults()
	return out
}

// Validate checks the pipeline configuration invariants
func (c PipelineConfig) Validate() error {
	switch {
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be > 0", utils.ErrConfigValidation)
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk_size must be > 0", utils.ErrConfigValidation)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be > 0", utils.ErrConfigValidation)
	case c.MaxMemoryMB <= 0:
		return fmt.Errorf("%w: max_memory_mb must be > 0", utils.ErrConfigValidation)
	case c.BackpressureThreshold <= 0 || c.BackpressureThreshold > 1:
		return fmt.Errorf("%w: backpressure_threshold must be in (0, 1], got %v", utils.ErrConfigValidation, c.BackpressureThreshold)
	case c.Cache.MaxSize <= 0:
		return fmt.Errorf("%w: cache max_size must be > 0", utils.ErrConfigValidation)
	case c.Cache.TTL <= 0:
		return fmt.Errorf("%w: cache ttl must be > 0", utils.ErrConfigValidation)
	}
	return c.Retry.Validate()
}

// WithDefaults returns a validated copy of the application config with defaults applied,
// plus warnings for every value that had to be replaced
func (c AppConfig) WithDefaults() (AppConfig, []string) {
	var warnings []string
	out := c
	out.Sites = maps.Clone(c.Sites)

	if out.DefaultUserAgent == "" {
		out.DefaultUserAgent = "doc2md/1.0"
	}
	if out.OutputBaseDir == "" {
		warnings = append(warnings, "output_base_dir is empty, defaulting to './crawled_docs'")
		out.OutputBaseDir = "./crawled_docs"
	}
	if out.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		out.StateDir = "./crawler_state"
	}
	if out.RequestsPerSecond < 0 {
		warnings = append(warnings, "requests_per_second cannot be negative, disabling rate limit")
		out.RequestsPerSecond = 0
	}
	if out.RequestsPerSecond > 0 && out.RequestBurst <= 0 {
		out.RequestBurst = 1
	}
	if out.MaxParallelSites <= 0 {
		out.MaxParallelSites = 2
	}

	if out.Pipeline.Concurrency < 0 {
		warnings = append(warnings, "pipeline.concurrency cannot be negative, using default")
	}
	if out.Pipeline.BackpressureThreshold > 1 {
		warnings = append(warnings, fmt.Sprintf(
			"pipeline.backpressure_threshold (%v) > 1, using default", out.Pipeline.BackpressureThreshold))
	}
	if out.Pipeline.Retry.MaxRetries < 0 {
		warnings = append(warnings, "pipeline.retry.max_retries cannot be negative, setting to 0")
		out.Pipeline.Retry.MaxRetries = 0
	}
	if out.Pipeline.Retry.BaseDelay > 0 && out.Pipeline.Retry.MaxDelay > 0 &&
		out.Pipeline.Retry.BaseDelay > out.Pipeline.Retry.MaxDelay {
		warnings = append(warnings, fmt.Sprintf(
			"pipeline.retry.base_delay (%v) > max_delay (%v), raising max_delay",
			out.Pipeline.Retry.BaseDelay, out.Pipeline.Retry.MaxDelay))
	}
	out.Pipeline = out.Pipeline.WithDefaults()

	out.Output = out.Output.withDefaults()
	out.HTTPClientSettings = out.HTTPClientSettings.withDefaults()

	snap := out.Analyzer.ConfidenceSnap
	d := DefaultConfidenceSnap()
	if snap.MinConfidence <= 0 {
		snap.MinConfidence = d.MinConfidence
	}
	if snap.MinPages <= 0 {
		snap.MinPages = d.MinPages
	}
	if snap.Value <= 0 || snap.Value > 1 {
		snap.Value = d.Value
	}
	out.Analyzer.ConfidenceSnap = snap
	if out.Analyzer.ProbeTimeout <= 0 {
		out.Analyzer.ProbeTimeout = 60 * time.Second
	}

	return out, warnings
}

func (o OutputConfig) withDefaults() OutputConfig {
	if o.JSONLFilename == "" {
		o.JSONLFilename = "pages.jsonl"
	}
	if o.ChunksFilename == "" {
		o.ChunksFilename = "chunks.jsonl"
	}
	if o.ChunkMaxTokens <= 0 {
		o.ChunkMaxTokens = 512
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkMaxTokens {
		o.ChunkOverlap = 50
	}
	if o.MetadataFilename == "" {
		o.MetadataFilename = "metadata.yaml"
	}
	if o.DocumentFilename == "" {
		o.DocumentFilename = "document.md"
	}
	return o
}

func (h HTTPClientConfig) withDefaults() HTTPClientConfig {
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	return h
}

// Validate checks a site entry and returns a copy with defaults applied
func (s SiteConfig) Validate() (SiteConfig, []string, error) {
	var warnings []string
	out := s

	if out.BaseURL == "" {
		return out, nil, fmt.Errorf("%w: site needs base_url", utils.ErrConfigValidation)
	}
	u, err := url.ParseRequestURI(out.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return out, nil, fmt.Errorf("%w: base_url '%s' must be an absolute http(s) URL", utils.ErrConfigValidation, out.BaseURL)
	}

	if out.NavSelector == "" {
		warnings = append(warnings, "nav_selector is empty, defaulting to 'nav'")
		out.NavSelector = "nav"
	}
	if out.ContentSelector == "" {
		out.ContentSelector = "auto"
	}
	if out.Profile != "" {
		if _, ok := models.ParseProfile(out.Profile); !ok {
			return out, nil, fmt.Errorf("%w: unknown profile '%s'", utils.ErrConfigValidation, out.Profile)
		}
	}
	if _, err := utils.CompileRegexPatterns(out.DisallowedPathPatterns); err != nil {
		return out, nil, err
	}
	if o := out.Pipeline.BackpressureThreshold; o != nil && (*o <= 0 || *o > 1) {
		warnings = append(warnings, "site backpressure_threshold must be in (0, 1], ignoring override")
		out.Pipeline.BackpressureThreshold = nil
	}
	if o := out.Pipeline.MaxRetries; o != nil && *o < 0 {
		warnings = append(warnings, "site max_retries cannot be negative, ignoring override")
		out.Pipeline.MaxRetries = nil
	}

	return out, warnings, nil
}
