package config

import (
	"slices"
	"time"
)

// RetryPolicy controls the retrying fetch layer. Treat as read-only once built;
// the merge functions in this package always return fresh copies.
type RetryPolicy struct {
	MaxRetries        int           `yaml:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	MaxJitter         time.Duration `yaml:"max_jitter"` // Upper bound of the random delay added to each backoff
	RetryableStatuses []int         `yaml:"retryable_statuses,omitempty"`
}

// IsRetryableStatus reports whether an HTTP status code is worth retrying
func (p RetryPolicy) IsRetryableStatus(code int) bool {
	return slices.Contains(p.RetryableStatuses, code)
}

// clone returns a copy that shares no backing arrays with p
func (p RetryPolicy) clone() RetryPolicy {
	p.RetryableStatuses = slices.Clone(p.RetryableStatuses)
	return p
}

// CacheOptions configures the result cache of a pipeline run
type CacheOptions struct {
	TTL           time.Duration `yaml:"ttl"`
	MaxSize       int           `yaml:"max_size"`
	PersistToDisk bool          `yaml:"persist_to_disk,omitempty"`
}

// PipelineConfig is the fully populated configuration of one streaming pipeline run
type PipelineConfig struct {
	Concurrency           int           `yaml:"concurrency"`
	ChunkSize             int           `yaml:"chunk_size"`
	BatchSize             int           `yaml:"batch_size"`
	FlushIntervalHint     time.Duration `yaml:"flush_interval_hint,omitempty"` // 0 = only size/memory triggered flushes
	MaxMemoryMB           int           `yaml:"max_memory_mb"`
	BackpressureThreshold float64       `yaml:"backpressure_threshold"`
	BackpressureYield     time.Duration `yaml:"backpressure_yield"`
	PageTimeout           time.Duration `yaml:"page_timeout,omitempty"` // 0 = no per-page timeout
	Cache                 CacheOptions  `yaml:"cache"`
	Retry                 RetryPolicy   `yaml:"retry"`
}

// PipelineOverrides holds optional per-site replacements for PipelineConfig fields
type PipelineOverrides struct {
	Concurrency           *int           `yaml:"concurrency,omitempty"`
	ChunkSize             *int           `yaml:"chunk_size,omitempty"`
	BatchSize             *int           `yaml:"batch_size,omitempty"`
	FlushIntervalHint     *time.Duration `yaml:"flush_interval_hint,omitempty"`
	MaxMemoryMB           *int           `yaml:"max_memory_mb,omitempty"`
	BackpressureThreshold *float64       `yaml:"backpressure_threshold,omitempty"`
	PageTimeout           *time.Duration `yaml:"page_timeout,omitempty"`
	CacheTTL              *time.Duration `yaml:"cache_ttl,omitempty"`
	CacheMaxSize          *int           `yaml:"cache_max_size,omitempty"`
	PersistCache          *bool          `yaml:"persist_cache,omitempty"`
	MaxRetries            *int           `yaml:"max_retries,omitempty"`
	BaseDelay             *time.Duration `yaml:"base_delay,omitempty"`
	MaxDelay              *time.Duration `yaml:"max_delay,omitempty"`
}

// ExtractionConfig tells the collaborators what to pull out of a site
type ExtractionConfig struct {
	NavSelector     string
	ContentSelector string
	DownloadImages  bool
	ImagesDir       string
}

// OutputConfig controls what the batch sink writes
type OutputConfig struct {
	EnableJSONL       bool   `yaml:"enable_jsonl"`
	JSONLFilename     string `yaml:"jsonl_filename,omitempty"`
	EnableChunks      bool   `yaml:"enable_chunks,omitempty"`
	ChunksFilename    string `yaml:"chunks_filename,omitempty"`
	ChunkMaxTokens    int    `yaml:"chunk_max_tokens,omitempty"`
	ChunkOverlap      int    `yaml:"chunk_overlap,omitempty"`
	TokenizerEncoding string `yaml:"tokenizer_encoding,omitempty"`
	EnableTOC         bool   `yaml:"enable_toc,omitempty"`
	EnableMetadata    bool   `yaml:"enable_metadata,omitempty"`
	MetadataFilename  string `yaml:"metadata_filename,omitempty"`
	DocumentFilename  string `yaml:"document_filename,omitempty"`
}

// OutputOverrides holds optional per-site replacements for OutputConfig toggles
type OutputOverrides struct {
	EnableJSONL    *bool `yaml:"enable_jsonl,omitempty"`
	EnableChunks   *bool `yaml:"enable_chunks,omitempty"`
	EnableTOC      *bool `yaml:"enable_toc,omitempty"`
	EnableMetadata *bool `yaml:"enable_metadata,omitempty"`
}

// ConfidenceSnap is the "well-populated sites are reliably classifiable" ceiling rule
type ConfidenceSnap struct {
	Disabled      bool    `yaml:"disabled,omitempty"`
	MinConfidence float64 `yaml:"min_confidence,omitempty"`
	MinPages      int     `yaml:"min_pages,omitempty"`
	Value         float64 `yaml:"value,omitempty"`
}

// AnalyzerConfig tunes the site analyzer
type AnalyzerConfig struct {
	ProbeTimeout   time.Duration  `yaml:"probe_timeout,omitempty"`
	ConfidenceSnap ConfidenceSnap `yaml:"confidence_snap,omitempty"`
}

// SiteConfig holds configuration specific to a single documentation site
type SiteConfig struct {
	BaseURL                string            `yaml:"base_url"`
	NavSelector            string            `yaml:"nav_selector,omitempty"`
	ContentSelector        string            `yaml:"content_selector,omitempty"` // "auto" = framework detection
	Profile                string            `yaml:"profile,omitempty"`          // Empty = use analyzer recommendation
	UserAgent              string            `yaml:"user_agent,omitempty"`
	ProxyURL               string            `yaml:"proxy_url,omitempty"`
	DownloadImages         *bool             `yaml:"download_images,omitempty"`
	RespectRobots          *bool             `yaml:"respect_robots,omitempty"`
	DisallowedPathPatterns []string          `yaml:"disallowed_path_patterns,omitempty"`
	Pipeline               PipelineOverrides `yaml:"pipeline,omitempty"`
	Output                 OutputOverrides   `yaml:"output,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultUserAgent   string                `yaml:"default_user_agent"`
	RequestsPerSecond  float64               `yaml:"requests_per_second,omitempty"` // Per host; 0 = unlimited
	RequestBurst       int                   `yaml:"request_burst,omitempty"`
	ProxyURL           string                `yaml:"proxy_url,omitempty"`
	DownloadImages     bool                  `yaml:"download_images,omitempty"`
	RespectRobots      bool                  `yaml:"respect_robots,omitempty"`
	OutputBaseDir      string                `yaml:"output_base_dir"`
	StateDir           string                `yaml:"state_dir"`
	MaxParallelSites   int                   `yaml:"max_parallel_sites,omitempty"`
	HTTPClientSettings HTTPClientConfig      `yaml:"http_client_settings,omitempty"`
	Pipeline           PipelineConfig        `yaml:"pipeline,omitempty"`
	Output             OutputConfig          `yaml:"output,omitempty"`
	Analyzer           AnalyzerConfig        `yaml:"analyzer,omitempty"`
	Sites              map[string]SiteConfig `yaml:"sites"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Per-attempt request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}
