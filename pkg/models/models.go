package models

import (
	"net/http"
	"time"
)

// PageTask is a discovered URL scheduled for processing
type PageTask struct {
	URL   string
	Index int     // Position in the discovered (navigation) order
	Score float64 // Priority score, higher runs first
}

// FetchResult is the success side of a retrying fetch
type FetchResult struct {
	URL        string      // Requested URL
	FinalURL   string      // URL after redirects
	StatusCode int         // Always 2xx
	Header     http.Header // Response headers
	Body       []byte      // Full response body
	Attempts   int         // Number of attempts made, 1-based
}

// PageRequest describes one fetch-and-convert call
type PageRequest struct {
	URL             string
	ContentSelector string
	DownloadImages  bool
	ImagesDir       string
}

// ConvertedPage is the output of a successful fetch-and-convert call
type ConvertedPage struct {
	Title      string
	Markdown   string
	ByteSize   int
	ImageCount int
}

// PageResult is one processed URL as handed to the batch sink
type PageResult struct {
	URL         string        `json:"url"`
	Index       int           `json:"index"`
	Title       string        `json:"title,omitempty"`
	Markdown    string        `json:"markdown,omitempty"`
	ByteSize    int           `json:"byte_size"`
	ImageCount  int           `json:"image_count,omitempty"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	Error       string        `json:"error,omitempty"`
	StatusCode  int           `json:"status_code,omitempty"`
	FromCache   bool          `json:"from_cache,omitempty"`
	Duplicate   bool          `json:"duplicate,omitempty"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// CacheValue is what the pipeline stores in its result cache: either a discovered URL list
// or a processed page
type CacheValue struct {
	URLs []string   `json:"urls,omitempty"`
	Page *PageResult `json:"page,omitempty"`
}

// PageTiming is an entry of the slowest-pages list
type PageTiming struct {
	URL            string        `json:"url" yaml:"url"`
	ProcessingTime time.Duration `json:"processing_time" yaml:"processing_time"`
}

// PageSize is an entry of the largest-pages list
type PageSize struct {
	URL  string `json:"url" yaml:"url"`
	Size int64  `json:"size" yaml:"size"`
}

// RunMetrics aggregates the outcome of one pipeline run
type RunMetrics struct {
	StartTime         time.Time         `json:"start_time" yaml:"start_time"`
	EndTime           time.Time         `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	TotalPages        int               `json:"total_pages" yaml:"total_pages"`
	SuccessfulPages   int               `json:"successful_pages" yaml:"successful_pages"`
	FailedPages       int               `json:"failed_pages" yaml:"failed_pages"`
	DuplicatePages    int               `json:"duplicate_pages" yaml:"duplicate_pages"`
	CachedPages       int               `json:"cached_pages" yaml:"cached_pages"`
	TotalBytes        int64             `json:"total_bytes" yaml:"total_bytes"`
	ErrorDistribution map[ErrorKind]int `json:"error_distribution" yaml:"error_distribution"`
	SlowestPages      []PageTiming      `json:"slowest_pages" yaml:"slowest_pages"`
	LargestPages      []PageSize        `json:"largest_pages" yaml:"largest_pages"`

	// Derived once at finalization
	AveragePageSize          float64 `json:"average_page_size" yaml:"average_page_size"`
	ThroughputPagesPerSecond float64 `json:"throughput_pages_per_second" yaml:"throughput_pages_per_second"`
}

// Elapsed returns the wall-clock duration of the run (zero until finalized)
func (m RunMetrics) Elapsed() time.Duration {
	if m.EndTime.IsZero() {
		return 0
	}
	return m.EndTime.Sub(m.StartTime)
}

// SiteAnalysis is the strategy selector's recommendation for one target URL
type SiteAnalysis struct {
	URL                 string          `json:"url" yaml:"url"`
	EstimatedPages      int             `json:"estimated_pages" yaml:"estimated_pages"`
	Complexity          Complexity      `json:"complexity" yaml:"complexity"`
	RequiresRetry       bool            `json:"requires_retry" yaml:"requires_retry"`
	RequiresProxy       bool            `json:"requires_proxy" yaml:"requires_proxy"`
	RequiresFormatting  bool            `json:"requires_formatting" yaml:"requires_formatting"`
	RequiresPerformance bool            `json:"requires_performance" yaml:"requires_performance"`
	RecommendedProfile  Profile         `json:"recommended_profile" yaml:"recommended_profile"`
	Confidence          float64         `json:"confidence" yaml:"confidence"`
	Scores              map[Profile]int `json:"scores,omitempty" yaml:"scores,omitempty"`
	ProbeError          string          `json:"probe_error,omitempty" yaml:"probe_error,omitempty"`
}

// ImageData stores information about a successfully downloaded image
type ImageData struct {
	OriginalURL string
	LocalPath   string // Relative to the images directory's parent
	Caption     string // Image caption/alt text
}

// CrawlMetadata holds the metadata written next to an assembled document
type CrawlMetadata struct {
	SiteKey         string         `yaml:"site_key"`
	BaseURL         string         `yaml:"base_url"`
	Profile         Profile        `yaml:"profile"`
	CrawlStartTime  time.Time      `yaml:"crawl_start_time"`
	CrawlEndTime    time.Time      `yaml:"crawl_end_time"`
	TotalPagesSaved int            `yaml:"total_pages_saved"`
	TotalTokens     int            `yaml:"total_tokens,omitempty"`
	Metrics         *RunMetrics    `yaml:"metrics,omitempty"`
	Pages           []PageMetadata `yaml:"pages"`
}

// PageMetadata holds metadata for a single saved page
type PageMetadata struct {
	URL         string    `yaml:"url"`
	Index       int       `yaml:"index"`
	Title       string    `yaml:"title,omitempty"`
	ProcessedAt time.Time `yaml:"processed_at"`
	ContentHash string    `yaml:"content_hash,omitempty"`
	ByteSize    int       `yaml:"byte_size"`
	TokenCount  int       `yaml:"token_count,omitempty"`
	ImageCount  int       `yaml:"image_count,omitempty"`
}
