package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

func ptr[T any](v T) *T { return &v }

const sampleYAML = `
default_user_agent: "test-agent/1.0"
requests_per_second: 4
output_base_dir: /tmp/out
state_dir: /tmp/state
pipeline:
  concurrency: 6
  batch_size: 15
  cache:
    ttl: 30m
    max_size: 200
  retry:
    max_retries: 2
    base_delay: 250ms
    max_delay: 4s
output:
  enable_jsonl: true
analyzer:
  confidence_snap:
    min_pages: 40
sites:
  go_docs:
    base_url: https://go.dev/doc/
    nav_selector: "nav.sidebar"
    content_selector: "article"
    profile: performance
    pipeline:
      concurrency: 2
      max_retries: 0
    output:
      enable_toc: true
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "test-agent/1.0", cfg.DefaultUserAgent)
	assert.Equal(t, 4.0, cfg.RequestsPerSecond)
	assert.Equal(t, 6, cfg.Pipeline.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.Cache.TTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.Retry.BaseDelay)
	assert.Equal(t, 40, cfg.Analyzer.ConfidenceSnap.MinPages)

	site, ok := cfg.Sites["go_docs"]
	require.True(t, ok)
	assert.Equal(t, "nav.sidebar", site.NavSelector)
	require.NotNil(t, site.Pipeline.Concurrency)
	assert.Equal(t, 2, *site.Pipeline.Concurrency)
	require.NotNil(t, site.Output.EnableTOC)
	assert.True(t, *site.Output.EnableTOC)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("pipeline: [unclosed"))
	assert.ErrorIs(t, err, utils.ErrParsing)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Sites, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, utils.ErrFilesystem)
}

func TestMergePipeline_AppliesOnlySetFields(t *testing.T) {
	base := DefaultPipelineConfig()
	got := MergePipeline(base, PipelineOverrides{
		Concurrency:  ptr(9),
		CacheMaxSize: ptr(42),
		MaxRetries:   ptr(0),
		PersistCache: ptr(true),
	})

	assert.Equal(t, 9, got.Concurrency)
	assert.Equal(t, 42, got.Cache.MaxSize)
	assert.Equal(t, 0, got.Retry.MaxRetries)
	assert.True(t, got.Cache.PersistToDisk)
	assert.Equal(t, base.BatchSize, got.BatchSize)
	assert.Equal(t, base.Retry.BaseDelay, got.Retry.BaseDelay)
}

func TestMergePipeline_DoesNotAliasBase(t *testing.T) {
	base := DefaultPipelineConfig()
	got := MergePipeline(base, PipelineOverrides{})
	got.Retry.RetryableStatuses[0] = 999

	assert.Equal(t, 408, base.Retry.RetryableStatuses[0])
	assert.Equal(t, 408, DefaultRetryPolicy().RetryableStatuses[0])
}

func TestProfileConfig(t *testing.T) {
	base := DefaultPipelineConfig()

	tests := []struct {
		profile     models.Profile
		concurrency int
		check       func(t *testing.T, c PipelineConfig)
	}{
		{models.ProfileBasic, 3, func(t *testing.T, c PipelineConfig) {
			assert.Equal(t, 2, c.Retry.MaxRetries)
		}},
		{models.ProfileConfigurable, 5, func(t *testing.T, c PipelineConfig) {
			assert.Equal(t, 5, c.Retry.MaxRetries)
			assert.Equal(t, 60*time.Second, c.PageTimeout)
		}},
		{models.ProfilePerformance, 10, func(t *testing.T, c PipelineConfig) {
			assert.Equal(t, 100, c.ChunkSize)
			assert.GreaterOrEqual(t, c.MaxMemoryMB, 1024)
			assert.GreaterOrEqual(t, c.Cache.MaxSize, 5000)
		}},
		{models.ProfileFormat, 3, func(t *testing.T, c PipelineConfig) {
			assert.Equal(t, 10, c.BatchSize)
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			got := ProfileConfig(tt.profile, base)
			assert.Equal(t, tt.concurrency, got.Concurrency)
			require.NoError(t, got.Validate())
			tt.check(t, got)
		})
	}

	assert.Equal(t, base, ProfileConfig(models.Profile("unknown"), base))
}

func TestProfileOutput(t *testing.T) {
	base := OutputConfig{EnableJSONL: true}

	format := ProfileOutput(models.ProfileFormat, base)
	assert.True(t, format.EnableTOC)
	assert.True(t, format.EnableMetadata)
	assert.True(t, format.EnableJSONL)

	basic := ProfileOutput(models.ProfileBasic, base)
	assert.Equal(t, base, basic)
}

func TestForSite_OverridesBeatProfile(t *testing.T) {
	app, _ := AppConfig{}.WithDefaults()
	site := SiteConfig{
		BaseURL:  "https://example.com",
		Pipeline: PipelineOverrides{Concurrency: ptr(2)},
	}

	got := ForSite(app, site, models.ProfilePerformance)
	assert.Equal(t, 2, got.Concurrency, "site override wins")
	assert.Equal(t, 100, got.ChunkSize, "profile preset kept")

	noProfile := ForSite(app, site, "")
	assert.Equal(t, 2, noProfile.Concurrency)
	assert.Equal(t, DefaultPipelineConfig().ChunkSize, noProfile.ChunkSize)
}

func TestOutputForSite(t *testing.T) {
	app, _ := AppConfig{Output: OutputConfig{EnableJSONL: true}}.WithDefaults()
	site := SiteConfig{Output: OutputOverrides{EnableTOC: ptr(false), EnableChunks: ptr(true)}}

	got := OutputForSite(app, site, models.ProfileFormat)
	assert.False(t, got.EnableTOC, "site override wins over profile")
	assert.True(t, got.EnableMetadata)
	assert.True(t, got.EnableChunks)
	assert.True(t, got.EnableJSONL)
}

func TestGetEffectiveHelpers(t *testing.T) {
	app := AppConfig{DefaultUserAgent: "global", ProxyURL: "http://proxy:3128", DownloadImages: true, RespectRobots: true}

	empty := SiteConfig{}
	assert.Equal(t, "global", GetEffectiveUserAgent(empty, app))
	assert.Equal(t, "http://proxy:3128", GetEffectiveProxyURL(empty, app))
	assert.True(t, GetEffectiveDownloadImages(empty, app))
	assert.True(t, GetEffectiveRespectRobots(empty, app))

	site := SiteConfig{UserAgent: "site", ProxyURL: "http://other:1", DownloadImages: ptr(false), RespectRobots: ptr(false)}
	assert.Equal(t, "site", GetEffectiveUserAgent(site, app))
	assert.Equal(t, "http://other:1", GetEffectiveProxyURL(site, app))
	assert.False(t, GetEffectiveDownloadImages(site, app))
	assert.False(t, GetEffectiveRespectRobots(site, app))

	ext := ExtractionForSite(app, SiteConfig{NavSelector: "nav", ContentSelector: "main"}, "/out/images")
	assert.Equal(t, ExtractionConfig{NavSelector: "nav", ContentSelector: "main", DownloadImages: true, ImagesDir: "/out/images"}, ext)
}
