package config

import (
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
)

// MergePipeline returns base with every non-nil override applied. Neither argument is modified.
func MergePipeline(base PipelineConfig, o PipelineOverrides) PipelineConfig {
	out := base
	out.Retry = base.Retry.clone()

	if o.Concurrency != nil {
		out.Concurrency = *o.Concurrency
	}
	if o.ChunkSize != nil {
		out.ChunkSize = *o.ChunkSize
	}
	if o.BatchSize != nil {
		out.BatchSize = *o.BatchSize
	}
	if o.FlushIntervalHint != nil {
		out.FlushIntervalHint = *o.FlushIntervalHint
	}
	if o.MaxMemoryMB != nil {
		out.MaxMemoryMB = *o.MaxMemoryMB
	}
	if o.BackpressureThreshold != nil {
		out.BackpressureThreshold = *o.BackpressureThreshold
	}
	if o.PageTimeout != nil {
		out.PageTimeout = *o.PageTimeout
	}
	if o.CacheTTL != nil {
		out.Cache.TTL = *o.CacheTTL
	}
	if o.CacheMaxSize != nil {
		out.Cache.MaxSize = *o.CacheMaxSize
	}
	if o.PersistCache != nil {
		out.Cache.PersistToDisk = *o.PersistCache
	}
	if o.MaxRetries != nil {
		out.Retry.MaxRetries = *o.MaxRetries
	}
	if o.BaseDelay != nil {
		out.Retry.BaseDelay = *o.BaseDelay
	}
	if o.MaxDelay != nil {
		out.Retry.MaxDelay = *o.MaxDelay
	}
	return out.WithDefaults()
}

// MergeOutput returns base with the site's output toggles applied
func MergeOutput(base OutputConfig, o OutputOverrides) OutputConfig {
	out := base
	if o.EnableJSONL != nil {
		out.EnableJSONL = *o.EnableJSONL
	}
	if o.EnableChunks != nil {
		out.EnableChunks = *o.EnableChunks
	}
	if o.EnableTOC != nil {
		out.EnableTOC = *o.EnableTOC
	}
	if o.EnableMetadata != nil {
		out.EnableMetadata = *o.EnableMetadata
	}
	return out
}

// ForSite builds the pipeline configuration for a site: global pipeline settings,
// then the profile preset, then the site's explicit overrides
func ForSite(app AppConfig, site SiteConfig, profile models.Profile) PipelineConfig {
	base := app.Pipeline.WithDefaults()
	if profile.IsValid() {
		base = ProfileConfig(profile, base)
	}
	return MergePipeline(base, site.Pipeline)
}

// OutputForSite builds the output configuration for a site in the same order as ForSite
func OutputForSite(app AppConfig, site SiteConfig, profile models.Profile) OutputConfig {
	base := app.Output.withDefaults()
	if profile.IsValid() {
		base = ProfileOutput(profile, base)
	}
	return MergeOutput(base, site.Output)
}

// ExtractionForSite builds the collaborator settings for a site
func ExtractionForSite(app AppConfig, site SiteConfig, imagesDir string) ExtractionConfig {
	return ExtractionConfig{
		NavSelector:     site.NavSelector,
		ContentSelector: site.ContentSelector,
		DownloadImages:  GetEffectiveDownloadImages(site, app),
		ImagesDir:       imagesDir,
	}
}

// GetEffectiveDownloadImages determines whether images are downloaded for a site
func GetEffectiveDownloadImages(site SiteConfig, app AppConfig) bool {
	if site.DownloadImages != nil {
		return *site.DownloadImages
	}
	return app.DownloadImages
}

// GetEffectiveRespectRobots determines whether robots.txt filters discovery for a site
func GetEffectiveRespectRobots(site SiteConfig, app AppConfig) bool {
	if site.RespectRobots != nil {
		return *site.RespectRobots
	}
	return app.RespectRobots
}

// GetEffectiveUserAgent returns the site user agent, falling back to the global one
func GetEffectiveUserAgent(site SiteConfig, app AppConfig) string {
	if site.UserAgent != "" {
		return site.UserAgent
	}
	return app.DefaultUserAgent
}

// GetEffectiveProxyURL returns the site proxy, falling back to the global one
func GetEffectiveProxyURL(site SiteConfig, app AppConfig) string {
	if site.ProxyURL != "" {
		return site.ProxyURL
	}
	return app.ProxyURL
}
