package config

import (
	"time"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
)

// ProfileConfig returns base adjusted by the preset for profile. Unknown profiles return base unchanged.
func ProfileConfig(profile models.Profile, base PipelineConfig) PipelineConfig {
	out := base
	out.Retry = base.Retry.clone()

	switch profile {
	case models.ProfileBasic:
		out.Concurrency = 3
		out.ChunkSize = 20
		out.BatchSize = 10
		out.Retry.MaxRetries = 2
	case models.ProfileConfigurable:
		out.Concurrency = 5
		out.Retry.MaxRetries = 5
		out.Retry.BaseDelay = 2 * time.Second
		out.Retry.MaxDelay = 30 * time.Second
		if out.PageTimeout == 0 {
			out.PageTimeout = 60 * time.Second
		}
	case models.ProfilePerformance:
		out.Concurrency = 10
		out.ChunkSize = 100
		out.BatchSize = 50
		out.MaxMemoryMB = max(out.MaxMemoryMB, 1024)
		out.Cache.MaxSize = max(out.Cache.MaxSize, 5000)
		out.Cache.TTL = max(out.Cache.TTL, 6*time.Hour)
	case models.ProfileFormat:
		out.Concurrency = 3
		out.BatchSize = 10
	}
	return out.WithDefaults()
}

// ProfileOutput returns base adjusted by the output side of a profile
func ProfileOutput(profile models.Profile, base OutputConfig) OutputConfig {
	out := base
	if profile == models.ProfileFormat {
		out.EnableTOC = true
		out.EnableMetadata = true
	}
	return out
}
