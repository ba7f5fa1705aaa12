package strategy

import (
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
)

// Selection is the configuration chosen for one site run
type Selection struct {
	Profile    models.Profile
	Overridden bool
	Pipeline   config.PipelineConfig
	Output     config.OutputConfig
}

// SelectConfig resolves the profile to run with: override, then the site's configured
// profile, then the analyzer's recommendation. The returned configs are fresh values.
func SelectConfig(analysis models.SiteAnalysis, app config.AppConfig, site config.SiteConfig, override models.Profile) Selection {
	sel := Selection{Profile: analysis.RecommendedProfile}
	if !sel.Profile.IsValid() {
		sel.Profile = models.ProfileBasic
	}
	if p, ok := models.ParseProfile(site.Profile); ok {
		sel.Profile, sel.Overridden = p, p != analysis.RecommendedProfile
	}
	if override.IsValid() {
		sel.Profile, sel.Overridden = override, override != analysis.RecommendedProfile
	}

	sel.Pipeline = config.ForSite(app, site, sel.Profile)
	sel.Output = config.OutputForSite(app, site, sel.Profile)
	return sel
}
