package strategy

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// Page-count thresholds
const (
	simpleMaxPages      = 10
	moderateMaxPages    = 50
	performancePages    = 100
	largeSitePages      = 200
	performanceParallel = 5
)

var unstableHostPattern = regexp.MustCompile(`(?i)\b(staging|beta|dev|localhost)\b`)

// Discoverer is the navigation probe, the same collaborator the pipeline uses
type Discoverer interface {
	DiscoverLinks(ctx context.Context, baseURL, navSelector string) ([]string, error)
}

// Settings are the configuration signals the analyzer folds into its recommendation
type Settings struct {
	NavSelector      string
	ProxyEnabled     bool
	EnableTOC        bool
	EnableMetadata   bool
	Concurrency      int
	ComplexSelectors bool
	ProbeTimeout     time.Duration
	Snap             config.ConfidenceSnap
}

// SettingsFor derives analyzer settings for a validated site
func SettingsFor(app config.AppConfig, site config.SiteConfig) Settings {
	out := config.OutputForSite(app, site, "")
	pipe := config.ForSite(app, site, "")
	return Settings{
		NavSelector:      site.NavSelector,
		ProxyEnabled:     config.GetEffectiveProxyURL(site, app) != "",
		EnableTOC:        out.EnableTOC,
		EnableMetadata:   out.EnableMetadata,
		Concurrency:      pipe.Concurrency,
		ComplexSelectors: IsComplexSelector(site.NavSelector) || IsComplexSelector(site.ContentSelector),
		ProbeTimeout:     app.Analyzer.ProbeTimeout,
		Snap:             app.Analyzer.ConfidenceSnap,
	}
}

// IsComplexSelector reports whether a CSS selector goes beyond a single simple selector
func IsComplexSelector(sel string) bool {
	sel = strings.TrimSpace(sel)
	if sel == "" || strings.EqualFold(sel, "auto") {
		return false
	}
	return strings.ContainsAny(sel, " ,>+~:[")
}

// Analyzer probes a site and recommends a profile
type Analyzer struct {
	discoverer Discoverer
	settings   Settings
	log        *logrus.Entry
}

// NewAnalyzer creates an Analyzer. A zero snap policy gets the default one.
func NewAnalyzer(discoverer Discoverer, settings Settings, log *logrus.Entry) *Analyzer {
	if settings.Snap == (config.ConfidenceSnap{}) {
		settings.Snap = config.DefaultConfidenceSnap()
	}
	if settings.NavSelector == "" {
		settings.NavSelector = "nav"
	}
	return &Analyzer{discoverer: discoverer, settings: settings, log: log.WithField("component", "analyzer")}
}

// Analyze counts the pages reachable from the navigation of rawURL and derives the analysis.
// A failed probe is not an error: the site is analyzed as having zero pages.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (models.SiteAnalysis, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.SiteAnalysis{}, fmt.Errorf("%w: cannot analyze '%s': not an absolute http(s) URL", utils.ErrParsing, rawURL)
	}

	probeCtx := ctx
	if a.settings.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, a.settings.ProbeTimeout)
		defer cancel()
	}

	analysis := models.SiteAnalysis{URL: rawURL}
	links, err := a.discoverer.DiscoverLinks(probeCtx, rawURL, a.settings.NavSelector)
	if err != nil {
		a.log.WithField("url", rawURL).Warnf("Discovery probe failed, assuming 0 pages: %v", err)
		analysis.ProbeError = err.Error()
	}
	analysis.EstimatedPages = len(links)

	a.fill(&analysis, u)

	a.log.WithFields(logrus.Fields{
		"url":        rawURL,
		"pages":      analysis.EstimatedPages,
		"complexity": analysis.Complexity,
		"profile":    analysis.RecommendedProfile,
		"confidence": analysis.Confidence,
	}).Info("Site analyzed")
	return analysis, nil
}

// fill derives everything but the page count
func (a *Analyzer) fill(an *models.SiteAnalysis, u *url.URL) {
	pages := an.EstimatedPages
	an.Complexity = ComplexityFor(pages)
	an.RequiresRetry = RequiresRetry(u)
	an.RequiresProxy = a.settings.ProxyEnabled
	an.RequiresFormatting = a.settings.EnableTOC || a.settings.EnableMetadata
	an.RequiresPerformance = pages > performancePages || a.settings.Concurrency > performanceParallel

	an.Scores = ScoreProfiles(*an, a.settings.ComplexSelectors)
	an.RecommendedProfile = bestProfile(an.Scores)
	an.Confidence = Confidence(*an, a.settings.Snap)
}

// ComplexityFor buckets a page count
func ComplexityFor(pages int) models.Complexity {
	switch {
	case pages <= simpleMaxPages:
		return models.ComplexitySimple
	case pages <= moderateMaxPages:
		return models.ComplexityModerate
	default:
		return models.ComplexityComplex
	}
}

// RequiresRetry flags hosts that look unstable: staging-like names or a non-standard port
func RequiresRetry(u *url.URL) bool {
	if unstableHostPattern.MatchString(hostWithoutTLD(u.Hostname())) || unstableHostPattern.MatchString(u.Path) {
		return true
	}
	switch u.Port() {
	case "", "80", "443":
		return false
	}
	return true
}

// hostWithoutTLD drops the last label so a TLD such as .dev is never read as an environment
func hostWithoutTLD(host string) string {
	if i := strings.LastIndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}

// ScoreProfiles applies the additive profile weights
func ScoreProfiles(an models.SiteAnalysis, complexSelectors bool) map[models.Profile]int {
	scores := map[models.Profile]int{
		models.ProfileBasic:        0,
		models.ProfileConfigurable: 0,
		models.ProfilePerformance:  0,
		models.ProfileFormat:       0,
	}
	pages := an.EstimatedPages

	if an.RequiresFormatting {
		scores[models.ProfileFormat] += 3
	}
	if an.RequiresPerformance || pages > performancePages {
		scores[models.ProfilePerformance] += 2
	}
	if an.RequiresProxy || complexSelectors {
		scores[models.ProfileConfigurable] += 2
	}
	if an.RequiresRetry || an.Complexity != models.ComplexitySimple {
		scores[models.ProfileConfigurable]++
	}
	if pages > largeSitePages {
		scores[models.ProfilePerformance]++
		scores[models.ProfileFormat]--
	}
	return scores
}

// bestProfile picks the highest score; ties go to the earlier profile and basic is the floor
func bestProfile(scores map[models.Profile]int) models.Profile {
	best := models.ProfileBasic
	for _, p := range models.AllProfiles() {
		if scores[p] > scores[best] {
			best = p
		}
	}
	return best
}

// Confidence is 0.5 plus 0.1 per positive signal, clamped to [0, 1], then snapped per policy
func Confidence(an models.SiteAnalysis, snap config.ConfidenceSnap) float64 {
	pages := an.EstimatedPages
	signals := []bool{
		pages > 0,
		an.RequiresFormatting,
		an.RequiresPerformance,
		an.RequiresProxy,
		an.Complexity == models.ComplexityComplex,
		pages > moderateMaxPages,
		pages > performancePages,
	}
	c := 0.5
	for _, s := range signals {
		if s {
			c += 0.1
		}
	}
	c = math.Round(min(max(c, 0), 1)*100) / 100

	if !snap.Disabled && c >= snap.MinConfidence && pages > snap.MinPages {
		c = snap.Value
	}
	return c
}
