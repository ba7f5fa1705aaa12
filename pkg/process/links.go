package process

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/fetch"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/parse"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

const fallbackNavSelector = "nav"

// NavDiscoverer builds the page list of a documentation site from its navigation
type NavDiscoverer struct {
	fetcher    *fetch.Fetcher
	robots     *fetch.RobotsHandler // nil = robots.txt not consulted
	disallowed []*regexp.Regexp     // Matched against the link path
	reqCfg     fetch.RequestConfig
	log        *logrus.Entry
}

// NewNavDiscoverer creates a NavDiscoverer
func NewNavDiscoverer(
	fetcher *fetch.Fetcher,
	robots *fetch.RobotsHandler,
	disallowed []*regexp.Regexp,
	reqCfg fetch.RequestConfig,
	log *logrus.Entry,
) *NavDiscoverer {
	return &NavDiscoverer{
		fetcher:    fetcher,
		robots:     robots,
		disallowed: disallowed,
		reqCfg:     reqCfg,
		log:        log.WithField("component", "discovery"),
	}
}

// DiscoverLinks fetches baseURL and returns the same-host links found under navSelector,
// normalized and deduplicated in document order. When navSelector yields nothing the
// generic "nav" element is tried. Links disallowed by robots.txt or by the configured
// path patterns are dropped.
func (d *NavDiscoverer) DiscoverLinks(ctx context.Context, baseURL, navSelector string) ([]string, error) {
	taskLog := d.log.WithFields(logrus.Fields{"url": baseURL, "nav_selector": navSelector})

	res, err := d.fetcher.Fetch(ctx, baseURL, d.reqCfg)
	if err != nil {
		return nil, err
	}

	pageURL, err := url.Parse(res.FinalURL)
	if err != nil {
		return nil, fmt.Errorf("%w: final URL '%s': %w", utils.ErrParsing, res.FinalURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML of '%s': %w", utils.ErrParsing, baseURL, err)
	}

	anchors := navAnchors(doc, navSelector)
	if anchors.Length() == 0 && navSelector != fallbackNavSelector {
		taskLog.Debugf("No links under '%s', trying '%s'", navSelector, fallbackNavSelector)
		anchors = navAnchors(doc, fallbackNavSelector)
	}

	seen := make(map[string]struct{})
	var links []string
	skippedRobots, skippedPattern := 0, 0

	anchors.Each(func(_ int, a *goquery.Selection) {
		link, ok := parse.ResolveLink(pageURL, a.AttrOr("href", ""))
		if !ok {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		linkURL, err := url.Parse(link)
		if err != nil {
			return
		}
		if utils.MatchesAny(d.disallowed, linkURL.Path) {
			skippedPattern++
			return
		}
		if d.robots != nil && !d.robots.TestAgent(ctx, linkURL) {
			skippedRobots++
			return
		}
		links = append(links, link)
	})

	taskLog.WithFields(logrus.Fields{
		"links":           len(links),
		"skipped_robots":  skippedRobots,
		"skipped_pattern": skippedPattern,
	}).Info("Navigation discovery complete")
	return links, nil
}

func navAnchors(doc *goquery.Document, navSelector string) *goquery.Selection {
	return doc.Find(navSelector).Find("a[href]")
}
