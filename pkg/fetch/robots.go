package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
)

// RobotsHandler fetches, parses and caches robots.txt per host
type RobotsHandler struct {
	fetcher     *Fetcher
	userAgent   string
	robotsCache map[string]*robotstxt.RobotsData // host -> parsed data (nil = allow all)
	mu          sync.Mutex
	log         *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler that evaluates rules for userAgent
func NewRobotsHandler(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// GetRobotsData returns the parsed robots.txt for the host of targetURL, or nil when
// it is missing or unusable
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Host

	rh.mu.Lock()
	data, found := rh.robotsCache[host]
	rh.mu.Unlock()
	if found {
		return data
	}

	scheme := targetURL.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithField("robots_url", robotsURL)
	robotsLog.Debug("Fetching robots.txt")

	// One retry is plenty for robots.txt
	policy := rh.fetcher.Policy()
	policy.MaxRetries = min(policy.MaxRetries, 1)

	res, err := rh.fetcher.FetchWithPolicy(ctx, robotsURL, RequestConfig{UserAgent: rh.userAgent}, policy)
	if err != nil {
		if code := StatusCode(err); code != 0 {
			// 4xx allows everything, 5xx disallows everything
			data, _ = robotstxt.FromStatusAndBytes(code, nil)
		} else {
			robotsLog.Warnf("robots.txt unavailable, allowing all: %v", err)
		}
	} else if data, err = robotstxt.FromBytes(res.Body); err != nil {
		robotsLog.Warnf("Error parsing robots.txt, allowing all: %v", err)
		data = nil
	}

	rh.mu.Lock()
	rh.robotsCache[host] = data
	rh.mu.Unlock()
	return data
}

// TestAgent reports whether the configured user agent may fetch targetURL
func (rh *RobotsHandler) TestAgent(ctx context.Context, targetURL *url.URL) bool {
	data := rh.GetRobotsData(ctx, targetURL)
	if data == nil {
		return true
	}
	return data.TestAgent(targetURL.RequestURI(), rh.userAgent)
}

// NewRobotsHandlerForSite builds a handler when the site respects robots.txt, nil otherwise
func NewRobotsHandlerForSite(fetcher *Fetcher, app config.AppConfig, site config.SiteConfig, log *logrus.Entry) *RobotsHandler {
	if !config.GetEffectiveRespectRobots(site, app) {
		return nil
	}
	return NewRobotsHandler(fetcher, config.GetEffectiveUserAgent(site, app), log)
}
