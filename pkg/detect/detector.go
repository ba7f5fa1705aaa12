package detect

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// Framework represents a detected documentation framework
type Framework string

const (
	FrameworkUnknown     Framework = "unknown"
	FrameworkDocusaurus  Framework = "docusaurus"
	FrameworkMkDocs      Framework = "mkdocs"
	FrameworkSphinx      Framework = "sphinx"
	FrameworkGitBook     Framework = "gitbook"
	FrameworkReadTheDocs Framework = "readthedocs"
	FrameworkVitePress   Framework = "vitepress"
)

// DetectionResult contains the result of content selector detection
type DetectionResult struct {
	Framework Framework
	Selector  string // CSS selector for main content, empty when Fallback is set
	Fallback  bool   // Use readability extraction
}

// Extraction is the main content pulled out of a page
type Extraction struct {
	Content         *goquery.Selection // Detached copy, safe to modify
	Title           string             // Readability title, empty when a selector matched
	Framework       Framework
	UsedReadability bool
}

// ContentDetector picks the content region of pages whose site is configured with the
// "auto" content selector
type ContentDetector struct {
	cache       *SelectorCache
	readability *ReadabilityExtractor
	log         *logrus.Entry
}

// NewContentDetector creates a detector with an empty per-host cache
func NewContentDetector(log *logrus.Entry) *ContentDetector {
	return &ContentDetector{
		cache:       NewSelectorCache(),
		readability: NewReadabilityExtractor(),
		log:         log.WithField("component", "detect"),
	}
}

// Detect returns the framework result for the page's host, detecting on first sight
func (d *ContentDetector) Detect(doc *goquery.Document, pageURL *url.URL) DetectionResult {
	host := pageURL.Hostname()
	if cached, ok := d.cache.Get(host); ok {
		return cached
	}

	result := detectFramework(doc)
	if result.Fallback {
		d.log.Infof("No framework detected for %s, using readability extraction", host)
	} else {
		d.log.Infof("Detected framework %s for %s, using selector: %s", result.Framework, host, result.Selector)
	}
	d.cache.Set(host, result)
	return result
}

// Extract returns the main content of the page. The framework selector is tried first;
// readability is the fallback for unknown frameworks and for pages where the selector misses.
func (d *ContentDetector) Extract(doc *goquery.Document, pageURL *url.URL) (Extraction, error) {
	result := d.Detect(doc, pageURL)

	if !result.Fallback {
		if sel := doc.Find(result.Selector); sel.Length() > 0 {
			return Extraction{Content: sel.First().Clone(), Framework: result.Framework}, nil
		}
		d.log.WithField("url", pageURL.String()).
			Warnf("Detected selector '%s' not found, falling back to readability", result.Selector)
	}

	content, title, err := d.readability.Extract(doc, pageURL)
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: no content region found on '%s': %v", utils.ErrContentSelector, pageURL, err)
	}
	return Extraction{Content: content, Title: title, Framework: result.Framework, UsedReadability: true}, nil
}

// CacheSize returns the number of hosts with a cached detection
func (d *ContentDetector) CacheSize() int {
	return d.cache.Size()
}

func detectFramework(doc *goquery.Document) DetectionResult {
	html, _ := doc.Html()
	html = strings.ToLower(html)

	for _, sig := range frameworkSignatures {
		if sig.Matches(doc, html) {
			return DetectionResult{Framework: sig.Framework, Selector: sig.Selector}
		}
	}
	return DetectionResult{Framework: FrameworkUnknown, Fallback: true}
}

// IsAutoSelector reports whether a configured content selector asks for detection
func IsAutoSelector(selector string) bool {
	return strings.EqualFold(strings.TrimSpace(selector), "auto")
}
