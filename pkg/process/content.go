package process

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/detect"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/fetch"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// PageConverter fetches a page and turns its content region into Markdown
type PageConverter struct {
	fetcher  *fetch.Fetcher
	reqCfg   fetch.RequestConfig
	detector *detect.ContentDetector
	images   *ImageDownloader // nil = images are never downloaded
	log      *logrus.Entry
}

// NewPageConverter creates a PageConverter
func NewPageConverter(fetcher *fetch.Fetcher, reqCfg fetch.RequestConfig, images *ImageDownloader, log *logrus.Entry) *PageConverter {
	return &PageConverter{
		fetcher:  fetcher,
		reqCfg:   reqCfg,
		detector: detect.NewContentDetector(log),
		images:   images,
		log:      log.WithField("component", "converter"),
	}
}

// FetchAndConvert fetches req.URL, extracts the content region (explicit selector, or
// framework detection with readability fallback for "auto"), optionally localizes images,
// and converts the result to Markdown. Fetch errors are returned unchanged so the caller
// can classify them; a missing content region wraps utils.ErrContentSelector.
func (c *PageConverter) FetchAndConvert(ctx context.Context, req models.PageRequest) (*models.ConvertedPage, error) {
	taskLog := c.log.WithField("url", req.URL)

	res, err := c.fetcher.Fetch(ctx, req.URL, c.reqCfg)
	if err != nil {
		return nil, err
	}

	pageURL, err := url.Parse(res.FinalURL)
	if err != nil {
		return nil, fmt.Errorf("%w: final URL '%s': %w", utils.ErrParsing, res.FinalURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML of '%s': %w", utils.ErrParsing, req.URL, err)
	}

	title := pageTitle(doc)
	var content *goquery.Selection

	if req.ContentSelector == "" || detect.IsAutoSelector(req.ContentSelector) {
		ex, err := c.detector.Extract(doc, pageURL)
		if err != nil {
			return nil, err
		}
		content = ex.Content
		if ex.Title != "" {
			title = ex.Title
		}
		taskLog.Debugf("Content extracted (framework: %s, readability: %v)", ex.Framework, ex.UsedReadability)
	} else {
		sel := doc.Find(req.ContentSelector)
		if sel.Length() == 0 {
			return nil, fmt.Errorf("%w: selector '%s' not found on page '%s'", utils.ErrContentSelector, req.ContentSelector, req.URL)
		}
		content = sel.First().Clone()
	}

	absolutizeLinks(content, pageURL)

	if req.DownloadImages && c.images != nil && req.ImagesDir != "" {
		localized, imgErrs := c.images.Process(ctx, content, pageURL, req.ImagesDir)
		if len(imgErrs) > 0 {
			taskLog.Warnf("%d image(s) could not be downloaded; remote links kept", len(imgErrs))
		}
		taskLog.Debugf("Localized %d image(s)", localized)
	}

	cleanupHTML(content)

	html, err := renderSelection(content)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering content of '%s': %w", utils.ErrParsing, req.URL, err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrMarkdownConversion, err)
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return nil, fmt.Errorf("%w: content of '%s' converted to empty Markdown", utils.ErrContentSelector, req.URL)
	}

	return &models.ConvertedPage{
		Title:      title,
		Markdown:   markdown,
		ByteSize:   len(markdown),
		ImageCount: content.Find("img").Length() + content.Filter("img").Length(),
	}, nil
}

func pageTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if h := strings.TrimSpace(doc.Find("h1").First().Text()); h != "" {
		return h
	}
	return "Untitled Page"
}

// renderSelection concatenates the outer HTML of every node in sel
func renderSelection(sel *goquery.Selection) (string, error) {
	var b strings.Builder
	var renderErr error
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		h, err := goquery.OuterHtml(s)
		if err != nil {
			renderErr = err
			return false
		}
		b.WriteString(h)
		return true
	})
	return b.String(), renderErr
}

// cleanupHTML removes framework noise such as Sphinx headerlinks (¶) before conversion
func cleanupHTML(content *goquery.Selection) {
	content.Find("a.headerlink, a.edit-on-github, a.permalink, a.hash-link").Remove()
	content.Find("a[title='Permalink to this heading'], a[title='Link to this heading']").Remove()
	content.Find("script, style, noscript, button.copybtn").Remove()

	content.Find("a").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		href := s.AttrOr("href", "")
		if text == "¶" || text == "#" || (text == "" && s.Find("img").Length() == 0 && strings.HasPrefix(href, "#")) {
			s.Remove()
		}
	})
}

// absolutizeLinks rewrites relative link and image targets against the page URL so they
// survive being moved into the assembled document. Fragment-only links are left alone.
func absolutizeLinks(content *goquery.Selection, pageURL *url.URL) {
	rewrite := func(attr string) func(int, *goquery.Selection) {
		return func(_ int, s *goquery.Selection) {
			v := strings.TrimSpace(s.AttrOr(attr, ""))
			if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "data:") {
				return
			}
			ref, err := url.Parse(v)
			if err != nil || ref.IsAbs() {
				return
			}
			s.SetAttr(attr, pageURL.ResolveReference(ref).String())
		}
	}
	content.Find("a[href]").Each(rewrite("href"))
	content.Find("img[src]").Each(rewrite("src"))
}
