package detect

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// ReadabilityExtractor extracts main content using Mozilla's Readability algorithm
type ReadabilityExtractor struct{}

// NewReadabilityExtractor creates a readability-based extractor
func NewReadabilityExtractor() *ReadabilityExtractor {
	return &ReadabilityExtractor{}
}

// Extract returns the readable part of doc as a detached selection plus the article title
func (r *ReadabilityExtractor) Extract(doc *goquery.Document, pageURL *url.URL) (*goquery.Selection, string, error) {
	html, err := doc.Html()
	if err != nil {
		return nil, "", fmt.Errorf("rendering document: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("readability: %w", err)
	}
	if strings.TrimSpace(article.Content) == "" {
		return nil, "", errors.New("readability extracted empty content")
	}

	contentDoc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil, "", fmt.Errorf("parsing readability output: %w", err)
	}

	// Readability wraps its output; keep the wrapper's children when there are any
	content := contentDoc.Find("body").Children()
	if content.Length() == 0 {
		content = contentDoc.Find("body")
	}

	title := article.Title
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return content, title, nil
}
