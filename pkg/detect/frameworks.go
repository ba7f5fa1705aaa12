package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// signature defines the markers of one documentation framework
type signature struct {
	Framework  Framework
	Selector   string   // CSS selector for main content
	Attributes []string // Attribute names, e.g. "data-docusaurus"
	Classes    []string // Class names; a trailing "*" matches by prefix
	Scripts    []string // Substrings of script src values
	Markers    []string // Lowercase substrings of the raw HTML
}

// Matches reports whether any marker is present. html must be lowercased.
func (sig signature) Matches(doc *goquery.Document, html string) bool {
	for _, attr := range sig.Attributes {
		if doc.Find("[" + attr + "]").Length() > 0 {
			return true
		}
	}
	for _, class := range sig.Classes {
		if prefix, ok := strings.CutSuffix(class, "*"); ok {
			if hasClassPrefix(doc, prefix) {
				return true
			}
		} else if doc.Find("."+class).Length() > 0 {
			return true
		}
	}
	for _, pattern := range sig.Scripts {
		found := doc.Find("script[src]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			src, _ := s.Attr("src")
			return strings.Contains(src, pattern)
		}).Length() > 0
		if found {
			return true
		}
	}
	for _, m := range sig.Markers {
		if strings.Contains(html, m) {
			return true
		}
	}
	return false
}

func hasClassPrefix(doc *goquery.Document, prefix string) bool {
	return doc.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		for _, c := range strings.Fields(s.AttrOr("class", "")) {
			if strings.HasPrefix(c, prefix) {
				return true
			}
		}
		return false
	}).Length() > 0
}

// frameworkSignatures is checked in order; more specific frameworks come first
var frameworkSignatures = []signature{
	{
		Framework:  FrameworkDocusaurus,
		Selector:   "article[class*='theme-doc'], .theme-doc-markdown, article.markdown, main article",
		Attributes: []string{"data-docusaurus", "data-docusaurus-root-container"},
		Classes:    []string{"docusaurus-wrapper", "theme-doc-markdown"},
		Markers:    []string{"__docusaurus", "docusaurus.io"},
	},
	{
		Framework:  FrameworkMkDocs,
		Selector:   "article.md-content__inner, .md-content article, .md-content",
		Attributes: []string{"data-md-component", "data-md-color-scheme"},
		Classes:    []string{"md-content", "md-main"},
		Markers:    []string{"mkdocs", "material for mkdocs"},
	},
	{
		Framework: FrameworkVitePress,
		Selector:  ".vp-doc, main .content-container",
		Classes:   []string{"vp-doc", "VPDoc"},
		Markers:   []string{"vitepress"},
	},
	// Before Sphinx: ReadTheDocs sites are usually Sphinx builds too
	{
		Framework: FrameworkReadTheDocs,
		Selector:  ".rst-content, div[role='main'], .document",
		Classes:   []string{"rst-content", "wy-nav-content"},
		Scripts:   []string{"readthedocs", "rtd"},
		Markers:   []string{"readthedocs.org", "readthedocs.io", "sphinx-rtd-theme"},
	},
	{
		Framework: FrameworkSphinx,
		Selector:  "div.document, div.body, article.bd-article, main.bd-main",
		Classes:   []string{"sphinxsidebar", "sphinx-tabs"},
		Scripts:   []string{"searchindex.js", "_static/sphinx"},
		Markers:   []string{"created using sphinx", "sphinx-doc.org", "_static/alabaster", "_static/pygments"},
	},
	{
		Framework: FrameworkGitBook,
		Selector:  "section.normal.markdown-section, .page-inner section, main[class*='gitbook']",
		Classes:   []string{"gitbook*", "markdown-section"},
		Markers:   []string{"gitbook", "gb-page"},
	},
}
