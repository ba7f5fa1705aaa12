package detect

import (
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestIsAutoSelector(t *testing.T) {
	tests := []struct {
		selector string
		want     bool
	}{
		{"auto", true},
		{"AUTO", true},
		{"Auto", true},
		{" auto ", true},
		{"body", false},
		{"article", false},
		{"", false},
		{"automatic", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAutoSelector(tt.selector), "selector %q", tt.selector)
	}
}

func TestDetect_Frameworks(t *testing.T) {
	tests := []struct {
		name string
		url  string
		html string
		want Framework
	}{
		{
			name: "docusaurus",
			url:  "https://docusaurus.io/docs/",
			html: `<html data-docusaurus><body><div class="docusaurus-wrapper"><article class="theme-doc-markdown"><h1>Hello</h1></article></div></body></html>`,
			want: FrameworkDocusaurus,
		},
		{
			name: "mkdocs",
			url:  "https://squidfunk.github.io/mkdocs-material/",
			html: `<html><body><div class="md-content" data-md-component="content"><article class="md-content__inner"><h1>MkDocs</h1></article></div></body></html>`,
			want: FrameworkMkDocs,
		},
		{
			name: "sphinx",
			url:  "https://www.sphinx-doc.org/en/master/",
			html: `<html><head><script src="_static/sphinx_highlight.js"></script></head><body><div class="sphinxsidebar">Sidebar</div><div class="document"><div class="body"><h1>Sphinx</h1></div></div></body></html>`,
			want: FrameworkSphinx,
		},
		{
			name: "readthedocs",
			url:  "https://example.readthedocs.io/en/latest/",
			html: `<html><head><script src="https://readthedocs.org/static/javascript/readthedocs-doc-embed.js"></script></head><body><div class="wy-nav-content"><div class="rst-content"><h1>RTD</h1></div></div></body></html>`,
			want: FrameworkReadTheDocs,
		},
		{
			name: "gitbook by class prefix",
			url:  "https://docs.gitbook.com/",
			html: `<html><body><main class="gitbook-root"><section class="normal markdown-section"><h1>GitBook</h1></section></main></body></html>`,
			want: FrameworkGitBook,
		},
		{
			name: "vitepress",
			url:  "https://vitepress.dev/guide/",
			html: `<html><body><div class="VPDoc"><div class="vp-doc"><h1>VitePress</h1></div></div></body></html>`,
			want: FrameworkVitePress,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewContentDetector(testLogger())
			result := d.Detect(mustDoc(t, tt.html), mustURL(t, tt.url))
			assert.Equal(t, tt.want, result.Framework)
			assert.False(t, result.Fallback)
			assert.NotEmpty(t, result.Selector)
		})
	}
}

const genericPage = `<html><head><title>Generic Article</title></head><body>
<div id="menu"><a href="/">Home</a></div>
<div id="content">
<h1>Some Article</h1>
<p>This is a generic website with no known documentation framework. It has several paragraphs of prose
so that the readability scorer has enough text to recognise the main region of the page without doubt.</p>
<p>The second paragraph continues the article with more sentences, commas, and ordinary words, which is what
readability looks for when it decides where the real content of a page lives and what is navigation.</p>
<p>A third paragraph closes the article. Readability prefers long runs of text inside a single container,
and this container has plenty of it, so extraction should succeed and return these paragraphs intact.</p>
</div></body></html>`

func TestDetect_UnknownFallsBackToReadability(t *testing.T) {
	d := NewContentDetector(testLogger())
	result := d.Detect(mustDoc(t, genericPage), mustURL(t, "https://example.com/page"))
	assert.Equal(t, FrameworkUnknown, result.Framework)
	assert.True(t, result.Fallback)
	assert.Empty(t, result.Selector)
}

func TestDetect_CachedPerHost(t *testing.T) {
	d := NewContentDetector(testLogger())
	docusaurus := mustDoc(t, `<html data-docusaurus><body><article class="theme-doc-markdown">Content</article></body></html>`)

	r1 := d.Detect(docusaurus, mustURL(t, "https://Example.com/page1"))
	// A different page on the same host reuses the first result even if its markup differs
	r2 := d.Detect(mustDoc(t, genericPage), mustURL(t, "https://example.com/page2"))

	assert.Equal(t, FrameworkDocusaurus, r1.Framework)
	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, d.CacheSize())

	d.Detect(mustDoc(t, genericPage), mustURL(t, "https://other.example.com/"))
	assert.Equal(t, 2, d.CacheSize())
}

func TestExtract_FrameworkSelector(t *testing.T) {
	d := NewContentDetector(testLogger())
	doc := mustDoc(t, `<html data-docusaurus><body><nav>menu</nav><article class="theme-doc-markdown"><h1>Install</h1><p>Run it.</p></article></body></html>`)

	ex, err := d.Extract(doc, mustURL(t, "https://docs.example.com/install"))
	require.NoError(t, err)
	assert.Equal(t, FrameworkDocusaurus, ex.Framework)
	assert.False(t, ex.UsedReadability)
	assert.Equal(t, "Install", ex.Content.Find("h1").Text())
	assert.NotContains(t, ex.Content.Text(), "menu")

	// The extraction is detached from the source document
	ex.Content.Find("h1").Remove()
	assert.Equal(t, 1, doc.Find("h1").Length())
}

func TestExtract_ReadabilityFallback(t *testing.T) {
	d := NewContentDetector(testLogger())
	ex, err := d.Extract(mustDoc(t, genericPage), mustURL(t, "https://example.com/page"))
	require.NoError(t, err)
	assert.True(t, ex.UsedReadability)
	assert.Equal(t, FrameworkUnknown, ex.Framework)
	assert.NotEmpty(t, ex.Title)

	var text strings.Builder
	ex.Content.Each(func(_ int, s *goquery.Selection) { text.WriteString(s.Text()) })
	assert.Contains(t, text.String(), "third paragraph closes the article")
}
