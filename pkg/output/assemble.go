package output

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/nao1215/markdown"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/process"
)

// tocMaxLevel is the deepest page heading listed under a page in the table of contents
const tocMaxLevel = 3

// assemble renders the pages, already in discovery order, as one Markdown document
func assemble(w io.Writer, opts Options, pages []savedPage) error {
	md := markdown.NewMarkdown(w)

	title := opts.SiteKey
	if title == "" {
		title = opts.BaseURL
	}
	md.H1(title).PlainText("")
	if opts.BaseURL != "" {
		md.PlainTextf("Source: <%s>", opts.BaseURL).PlainText("")
	}

	if opts.Config.EnableTOC && len(pages) > 0 {
		tableOfContents(md, pages)
	}

	for _, p := range pages {
		md.HorizontalRule().PlainText("")
		md.PlainTextf(`<a id="%s"></a>`, pageAnchor(p.result.Index)).PlainText("")
		md.PlainTextf("<!-- source: %s -->", p.result.URL).PlainText("")
		md.PlainText(strings.TrimSpace(p.result.Markdown)).PlainText("")
	}
	return md.Build()
}

// tableOfContents lists every page by title, with its own headings nested below
func tableOfContents(md *markdown.Markdown, pages []savedPage) {
	md.H2("Table of Contents").PlainText("")

	slugs := newSlugger()
	for _, p := range pages {
		title := p.result.Title
		if title == "" {
			title = p.result.URL
		}
		md.PlainText("- " + markdown.Link(escapeLinkText(title), "#"+pageAnchor(p.result.Index)))

		for _, h := range process.ExtractHeadings([]byte(p.result.Markdown)) {
			if h.Level < 2 || h.Level > tocMaxLevel || h.Text == "" {
				continue
			}
			indent := strings.Repeat("  ", h.Level-1)
			md.PlainText(indent + "- " + markdown.Link(escapeLinkText(h.Text), "#"+slugs.slug(h.Text)))
		}
	}
	md.PlainText("")
}

func pageAnchor(index int) string {
	return fmt.Sprintf("page-%d", index)
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

// slugger produces GitHub-style heading anchors, suffixing repeats with -1, -2, ...
type slugger struct {
	seen map[string]int
}

func newSlugger() *slugger {
	return &slugger{seen: make(map[string]int)}
}

func (s *slugger) slug(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	base := b.String()
	n := s.seen[base]
	s.seen[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}
