package process

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunk is one retrieval-sized piece of a page's Markdown
type Chunk struct {
	Content          string   `json:"content"`                     // Includes the parent heading context
	HeadingHierarchy []string `json:"heading_hierarchy,omitempty"` // Headings found in the chunk, in order
	TokenCount       int      `json:"token_count"`
}

// ChunkerConfig sizes the chunks in tokens
type ChunkerConfig struct {
	MaxChunkSize int
	ChunkOverlap int
}

// DefaultChunkerConfig returns sizes suited to embedding models
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{MaxChunkSize: 512, ChunkOverlap: 50}
}

var headingRegex = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// ChunkMarkdown splits markdown by headers, keeping the heading hierarchy in each chunk,
// and recursively splits sections that are still larger than MaxChunkSize. Sizes are
// measured with tok; a nil tok falls back to a four-characters-per-token estimate.
func ChunkMarkdown(markdown string, cfg ChunkerConfig, tok *Tokenizer) ([]Chunk, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, nil
	}
	if cfg.MaxChunkSize <= 0 {
		cfg = DefaultChunkerConfig()
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.MaxChunkSize {
		cfg.ChunkOverlap = 0
	}

	lenFunc := func(s string) int {
		if n := tok.Count(s); n >= 0 {
			return n
		}
		return (utf8.RuneCountInString(s) + 3) / 4
	}

	recursive := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithLenFunc(lenFunc),
	)
	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithHeadingHierarchy(true),
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSecondSplitter(recursive),
		textsplitter.WithLenFunc(lenFunc),
	)

	parts, err := splitter.SplitText(markdown)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Content:          part,
			HeadingHierarchy: headingHierarchy(part),
			TokenCount:       lenFunc(part),
		})
	}
	return chunks, nil
}

func headingHierarchy(content string) []string {
	var out []string
	for _, m := range headingRegex.FindAllStringSubmatch(content, -1) {
		if h := strings.TrimSpace(m[2]); h != "" {
			out = append(out, h)
		}
	}
	return out
}
