package output

import "time"

// PageRecord is one line of the pages JSONL stream
type PageRecord struct {
	URL         string    `json:"url"`
	Index       int       `json:"index"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Headings    []string  `json:"headings,omitempty"`
	ContentHash string    `json:"content_hash"`
	TokenCount  int       `json:"token_count,omitempty"`
	ImageCount  int       `json:"image_count,omitempty"`
	FromCache   bool      `json:"from_cache,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ChunkRecord is one line of the chunks JSONL stream
type ChunkRecord struct {
	URL              string   `json:"url"`
	PageIndex        int      `json:"page_index"`
	PageTitle        string   `json:"page_title"`
	ChunkIndex       int      `json:"chunk_index"`
	Content          string   `json:"content"`
	HeadingHierarchy []string `json:"heading_hierarchy,omitempty"`
	TokenCount       int      `json:"token_count"`
}
