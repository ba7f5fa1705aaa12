package output

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/process"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// Options describe where and what a Writer produces
type Options struct {
	Dir       string // Site output directory, created if missing
	SiteKey   string
	BaseURL   string
	Profile   models.Profile
	Config    config.OutputConfig
	Tokenizer *process.Tokenizer // nil = no token counts
}

// savedPage is a successful result plus what the writer derived from it
type savedPage struct {
	result models.PageResult
	hash   string
	tokens int
}

// Writer is the batch sink of a site run. PersistBatch streams JSONL records as batches
// arrive; Finalize assembles the Markdown document in discovery order.
type Writer struct {
	opts      Options
	log       *logrus.Entry
	startedAt time.Time

	mu        sync.Mutex
	jsonl     *os.File
	chunks    *os.File
	pages     []savedPage
	seen      map[string]struct{}
	finalized bool
}

// NewWriter creates the output directory and opens the enabled JSONL streams, truncating
// anything left by a previous run
func NewWriter(opts Options, log *logrus.Entry) (*Writer, error) {
	opts.Config = withFilenames(opts.Config)
	w := &Writer{
		opts:      opts,
		log:       log.WithField("component", "output"),
		startedAt: time.Now(),
		seen:      make(map[string]struct{}),
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating output directory '%s': %w", utils.ErrFilesystem, opts.Dir, err)
	}

	var err error
	if opts.Config.EnableJSONL {
		if w.jsonl, err = w.openOutputFile(opts.Config.JSONLFilename, "JSONL"); err != nil {
			return nil, err
		}
	}
	if opts.Config.EnableChunks {
		if w.chunks, err = w.openOutputFile(opts.Config.ChunksFilename, "chunks"); err != nil {
			w.closeFiles()
			return nil, err
		}
	}
	return w, nil
}

func withFilenames(c config.OutputConfig) config.OutputConfig {
	if c.JSONLFilename == "" {
		c.JSONLFilename = "pages.jsonl"
	}
	if c.ChunksFilename == "" {
		c.ChunksFilename = "chunks.jsonl"
	}
	if c.MetadataFilename == "" {
		c.MetadataFilename = "metadata.yaml"
	}
	if c.DocumentFilename == "" {
		c.DocumentFilename = "document.md"
	}
	return c
}

func (w *Writer) openOutputFile(name, label string) (*os.File, error) {
	path := filepath.Join(w.opts.Dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s file '%s': %w", utils.ErrFilesystem, label, path, err)
	}
	w.log.Infof("%s output enabled: %s", label, path)
	return f, nil
}

// Dir returns the site output directory
func (w *Writer) Dir() string {
	return w.opts.Dir
}

// ImagesDir returns where page images are saved, next to the assembled document
func (w *Writer) ImagesDir() string {
	return filepath.Join(w.opts.Dir, process.ImageDir)
}

// PagesSaved returns the number of distinct successful pages received so far
func (w *Writer) PagesSaved() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pages)
}

// PersistBatch records the successful results of a batch. Failed and duplicate results are
// ignored. Write failures are returned; the pages stay collected for Finalize.
func (w *Writer) PersistBatch(ctx context.Context, results []models.PageResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return fmt.Errorf("%w: batch of %d result(s) arrived after finalize", utils.ErrFilesystem, len(results))
	}

	var firstErr error
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.Success || r.Duplicate {
			continue
		}
		key := utils.ContentHash(r.URL)
		if _, dup := w.seen[key]; dup {
			continue
		}
		w.seen[key] = struct{}{}

		p := savedPage{result: r, hash: utils.ContentHash(r.Markdown)}
		if w.opts.Tokenizer != nil {
			p.tokens = max(w.opts.Tokenizer.Count(r.Markdown), 0)
		}
		w.pages = append(w.pages, p)

		if err := w.writeRecords(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *Writer) writeRecords(p savedPage) error {
	r := p.result
	if w.jsonl != nil {
		headings := process.ExtractHeadings([]byte(r.Markdown))
		texts := make([]string, len(headings))
		for i, h := range headings {
			texts[i] = h.Text
		}
		rec := PageRecord{
			URL:         r.URL,
			Index:       r.Index,
			Title:       r.Title,
			Content:     r.Markdown,
			Headings:    texts,
			ContentHash: p.hash,
			TokenCount:  p.tokens,
			ImageCount:  r.ImageCount,
			FromCache:   r.FromCache,
			ProcessedAt: r.ProcessedAt,
		}
		if err := writeJSONLine(w.jsonl, rec); err != nil {
			return fmt.Errorf("%w: writing JSONL record for '%s': %w", utils.ErrFilesystem, r.URL, err)
		}
	}

	if w.chunks != nil {
		cfg := process.ChunkerConfig{MaxChunkSize: w.opts.Config.ChunkMaxTokens, ChunkOverlap: w.opts.Config.ChunkOverlap}
		chunks, err := process.ChunkMarkdown(r.Markdown, cfg, w.opts.Tokenizer)
		if err != nil {
			w.log.WithField("url", r.URL).Warnf("Failed to chunk markdown content: %v", err)
			return nil
		}
		for i, c := range chunks {
			rec := ChunkRecord{
				URL:              r.URL,
				PageIndex:        r.Index,
				PageTitle:        r.Title,
				ChunkIndex:       i,
				Content:          c.Content,
				HeadingHierarchy: c.HeadingHierarchy,
				TokenCount:       c.TokenCount,
			}
			if err := writeJSONLine(w.chunks, rec); err != nil {
				return fmt.Errorf("%w: writing chunk %d of '%s': %w", utils.ErrFilesystem, i, r.URL, err)
			}
		}
	}
	return nil
}

func writeJSONLine(f *os.File, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = f.Write(append(b, '\n'))
	return err
}

// Finalize closes the JSONL streams, writes the assembled document (pages sorted by
// discovery index) and, when enabled, the YAML metadata. metrics may be nil.
// Returns the document path. Calling Finalize twice rewrites the same files.
func (w *Writer) Finalize(metrics *models.RunMetrics) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.finalized = true
	w.closeFiles()

	pages := slices.Clone(w.pages)
	slices.SortStableFunc(pages, func(a, b savedPage) int {
		return cmp.Compare(a.result.Index, b.result.Index)
	})

	docPath := filepath.Join(w.opts.Dir, w.opts.Config.DocumentFilename)
	var doc bytes.Buffer
	if err := assemble(&doc, w.opts, pages); err != nil {
		return "", fmt.Errorf("%w: rendering document: %w", utils.ErrMarkdownConversion, err)
	}
	if err := os.WriteFile(docPath, doc.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("%w: writing document '%s': %w", utils.ErrFilesystem, docPath, err)
	}
	w.log.Infof("Wrote assembled document (%d pages, %d bytes) to %s", len(pages), doc.Len(), docPath)

	if w.opts.Config.EnableMetadata {
		if err := w.writeMetadataYAML(pages, metrics); err != nil {
			return docPath, err
		}
	}
	return docPath, nil
}

func (w *Writer) writeMetadataYAML(pages []savedPage, metrics *models.RunMetrics) error {
	path := filepath.Join(w.opts.Dir, w.opts.Config.MetadataFilename)

	meta := models.CrawlMetadata{
		SiteKey:         w.opts.SiteKey,
		BaseURL:         w.opts.BaseURL,
		Profile:         w.opts.Profile,
		CrawlStartTime:  w.startedAt,
		CrawlEndTime:    time.Now(),
		TotalPagesSaved: len(pages),
		Metrics:         metrics,
		Pages:           make([]models.PageMetadata, 0, len(pages)),
	}
	for _, p := range pages {
		meta.TotalTokens += p.tokens
		meta.Pages = append(meta.Pages, models.PageMetadata{
			URL:         p.result.URL,
			Index:       p.result.Index,
			Title:       p.result.Title,
			ProcessedAt: p.result.ProcessedAt,
			ContentHash: p.hash,
			ByteSize:    p.result.ByteSize,
			TokenCount:  p.tokens,
			ImageCount:  p.result.ImageCount,
		})
	}

	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("%w: encoding metadata for site '%s': %w", utils.ErrParsing, w.opts.SiteKey, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: writing metadata '%s': %w", utils.ErrFilesystem, path, err)
	}
	w.log.Infof("Wrote crawl metadata (%d pages) to %s", len(pages), path)
	return nil
}

// Close releases the JSONL streams without assembling anything. Safe to call more than once.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeFiles()
}

func (w *Writer) closeFiles() {
	for _, f := range []**os.File{&w.jsonl, &w.chunks} {
		if *f == nil {
			continue
		}
		if err := (*f).Sync(); err != nil {
			w.log.Errorf("Error syncing '%s': %v", (*f).Name(), err)
		}
		if err := (*f).Close(); err != nil {
			w.log.Errorf("Error closing '%s': %v", (*f).Name(), err)
		}
		*f = nil
	}
}
