package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/orchestrate"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/output"
)

// fakeCrawler blocks until released and records the options it was built with
type fakeCrawler struct {
	mu      sync.Mutex
	opts    []orchestrate.Options
	release chan struct{}
	result  orchestrate.SiteResult
}

func (f *fakeCrawler) build(opts orchestrate.Options) siteCrawler {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	return f
}

func (f *fakeCrawler) CrawlSite(ctx context.Context, siteKey string) orchestrate.SiteResult {
	select {
	case <-f.release:
	case <-ctx.Done():
		return orchestrate.SiteResult{SiteKey: siteKey, Error: ctx.Err()}
	}
	res := f.result
	res.SiteKey = siteKey
	return res
}

func testServer(t *testing.T, sites map[string]config.SiteConfig) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := NewServer(ServerConfig{
		AppConfig: config.AppConfig{
			OutputBaseDir: t.TempDir(),
			StateDir:      t.TempDir(),
			Sites:         sites,
		},
		ConfigPath: "config.yaml",
		Logger:     logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func docsSites() map[string]config.SiteConfig {
	return map[string]config.SiteConfig{
		"docs": {BaseURL: "https://docs.example.com/", NavSelector: "nav.sidebar", Profile: "format"},
		"api":  {BaseURL: "https://api.example.com/"},
	}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content type %T", res.Content[0])
	return ""
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

func TestNewServer_NeedsSites(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestHandleListSites(t *testing.T) {
	s := testServer(t, docsSites())

	meta := models.CrawlMetadata{
		SiteKey:         "docs",
		Profile:         models.ProfileFormat,
		CrawlEndTime:    time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		TotalPagesSaved: 7,
	}
	data, err := yaml.Marshal(&meta)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(s.siteDir("docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.siteDir("docs"), "metadata.yaml"), data, 0644))

	res, err := s.handleListSites(context.Background(), callRequest(nil))
	require.NoError(t, err)
	out := decodeResult(t, res)

	assert.Equal(t, float64(2), out["total_sites"])
	assert.Equal(t, "config.yaml", out["config_path"])
	sites := out["sites"].([]any)
	require.Len(t, sites, 2)

	api := sites[0].(map[string]any)
	assert.Equal(t, "api", api["key"])
	assert.Equal(t, "nav", api["nav_selector"], "defaults applied")
	assert.NotContains(t, api, "last_crawled")

	docs := sites[1].(map[string]any)
	assert.Equal(t, "docs", docs["key"])
	assert.Equal(t, "2026-05-01T10:00:00Z", docs["last_crawled"])
	assert.Equal(t, float64(7), docs["pages_saved"])
}

func TestHandleCrawlSite(t *testing.T) {
	s := testServer(t, docsSites())
	fake := &fakeCrawler{
		release: make(chan struct{}),
		result: orchestrate.SiteResult{
			Success:      true,
			Profile:      models.ProfilePerformance,
			DocumentPath: "/out/docs/document.md",
			Metrics:      models.RunMetrics{TotalPages: 4},
		},
	}
	s.newCrawler = fake.build
	ctx := context.Background()

	res, err := s.handleCrawlSite(ctx, callRequest(map[string]any{"site_key": "docs", "profile": "performance", "resume": true}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "started", out["status"])
	jobID := out["job_id"].(string)

	// A second request while the first is active returns the same job
	res, err = s.handleCrawlSite(ctx, callRequest(map[string]any{"site_key": "docs"}))
	require.NoError(t, err)
	again := decodeResult(t, res)
	assert.Equal(t, "already_running", again["status"])
	assert.Equal(t, jobID, again["job_id"])

	close(fake.release)
	require.Eventually(t, func() bool {
		job, _ := s.jobManager.GetJob(jobID)
		return job.Status == JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	fake.mu.Lock()
	require.Len(t, fake.opts, 1)
	assert.Equal(t, models.ProfilePerformance, fake.opts[0].Profile)
	assert.True(t, fake.opts[0].Resume)
	assert.NotNil(t, fake.opts[0].Reporter)
	fake.mu.Unlock()

	res, err = s.handleGetJobStatus(ctx, callRequest(map[string]any{"job_id": jobID}))
	require.NoError(t, err)
	status := decodeResult(t, res)
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, "/out/docs/document.md", status["document_path"])
	assert.Equal(t, float64(4), status["pages_processed"])
	assert.Contains(t, status, "completed_at")
}

func TestHandleCrawlSite_Cancel(t *testing.T) {
	s := testServer(t, docsSites())
	fake := &fakeCrawler{release: make(chan struct{})}
	s.newCrawler = fake.build
	ctx := context.Background()

	res, err := s.handleCrawlSite(ctx, callRequest(map[string]any{"site_key": "api"}))
	require.NoError(t, err)
	jobID := decodeResult(t, res)["job_id"].(string)

	res, err = s.handleCancelJob(ctx, callRequest(map[string]any{"job_id": jobID}))
	require.NoError(t, err)
	assert.Equal(t, "cancelled", decodeResult(t, res)["status"])

	job, ok := s.jobManager.GetJob(jobID)
	require.True(t, ok)
	assert.Equal(t, JobStatusCancelled, job.Status)

	res, err = s.handleCancelJob(ctx, callRequest(map[string]any{"job_id": jobID}))
	require.NoError(t, err)
	assert.True(t, res.IsError, "already finished")
}

func TestHandleCrawlSite_BadRequests(t *testing.T) {
	s := testServer(t, docsSites())
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing site_key", map[string]any{}},
		{"unknown site", map[string]any{"site_key": "nope"}},
		{"unknown profile", map[string]any{"site_key": "docs", "profile": "turbo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleCrawlSite(context.Background(), callRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
	assert.Empty(t, s.jobManager.ListJobs())
}

func TestHandleGetJobStatus_Unknown(t *testing.T) {
	s := testServer(t, docsSites())
	res, err := s.handleGetJobStatus(context.Background(), callRequest(map[string]any{"job_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleAnalyzeSite_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><nav><a href="/a">A</a><a href="/b">B</a><a href="/c">C</a></nav></body></html>`)
	}))
	defer srv.Close()

	s := testServer(t, docsSites())
	res, err := s.handleAnalyzeSite(context.Background(), callRequest(map[string]any{"url": srv.URL + "/"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var an models.SiteAnalysis
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &an))
	assert.Equal(t, 3, an.EstimatedPages)
	assert.Equal(t, models.ComplexitySimple, an.Complexity)

	res, err = s.handleAnalyzeSite(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleAnalyzeSite(context.Background(), callRequest(map[string]any{"site_key": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleGetPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Hello</title></head><body><article><h2>Greeting</h2><p>Hi there.</p></article></body></html>`)
	}))
	defer srv.Close()

	s := testServer(t, docsSites())
	res, err := s.handleGetPage(context.Background(), callRequest(map[string]any{"url": srv.URL + "/page", "content_selector": "article"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "Hello", out["title"])
	assert.Contains(t, out["content"], "Hi there.")

	res, err = s.handleGetPage(context.Background(), callRequest(map[string]any{"url": srv.URL + "/page", "content_selector": "#missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "content")
}

func TestHandleSearchCrawled(t *testing.T) {
	s := testServer(t, docsSites())

	w, err := output.NewWriter(output.Options{
		Dir:     s.siteDir("docs"),
		SiteKey: "docs",
		Config:  config.OutputConfig{EnableJSONL: true},
	}, s.log)
	require.NoError(t, err)
	require.NoError(t, w.PersistBatch(context.Background(), []models.PageResult{
		{URL: "https://docs.example.com/install", Index: 0, Title: "Installation", Markdown: "# Install\n\nRun the installer.", Success: true},
		{URL: "https://docs.example.com/config", Index: 1, Title: "Config", Markdown: "# Settings\n\n## Proxy setup\n\nSet the proxy.", Success: true},
	}))
	_, err = w.Finalize(nil)
	require.NoError(t, err)

	tests := []struct {
		name      string
		args      map[string]any
		wantURLs  []string
		wantWhere string
	}{
		{"title match", map[string]any{"query": "installation"}, []string{"https://docs.example.com/install"}, "title"},
		{"content match", map[string]any{"query": "PROXY", "site_key": "docs"}, []string{"https://docs.example.com/config"}, "content"},
		{"no match", map[string]any{"query": "kubernetes"}, nil, ""},
		{"max results", map[string]any{"query": "the", "max_results": 1}, []string{"https://docs.example.com/install"}, "content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleSearchCrawled(context.Background(), callRequest(tt.args))
			require.NoError(t, err)
			out := decodeResult(t, res)

			results := out["results"].([]any)
			var urls []string
			for _, r := range results {
				urls = append(urls, r.(map[string]any)["url"].(string))
			}
			assert.Equal(t, tt.wantURLs, urls)
			if tt.wantWhere != "" {
				assert.Equal(t, tt.wantWhere, results[0].(map[string]any)["match_location"])
			}
		})
	}

	res, err := s.handleSearchCrawled(context.Background(), callRequest(map[string]any{"query": "x", "site_key": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestExtractSnippet(t *testing.T) {
	tests := []struct {
		name    string
		content string
		query   string
		maxLen  int
		wantHas string // substring that must appear
		wantPfx bool   // leading ellipsis expected
		wantSfx bool   // trailing ellipsis expected
	}{
		{
			name:    "match in middle with ellipsis",
			content: "The quick brown fox jumps over the lazy dog and then keeps running forever",
			query:   "jumps",
			maxLen:  20,
			wantHas: "jumps",
			wantPfx: true,
			wantSfx: true,
		},
		{name: "match at start", content: "Hello world this is a test", query: "Hello", maxLen: 20, wantHas: "Hello"},
		{name: "match at end", content: "This is a very long string that ends with target", query: "target", maxLen: 20, wantHas: "target"},
		{
			name:    "no match truncated beginning",
			content: "abcdefghijklmnopqrstuvwxyz",
			query:   "zzz",
			maxLen:  10,
			wantHas: "abcdefghij",
			wantSfx: true,
		},
		{name: "short content returned as-is", content: "hi", query: "missing", maxLen: 100, wantHas: "hi"},
		{name: "empty content", content: "", query: "test", maxLen: 50},
		{name: "case insensitive", content: "The Quick Brown Fox", query: "quick", maxLen: 100, wantHas: "Quick"},
		{name: "unicode safety", content: "こんにちは世界、テストです。Unicode文字列のテスト。", query: "テスト", maxLen: 15, wantHas: "テスト"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractSnippet(tt.content, tt.query, tt.maxLen)
			assert.Contains(t, got, tt.wantHas)
			if tt.wantPfx {
				assert.Regexp(t, `^\.\.\.`, got)
			}
			if tt.wantSfx {
				assert.Regexp(t, `\.\.\.$`, got)
			}
		})
	}
}

func TestParseJSONLine(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		line := `{"url":"https://example.com","title":"Test","content":"Hello","headings":["H1"],"token_count":3}`
		var page output.PageRecord
		require.NoError(t, parseJSONLine(line, &page))
		assert.Equal(t, "https://example.com", page.URL)
		assert.Equal(t, "Test", page.Title)
		assert.Equal(t, "Hello", page.Content)
		assert.Equal(t, []string{"H1"}, page.Headings)
		assert.Equal(t, 3, page.TokenCount)
	})

	t.Run("empty string", func(t *testing.T) {
		var page output.PageRecord
		assert.Error(t, parseJSONLine("", &page))
	})

	t.Run("invalid JSON", func(t *testing.T) {
		var page output.PageRecord
		assert.Error(t, parseJSONLine("{not valid json}", &page))
	})
}
