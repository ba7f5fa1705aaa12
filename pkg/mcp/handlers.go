package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/fetch"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/orchestrate"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/output"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/process"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

const (
	defaultMaxResults = 10
	maxMaxResults     = 100
	snippetLength     = 150
)

// handleListSites handles the list_sites tool
func (s *Server) handleListSites(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys := orchestrate.GetAllSiteKeys(s.app)
	sites := make([]map[string]any, 0, len(keys))

	for _, key := range keys {
		site, _, err := s.app.Sites[key].Validate()
		info := map[string]any{
			"key":              key,
			"base_url":         site.BaseURL,
			"nav_selector":     site.NavSelector,
			"content_selector": site.ContentSelector,
		}
		if err != nil {
			info["config_error"] = err.Error()
		}
		if site.Profile != "" {
			info["profile"] = site.Profile
		}
		if meta, ok := s.readMetadata(key); ok {
			info["last_crawled"] = meta.CrawlEndTime.Format(time.RFC3339)
			info["pages_saved"] = meta.TotalPagesSaved
			info["last_profile"] = meta.Profile
		}
		if job, ok := s.jobManager.GetJobBySite(key); ok {
			info["status"] = job.Status
			info["job_id"] = job.ID
		}
		sites = append(sites, info)
	}

	return textResult(map[string]any{
		"sites":       sites,
		"config_path": s.cfg.ConfigPath,
		"total_sites": len(sites),
	}), nil
}

// handleAnalyzeSite handles the analyze_site tool
func (s *Server) handleAnalyzeSite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	siteKey := request.GetString("site_key", "")
	rawURL := request.GetString("url", "")

	var (
		analysis models.SiteAnalysis
		err      error
	)
	switch {
	case siteKey != "":
		if _, ok := s.app.Sites[siteKey]; !ok {
			return mcp.NewToolResultError(fmt.Sprintf("site '%s' not found. Available sites: %v", siteKey, orchestrate.GetAllSiteKeys(s.app))), nil
		}
		analysis, err = s.analyzer.AnalyzeSite(ctx, siteKey)
	case rawURL != "":
		analysis, err = s.analyzer.AnalyzeURL(ctx, rawURL, request.GetString("nav_selector", ""))
	default:
		return mcp.NewToolResultError("either site_key or url is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}

	b, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding analysis: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// handleCrawlSite handles the crawl_site tool
func (s *Server) handleCrawlSite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	siteKey := request.GetString("site_key", "")
	if siteKey == "" {
		return mcp.NewToolResultError("site_key parameter is required"), nil
	}
	if _, ok := s.app.Sites[siteKey]; !ok {
		return mcp.NewToolResultError(fmt.Sprintf("site '%s' not found. Available sites: %v", siteKey, orchestrate.GetAllSiteKeys(s.app))), nil
	}

	var profile models.Profile
	if raw := request.GetString("profile", ""); raw != "" {
		p, ok := models.ParseProfile(raw)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown profile '%s' (supported: %v)", raw, models.AllProfiles())), nil
		}
		profile = p
	}
	resume := request.GetBool("resume", false)

	job, created := s.jobManager.CreateJob(siteKey, profile, resume)
	if !created {
		return textResult(map[string]any{
			"status":   "already_running",
			"message":  "A crawl is already in progress for this site",
			"job_id":   job.ID,
			"site_key": siteKey,
		}), nil
	}

	go s.runCrawlJob(job)

	return textResult(map[string]any{
		"status":   "started",
		"message":  "Crawl started successfully",
		"job_id":   job.ID,
		"site_key": siteKey,
		"profile":  profile,
		"resume":   resume,
	}), nil
}

// runCrawlJob runs a crawl job in the background
func (s *Server) runCrawlJob(job Job) {
	s.jobManager.MarkRunning(job.ID)
	ctx := s.jobManager.Context(job.ID)

	crawler := s.newCrawler(orchestrate.Options{
		Resume:   job.Resume,
		Profile:  job.Profile,
		Reporter: s.jobManager.Reporter(job.ID),
	})
	res := crawler.CrawlSite(ctx, job.SiteKey)
	s.jobManager.Finish(job.ID, res)

	log := s.log.WithField("job_id", job.ID)
	if res.Success {
		log.Infof("Crawl job for '%s' completed: %d pages saved", job.SiteKey, res.PagesSaved)
	} else {
		log.Warnf("Crawl job for '%s' ended: %v", job.SiteKey, res.Error)
	}
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job, ok := s.jobManager.GetJob(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]any{
		"job_id":          job.ID,
		"site_key":        job.SiteKey,
		"status":          job.Status,
		"started_at":      job.StartedAt.Format(time.RFC3339),
		"pages_queued":    job.PagesQueued,
		"pages_processed": job.PagesProcessed,
		"pages_failed":    job.PagesFailed,
		"resume":          job.Resume,
	}
	if job.Profile != "" {
		result["profile"] = job.Profile
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.DocumentPath != "" {
		result["document_path"] = job.DocumentPath
	}
	if job.Fallback {
		result["fallback"] = true
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	return textResult(result), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}
	if !s.jobManager.CancelJob(jobID) {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found or not active", jobID)), nil
	}
	return textResult(map[string]any{"job_id": jobID, "status": JobStatusCancelled}), nil
}

// handleGetPage handles the get_page tool
func (s *Server) handleGetPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	selector := request.GetString("content_selector", "auto")

	client, err := fetch.NewClient(s.app.HTTPClientSettings, s.app.ProxyURL, s.log)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fetcher := fetch.NewFetcher(client, s.app.Pipeline.Retry, s.log, fetch.WithUserAgent(s.app.DefaultUserAgent))
	converter := process.NewPageConverter(fetcher, fetch.RequestConfig{}, nil, s.log)

	startTime := time.Now()
	page, err := converter.FetchAndConvert(ctx, models.PageRequest{URL: rawURL, ContentSelector: selector})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to convert page (%s): %v", fetch.Classify(err), err)), nil
	}

	return textResult(map[string]any{
		"url":            rawURL,
		"title":          page.Title,
		"content":        page.Markdown,
		"content_length": page.ByteSize,
		"image_count":    page.ImageCount,
		"fetch_time_ms":  time.Since(startTime).Milliseconds(),
	}), nil
}

// handleSearchCrawled handles the search_crawled tool
func (s *Server) handleSearchCrawled(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	siteKey := request.GetString("site_key", "")
	maxResults := request.GetInt("max_results", defaultMaxResults)
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	maxResults = min(maxResults, maxMaxResults)

	keys := orchestrate.GetAllSiteKeys(s.app)
	if siteKey != "" {
		if _, ok := s.app.Sites[siteKey]; !ok {
			return mcp.NewToolResultError(fmt.Sprintf("site '%s' not found", siteKey)), nil
		}
		keys = []string{siteKey}
	}

	results := s.searchJSONL(ctx, query, keys, maxResults)
	response := map[string]any{
		"query":         query,
		"results":       results,
		"total_matches": len(results),
	}
	if siteKey != "" {
		response["site_key"] = siteKey
	}
	return textResult(response), nil
}

// siteDir is where the orchestrator writes a site's output
func (s *Server) siteDir(siteKey string) string {
	return filepath.Join(s.app.OutputBaseDir, utils.SanitizeFilename(siteKey))
}

// searchJSONL streams each site's pages JSONL, matching title, then content, then headings
func (s *Server) searchJSONL(ctx context.Context, query string, siteKeys []string, maxResults int) []map[string]any {
	results := make([]map[string]any, 0)
	queryLower := strings.ToLower(query)

	for _, key := range siteKeys {
		if len(results) >= maxResults || ctx.Err() != nil {
			break
		}
		out := config.OutputForSite(s.app, s.app.Sites[key], "")
		file, err := os.Open(filepath.Join(s.siteDir(key), out.JSONLFilename))
		if err != nil {
			continue
		}

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for len(results) < maxResults && scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var page output.PageRecord
			if err := parseJSONLine(line, &page); err != nil {
				continue
			}
			if where := matchLocation(page, queryLower); where != "" {
				results = append(results, map[string]any{
					"url":            page.URL,
					"title":          page.Title,
					"snippet":        extractSnippet(page.Content, query, snippetLength),
					"site_key":       key,
					"match_location": where,
				})
			}
		}
		file.Close()
	}
	return results
}

func matchLocation(page output.PageRecord, queryLower string) string {
	switch {
	case strings.Contains(strings.ToLower(page.Title), queryLower):
		return "title"
	case strings.Contains(strings.ToLower(page.Content), queryLower):
		return "content"
	}
	for _, h := range page.Headings {
		if strings.Contains(strings.ToLower(h), queryLower) {
			return "headings"
		}
	}
	return ""
}

// readMetadata loads the metadata written by the last crawl of a site
func (s *Server) readMetadata(siteKey string) (models.CrawlMetadata, bool) {
	out := config.OutputForSite(s.app, s.app.Sites[siteKey], "")
	data, err := os.ReadFile(filepath.Join(s.siteDir(siteKey), out.MetadataFilename))
	if err != nil {
		return models.CrawlMetadata{}, false
	}
	var meta models.CrawlMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		s.log.WithField("site", siteKey).Debugf("Ignoring unreadable metadata: %v", err)
		return models.CrawlMetadata{}, false
	}
	return meta, true
}

// extractSnippet extracts a snippet around the query match, slicing on rune
// boundaries so multi-byte UTF-8 characters are never split
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	lower := []rune(strings.ToLower(content))
	q := []rune(strings.ToLower(query))

	idx := -1
	for i := 0; i+len(q) <= len(lower); i++ {
		if string(lower[i:i+len(q)]) == string(q) {
			idx = i
			break
		}
	}

	if idx == -1 {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	start := max(idx-maxLen/2, 0)
	end := min(idx+len(q)+maxLen/2, len(runes))

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}

func parseJSONLine(line string, page *output.PageRecord) error {
	return json.Unmarshal([]byte(line), page)
}

// textResult formats data as an indented JSON text result
func textResult(data map[string]any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(b))
}
