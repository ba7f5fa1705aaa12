package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/orchestrate"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

const serverName = "doc2md"

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Version    string
	Logger     *logrus.Logger
}

// Server exposes site analysis and background crawls as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        ServerConfig
	app        config.AppConfig // With defaults applied
	log        *logrus.Entry
	jobManager *JobManager
	analyzer   *orchestrate.Orchestrator
	newCrawler func(orchestrate.Options) siteCrawler
}

// siteCrawler is the part of the orchestrator a crawl job needs
type siteCrawler interface {
	CrawlSite(ctx context.Context, siteKey string) orchestrate.SiteResult
}

// NewServer creates a new MCP server instance
func NewServer(cfg ServerConfig) (*Server, error) {
	if len(cfg.AppConfig.Sites) == 0 {
		return nil, fmt.Errorf("%w: MCP server needs at least one configured site", utils.ErrConfigValidation)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	log := cfg.Logger.WithField("component", "mcp")

	analyzer := orchestrate.NewOrchestrator(cfg.AppConfig, orchestrate.Options{}, log)
	s := &Server{
		mcpServer:  server.NewMCPServer(serverName, cfg.Version, server.WithLogging()),
		cfg:        cfg,
		app:        analyzer.Config(),
		log:        log,
		jobManager: NewJobManager(),
		analyzer:   analyzer,
	}
	s.newCrawler = func(opts orchestrate.Options) siteCrawler {
		return orchestrate.NewOrchestrator(s.cfg.AppConfig, opts, s.log)
	}

	s.registerTools()
	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	tools := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{
			mcp.NewTool("list_sites",
				mcp.WithDescription("List all configured documentation sites"),
			),
			s.handleListSites,
		},
		{
			mcp.NewTool("analyze_site",
				mcp.WithDescription("Probe a documentation site and recommend a crawl profile (basic, configurable, performance, format)"),
				mcp.WithString("site_key", mcp.Description("Site key from the config file")),
				mcp.WithString("url", mcp.Description("Any documentation URL, used when site_key is not given")),
				mcp.WithString("nav_selector", mcp.Description("CSS selector of the navigation for url (defaults to 'nav')")),
			),
			s.handleAnalyzeSite,
		},
		{
			mcp.NewTool("crawl_site",
				mcp.WithDescription("Start a background crawl of a configured site. Returns immediately with a job ID."),
				mcp.WithString("site_key",
					mcp.Required(),
					mcp.Description("Site key from the config file"),
				),
				mcp.WithString("profile", mcp.Description("Force a profile instead of the analyzer's recommendation")),
				mcp.WithBoolean("resume", mcp.Description("Reuse the persisted page cache of previous runs")),
			),
			s.handleCrawlSite,
		},
		{
			mcp.NewTool("get_job_status",
				mcp.WithDescription("Get the status of a crawl job"),
				mcp.WithString("job_id",
					mcp.Required(),
					mcp.Description("The job ID returned by crawl_site"),
				),
			),
			s.handleGetJobStatus,
		},
		{
			mcp.NewTool("cancel_job",
				mcp.WithDescription("Cancel a pending or running crawl job"),
				mcp.WithString("job_id",
					mcp.Required(),
					mcp.Description("The job ID returned by crawl_site"),
				),
			),
			s.handleCancelJob,
		},
		{
			mcp.NewTool("get_page",
				mcp.WithDescription("Fetch a single URL and return its content as markdown"),
				mcp.WithString("url",
					mcp.Required(),
					mcp.Description("The URL to fetch"),
				),
				mcp.WithString("content_selector", mcp.Description("CSS selector for the main content (defaults to 'auto' detection)")),
			),
			s.handleGetPage,
		},
		{
			mcp.NewTool("search_crawled",
				mcp.WithDescription("Search previously crawled pages using text matching"),
				mcp.WithString("query",
					mcp.Required(),
					mcp.Description("Search query (case-insensitive substring match)"),
				),
				mcp.WithString("site_key", mcp.Description("Limit search to one site")),
				mcp.WithNumber("max_results", mcp.Description("Maximum number of results to return (default: 10, max: 100)")),
			),
			s.handleSearchCrawled,
		},
	}

	for _, t := range tools {
		s.mcpServer.AddTool(t.tool, t.handler)
	}
	s.log.Infof("Registered %d MCP tools", len(tools))
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "", "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		err := server.NewSSEServer(s.mcpServer).Start(addr)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("%w: unknown transport '%s' (supported: stdio, sse)", utils.ErrConfigValidation, s.cfg.Transport)
	}
}

// Shutdown cancels every active crawl job
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return ctx.Err()
}
