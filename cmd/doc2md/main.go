package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/orchestrate"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/watch"
)

const version = "0.4.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:], false)
	case "resume":
		runCrawl(os.Args[2:], true)
	case "watch":
		runWatch(os.Args[2:])
	case "analyze":
		runAnalyze(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-sites":
		runListSites(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("doc2md %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `doc2md - Documentation site to Markdown converter

Usage:
  doc2md <command> [options]

Commands:
  crawl       Analyze, crawl and assemble sites into Markdown
  resume      Crawl reusing the persisted page cache
  watch       Re-crawl sites on a schedule
  analyze     Probe a site and print the recommended profile
  validate    Validate configuration file
  list-sites  List available site keys
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'doc2md <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (config.AppConfig, error) {
	return config.Load(path)
}

// parseSiteKeys resolves -site, -sites and -all-sites into a key list.
// A nil list with a nil error means every configured site.
func parseSiteKeys(site, sites string, all bool) ([]string, error) {
	switch {
	case all:
		return nil, nil
	case sites != "":
		var keys []string
		for _, s := range strings.Split(sites, ",") {
			if s = strings.TrimSpace(s); s != "" {
				keys = append(keys, s)
			}
		}
		if len(keys) == 0 {
			return nil, errors.New("-sites lists no site keys")
		}
		return keys, nil
	case site != "":
		return []string{site}, nil
	default:
		return nil, errors.New("one of -site, -sites, or -all-sites is required")
	}
}

// runCrawl handles both crawl and resume subcommands
func runCrawl(args []string, isResume bool) {
	cmdName := "crawl"
	if isResume {
		cmdName = "resume"
	}

	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	siteKey := fs.String("site", "", "Site key from config (single site)")
	sites := fs.String("sites", "", "Comma-separated site keys for parallel crawling")
	allSites := fs.Bool("all-sites", false, "Crawl all configured sites in parallel")
	profile := fs.String("profile", "", "Force a profile (basic, configurable, performance, format)")
	timeout := fs.Duration("timeout", 0, "Global crawl timeout, e.g. 30m (0 = none)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: doc2md %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  doc2md %s -site go_docs\n", cmdName)
		fmt.Fprintf(os.Stderr, "  doc2md %s -sites go_docs,k8s_docs -profile format\n", cmdName)
		fmt.Fprintf(os.Stderr, "  doc2md %s -all-sites\n", cmdName)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	keys, err := parseSiteKeys(*siteKey, *sites, *allSites)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	var forced models.Profile
	if *profile != "" {
		p, ok := models.ParseProfile(*profile)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown profile '%s'\n", *profile)
			os.Exit(1)
		}
		forced = p
	}

	log := setupLogger(*logLevel)
	startPprof(*pprofAddr, log)

	ctx, cancel := rootContext(*timeout, log)
	defer cancel()

	os.Exit(doCrawl(ctx, *configFile, keys, orchestrate.Options{Resume: isResume, Profile: forced}, log))
}

// doCrawl runs the orchestrator over keys (all sites when keys is nil).
// Returns exit code (0 = every site succeeded, 1 = otherwise).
func doCrawl(ctx context.Context, configPath string, keys []string, opts orchestrate.Options, log *logrus.Logger) int {
	log.Infof("Loading configuration from %s", configPath)
	appCfg, err := loadConfig(configPath)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}

	if keys == nil {
		keys = orchestrate.GetAllSiteKeys(appCfg)
		log.Infof("All sites mode: found %d sites", len(keys))
	}
	if err := orchestrate.ValidateSiteKeys(appCfg, keys); err != nil {
		log.Errorf("Invalid site keys: %v", err)
		return 1
	}

	orch := orchestrate.NewOrchestrator(appCfg, opts, log.WithField("component", "crawl"))
	results := orch.Run(ctx, keys)

	exitCode := 0
	for _, r := range results {
		if !r.Success {
			exitCode = 1
		}
	}
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Error("Crawl timed out (global timeout).")
			return 1
		}
		log.Warn("Crawl cancelled.")
	}
	return exitCode
}

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	siteKey := fs.String("site", "", "Site key from config (single site)")
	sites := fs.String("sites", "", "Comma-separated site keys")
	allSites := fs.Bool("all-sites", false, "Watch all configured sites")
	interval := fs.String("interval", "24h", "Crawl interval (e.g., 30m, 1h, 24h, 7d)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: doc2md watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  doc2md watch -site go_docs -interval 24h\n")
		fmt.Fprintf(os.Stderr, "  doc2md watch -all-sites -interval 7d\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	keys, err := parseSiteKeys(*siteKey, *sites, *allSites)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}
	every, err := watch.ParseInterval(*interval)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	ctx, cancel := rootContext(0, log)
	defer cancel()

	os.Exit(doWatch(ctx, *configFile, keys, every, log))
}

// doWatch re-crawls keys (all sites when nil) every interval until ctx is done.
// Scheduled runs reuse the persisted page cache.
func doWatch(ctx context.Context, configPath string, keys []string, interval time.Duration, log *logrus.Logger) int {
	log.Infof("Loading configuration from %s", configPath)
	appCfg, err := loadConfig(configPath)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	if keys == nil {
		keys = orchestrate.GetAllSiteKeys(appCfg)
	}
	if err := orchestrate.ValidateSiteKeys(appCfg, keys); err != nil {
		log.Errorf("Invalid site keys: %v", err)
		return 1
	}

	entry := log.WithField("component", "watch")
	orch := orchestrate.NewOrchestrator(appCfg, orchestrate.Options{Resume: true}, entry)
	scheduler := watch.NewScheduler(keys, interval, orch.Config().StateDir, watch.OrchestratorCrawl(orch), entry)
	if err := scheduler.Run(ctx); err != nil {
		log.Errorf("Watch scheduler error: %v", err)
		return 1
	}
	return 0
}

// runAnalyze handles the analyze subcommand
func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	siteKey := fs.String("site", "", "Site key from config")
	rawURL := fs.String("url", "", "Analyze an arbitrary URL instead of a configured site")
	navSelector := fs.String("nav", "nav", "Navigation selector used with -url")
	format := fs.String("format", "yaml", "Output format (yaml, json)")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: doc2md analyze [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)

	ctx, cancel := rootContext(0, log)
	defer cancel()

	os.Exit(doAnalyze(ctx, *configFile, *siteKey, *rawURL, *navSelector, *format, log, os.Stdout, os.Stderr))
}

// doAnalyze analyzes one site or URL and prints the analysis.
// Returns exit code (0 = success, 1 = error).
func doAnalyze(ctx context.Context, configPath, siteKey, rawURL, navSelector, format string, log *logrus.Logger, stdout, stderr io.Writer) int {
	if siteKey == "" && rawURL == "" {
		fmt.Fprintln(stderr, "Error: one of -site or -url is required")
		return 1
	}
	if format != "yaml" && format != "json" {
		fmt.Fprintf(stderr, "Error: unknown format '%s' (supported: yaml, json)\n", format)
		return 1
	}

	var appCfg config.AppConfig
	if siteKey != "" {
		var err error
		if appCfg, err = loadConfig(configPath); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	orch := orchestrate.NewOrchestrator(appCfg, orchestrate.Options{}, log.WithField("component", "analyze"))

	var (
		analysis models.SiteAnalysis
		err      error
	)
	if siteKey != "" {
		analysis, err = orch.AnalyzeSite(ctx, siteKey)
	} else {
		analysis, err = orch.AnalyzeURL(ctx, rawURL, navSelector)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(analysis)
	} else {
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		err = enc.Encode(analysis)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	siteKey := fs.String("site", "", "Site key to validate (optional, validates all if empty)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: doc2md validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, *siteKey, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, siteKey string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	appCfg, warnings := appCfg.WithDefaults()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err := appCfg.Pipeline.Validate(); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	if siteKey != "" {
		siteCfg, ok := appCfg.Sites[siteKey]
		if !ok {
			fmt.Fprintf(stderr, "Error: site '%s' not found in config\n", siteKey)
			return 1
		}
		_, siteWarnings, err := siteCfg.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", siteKey, err)
			return 1
		}
		for _, w := range siteWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", siteKey, w)
		}
		fmt.Fprintf(stdout, "OK: Site '%s' configuration is valid\n", siteKey)
	} else {
		if len(appCfg.Sites) == 0 {
			fmt.Fprintln(stderr, "ERROR: no sites configured")
			return 1
		}
		hasError := false
		for _, key := range orchestrate.GetAllSiteKeys(appCfg) {
			_, siteWarnings, err := appCfg.Sites[key].Validate()
			if err != nil {
				fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
				hasError = true
				continue
			}
			for _, w := range siteWarnings {
				fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
			}
			fmt.Fprintf(stdout, "OK: [%s]\n", key)
		}
		if hasError {
			return 1
		}
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runListSites handles the list-sites subcommand
func runListSites(args []string) {
	fs := flag.NewFlagSet("list-sites", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: doc2md list-sites [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doListSites(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doListSites lists sites and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doListSites(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	keys := make([]string, 0, len(appCfg.Sites))
	for k := range appCfg.Sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(stdout, "Sites in %s:\n\n", configPath)
	for _, key := range keys {
		site := appCfg.Sites[key]
		fmt.Fprintf(stdout, "  %s\n", key)
		fmt.Fprintf(stdout, "    Base URL: %s\n", site.BaseURL)
		if site.NavSelector != "" {
			fmt.Fprintf(stdout, "    Nav: %s\n", site.NavSelector)
		}
		if site.ContentSelector != "" && site.ContentSelector != "auto" {
			fmt.Fprintf(stdout, "    Content: %s\n", site.ContentSelector)
		}
		if site.Profile != "" {
			fmt.Fprintf(stdout, "    Profile: %s\n", site.Profile)
		}
		fmt.Fprintln(stdout)
	}
	return 0
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}

	return log
}

// rootContext returns a context cancelled by SIGINT/SIGTERM or the optional timeout.
// A second signal forces exit.
func rootContext(timeout time.Duration, log *logrus.Logger) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		log.Infof("Setting global crawl timeout: %v", timeout)
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, log *logrus.Logger) {
	if addr != "" {
		go func() {
			log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}
}
