package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/orchestrate"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func docsSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Home</title></head><body>
<nav><a href="/start">Start</a></nav>
<main><h1>Home</h1><p>Welcome.</p></main></body></html>`)
	})
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Start</title></head><body>
<main><h1>Getting Started</h1><p>Install it first.</p></main></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfgPath := writeConfig(t, `
max_parallel_sites: 3
output_base_dir: "./out"
state_dir: "./state"
sites:
  test_site:
    base_url: "https://example.com/docs/"
    nav_selector: "nav.sidebar"
`)

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxParallelSites)
	require.Contains(t, cfg.Sites, "test_site")
	assert.Equal(t, "nav.sidebar", cfg.Sites["test_site"].NavSelector)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeConfig(t, "{{invalid yaml")

	_, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestParseSiteKeys(t *testing.T) {
	tests := []struct {
		name    string
		site    string
		sites   string
		all     bool
		want    []string
		wantErr bool
	}{
		{name: "single", site: "a", want: []string{"a"}},
		{name: "list trims blanks", sites: " a, ,b ", want: []string{"a", "b"}},
		{name: "list wins over single", site: "c", sites: "a", want: []string{"a"}},
		{name: "all", all: true, want: nil},
		{name: "empty list", sites: " , ", wantErr: true},
		{name: "nothing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSiteKeys(tt.site, tt.sites, tt.all)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDoValidate_AllSites(t *testing.T) {
	cfgPath := writeConfig(t, `
sites:
  site_a:
    base_url: "https://a.com/"
    nav_selector: "nav"
  site_b:
    base_url: "https://b.com/docs/"
    nav_selector: "aside"
    content_selector: "article"
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, "", &stdout, &stderr)

	assert.Equal(t, 0, exitCode, stderr.String())
	assert.Contains(t, stdout.String(), "OK: [site_a]")
	assert.Contains(t, stdout.String(), "OK: [site_b]")
	assert.Contains(t, stdout.String(), "Configuration valid")
}

func TestDoValidate_SpecificSite(t *testing.T) {
	cfgPath := writeConfig(t, `
sites:
  my_site:
    base_url: "http://example.com"
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, "my_site", &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "OK: Site 'my_site'")
	assert.Contains(t, stdout.String(), "WARN: [my_site] nav_selector is empty")
}

func TestDoValidate_SiteNotFound(t *testing.T) {
	cfgPath := writeConfig(t, `
sites:
  existing:
    base_url: "http://example.com"
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, "nonexistent", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "not found")
}

func TestDoValidate_InvalidSite(t *testing.T) {
	tests := []struct {
		name string
		site string
	}{
		{name: "missing base url", site: `base_url: ""`},
		{name: "relative base url", site: `base_url: "/docs"`},
		{name: "unknown profile", site: "base_url: \"https://x.com\"\n    profile: \"turbo\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeConfig(t, "sites:\n  bad_site:\n    "+tt.site+"\n")

			var stdout, stderr bytes.Buffer
			exitCode := doValidate(cfgPath, "bad_site", &stdout, &stderr)

			assert.Equal(t, 1, exitCode)
			assert.Contains(t, stderr.String(), "ERROR")
		})
	}
}

func TestDoValidate_NoSites(t *testing.T) {
	cfgPath := writeConfig(t, "output_base_dir: ./out\n")

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, "", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "no sites")
}

func TestDoValidate_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent.yaml", "", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestDoListSites(t *testing.T) {
	cfgPath := writeConfig(t, `
sites:
  alpha:
    base_url: "https://alpha.com/docs/"
    nav_selector: "nav.toc"
    content_selector: "main"
    profile: "format"
  beta:
    base_url: "https://beta.com/"
`)

	var stdout, stderr bytes.Buffer
	exitCode := doListSites(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	out := stdout.String()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "Base URL: https://alpha.com/docs/")
	assert.Contains(t, out, "Nav: nav.toc")
	assert.Contains(t, out, "Content: main")
	assert.Contains(t, out, "Profile: format")
	assert.Less(t, bytes.Index(stdout.Bytes(), []byte("alpha")), bytes.Index(stdout.Bytes(), []byte("beta")))
}

func TestDoListSites_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doListSites("/nonexistent.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestDoAnalyze_URL(t *testing.T) {
	srv := docsSite(t)

	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			exitCode := doAnalyze(context.Background(), "", "", srv.URL+"/", "nav", format, quietLogger(), &stdout, &stderr)
			require.Equal(t, 0, exitCode, stderr.String())

			var analysis models.SiteAnalysis
			if format == "json" {
				require.NoError(t, json.Unmarshal(stdout.Bytes(), &analysis))
			} else {
				require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &analysis))
			}
			assert.Equal(t, 1, analysis.EstimatedPages)
			assert.True(t, analysis.RecommendedProfile.IsValid())
			assert.Empty(t, analysis.ProbeError)
		})
	}
}

func TestDoAnalyze_ConfiguredSite(t *testing.T) {
	srv := docsSite(t)
	cfgPath := writeConfig(t, fmt.Sprintf(`
output_base_dir: %q
state_dir: %q
sites:
  docs:
    base_url: %q
    nav_selector: "nav"
`, t.TempDir(), t.TempDir(), srv.URL+"/"))

	var stdout, stderr bytes.Buffer
	exitCode := doAnalyze(context.Background(), cfgPath, "docs", "", "", "yaml", quietLogger(), &stdout, &stderr)

	require.Equal(t, 0, exitCode, stderr.String())
	assert.Contains(t, stdout.String(), "recommended_profile:")
	assert.Contains(t, stdout.String(), "estimated_pages: 1")
}

func TestDoAnalyze_BadArguments(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, doAnalyze(context.Background(), "", "", "", "nav", "yaml", quietLogger(), &stdout, &stderr))
	assert.Contains(t, stderr.String(), "-site or -url")

	stderr.Reset()
	assert.Equal(t, 1, doAnalyze(context.Background(), "", "", "https://x.com", "nav", "xml", quietLogger(), &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown format")

	stderr.Reset()
	assert.Equal(t, 1, doAnalyze(context.Background(), "", "", "not a url", "nav", "yaml", quietLogger(), &stdout, &stderr))
	assert.NotEmpty(t, stderr.String())
}

func TestDoCrawl(t *testing.T) {
	srv := docsSite(t)
	outDir := t.TempDir()
	cfgPath := writeConfig(t, fmt.Sprintf(`
output_base_dir: %q
state_dir: %q
sites:
  docs:
    base_url: %q
    nav_selector: "nav"
    content_selector: "main"
`, outDir, t.TempDir(), srv.URL+"/"))

	exitCode := doCrawl(context.Background(), cfgPath, nil, orchestrate.Options{}, quietLogger())
	require.Equal(t, 0, exitCode)

	doc, err := os.ReadFile(filepath.Join(outDir, "docs", "document.md"))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "Getting Started")
	assert.Contains(t, string(doc), "Install it first.")
}

func TestDoCrawl_Failures(t *testing.T) {
	t.Run("unknown site key", func(t *testing.T) {
		cfgPath := writeConfig(t, "sites:\n  docs:\n    base_url: \"https://x.com\"\n")
		assert.Equal(t, 1, doCrawl(context.Background(), cfgPath, []string{"nope"}, orchestrate.Options{}, quietLogger()))
	})

	t.Run("missing config", func(t *testing.T) {
		assert.Equal(t, 1, doCrawl(context.Background(), "/nonexistent.yaml", nil, orchestrate.Options{}, quietLogger()))
	})

	t.Run("invalid site fails run", func(t *testing.T) {
		cfgPath := writeConfig(t, fmt.Sprintf(`
output_base_dir: %q
state_dir: %q
sites:
  broken:
    base_url: "ftp://files.example.com"
`, t.TempDir(), t.TempDir()))
		assert.Equal(t, 1, doCrawl(context.Background(), cfgPath, []string{"broken"}, orchestrate.Options{}, quietLogger()))
	})
}

func TestDoWatch_StopsWithContext(t *testing.T) {
	srv := docsSite(t)
	stateDir := t.TempDir()
	cfgPath := writeConfig(t, fmt.Sprintf(`
output_base_dir: %q
state_dir: %q
sites:
  docs:
    base_url: %q
    nav_selector: "nav"
`, t.TempDir(), stateDir, srv.URL+"/"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- doWatch(ctx, cfgPath, nil, time.Hour, quietLogger()) }()

	statePath := filepath.Join(stateDir, "watch_state.yaml")
	require.Eventually(t, func() bool {
		_, err := os.Stat(statePath)
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "docs:")
	assert.Contains(t, string(data), "last_run_success: true")
}

func TestDoWatch_UnknownSite(t *testing.T) {
	cfgPath := writeConfig(t, "sites:\n  docs:\n    base_url: \"https://x.com\"\n")
	assert.Equal(t, 1, doWatch(context.Background(), cfgPath, []string{"nope"}, time.Hour, quietLogger()))
}

func TestDoMcpServer_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, doMcpServer("/nonexistent.yaml", "stdio", 0, "info", &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Error loading config")

	stderr.Reset()
	assert.Equal(t, 1, doMcpServer("/nonexistent.yaml", "stdio", 0, "loud", &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Invalid log level")

	stderr.Reset()
	cfgPath := writeConfig(t, "output_base_dir: ./out\n")
	assert.Equal(t, 1, doMcpServer(cfgPath, "stdio", 0, "info", &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Error creating MCP server")

	stderr.Reset()
	cfgPath = writeConfig(t, "sites:\n  docs:\n    base_url: \"https://x.com\"\n")
	assert.Equal(t, 1, doMcpServer(cfgPath, "carrier-pigeon", 0, "info", &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown transport")
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	for _, cmd := range []string{"crawl", "resume", "watch", "analyze", "validate", "list-sites", "mcp-server", "version"} {
		assert.Contains(t, out, cmd)
	}
}
