package process

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/fetch"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
)

const navHome = `<html><body>
<nav class="sidebar">
  <a href="/docs/intro">Intro</a>
  <a href="docs/install/">Install</a>
  <a href="/docs/intro#top">Intro again</a>
  <a href="/docs/config?lang=en">Config</a>
  <a href="https://elsewhere.example.org/docs">External</a>
  <a href="#section">Fragment</a>
  <a href="mailto:docs@example.com">Mail</a>
  <a href="/private/secret">Private</a>
  <a href="/docs/drafts/wip">Draft</a>
</nav>
<main><a href="/docs/not-in-nav">Body link</a></main>
</body></html>`

func TestDiscoverLinks_FiltersAndOrders(t *testing.T) {
	srv := site(t, map[string]string{
		"/":           navHome,
		"/robots.txt": "User-agent: *\nDisallow: /private/\n",
	})
	f := testFetcher()
	robots := fetch.NewRobotsHandler(f, "doc2md-test", testLogger())
	d := NewNavDiscoverer(f, robots, []*regexp.Regexp{regexp.MustCompile(`/drafts/`)}, fetch.RequestConfig{}, testLogger())

	links, err := d.DiscoverLinks(context.Background(), srv.URL+"/", ".sidebar")
	require.NoError(t, err)

	assert.Equal(t, []string{
		srv.URL + "/docs/intro",
		srv.URL + "/docs/install",
		srv.URL + "/docs/config",
	}, links)
}

func TestDiscoverLinks_WithoutRobots(t *testing.T) {
	srv := site(t, map[string]string{
		"/":           navHome,
		"/robots.txt": "User-agent: *\nDisallow: /\n",
	})
	d := NewNavDiscoverer(testFetcher(), nil, nil, fetch.RequestConfig{}, testLogger())

	links, err := d.DiscoverLinks(context.Background(), srv.URL+"/", ".sidebar")
	require.NoError(t, err)
	assert.Contains(t, links, srv.URL+"/private/secret")
	assert.Contains(t, links, srv.URL+"/docs/drafts/wip")
}

func TestDiscoverLinks_FallsBackToNavElement(t *testing.T) {
	srv := site(t, map[string]string{"/": navHome})
	d := NewNavDiscoverer(testFetcher(), nil, nil, fetch.RequestConfig{}, testLogger())

	links, err := d.DiscoverLinks(context.Background(), srv.URL+"/", "aside.toc")
	require.NoError(t, err)
	assert.NotEmpty(t, links)
	assert.NotContains(t, links, srv.URL+"/docs/not-in-nav")
}

func TestDiscoverLinks_NoNavigation(t *testing.T) {
	srv := site(t, map[string]string{"/": `<html><body><p>No navigation here</p></body></html>`})
	d := NewNavDiscoverer(testFetcher(), nil, nil, fetch.RequestConfig{}, testLogger())

	links, err := d.DiscoverLinks(context.Background(), srv.URL+"/", "nav")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestDiscoverLinks_FetchFailure(t *testing.T) {
	srv := site(t, map[string]string{})
	d := NewNavDiscoverer(testFetcher(), nil, nil, fetch.RequestConfig{}, testLogger())

	_, err := d.DiscoverLinks(context.Background(), srv.URL+"/", "nav")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindHTTP, fetch.Classify(err))
}
