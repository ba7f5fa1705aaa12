package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

func TestRobotsHandler_TestAgent(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	rh := NewRobotsHandler(NewFetcher(testClient(), testPolicy(0), testLogger()), "doc2md-test", testLogger())

	allowed, _ := url.Parse(server.URL + "/docs/intro")
	blocked, _ := url.Parse(server.URL + "/private/secret")

	if !rh.TestAgent(context.Background(), allowed) {
		t.Error("expected /docs/intro to be allowed")
	}
	if rh.TestAgent(context.Background(), blocked) {
		t.Error("expected /private/secret to be disallowed")
	}
	if hits.Load() != 1 {
		t.Errorf("expected robots.txt fetched once, got %d", hits.Load())
	}
}

func TestRobotsHandler_StatusRules(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		allowed bool
	}{
		{"missing robots allows all", http.StatusNotFound, true},
		{"server error disallows all", http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := mockServer(t, []int{tt.status})
			rh := NewRobotsHandler(NewFetcher(testClient(), testPolicy(0), testLogger()), "doc2md-test", testLogger())

			u, _ := url.Parse(server.URL + "/docs/")
			if got := rh.TestAgent(context.Background(), u); got != tt.allowed {
				t.Errorf("expected allowed=%v, got %v", tt.allowed, got)
			}
		})
	}
}
