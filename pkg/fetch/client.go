package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// NewClient creates a new HTTP client based on the provided configuration.
// An empty proxyURL falls back to the environment proxy settings.
func NewClient(cfg config.HTTPClientConfig, proxyURL string, log *logrus.Entry) (*http.Client, error) {
	proxy := http.ProxyFromEnvironment
	if proxyURL != "" {
		pu, err := url.Parse(proxyURL)
		if err != nil || pu.Host == "" {
			return nil, fmt.Errorf("%w: invalid proxy_url '%s'", utils.ErrConfigValidation, proxyURL)
		}
		proxy = http.ProxyURL(pu)
		log.WithField("proxy", pu.Redacted()).Info("Using explicit proxy")
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  proxy,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		MaxResponseHeaderBytes: 1 << 20,
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}, nil
}
