package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

const defaultMaxBodyBytes = 32 << 20

// RequestConfig carries per-call request settings
type RequestConfig struct {
	UserAgent    string
	Header       http.Header
	Timeout      time.Duration // Per attempt; 0 = client timeout only
	MaxBodyBytes int64         // 0 = 32MB
}

// Fetcher performs GET requests with classification-driven retries and per-host rate limiting
type Fetcher struct {
	client    *http.Client
	policy    config.RetryPolicy
	limiter   *HostLimiter
	userAgent string
	log       *logrus.Entry
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithRateLimiter applies l before every attempt
func WithRateLimiter(l *HostLimiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithUserAgent sets the user agent used when a RequestConfig does not carry one
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// NewFetcher creates a Fetcher. The policy is copied with defaults applied.
func NewFetcher(client *http.Client, policy config.RetryPolicy, log *logrus.Entry, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: client,
		policy: policy.WithDefaults(),
		log:    log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Policy returns the fetcher's default retry policy
func (f *Fetcher) Policy() config.RetryPolicy {
	return f.policy
}

// Fetch retrieves rawURL with the fetcher's retry policy
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, reqCfg RequestConfig) (*models.FetchResult, error) {
	return f.FetchWithPolicy(ctx, rawURL, reqCfg, f.policy)
}

// FetchWithPolicy retrieves rawURL, retrying per policy. Failures are returned as *FetchError
// holding the last attempt's error, its kind and the number of attempts made.
func (f *Fetcher) FetchWithPolicy(ctx context.Context, rawURL string, reqCfg RequestConfig, policy config.RetryPolicy) (*models.FetchResult, error) {
	reqLog := f.log.WithField("url", rawURL)

	res, attempts, err := Retry(ctx, policy, reqLog, func(ctx context.Context, attempt int) (*models.FetchResult, error) {
		return f.attempt(ctx, rawURL, reqCfg, reqLog.WithField("attempt", attempt+1))
	})
	if err != nil {
		fe := &FetchError{
			Kind:     Classify(err),
			URL:      rawURL,
			Attempts: attempts,
			Err:      err,
		}
		if fe.Kind == models.ErrorKindHTTP {
			fe.StatusCode = StatusCode(err)
		}
		fe.Exhausted = attempts == policy.MaxRetries+1 && IsRetryable(err, policy)
		reqLog.WithFields(logrus.Fields{"attempts": attempts, "error_kind": fe.Kind}).Warnf("Fetch failed: %v", err)
		return nil, fe
	}

	res.Attempts = attempts
	return res, nil
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string, reqCfg RequestConfig, log *logrus.Entry) (*models.FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrParsing, err)
	}

	if reqCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, reqCfg.Timeout)
		defer cancel()
	}

	if err := f.limiter.Wait(ctx, u.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	for k, vs := range reqCfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if ua := firstNonEmpty(reqCfg.UserAgent, f.userAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		log.Debugf("Request error: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		log.WithField("status_code", resp.StatusCode).Debug("Non-2xx response")
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	limit := reqCfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}

	log.Debug("Successfully fetched")
	return &models.FetchResult{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
