package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/config"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// StatusError reports a completed HTTP exchange with a non-2xx status
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.Code, e.URL)
}

func (e *StatusError) Unwrap() error { return utils.ErrHTTPStatus }

// FetchError is the failure side of a retrying fetch. Err is the last attempt's error
// and Kind its classification; callers must not re-classify.
type FetchError struct {
	Kind       models.ErrorKind
	StatusCode int // Set only when Kind is http
	URL        string
	Attempts   int
	Exhausted  bool // Every allowed attempt was spent on retryable failures
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed (%s) after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Exhausted {
		return []error{e.Err, utils.ErrRetryFailed}
	}
	return []error{e.Err}
}

// Classify maps an error to an ErrorKind. Rules, in order: connection refused, reset or host
// not found is network; anything timeout-like is timeout; an HTTP status is http; the rest is parsing.
// A *FetchError keeps the kind it was given.
func Classify(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorKindUnset
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind.IsValid() {
		return fe.Kind
	}
	if isNetworkError(err) {
		return models.ErrorKindNetwork
	}
	if isTimeoutError(err) {
		return models.ErrorKindTimeout
	}
	if StatusCode(err) != 0 {
		return models.ErrorKindHTTP
	}
	return models.ErrorKindParsing
}

// IsRetryable reports whether another attempt could succeed: the HTTP status is in the
// policy's retryable set, or the failure is network or timeout
func IsRetryable(err error, policy config.RetryPolicy) bool {
	if err == nil {
		return false
	}
	if code := StatusCode(err); code != 0 {
		return policy.IsRetryableStatus(code)
	}
	switch Classify(err) {
	case models.ErrorKindNetwork, models.ErrorKindTimeout:
		return true
	}
	return false
}

// StatusCode extracts the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

func isNetworkError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host")
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// A status response was received; its URL or text never makes it a timeout
	var se *StatusError
	if errors.As(err, &se) {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
