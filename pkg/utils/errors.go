package utils

import (
	"errors"
	"fmt"
)

// --- Sentinel Errors ---
var (
	ErrRetryFailed        = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrHTTPStatus         = errors.New("non-2xx HTTP status")              // Wrapped by fetch.StatusError
	ErrRobotsDisallowed   = errors.New("disallowed by robots.txt")
	ErrContentSelector    = errors.New("content selector not found")
	ErrParsing            = errors.New("parsing error") // Wraps specific parsing error (HTML, URL, YAML)
	ErrMarkdownConversion = errors.New("failed to convert HTML to markdown")
	ErrDiscovery          = errors.New("navigation discovery failed")
	ErrFilesystem         = errors.New("filesystem error") // Wraps os errors
	ErrDatabase           = errors.New("database error")   // Wraps badger errors
	ErrCachePersist       = errors.New("cache persist failed")
	ErrRequestCreation    = errors.New("failed to create HTTP request")
	ErrResponseBodyRead   = errors.New("failed to read response body")
	ErrConfigValidation   = errors.New("configuration validation error")
)

// WrapErrorf annotates err with a formatted message, keeping it matchable with errors.Is
// Returns nil when err is nil
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
