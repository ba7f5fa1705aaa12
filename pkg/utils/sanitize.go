package utils

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`) // Characters invalid in Windows/Unix filenames
var consecutiveUnderscores = regexp.MustCompile(`_+`)
const maxFilenameLength = 100

// SanitizeFilename cleans a string to be safe for use as a filename component
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_ ")

	if len(sanitized) > maxFilenameLength {
		sanitized = strings.Trim(sanitized[:maxFilenameLength], "_ ")
	}

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// SiteSlug derives a filesystem-safe name for a site from its base URL,
// e.g. "https://docs.example.com/v2/" becomes "docs.example.com_v2"
func SiteSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return SanitizeFilename(rawURL)
	}
	p := strings.Trim(path.Clean("/"+u.Path), "/")
	if p == "" {
		return SanitizeFilename(u.Hostname())
	}
	return SanitizeFilename(u.Hostname() + "_" + strings.ReplaceAll(p, "/", "_"))
}
