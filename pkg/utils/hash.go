package utils

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ContentHash returns a stable 16-hex-digit xxhash of content
func ContentHash(content string) string {
	sum := xxhash.Sum64String(content)
	s := strconv.FormatUint(sum, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}
