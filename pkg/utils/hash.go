package utils

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// HashString returns a fixed-width hex digest of input.
func HashString(input string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(input))
}

// CacheKey builds a namespaced key such as "embed:text-embedding-3-small:3f2a...".
// The last part is hashed so arbitrary text is safe to use as a key.
func CacheKey(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	prefix := parts[:len(parts)-1]
	last := HashString(parts[len(parts)-1])
	if len(prefix) == 0 {
		return last
	}
	return strings.Join(prefix, ":") + ":" + last
}
