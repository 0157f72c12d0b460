// Package utils holds small helpers shared by the HTTP layer.
package utils

import "strconv"

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// PageParams turns raw page and page_size query values into a bounded
// (page, size) pair: page >= 1 and 1 <= size <= maxSize.
func PageParams(rawPage, rawSize string, defSize, maxSize int) (page, size int) {
	page = max(AtoiDefault(rawPage, 1), 1)
	size = min(max(AtoiDefault(rawSize, defSize), 1), maxSize)
	return page, size
}
