// Package blob stores input tables, transformed images and result tables,
// addressing every object by URL.
package blob

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrFetch  = errors.New("blob fetch failed")
	ErrUpload = errors.New("blob upload failed")
)

type Store interface {
	// Get returns the bytes behind url, wrapping failures in ErrFetch.
	Get(ctx context.Context, url string) ([]byte, error)
	// Put stores data under key and returns a durable URL, wrapping failures in ErrUpload.
	Put(ctx context.Context, data []byte, contentType, key string) (string, error)
}

// KeySegment makes an arbitrary string safe to use as one object key segment.
func KeySegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
