// Package storage defines where uploaded files (avatars) go.
package storage

import (
	"context"
	"io"
)

// ObjectStore stores a blob under key and returns its public URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}
