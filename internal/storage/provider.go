// Package storage defines the blob store contract used to archive raw catalog
// payloads. Backends live in the gcs, local and memory subpackages.
package storage

import (
	"context"
)

// Provider writes one object and returns its URI.
type Provider interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}
