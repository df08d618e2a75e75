package object

import (
	"context"
	"io"
)

// Store saves and retrieves binary objects by key. Reports downloaded from
// BridgeIQ are written through Put; images to submit are read through Open.
type Store interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
