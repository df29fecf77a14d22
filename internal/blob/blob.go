// Package blob stores uploaded invoice documents. Keys are opaque
// strings assigned by the caller; the local filesystem adapter is the
// only implementation for now.
package blob

import (
	"context"
	"io"
)

type Store interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
