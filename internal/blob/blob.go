// Package blob defines the boundary to the object store holding attachment
// bytes. Metadata stays in the data store; only the opaque locator crosses
// this boundary.
package blob

import (
	"context"
	"io"
)

// Store uploads and removes attachment blobs by locator path.
type Store interface {
	// Upload writes the bytes under path and returns the size written.
	Upload(ctx context.Context, path string, r io.Reader) (int64, error)
	// Remove deletes the blob. Removing a missing blob is not an error.
	Remove(ctx context.Context, path string) error
	// URL returns a fetchable URL for the blob.
	URL(path string) string
}
