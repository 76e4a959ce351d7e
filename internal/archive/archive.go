// Package archive defines the interfaces for raw API page archival.
// This abstraction keeps the crawler independent of a specific blob storage
// implementation (Google Cloud Storage, the local filesystem, or nothing).
package archive

import "context"

// Provider saves raw response bodies under an object name.
type Provider interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider discards everything. It is the default when no bucket is
// configured: archival is a debugging aid, never a requirement.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (NoOpProvider) Save(_ context.Context, _ string, _ []byte) error { return nil }
