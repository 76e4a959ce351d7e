package archive

import (
	"context"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSClientFactory builds GCS clients; injected so tests can supply a client
// pointed at a fake server.
type GCSClientFactory interface {
	NewClient(ctx context.Context) (*storage.Client, error)
}

// DefaultGCSClientFactory creates real clients using Application Default
// Credentials.
type DefaultGCSClientFactory struct{}

// NewClient returns a GCS client authenticated via ADC.
func (DefaultGCSClientFactory) NewClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return client, nil
}

// GCSProvider archives raw API pages into a GCS bucket.
type GCSProvider struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewGCSProvider initializes a GCS client and verifies the bucket is
// reachable, failing fast on misconfiguration.
func NewGCSProvider(ctx context.Context, bucket, prefix string, factory GCSClientFactory, logger *zap.Logger) (*GCSProvider, error) {
	client, err := factory.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close GCS client after attrs failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucket, err)
	}
	return &GCSProvider{client: client, bucket: bucket, prefix: prefix, logger: logger}, nil
}

// Save uploads data to the bucket under prefix/objectName.
func (g *GCSProvider) Save(ctx context.Context, objectName string, data []byte) error {
	name := objectName
	if g.prefix != "" {
		name = path.Join(g.prefix, objectName)
	}
	wc := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	wc.ContentType = "application/json"
	if _, err := wc.Write(data); err != nil {
		if cerr := wc.Close(); cerr != nil {
			g.logger.Warn("close GCS writer after write failure", zap.Error(cerr))
		}
		return fmt.Errorf("write GCS object %s: %w", name, err)
	}
	// Close finalizes the upload; until then nothing is durable.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close GCS writer for object %s: %w", name, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSProvider) Close() error {
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}
