// Package events publishes crawl cycle completion notifications.
// The abstraction keeps the crawler independent of a specific message bus
// (GCP Pub/Sub in production, nothing in local runs).
package events

import (
	"context"

	"github.com/replyrank/crawler/internal/crawl"
)

// NoOpPublisher drops all events. Used when no topic is configured.
type NoOpPublisher struct{}

// Publish for NoOpPublisher does nothing and returns nil.
func (NoOpPublisher) Publish(_ context.Context, _ crawl.CycleSummary) error { return nil }

// Close for NoOpPublisher does nothing and returns nil.
func (NoOpPublisher) Close() error { return nil }
