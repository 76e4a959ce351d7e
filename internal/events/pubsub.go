package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/replyrank/crawler/internal/crawl"
)

// PubSubPublisher announces finalized crawl cycles on a GCP Pub/Sub topic.
// Downstream consumers (the scoring pipeline) trigger off these events
// instead of polling for new checkpoints.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSubPublisher creates a Pub/Sub client and verifies the topic exists,
// authenticating via Application Default Credentials. Extra client options let
// tests point the client at a fake server.
func NewPubSubPublisher(ctx context.Context, projectID, topicID string, logger *zap.Logger, opts ...option.ClientOption) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close pubsub client after existence check failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close pubsub client after existence check failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &PubSubPublisher{client: client, topic: topic, logger: logger}, nil
}

// Publish sends the cycle summary as JSON and waits for the server ack, so a
// finalized cycle is never silently unannounced.
func (p *PubSubPublisher) Publish(ctx context.Context, summary crawl.CycleSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal cycle summary: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"checkpoint_id": summary.CheckpointID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish cycle summary: %w", err)
	}
	return nil
}

// Close stops the topic's publish goroutines and closes the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
