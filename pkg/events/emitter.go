// Package events publishes cluster lifecycle changes to Kafka
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Publisher writes a keyed JSON message
type Publisher interface {
	Publish(ctx context.Context, key string, value any, headers map[string]string) error
}

// Emitter turns cluster changes into ClusterEvents
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// Notify publishes change keyed by cluster id
func (e *Emitter) Notify(ctx context.Context, change models.ClusterChange) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Notify")
	defer span.End()

	event := NewClusterEvent(change, tracing.GetTraceID(ctx))
	headers := map[string]string{
		"event_type":     string(change.Type),
		"batch_id":       change.Cluster.BatchID,
		"schema_version": SchemaVersion,
	}

	if err := e.publisher.Publish(ctx, change.Cluster.ID, event, headers); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"cluster_id": change.Cluster.ID,
			"event_type": string(change.Type),
		}).Error("Failed to emit cluster event")
		return err
	}

	return nil
}
