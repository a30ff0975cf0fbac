// Package processor turns intake messages into batch submissions and reindex
// requests on the review workflow.
package processor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Intake message types, read from the message_type header. Messages without
// the header are treated as submissions.
const (
	MessageTypeSubmitBatch  = "batch.submit"
	MessageTypeReindexBatch = "batch.reindex"
)

// BatchMessage is the value of a batch.submit message. The batch id falls
// back to the message key.
type BatchMessage struct {
	BatchID string                   `json:"batch_id"`
	Records []models.SourceRecord    `json:"records"`
	Config  *models.ResolutionConfig `json:"config,omitempty"`
}

// Service is the part of the review workflow the processor drives
type Service interface {
	SubmitBatch(ctx context.Context, batchID string, records []models.SourceRecord, cfg models.ResolutionConfig) (*models.Batch, *models.ResolutionResult, error)
	ReindexBatch(ctx context.Context, batchID string) (*models.ResolutionResult, error)
}

// Processor handles intake messages
type Processor struct {
	logger   ectologger.Logger
	service  Service
	defaults models.ResolutionConfig
}

// NewProcessor creates a processor. defaults applies to messages without a config.
func NewProcessor(logger ectologger.Logger, service Service, defaults models.ResolutionConfig) *Processor {
	return &Processor{
		logger:   logger,
		service:  service,
		defaults: defaults,
	}
}

// ProcessMessage handles one message. Messages that can never succeed are
// logged and dropped; other failures are returned so the message is retried.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"key":          msg.Key,
		"topic":        msg.Topic,
		"offset":       msg.Offset,
		"message_type": msg.Type(),
	})

	var err error
	switch msg.Type() {
	case "", MessageTypeSubmitBatch:
		err = p.submit(ctx, msg, log)
	case MessageTypeReindexBatch:
		err = p.reindex(ctx, msg, log)
	default:
		log.Warn("Unknown message type, skipping")
		return nil
	}

	if err == nil {
		return nil
	}
	if permanent(err) {
		log.WithError(err).Warn("Dropping message that cannot be processed")
		return nil
	}
	return fmt.Errorf("failed to process %s message: %w", msg.Key, err)
}

func (p *Processor) submit(ctx context.Context, msg *kafka.IncomingMessage, log ectologger.Logger) error {
	var body BatchMessage
	if err := msg.Decode(&body); err != nil {
		return errors.NewRecordValidationError("", "malformed batch message: %v", err)
	}
	if body.BatchID == "" {
		body.BatchID = msg.Key
	}

	cfg := p.defaults
	if body.Config != nil {
		cfg = *body.Config
	}

	batch, _, err := p.service.SubmitBatch(ctx, body.BatchID, body.Records, cfg)
	if err != nil {
		return err
	}

	log.WithFields(map[string]any{
		"batch_id": batch.ID,
		"records":  batch.RecordCount,
		"clusters": batch.ClusterCount,
	}).Info("Batch resolved from intake message")
	return nil
}

func (p *Processor) reindex(ctx context.Context, msg *kafka.IncomingMessage, log ectologger.Logger) error {
	batchID := msg.Key
	if batchID == "" {
		var body BatchMessage
		if err := msg.Decode(&body); err == nil {
			batchID = body.BatchID
		}
	}
	if batchID == "" {
		return errors.NewRecordValidationError("", "reindex message has no batch id")
	}

	result, err := p.service.ReindexBatch(ctx, batchID)
	if err != nil {
		return err
	}

	log.WithFields(map[string]any{
		"batch_id": batchID,
		"clusters": len(result.Clusters),
	}).Info("Batch reindexed from intake message")
	return nil
}

// permanent reports whether retrying err could ever succeed: client errors
// (bad config, bad records, unknown or duplicate batch) can't.
func permanent(err error) bool {
	code := httperror.GetStatusCode(errors.ToHTTPError(err))
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError
}
