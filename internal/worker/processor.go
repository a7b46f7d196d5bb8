package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/feature"
	"github.com/birbparty/birb-feathers/internal/queue"
	"github.com/birbparty/birb-feathers/internal/telemetry"
)

// Store is the durable write surface the processor depends on.
type Store interface {
	WriteFeatures(ctx context.Context, writes []database.FeatureWrite) error
}

// Invalidator drops cached keys by glob pattern.
type Invalidator interface {
	Invalidate(ctx context.Context, pattern string) (int, error)
}

// action is the disposition of one consumed message.
type action int

const (
	actionAck action = iota
	actionNak
	actionDLQ
)

// Processor consumes ingest and invalidation messages and applies them to
// the durable store and cache tier.
type Processor struct {
	config      *Config
	store       Store
	invalidator Invalidator
	queueClient *queue.Client
	dlqHandler  *queue.DLQHandler
	metrics     *Metrics
}

// NewProcessor creates a new message processor
func NewProcessor(config *Config, store Store, invalidator Invalidator, queueClient *queue.Client, metrics *Metrics) *Processor {
	return &Processor{
		config:      config,
		store:       store,
		invalidator: invalidator,
		queueClient: queueClient,
		dlqHandler:  queue.NewDLQHandler(queueClient),
		metrics:     metrics,
	}
}

// Start begins consuming messages and blocks until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	telemetry.L().WithField("worker_id", p.config.WorkerID).Info("Worker starting")

	queueConfig := p.queueClient.GetConfig()
	if _, err := p.queueClient.CreateConsumer(queueConfig.StreamName, queueConfig.ConsumerName); err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sub, err := p.queueClient.PullSubscribe(queueConfig.StreamName, queueConfig.ConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	go func() {
		if err := p.dlqHandler.ProcessDLQ(ctx); err != nil && !errors.Is(err, context.Canceled) {
			telemetry.WithError(err).Error("DLQ processor stopped")
		}
	}()

	metricsTicker := time.NewTicker(p.config.MetricsInterval)
	defer metricsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			telemetry.L().Info("Worker shutting down")
			return nil
		case <-metricsTicker.C:
			p.reportMetrics()
		default:
			msgs, err := sub.Fetch(p.config.BatchSize, nats.MaxWait(p.config.FetchTimeout))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				if errors.Is(err, nats.ErrConnectionClosed) {
					return fmt.Errorf("connection closed: %w", err)
				}
				telemetry.WithError(err).Warn("Fetch failed")
				continue
			}

			for _, msg := range msgs {
				p.dispatch(ctx, msg)
			}
		}
	}
}

// dispatch processes one message and applies its disposition.
func (p *Processor) dispatch(ctx context.Context, msg *nats.Msg) {
	span := p.startConsumeSpan(msg)
	act, err := p.processMessage(ctx, msg)
	if err != nil {
		span.SetTag("error", err)
		telemetry.WithError(err).WithField("subject", msg.Subject).Warn("Message processing failed")
	}
	span.Finish()

	switch act {
	case actionAck:
		if err := msg.Ack(); err != nil {
			telemetry.WithError(err).Warn("Ack failed")
		}
	case actionNak:
		if err := msg.Nak(); err != nil {
			telemetry.WithError(err).Warn("Nak failed")
		}
	case actionDLQ:
		if dlqErr := p.dlqHandler.SendToDLQ(ctx, msg, err); dlqErr != nil {
			telemetry.WithError(dlqErr).Error("DLQ publish failed")
			msg.Nak()
			return
		}
		msg.Ack()
	}
}

// processMessage applies one message. Transient failures NAK for JetStream
// redelivery; permanent ones go to the DLQ.
func (p *Processor) processMessage(ctx context.Context, msg *nats.Msg) (action, error) {
	switch msg.Subject {
	case queue.SubjectIngest:
		return p.processIngest(ctx, msg.Data)
	case queue.SubjectInvalidate:
		return p.processInvalidation(ctx, msg.Data)
	default:
		p.metrics.RecordError("unknown_subject")
		return actionDLQ, fmt.Errorf("unknown subject %s", msg.Subject)
	}
}

func (p *Processor) processIngest(ctx context.Context, data []byte) (action, error) {
	msg, err := queue.UnmarshalIngestMessage(data)
	if err != nil {
		p.metrics.RecordError("malformed_ingest")
		telemetry.RecordMessageProcessed(queue.SubjectIngest, "malformed")
		return actionDLQ, fmt.Errorf("malformed ingest message: %w", err)
	}

	writes := make([]database.FeatureWrite, len(msg.Rows))
	for i, row := range msg.Rows {
		writes[i] = database.FeatureWrite{
			FeatureID: row.FeatureID,
			EntityID:  row.EntityID,
			Timestamp: row.Timestamp,
			Value:     row.Value,
			Metadata:  row.Metadata,
		}
	}

	if err := p.store.WriteFeatures(ctx, writes); err != nil {
		var verr *feature.ValidationError
		if errors.As(err, &verr) {
			p.metrics.RecordError("invalid_ingest")
			telemetry.RecordMessageProcessed(queue.SubjectIngest, "invalid")
			return actionDLQ, err
		}
		// The whole batch rolled back; redelivery retries it verbatim.
		p.metrics.RecordError("write_failed")
		telemetry.RecordMessageProcessed(queue.SubjectIngest, "retry")
		return actionNak, err
	}

	p.metrics.RecordIngest(len(writes))
	telemetry.RecordMessageProcessed(queue.SubjectIngest, "ok")
	return actionAck, nil
}

func (p *Processor) processInvalidation(ctx context.Context, data []byte) (action, error) {
	msg, err := queue.UnmarshalInvalidationMessage(data)
	if err != nil {
		p.metrics.RecordError("malformed_invalidation")
		telemetry.RecordMessageProcessed(queue.SubjectInvalidate, "malformed")
		return actionDLQ, fmt.Errorf("malformed invalidation message: %w", err)
	}
	if msg.EntityID == "" {
		p.metrics.RecordError("invalid_invalidation")
		telemetry.RecordMessageProcessed(queue.SubjectInvalidate, "invalid")
		return actionDLQ, feature.NewValidationError("entity_id is required")
	}

	count, err := p.invalidator.Invalidate(ctx, msg.EntityID+":*")
	if err != nil {
		p.metrics.RecordError("invalidate_failed")
		telemetry.RecordMessageProcessed(queue.SubjectInvalidate, "retry")
		return actionNak, err
	}

	p.metrics.RecordInvalidation(count)
	telemetry.RecordMessageProcessed(queue.SubjectInvalidate, "ok")
	return actionAck, nil
}

// startConsumeSpan continues the producer's trace from the message headers
// when present.
func (p *Processor) startConsumeSpan(msg *nats.Msg) *tracer.Span {
	opts := []tracer.StartSpanOption{
		tracer.ServiceName("birb-feathers-worker"),
		tracer.ResourceName("consume " + msg.Subject),
		tracer.SpanType("queue"),
		tracer.Tag("messaging.system", "nats"),
		tracer.Tag("messaging.destination", msg.Subject),
		tracer.Tag("messaging.operation", "receive"),
	}

	carrier := tracer.HTTPHeadersCarrier(msg.Header)
	if spanCtx, err := tracer.Extract(carrier); err == nil && spanCtx != nil {
		opts = append(opts, tracer.ChildOf(spanCtx))
	}

	return tracer.StartSpan("nats.consume", opts...)
}

func (p *Processor) reportMetrics() {
	stats := p.metrics.GetStats()
	telemetry.L().WithFields(logrus.Fields{
		"processed": stats["messages_processed"],
		"succeeded": stats["messages_succeeded"],
		"failed":    stats["messages_failed"],
		"rows":      stats["rows_written"],
	}).Info("Worker metrics")
}
