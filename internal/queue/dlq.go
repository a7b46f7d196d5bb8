package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/birb-feathers/internal/feature"
	"github.com/birbparty/birb-feathers/internal/telemetry"
)

// DLQHandler handles dead letter queue operations
type DLQHandler struct {
	client *Client
	config *Config
}

// NewDLQHandler creates a new DLQ handler
func NewDLQHandler(client *Client) *DLQHandler {
	return &DLQHandler{
		client: client,
		config: client.config,
	}
}

// SendToDLQ sends a failed message to the dead letter queue
func (h *DLQHandler) SendToDLQ(ctx context.Context, originalMsg *nats.Msg, cause error) error {
	retries := 0
	if retriesStr := originalMsg.Header.Get("X-Retries"); retriesStr != "" {
		fmt.Sscanf(retriesStr, "%d", &retries)
	}

	dlqMsg := &DLQMessage{
		OriginalMessage: originalMsg.Data,
		OriginalSubject: originalMsg.Subject,
		Error:           cause.Error(),
		FailedAt:        time.Now().UTC(),
		Retries:         retries,
		MaxRetries:      h.config.DLQMaxRetries,
	}

	data, err := dlqMsg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	headers := nats.Header{}
	headers.Set("X-Original-Subject", originalMsg.Subject)
	headers.Set("X-Failed-At", dlqMsg.FailedAt.Format(time.RFC3339))
	headers.Set("X-Retries", fmt.Sprintf("%d", retries))

	msg := &nats.Msg{
		Subject: SubjectDLQ,
		Data:    data,
		Header:  headers,
	}

	pubAck, err := h.client.js.PublishMsgAsync(msg)
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	select {
	case <-pubAck.Ok():
		telemetry.RecordDLQMessage(originalMsg.Subject)
		return nil
	case err := <-pubAck.Err():
		return fmt.Errorf("DLQ publish failed: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessDLQ re-drives DLQ messages back onto their original subjects with
// backoff, until MaxRetries is exhausted.
func (h *DLQHandler) ProcessDLQ(ctx context.Context) error {
	consumerName := fmt.Sprintf("%s-dlq", h.config.ConsumerName)
	if _, err := h.client.CreateConsumer(h.config.DLQStreamName, consumerName); err != nil {
		return fmt.Errorf("failed to create DLQ consumer: %w", err)
	}

	sub, err := h.client.js.PullSubscribe(
		SubjectDLQ,
		consumerName,
		nats.ManualAck(),
		nats.Bind(h.config.DLQStreamName, consumerName),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to DLQ: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				return fmt.Errorf("failed to fetch DLQ messages: %w", err)
			}

			for _, msg := range msgs {
				if err := h.processDLQMessage(ctx, msg); err != nil {
					telemetry.WithError(err).Warn("DLQ message not redelivered")
					msg.Nak()
				} else {
					msg.Ack()
				}
			}
		}
	}
}

func (h *DLQHandler) processDLQMessage(ctx context.Context, msg *nats.Msg) error {
	dlqMsg, err := UnmarshalDLQMessage(msg.Data)
	if err != nil {
		return fmt.Errorf("failed to unmarshal DLQ message: %w", err)
	}

	if dlqMsg.Retries >= dlqMsg.MaxRetries {
		telemetry.L().WithFields(logrus.Fields{
			"subject": dlqMsg.OriginalSubject,
			"retries": dlqMsg.Retries,
		}).Error("Message exceeded max retries, dropping")
		return nil
	}

	nextRetryTime := dlqMsg.FailedAt.Add(h.config.DLQRetryInterval * time.Duration(dlqMsg.Retries+1))
	if time.Now().Before(nextRetryTime) {
		return fmt.Errorf("not ready for retry, next retry at %v", nextRetryTime)
	}

	return h.retryOriginalMessage(ctx, dlqMsg)
}

func (h *DLQHandler) retryOriginalMessage(ctx context.Context, dlqMsg *DLQMessage) error {
	switch dlqMsg.OriginalSubject {
	case SubjectIngest, SubjectInvalidate:
	default:
		return fmt.Errorf("unknown original subject: %s", dlqMsg.OriginalSubject)
	}

	headers := nats.Header{}
	headers.Set("X-Retries", fmt.Sprintf("%d", dlqMsg.Retries+1))
	headers.Set("X-DLQ-Retry", "true")

	msg := &nats.Msg{
		Subject: dlqMsg.OriginalSubject,
		Data:    dlqMsg.OriginalMessage,
		Header:  headers,
	}

	pubAck, err := h.client.js.PublishMsgAsync(msg)
	if err != nil {
		return fmt.Errorf("failed to retry message: %w", err)
	}

	select {
	case <-pubAck.Ok():
		telemetry.L().WithFields(logrus.Fields{
			"subject": dlqMsg.OriginalSubject,
			"attempt": dlqMsg.Retries + 1,
		}).Info("DLQ message redelivered")
		return nil
	case err := <-pubAck.Err():
		return fmt.Errorf("retry publish failed: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetDLQStats returns statistics about the DLQ
func (h *DLQHandler) GetDLQStats() (*DLQStats, error) {
	streamInfo, err := h.client.StreamInfo(h.config.DLQStreamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ stream info: %w", err)
	}

	consumerName := fmt.Sprintf("%s-dlq", h.config.ConsumerName)
	consumerInfo, err := h.client.ConsumerInfo(h.config.DLQStreamName, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ consumer info: %w", err)
	}

	return &DLQStats{
		TotalMessages:   streamInfo.State.Msgs,
		PendingMessages: consumerInfo.NumPending,
		StreamBytes:     streamInfo.State.Bytes,
		OldestMessage:   streamInfo.State.FirstTime,
		NewestMessage:   streamInfo.State.LastTime,
	}, nil
}

// DLQStats represents statistics about the DLQ
type DLQStats struct {
	TotalMessages   uint64    `json:"total_messages"`
	PendingMessages uint64    `json:"pending_messages"`
	StreamBytes     uint64    `json:"stream_bytes"`
	OldestMessage   time.Time `json:"oldest_message"`
	NewestMessage   time.Time `json:"newest_message"`
}

// IsRetryable reports whether a processing error is worth redelivering.
// Validation failures never heal on retry; everything else might.
func IsRetryable(err error) bool {
	var verr *feature.ValidationError
	return !errors.As(err, &verr)
}
