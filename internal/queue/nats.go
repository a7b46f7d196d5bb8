package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/birbparty/birb-feathers/internal/telemetry"
)

// Client represents a NATS JetStream client
type Client struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config *Config
}

// NewClient creates a new NATS JetStream client
func NewClient(config *Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				telemetry.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			telemetry.L().WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			telemetry.WithError(err).Error("NATS error")
		}),
	}

	if config.User != "" && config.Password != "" {
		opts = append(opts, nats.UserInfo(config.User, config.Password))
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &Client{
		nc:     nc,
		js:     js,
		config: config,
	}

	if err := client.initializeStreams(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize streams: %w", err)
	}

	return client, nil
}

// initializeStreams creates the necessary JetStream streams
func (c *Client) initializeStreams() error {
	// Duplicates window backs publisher-side dedup via Msg-Id.
	mainStreamConfig := &nats.StreamConfig{
		Name:        c.config.StreamName,
		Description: "Feature ingest stream",
		Subjects:    []string{SubjectIngest, SubjectInvalidate},
		Retention:   nats.LimitsPolicy,
		MaxAge:      c.config.StreamMaxAge,
		MaxBytes:    c.config.StreamMaxBytes,
		MaxMsgs:     c.config.StreamMaxMsgs,
		MaxMsgSize:  c.config.StreamMaxMsgSize,
		Replicas:    c.config.StreamReplicas,
		Duplicates:  5 * time.Minute,
		NoAck:       false,
		Storage:     nats.FileStorage,
	}

	_, err := c.js.AddStream(mainStreamConfig)
	if err != nil {
		_, err = c.js.UpdateStream(mainStreamConfig)
		if err != nil {
			return fmt.Errorf("failed to create/update ingest stream: %w", err)
		}
	}

	dlqStreamConfig := &nats.StreamConfig{
		Name:        c.config.DLQStreamName,
		Description: "Feature ingest DLQ stream",
		Subjects:    []string{SubjectDLQ},
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    c.config.StreamMaxBytes / 10,
		MaxMsgs:     c.config.StreamMaxMsgs / 10,
		MaxMsgSize:  c.config.StreamMaxMsgSize,
		Replicas:    c.config.StreamReplicas,
		NoAck:       false,
		Storage:     nats.FileStorage,
	}

	_, err = c.js.AddStream(dlqStreamConfig)
	if err != nil {
		_, err = c.js.UpdateStream(dlqStreamConfig)
		if err != nil {
			return fmt.Errorf("failed to create/update DLQ stream: %w", err)
		}
	}

	return nil
}

// PublishIngest publishes a feature ingest batch.
func (c *Client) PublishIngest(ctx context.Context, msg *IngestMessage) error {
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal ingest message: %w", err)
	}
	return c.publish(ctx, SubjectIngest, data, msg.ID)
}

// PublishInvalidation publishes a cache invalidation request.
func (c *Client) PublishInvalidation(ctx context.Context, msg *InvalidationMessage) error {
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}
	return c.publish(ctx, SubjectInvalidate, data, msg.ID)
}

func (c *Client) publish(ctx context.Context, subject string, data []byte, msgID string) error {
	pubAck, err := c.js.PublishAsync(subject, data, nats.MsgId(msgID))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	select {
	case <-pubAck.Ok():
		return nil
	case err := <-pubAck.Err():
		return fmt.Errorf("publish to %s failed: %w", subject, err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateConsumer creates a durable consumer for processing messages
func (c *Client) CreateConsumer(streamName, consumerName string) (*nats.ConsumerInfo, error) {
	consumerConfig := &nats.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       c.config.ConsumerAckWait,
		MaxDeliver:    c.config.ConsumerMaxDeliver,
		MaxAckPending: c.config.ConsumerMaxAckPending,
		ReplayPolicy:  nats.ReplayInstantPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
	}

	info, err := c.js.AddConsumer(streamName, consumerConfig)
	if err != nil {
		info, err = c.js.UpdateConsumer(streamName, consumerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create/update consumer: %w", err)
		}
	}

	return info, nil
}

// PullSubscribe binds a pull subscription to a durable consumer.
func (c *Client) PullSubscribe(streamName, consumerName string) (*nats.Subscription, error) {
	sub, err := c.js.PullSubscribe(
		"",
		consumerName,
		nats.ManualAck(),
		nats.Bind(streamName, consumerName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

// Health checks the NATS connection health
func (c *Client) Health() error {
	if !c.nc.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}

	if _, err := c.js.AccountInfo(); err != nil {
		return fmt.Errorf("JetStream health check failed: %w", err)
	}

	return nil
}

// Close closes the NATS connection
func (c *Client) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}

// StreamInfo returns information about a stream
func (c *Client) StreamInfo(streamName string) (*nats.StreamInfo, error) {
	return c.js.StreamInfo(streamName)
}

// ConsumerInfo returns information about a consumer
func (c *Client) ConsumerInfo(streamName, consumerName string) (*nats.ConsumerInfo, error) {
	return c.js.ConsumerInfo(streamName, consumerName)
}

// GetConfig returns the client configuration
func (c *Client) GetConfig() *Config {
	return c.config
}
