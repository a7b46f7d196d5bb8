package queue

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/birbparty/birb-feathers/internal/feature"
)

// MessageType represents the type of queue message
type MessageType string

const (
	// MessageTypeIngest carries a batch of feature rows for the durable store
	MessageTypeIngest MessageType = "ingest"
	// MessageTypeInvalidation asks for one entity's cache keys to be dropped
	MessageTypeInvalidation MessageType = "invalidation"
)

// Subject names for different message types
const (
	SubjectIngest     = "features.ingest"
	SubjectInvalidate = "features.invalidate"
	SubjectDLQ        = "features.dlq"
)

// BaseMessage contains common fields for all messages
type BaseMessage struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Retries   int         `json:"retries,omitempty"`
}

// IngestRow is one feature sample inside an ingest batch.
type IngestRow struct {
	FeatureID int                    `json:"feature_id"`
	EntityID  string                 `json:"entity_id"`
	Timestamp time.Time              `json:"timestamp"`
	Value     feature.Value          `json:"value"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IngestMessage carries a batch of feature rows produced by an upstream
// pipeline. The whole batch lands in one store transaction.
type IngestMessage struct {
	BaseMessage
	Rows []IngestRow `json:"rows"`
}

// InvalidationMessage asks the worker to drop an entity's cached features,
// typically after a pipeline rewrote them.
type InvalidationMessage struct {
	BaseMessage
	EntityID string `json:"entity_id"`
}

// DLQMessage represents a dead letter queue message
type DLQMessage struct {
	OriginalMessage json.RawMessage `json:"original_message"`
	OriginalSubject string          `json:"original_subject"`
	Error           string          `json:"error"`
	FailedAt        time.Time       `json:"failed_at"`
	Retries         int             `json:"retries"`
	MaxRetries      int             `json:"max_retries"`
}

// NewIngestMessage creates a new ingest message
func NewIngestMessage(rows []IngestRow) *IngestMessage {
	return &IngestMessage{
		BaseMessage: BaseMessage{
			ID:        generateMessageID(),
			Type:      MessageTypeIngest,
			Timestamp: time.Now().UTC(),
		},
		Rows: rows,
	}
}

// NewInvalidationMessage creates a new invalidation message
func NewInvalidationMessage(entityID string) *InvalidationMessage {
	return &InvalidationMessage{
		BaseMessage: BaseMessage{
			ID:        generateMessageID(),
			Type:      MessageTypeInvalidation,
			Timestamp: time.Now().UTC(),
		},
		EntityID: entityID,
	}
}

// Marshal converts the message to JSON bytes
func (m *IngestMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Marshal converts the message to JSON bytes
func (m *InvalidationMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Marshal converts the message to JSON bytes
func (m *DLQMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalIngestMessage unmarshals an ingest message from JSON
func UnmarshalIngestMessage(data []byte) (*IngestMessage, error) {
	var msg IngestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UnmarshalInvalidationMessage unmarshals an invalidation message from JSON
func UnmarshalInvalidationMessage(data []byte) (*InvalidationMessage, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UnmarshalDLQMessage unmarshals a DLQ message from JSON
func UnmarshalDLQMessage(data []byte) (*DLQMessage, error) {
	var msg DLQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// generateMessageID generates a unique message ID. It doubles as the
// JetStream Msg-Id for publisher-side deduplication.
func generateMessageID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return time.Now().UTC().Format("20060102150405") + "-" + hex.EncodeToString(b)
}
