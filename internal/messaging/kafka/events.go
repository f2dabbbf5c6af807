package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "bakery.order.events"
	TopicDeadLetterQueue = "bakery.order.events.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

// ErrPoisonMessage помечает сообщение, которое не имеет смысла повторять (например, битый JSON).
var ErrPoisonMessage = errors.New("poison message")

// OutboxEnvelope — конверт события заказа, который публикует outbox worker.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOutboxEnvelope упаковывает outbox-сообщение для публикации.
func NewOutboxEnvelope(msg domain.OutboxMessage) OutboxEnvelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return OutboxEnvelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}
}

// ParseOutboxEnvelope разбирает конверт события заказа из сообщения Kafka.
// Ошибка разбора оборачивает ErrPoisonMessage.
func ParseOutboxEnvelope(message *sarama.ConsumerMessage) (OutboxEnvelope, error) {
	var envelope OutboxEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return OutboxEnvelope{}, fmt.Errorf("%w: unmarshal order event: %v", ErrPoisonMessage, err)
	}
	if envelope.EventType == "" || envelope.AggregateID == "" {
		return OutboxEnvelope{}, fmt.Errorf("%w: order event without event_type or aggregate_id", ErrPoisonMessage)
	}
	return envelope, nil
}
