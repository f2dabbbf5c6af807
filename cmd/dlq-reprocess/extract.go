package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/bakery/internal/messaging/kafka"
)

var (
	errUnknownDLQFormat = errors.New("unknown dlq message format")
	errPoisonOriginal   = errors.New("original message is not a valid order event")
)

type replayMessage struct {
	topic     string
	key       string
	eventType string
	value     []byte
}

// consumerDLQPayload пишет consumer заказов, когда обработка исчерпала попытки.
type consumerDLQPayload struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
	ErrorMessage  string `json:"error_message"`
}

// outboxDLQPayload лежит в payload конверта, который outbox worker отправил в DLQ.
type outboxDLQPayload struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	OrderID       string          `json:"order_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// extractReplayMessage восстанавливает исходное событие из сообщения DLQ.
// Сообщения, которые consumer заведомо не сможет разобрать, возвращаются с ошибкой и пропускаются.
func extractReplayMessage(msg *sarama.ConsumerMessage, defaultTopic string) (replayMessage, error) {
	var consumerPayload consumerDLQPayload
	if err := json.Unmarshal(msg.Value, &consumerPayload); err == nil && consumerPayload.OriginalValue != "" {
		return fromConsumerDLQ(consumerPayload, defaultTopic)
	}

	var envelope kafka.OutboxEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayMessage{}, errUnknownDLQFormat
	}
	return fromOutboxDLQ(envelope, defaultTopic)
}

func fromConsumerDLQ(payload consumerDLQPayload, defaultTopic string) (replayMessage, error) {
	original := &sarama.ConsumerMessage{Value: []byte(payload.OriginalValue)}
	envelope, err := kafka.ParseOutboxEnvelope(original)
	if err != nil {
		return replayMessage{}, fmt.Errorf("%w: %v", errPoisonOriginal, err)
	}

	topic := strings.TrimSpace(payload.OriginalTopic)
	if topic == "" {
		topic = defaultTopic
	}
	key := payload.OriginalKey
	if key == "" {
		key = envelope.AggregateID
	}

	return replayMessage{
		topic:     topic,
		key:       key,
		eventType: envelope.EventType,
		value:     []byte(payload.OriginalValue),
	}, nil
}

func fromOutboxDLQ(envelope kafka.OutboxEnvelope, defaultTopic string) (replayMessage, error) {
	var dlq outboxDLQPayload
	if err := json.Unmarshal(envelope.Payload, &dlq); err != nil {
		return replayMessage{}, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(dlq.Payload) == 0 {
		return replayMessage{}, errors.New("outbox dlq payload does not contain original event payload")
	}

	replay := kafka.OutboxEnvelope{
		ID:            firstNonEmpty(dlq.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(dlq.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(dlq.OrderID, envelope.AggregateID),
		EventType:     firstNonEmpty(dlq.EventType, envelope.EventType),
		Payload:       dlq.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	if replay.AggregateID == "" || replay.EventType == "" {
		return replayMessage{}, fmt.Errorf("%w: missing order id or event type", errPoisonOriginal)
	}

	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	return replayMessage{
		topic:     defaultTopic,
		key:       replay.AggregateID,
		eventType: replay.EventType,
		value:     encoded,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
