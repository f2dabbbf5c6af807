package app

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/messaging/kafka"
)

// splitBrokers разбирает KAFKA_BROKERS, пропуская пустые элементы.
func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initTotalsConsumer создаёт consumer group, который сверяет totalAmount по событиям заказов.
func initTotalsConsumer(cfg Config, recalc kafka.TotalRecalculator, dlq *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	brokerList := splitBrokers(cfg.KafkaBrokers)
	if len(brokerList) == 0 || strings.TrimSpace(cfg.KafkaConsumerGroup) == "" {
		return nil, nil
	}

	consumer, err := kafka.NewConsumerWithDLQ(kafka.ConsumerConfig{
		Brokers:    brokerList,
		GroupID:    cfg.KafkaConsumerGroup,
		Topics:     []string{cfg.KafkaOrderEventsTopic},
		DLQTopic:   cfg.KafkaDLQTopic,
		MaxRetries: cfg.KafkaConsumerRetries,
	}, kafka.NewTotalsHandler(recalc, logger.WithField("component", "totals-handler")), dlq)
	if err != nil {
		return nil, fmt.Errorf("init totals consumer: %w", err)
	}
	return consumer, nil
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
