package app

import "time"

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую; пустая строка отключает Kafka.
	KafkaBrokers          string
	KafkaOrderEventsTopic string
	KafkaDLQTopic         string
	KafkaConsumerGroup    string
	KafkaConsumerRetries  int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxStaleAfter — возраст pending-события, после которого /healthz отвечает degraded.
	OutboxStaleAfter time.Duration

	ReconcileSchedule string

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	SyncMaxRetries int
}

// DefaultConfig возвращает базовые настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":5080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaOrderEventsTopic: "bakery.order.events",
		KafkaDLQTopic:         "bakery.order.events.dlq",
		KafkaConsumerGroup:    "bakery-order-totals",
		KafkaConsumerRetries:  3,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxStaleAfter:   5 * time.Minute,

		ReconcileSchedule: "0 */15 * * * *",

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 500,

		SyncMaxRetries: 5,
	}
}
