package orders

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// RetryConfig конфигурация повторов единицы работы при конфликтах записи.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// executeWithRetry повторяет fn целиком, пока ошибка — гонка за uuid или проигранный CAS.
// Каждая попытка перечитывает состояние, поэтому повтор видит запись победителя.
func (s *Service) executeWithRetry(ctx context.Context, operation, key string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := s.retry.InitialDelay

	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				s.logger.WithFields(log.Fields{
					"operation": operation,
					"key":       key,
					"attempt":   attempt,
				}).Info("operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !shouldRetry(err) {
			return err
		}
		if attempt == s.retry.MaxAttempts {
			break
		}

		s.logger.WithFields(log.Fields{
			"operation": operation,
			"key":       key,
			"attempt":   attempt,
			"delay":     delay,
			"error":     err,
		}).Warn("write conflict, retrying")
		if s.metrics != nil {
			s.metrics.RecordRetry()
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		// Экспоненциальная задержка с ограничением
		delay = time.Duration(float64(delay) * s.retry.BackoffFactor)
		if s.retry.MaxDelay > 0 && delay > s.retry.MaxDelay {
			delay = s.retry.MaxDelay
		}
	}

	s.logger.WithFields(log.Fields{
		"operation":    operation,
		"key":          key,
		"max_attempts": s.retry.MaxAttempts,
		"error":        lastErr,
	}).Error("operation failed after all retry attempts")

	return lastErr
}

// shouldRetry определяет, стоит ли повторять единицу работы при данной ошибке.
func shouldRetry(err error) bool {
	return errors.Is(err, domain.ErrOrderUUIDConflict) || domain.IsVersionConflict(err)
}
