package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type stubRecalculator struct {
	calls []string
	err   error
}

func (s *stubRecalculator) RecalculateTotal(_ context.Context, orderID string) (domain.Order, error) {
	s.calls = append(s.calls, orderID)
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return domain.Order{ID: orderID, TotalAmount: decimal.RequireFromString("25.00")}, nil
}

func envelopeMessage(t *testing.T, eventType, orderID string) *sarama.ConsumerMessage {
	t.Helper()
	value := `{"id":"e-1","aggregate_type":"order","aggregate_id":"` + orderID + `","event_type":"` + eventType + `","payload":{}}`
	return &sarama.ConsumerMessage{Topic: TopicOrderEvents, Key: []byte(orderID), Value: []byte(value)}
}

func TestTotalsHandler(t *testing.T) {
	logger := log.WithField("test", "totals")

	t.Run("item events trigger recalculation", func(t *testing.T) {
		recalc := &stubRecalculator{}
		handler := NewTotalsHandler(recalc, logger)

		for _, eventType := range []string{
			domain.EventOrderItemCreated,
			domain.EventOrderItemUpdated,
			domain.EventOrderItemDeleted,
			domain.EventOrderSynced,
		} {
			require.NoError(t, handler(context.Background(), envelopeMessage(t, eventType, "o-1")))
		}
		assert.Equal(t, []string{"o-1", "o-1", "o-1", "o-1"}, recalc.calls)
	})

	t.Run("other events are ignored", func(t *testing.T) {
		recalc := &stubRecalculator{}
		handler := NewTotalsHandler(recalc, logger)

		require.NoError(t, handler(context.Background(), envelopeMessage(t, domain.EventOrderDeleted, "o-1")))
		require.NoError(t, handler(context.Background(), envelopeMessage(t, domain.EventOrderUpdated, "o-1")))
		assert.Empty(t, recalc.calls)
	})

	t.Run("deleted order is not an error", func(t *testing.T) {
		recalc := &stubRecalculator{err: domain.ErrOrderNotFound}
		handler := NewTotalsHandler(recalc, nil)

		require.NoError(t, handler(context.Background(), envelopeMessage(t, domain.EventOrderItemCreated, "gone")))
	})

	t.Run("storage failure is retried by consumer", func(t *testing.T) {
		recalc := &stubRecalculator{err: errors.New("db down")}
		handler := NewTotalsHandler(recalc, logger)

		err := handler(context.Background(), envelopeMessage(t, domain.EventOrderItemUpdated, "o-2"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrPoisonMessage)
	})

	t.Run("malformed message is poison", func(t *testing.T) {
		recalc := &stubRecalculator{}
		handler := NewTotalsHandler(recalc, logger)

		err := handler(context.Background(), &sarama.ConsumerMessage{Value: []byte("not json")})
		assert.ErrorIs(t, err, ErrPoisonMessage)
		assert.Empty(t, recalc.calls)
	})
}
