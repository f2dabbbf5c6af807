package httpapi

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	headerIdempotencyKey      = "Idempotency-Key"
	headerIdempotencyReplayed = "Idempotency-Replayed"
	defaultIdempotencyTTL     = 24 * time.Hour
)

// bodyRecorder копирует тело ответа, чтобы сохранить его для повторов.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency обрабатывает заголовок Idempotency-Key на создающих запросах.
// Завершённый запрос повторяется из кеша; ответы 5xx помечают ключ failed, и его можно переиспользовать.
func Idempotency(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(c *gin.Context) {
		key := c.GetHeader(headerIdempotencyKey)
		if repo == nil || key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, MessageResponse{Message: domain.ErrMalformedPayload.Error()})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		fields := log.Fields{"idempotency_key": key, "request_id": requestIDFrom(c)}
		hash := domain.HashRequest(c.Request.Method, c.Request.URL.Path, body)

		record, err := repo.CreateProcessing(ctx, key, hash, time.Now().UTC().Add(ttl))
		if err != nil {
			replayIdempotent(c, err, record, logger.WithFields(fields))
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		// Паника в обработчике не должна оставлять ключ в processing до истечения TTL.
		defer func() {
			if recovered := recover(); recovered != nil {
				if err := repo.MarkFailed(ctx, key, nil, http.StatusInternalServerError); err != nil {
					logger.WithError(err).WithFields(fields).Warn("failed to store idempotency failure after panic")
				}
				panic(recovered)
			}
		}()

		c.Next()

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			if err := repo.MarkFailed(ctx, key, recorder.body.Bytes(), status); err != nil {
				logger.WithError(err).WithFields(fields).Warn("failed to store idempotency failure")
			}
			return
		}
		if err := repo.MarkDone(ctx, key, recorder.body.Bytes(), status); err != nil {
			logger.WithError(err).WithFields(fields).Warn("failed to store idempotent response")
		}
	}
}

func replayIdempotent(c *gin.Context, createErr error, record domain.IdempotencyRecord, logger *log.Entry) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		c.AbortWithStatusJSON(http.StatusConflict, MessageResponse{
			Message: "idempotency key is already used with a different request",
		})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Status == domain.IdempotencyStatusProcessing {
			c.AbortWithStatusJSON(http.StatusConflict, MessageResponse{
				Message: "request with the same idempotency key is still processing",
			})
			return
		}
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		c.Header(headerIdempotencyReplayed, "true")
		c.Data(status, "application/json; charset=utf-8", record.ResponseBody)
		c.Abort()
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		c.AbortWithStatusJSON(http.StatusInternalServerError, MessageResponse{Message: msgInternal})
	}
}
