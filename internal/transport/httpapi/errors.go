package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	msgOrderNotFound     = "Order not found"
	msgOrderItemNotFound = "Order item not found"
	msgInternal          = "internal server error"
)

// statusFor переводит ошибку сервиса в HTTP-статус и сообщение для клиента.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrOrderItemNotFound):
		return http.StatusNotFound, msgOrderItemNotFound
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, msgOrderNotFound
	case domain.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// abortWithError пишет {"message": ...}; 5xx логируются с исходной ошибкой.
func (h *handler) abortWithError(c *gin.Context, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"request_id": requestIDFrom(c),
			"route":      c.FullPath(),
		}).Error("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, MessageResponse{Message: message})
}

func malformed(err error) error {
	return domain.NewValidationError(fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err))
}
