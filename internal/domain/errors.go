package domain

import (
	"errors"
	"strings"
)

var (
	// ErrOrderUUIDRequired — в запросе синхронизации нет клиентского uuid.
	ErrOrderUUIDRequired = errors.New("uuid is required")
	// ErrOrderUUIDImmutable — попытка сменить uuid у существующего заказа.
	ErrOrderUUIDImmutable = errors.New("uuid cannot be changed")
	// Ошибка отсутствующего идентификатора заказа у позиции.
	ErrOrderIDRequired = errors.New("orderId is required")
	// Ошибка пустого названия позиции.
	ErrItemNameRequired = errors.New("itemName is required")
	// Ошибка при некорректном количестве товара (< 1).
	ErrItemQuantityInvalid = errors.New("quantity must be at least 1")
	// ErrItemPriceRequired — в запросе нет цены позиции.
	ErrItemPriceRequired = errors.New("price is required")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceNegative = errors.New("price must be non-negative")
	// Ошибка цены с точностью больше копеек.
	ErrItemPricePrecision = errors.New("price must have at most 2 decimal places")
	// ErrItemQuantityTooLarge — количество выходит за пределы хранимого диапазона.
	ErrItemQuantityTooLarge = errors.New("quantity must not exceed 1000000")
	// ErrItemPriceTooLarge — цена выходит за пределы хранимого диапазона.
	ErrItemPriceTooLarge = errors.New("price must not exceed 99999.99")
	// ErrMalformedPayload — тело запроса не разбирается.
	ErrMalformedPayload = errors.New("malformed request payload")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderItemNotFound возвращается, если позиция заказа не найдена.
	ErrOrderItemNotFound = errors.New("order item not found")

	// ErrOrderUUIDConflict — нарушение уникальности uuid при создании заказа.
	ErrOrderUUIDConflict = errors.New("order uuid already exists")
	// ErrOrderExists — заказ с таким ID уже сохранён.
	ErrOrderExists = errors.New("order already exists")
	// ErrOrderItemExists — позиция с таким ID уже сохранена.
	ErrOrderItemExists = errors.New("order item already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — не передан отпечаток запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — запись по ключу идемпотентности отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже занят другим (или тем же) запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different payload")
)

// ValidationError агрегирует нарушения инвариантов входных данных.
type ValidationError struct {
	Errs []error
}

// NewValidationError возвращает nil, если нарушений нет.
func NewValidationError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &ValidationError{Errs: filtered}
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap позволяет errors.Is находить исходные sentinel-ошибки.
func (e *ValidationError) Unwrap() []error {
	return e.Errs
}

// IsValidation проверяет, относится ли ошибка к некорректным входным данным.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound проверяет, что запрошенный заказ или позиция отсутствуют.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderItemNotFound)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет конфликт ключа идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
