package domain

import "errors"

var (
	// ErrCustomerNotFound возвращается, если клиент не найден в хранилище.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден в хранилище.
	ErrProductNotFound = errors.New("product not found")
	// ErrUnfulfilledOrderExists — бизнес-ошибка: у клиента уже есть
	// невыполненный заказ, новый создать нельзя до его выполнения.
	ErrUnfulfilledOrderExists = errors.New("customer has an unfulfilled order")
	// ErrOrderAlreadyFulfilled возвращается при повторной попытке выполнить заказ.
	ErrOrderAlreadyFulfilled = errors.New("order is already fulfilled")
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerIDRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего идентификатора товара в ассоциации.
	ErrProductIDRequired = errors.New("product id is required")
	// Ошибка дубликата ассоциации (order_id, product_id).
	ErrDuplicateOrderProduct = errors.New("duplicate product association in order")
	// Ошибка отрицательной цены товара.
	ErrProductPriceInvalid = errors.New("product price must be non-negative")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key is used with a different request")
)

// IsConflict проверяет, является ли ошибка нарушением правила
// «не более одного невыполненного заказа на клиента».
func IsConflict(err error) bool {
	return errors.Is(err, ErrUnfulfilledOrderExists)
}

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound)
}
