package domain

import "time"

// IdempotencyStatus — фаза обработки повторяемого запроса создания заказа.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — первый запрос с этим ключом ещё в работе.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — ответ сохранён и отдаётся повторным запросам.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — обработка упала, сохранён ответ с ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid сообщает, известен ли статус.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyRecord связывает Idempotency-Key из POST /orders с сохранённым
// ответом, чтобы ретрай клиента не создал второй заказ.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Status      IdempotencyStatus

	// Сохранённый ответ; заполняется при переходе в done или failed.
	ResponseBody []byte
	HTTPStatus   int

	TTLAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InFlight сообщает, что первый запрос с этим ключом ещё не завершился.
func (r IdempotencyRecord) InFlight() bool {
	return r.Status == IdempotencyStatusProcessing
}

// Replayable сообщает, есть ли сохранённый ответ для повторной выдачи.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Expired сообщает, истёк ли срок хранения записи к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}
