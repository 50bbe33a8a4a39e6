package httpx

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// IdempotencyHeader — заголовок, которым клиент помечает повторяемый запрос.
const IdempotencyHeader = "Idempotency-Key"

// NewIdempotencyMiddleware возвращает middleware, которое делает мутацию
// повторяемой: первый запрос с данным ключом обрабатывается и его ответ
// сохраняется, повторы с тем же ключом и телом получают сохранённый ответ.
// Запросы без заголовка проходят без изменений.
func NewIdempotencyMiddleware(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashRequest(r.Method, r.URL.Path, body)

			_, err = repo.CreateProcessing(key, requestHash, time.Now().Add(ttl))
			switch {
			case err == nil:
				// Первый запрос с этим ключом: обрабатываем и сохраняем ответ.
			case errors.Is(err, domain.ErrIdempotencyHashMismatch):
				writeError(w, http.StatusUnprocessableEntity, "idempotency_mismatch",
					"idempotency key is used with a different request")
				return
			case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
				replayStoredResponse(w, repo, key)
				return
			default:
				logger.WithError(err).Error("failed to register idempotency key")
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}

			recorder := httptest.NewRecorder()
			next.ServeHTTP(recorder, r)

			responseBody := recorder.Body.Bytes()
			if recorder.Code < http.StatusInternalServerError {
				err = repo.MarkDone(key, responseBody, recorder.Code)
			} else {
				err = repo.MarkFailed(key, responseBody, recorder.Code)
			}
			if err != nil {
				logger.WithError(err).WithField("key", key).Error("failed to store idempotent response")
			}

			copyRecordedResponse(w, recorder)
		})
	}
}

func replayStoredResponse(w http.ResponseWriter, repo domain.IdempotencyRepository, key string) {
	record, err := repo.Get(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	if record.InFlight() {
		// Оригинальный запрос ещё обрабатывается, клиенту стоит повторить позже.
		writeError(w, http.StatusConflict, "request_in_progress",
			"request with this idempotency key is still being processed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(record.HTTPStatus)
	_, _ = w.Write(record.ResponseBody)
}

func copyRecordedResponse(w http.ResponseWriter, recorder *httptest.ResponseRecorder) {
	for name, values := range recorder.Header() {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(recorder.Code)
	_, _ = w.Write(recorder.Body.Bytes())
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{0})
	sum.Write([]byte(path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
