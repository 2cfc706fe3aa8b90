package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/linemk/farm-shop/internal/cache"
	"github.com/linemk/farm-shop/internal/jwt-new/jwtmiddleware"
	"github.com/redis/go-redis/v9"
)

const HeaderIdempotencyKey = "Idempotency-Key"

const DefaultIdempotencyTTL = 24 * time.Hour

type idempotencyRecord struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency повторяет сохранённый ответ, если запрос пришёл с тем же Idempotency-Key.
// Без заголовка или без store запрос проходит как обычно.
// Ответы 5xx не сохраняются, такой запрос можно повторить.
func Idempotency(store cache.IdempotencyStore, log *slog.Logger, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.Idempotency"

			idempotencyKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if idempotencyKey == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			logger := log.With(slog.String("op", op), slog.String("idempotencyKey", idempotencyKey))

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, "invalid request", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), idempotencyKey)

			stored, err := store.Get(r.Context(), key)
			switch {
			case err != nil && !errors.Is(err, redis.Nil):
				logger.Error("failed to check idempotency key", slog.Any("error", err))
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			case err == nil && stored != "":
				var record idempotencyRecord
				if err := json.Unmarshal([]byte(stored), &record); err != nil {
					logger.Error("failed to decode idempotency record", slog.Any("error", err))
					writeError(w, "internal server error", http.StatusInternalServerError)
					return
				}
				if record.RequestHash != requestHash {
					logger.Warn("idempotency key reused with different body")
					writeError(w, "idempotency key reused with different request body", http.StatusConflict)
					return
				}
				logger.Info("replaying stored response", slog.Int("status", record.Status))
				writeStoredResponse(w, &record)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}

			payload, err := json.Marshal(idempotencyRecord{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				ContentType: rec.Header().Get("Content-Type"),
				RequestHash: requestHash,
			})
			if err != nil {
				logger.Error("failed to encode idempotency record", slog.Any("error", err))
				return
			}
			if _, err := store.SetNX(r.Context(), key, string(payload), ttl); err != nil {
				logger.Error("failed to persist idempotency record", slog.Any("error", err))
			}
		})
	}
}

// buildScope привязывает ключ к пользователю и маршруту
func buildScope(r *http.Request) string {
	userID := "anonymous"
	if id, ok := jwtmiddleware.FromContext(r.Context()); ok {
		userID = strconv.FormatInt(id, 10)
	}
	return strings.Join([]string{userID, r.Method, r.URL.Path}, "|")
}

func writeStoredResponse(w http.ResponseWriter, record *idempotencyRecord) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
