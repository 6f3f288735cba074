package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/port"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "X-Idempotency-Replayed"
)

type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// responseRecorder buffers the handler's response so it can be cached and
// replayed for a repeated idempotency key.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.body.Write(b)
	return rr.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the cached response for a repeated
// Idempotency-Key on money-mutating routes. Requests without the header
// pass through untouched. Only non-5xx responses are cached: a server
// error should stay retryable under the same key.
func IdempotencyMiddleware(kv port.KV, ttl time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
				next.ServeHTTP(w, r)
				return
			}

			cacheKey := "idem:" + r.Method + ":" + r.URL.Path + ":" + key

			if raw, ok, err := kv.Get(r.Context(), cacheKey); err != nil {
				// Degrade to non-idempotent rather than failing the request.
				logger.Warn("idempotency lookup failed", zap.Error(err))
			} else if ok {
				var cached cachedResponse
				if err := json.Unmarshal([]byte(raw), &cached); err == nil {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set(replayedHeader, "true")
					w.WriteHeader(cached.Status)
					w.Write(cached.Body)
					return
				}
			}

			rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rr, r)

			if rr.status >= 500 {
				return
			}
			raw, err := json.Marshal(cachedResponse{Status: rr.status, Body: rr.body.Bytes()})
			if err != nil {
				return
			}
			if err := kv.Set(r.Context(), cacheKey, string(raw), ttl); err != nil {
				logger.Warn("idempotency store failed", zap.Error(err))
			}
		})
	}
}
