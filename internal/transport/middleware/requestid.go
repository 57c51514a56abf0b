package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/frahmantamala/reservation-payments/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestID reuses an inbound request id or mints one, echoes it back, and
// attaches it to the request-scoped logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "request_id", requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
