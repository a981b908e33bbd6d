package middleware

import (
	"net/http"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/pkg/logger"

	"github.com/google/uuid"
)

// TraceContext propagates the caller's X-Trace-ID, minting one when the
// edge did not supply it. The id rides the logger context and the request
// context so payment attempts can be correlated across services.
func TraceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "traceID", traceID)
		ctx = internal.ContextWithRequestID(ctx, traceID)

		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
