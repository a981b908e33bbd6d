package middleware

import (
	"net/http"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/pkg/logger"
)

// VerificationContext reads the renter's KYC status from the request.
// The upstream gateway asserts X-Verification-Status after authenticating
// the session; this service only gates on the value, it never computes it.
// Anything other than the known statuses collapses to unverified.
func VerificationContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := internal.VerificationStatus(r.Header.Get("X-Verification-Status"))
		switch status {
		case internal.VerificationVerified, internal.VerificationPending:
		default:
			status = internal.VerificationUnverified
		}

		ctx := internal.ContextWithVerification(r.Context(), status)
		ctx = logger.With(ctx, "verification", string(status))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
