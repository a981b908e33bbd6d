package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	ContextRequestIDKey    ctxKey = "requestID"
	ContextVerificationKey ctxKey = "verificationStatus"
)

// VerificationStatus is supplied by the upstream KYC service per request;
// this core only gates on it, it never computes it.
type VerificationStatus string

const (
	VerificationVerified   VerificationStatus = "verified"
	VerificationPending    VerificationStatus = "pending"
	VerificationUnverified VerificationStatus = "unverified"
)

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(ContextRequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextRequestIDKey, requestID)
}

func VerificationFromContext(ctx context.Context) VerificationStatus {
	if ctx == nil {
		return VerificationUnverified
	}
	if status, ok := ctx.Value(ContextVerificationKey).(VerificationStatus); ok {
		return status
	}
	return VerificationUnverified
}

func ContextWithVerification(ctx context.Context, status VerificationStatus) context.Context {
	return context.WithValue(ctx, ContextVerificationKey, status)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
