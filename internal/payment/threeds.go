package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	internal "github.com/tnyamukapa/rentpay/internal"
)

// ResumeClaims bind a 3-D-Secure resumption to one suspended attempt. The
// token is the only thing the client holds across the challenge, so it
// carries the transaction and the attempt's idempotency key and nothing
// else; the provider outcome is always re-queried server side.
type ResumeClaims struct {
	TransactionID  string `json:"txn_id"`
	IdempotencyKey string `json:"idempotency_key"`
	jwt.RegisteredClaims
}

type ResumeTokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewResumeTokenIssuer(secret string, ttl time.Duration) *ResumeTokenIssuer {
	return &ResumeTokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (i *ResumeTokenIssuer) Issue(transactionID, idempotencyKey string) (string, error) {
	now := time.Now()
	claims := &ResumeClaims{
		TransactionID:  transactionID,
		IdempotencyKey: idempotencyKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   transactionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign resume token: %w", err)
	}
	return signed, nil
}

// Parse validates the signature and expiry and returns the bound claims.
// Every failure collapses to one unauthorized error so the response does
// not leak which check failed.
func (i *ResumeTokenIssuer) Parse(tokenString string) (*ResumeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ResumeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.NewUnauthorizedError("resume token expired", internal.ErrCodeResumeTokenInvalid)
		}
		return nil, internal.NewUnauthorizedError("resume token invalid", internal.ErrCodeResumeTokenInvalid)
	}

	claims, ok := token.Claims.(*ResumeClaims)
	if !ok || !token.Valid || claims.TransactionID == "" {
		return nil, internal.NewUnauthorizedError("resume token invalid", internal.ErrCodeResumeTokenInvalid)
	}
	return claims, nil
}
