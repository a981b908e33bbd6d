package rest

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/tnyamukapa/rentpay/internal/catalog"
	"github.com/tnyamukapa/rentpay/internal/escrow"
	"github.com/tnyamukapa/rentpay/internal/fees"
	"github.com/tnyamukapa/rentpay/internal/payment"
	"github.com/tnyamukapa/rentpay/internal/refund"
	"github.com/tnyamukapa/rentpay/internal/transport/middleware"
	"github.com/tnyamukapa/rentpay/internal/transport/swagger"
)

// RegisterAllRoutes mounts the payment API. The OpenAPI contract at
// openAPIPath is validated during mounting so the service refuses to
// start with documentation that no longer parses.
func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	redisClient *redis.Client,
	openAPIPath string,
	allowedOrigins string,
	catalogHandler *catalog.Handler,
	feesHandler *fees.Handler,
	paymentHandler *payment.Handler,
	webhookHandler *payment.WebhookHandler,
	escrowHandler *escrow.Handler,
	refundHandler *refund.Handler,
	logger *slog.Logger,
) error {
	if _, err := swagger.LoadContract(context.Background(), openAPIPath); err != nil {
		return err
	}

	healthHandler := NewHealthHandler(db, redisClient)

	// Apply global middleware
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.TraceContext)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.VerificationContext)

	// Health and contract endpoints live outside the API prefix
	router.Get("/health", healthHandler.healthCheckHandler)
	router.Get("/ping", healthHandler.pingHandler)

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, openAPIPath)
	})
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusMovedPermanently)
	})
	router.Handle("/docs/*", swagger.Handler())

	// Provider callbacks authenticate with their own shared secret, not
	// the gateway session, so they mount at root.
	if webhookHandler != nil {
		router.Post("/webhook/provider/{provider}", webhookHandler.HandlePaymentCallback)
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		if catalogHandler != nil {
			r.Get("/payment-methods", catalogHandler.ListMethods)
		}

		if feesHandler != nil {
			r.Post("/payments/fees", feesHandler.ComputeFees)
		}

		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", paymentHandler.SubmitPayment)
				pr.Post("/validate", paymentHandler.ValidateDetails)
				pr.Post("/3ds/resume", paymentHandler.ResumeThreeDS)
				pr.Get("/{id}", paymentHandler.GetTransaction)
			})
		}

		if refundHandler != nil {
			r.Post("/refunds", refundHandler.RequestRefund)
			r.Get("/refunds/{id}", refundHandler.GetRefund)
		}

		if escrowHandler != nil {
			r.Route("/escrows", func(er chi.Router) {
				er.Get("/{id}", escrowHandler.GetEscrow)
				er.Post("/{id}/dispute", escrowHandler.RaiseDispute)
				er.Post("/{id}/release", escrowHandler.Release)
			})
		}
	})

	return nil
}
