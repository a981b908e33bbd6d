package payment_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	internal "github.com/tnyamukapa/rentpay/internal"
	paymentPkg "github.com/tnyamukapa/rentpay/internal/payment"
	"github.com/tnyamukapa/rentpay/internal/transport"
)

type stubCredentialStore struct {
	hashes map[string]string
	err    error
}

func (s *stubCredentialStore) SecretHash(provider string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.hashes[provider], nil
}

var _ = ginkgo.Describe("WebhookHandler", func() {
	var (
		handler     *paymentPkg.WebhookHandler
		service     *stubPaymentAPI
		credentials *stubCredentialStore
		recorder    *httptest.ResponseRecorder
		router      chi.Router
	)

	const webhookSecret = "whsec_test_fake_gateway"

	callbackBody := func(fields map[string]string) []byte {
		body, err := json.Marshal(fields)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return body
	}

	postCallback := func(provider, secret string, body []byte) {
		req := httptest.NewRequest("POST", "/webhook/provider/"+provider, bytes.NewBuffer(body))
		if secret != "" {
			req.Header.Set("X-Webhook-Secret", secret)
		}
		router.ServeHTTP(recorder, req)
	}

	ginkgo.BeforeEach(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(webhookSecret), bcrypt.MinCost)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		service = &stubPaymentAPI{}
		credentials = &stubCredentialStore{hashes: map[string]string{"fake_gateway": string(hash)}}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		handler = paymentPkg.NewWebhookHandler(transport.NewBaseHandler(logger), service, credentials, logger)
		recorder = httptest.NewRecorder()

		router = chi.NewRouter()
		router.Post("/webhook/provider/{provider}", handler.HandlePaymentCallback)
	})

	ginkgo.When("the callback carries the registered secret", func() {
		ginkgo.It("should settle the referenced transaction", func() {
			postCallback("fake_gateway", webhookSecret, callbackBody(map[string]string{
				"transaction_id":     "txn_10",
				"provider_reference": "ch_10",
				"status":             "succeeded",
			}))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(service.lastSettle).To(gomega.Equal([]interface{}{"txn_10", "ch_10", true, "", ""}))

			var resp paymentPkg.PaymentCallbackResponse
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Status).To(gomega.Equal("success"))
		})

		ginkgo.It("should forward failure codes to the settlement path", func() {
			postCallback("fake_gateway", webhookSecret, callbackBody(map[string]string{
				"provider_reference": "ch_11",
				"status":             "failed",
				"failure_code":       "insufficient_funds",
				"failure_reason":     "wallet balance too low",
			}))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(service.lastSettle).To(gomega.Equal([]interface{}{"", "ch_11", false, "insufficient_funds", "wallet balance too low"}))
		})
	})

	ginkgo.When("authentication fails", func() {
		ginkgo.It("should reject a wrong secret without settling", func() {
			postCallback("fake_gateway", "whsec_wrong", callbackBody(map[string]string{
				"transaction_id": "txn_10",
				"status":         "succeeded",
			}))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(service.lastSettle).To(gomega.BeNil())
		})

		ginkgo.It("should reject a missing secret", func() {
			postCallback("fake_gateway", "", callbackBody(map[string]string{
				"transaction_id": "txn_10",
				"status":         "succeeded",
			}))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should reject a gateway with no registered credential", func() {
			postCallback("unknown_gateway", webhookSecret, callbackBody(map[string]string{
				"transaction_id": "txn_10",
				"status":         "succeeded",
			}))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.When("the payload is malformed", func() {
		ginkgo.It("should reject an unknown status value", func() {
			postCallback("fake_gateway", webhookSecret, callbackBody(map[string]string{
				"transaction_id": "txn_10",
				"status":         "maybe",
			}))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(service.lastSettle).To(gomega.BeNil())
		})

		ginkgo.It("should reject a callback naming no transaction", func() {
			postCallback("fake_gateway", webhookSecret, callbackBody(map[string]string{
				"status": "succeeded",
			}))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.When("the settlement path rejects the callback", func() {
		ginkgo.It("should map unknown references to 404", func() {
			service.settleErr = internal.NewNotFoundError("transaction not found", internal.ErrCodeTransactionNotFound)

			postCallback("fake_gateway", webhookSecret, callbackBody(map[string]string{
				"transaction_id": "txn_ghost",
				"status":         "succeeded",
			}))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})
	})
})
