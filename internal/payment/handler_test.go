package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	paymentPkg "github.com/tnyamukapa/rentpay/internal/payment"
)

type stubPaymentAPI struct {
	submitResp   *paymentPkg.SubmitPaymentResponse
	submitErr    error
	resumeResp   *paymentPkg.SubmitPaymentResponse
	resumeErr    error
	validateResp *paymentPkg.ValidateDetailsResponse
	validateErr  error
	view         *paymentPkg.TransactionView
	viewErr      error
	settleErr    error

	lastSubmit *paymentPkg.SubmitPaymentRequest
	lastSettle []interface{}
}

func (s *stubPaymentAPI) SubmitPayment(_ context.Context, req *paymentPkg.SubmitPaymentRequest) (*paymentPkg.SubmitPaymentResponse, error) {
	s.lastSubmit = req
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return s.submitResp, nil
}

func (s *stubPaymentAPI) ResumeThreeDS(_ context.Context, req *paymentPkg.ResumeRequest) (*paymentPkg.SubmitPaymentResponse, error) {
	if s.resumeErr != nil {
		return nil, s.resumeErr
	}
	return s.resumeResp, nil
}

func (s *stubPaymentAPI) ValidateDetails(req *paymentPkg.ValidateDetailsRequest) (*paymentPkg.ValidateDetailsResponse, error) {
	if s.validateErr != nil {
		return nil, s.validateErr
	}
	return s.validateResp, nil
}

func (s *stubPaymentAPI) GetTransaction(id string) (*paymentPkg.TransactionView, error) {
	if s.viewErr != nil {
		return nil, s.viewErr
	}
	return s.view, nil
}

func (s *stubPaymentAPI) SettleFromProvider(_ context.Context, reference, providerReference string, succeeded bool, failureCode, failureReason string) error {
	s.lastSettle = []interface{}{reference, providerReference, succeeded, failureCode, failureReason}
	return s.settleErr
}

var _ = ginkgo.Describe("PaymentHandler", func() {
	var (
		handler  *paymentPkg.Handler
		service  *stubPaymentAPI
		recorder *httptest.ResponseRecorder
		logger   *slog.Logger
	)

	submitBody := func() []byte {
		body, err := json.Marshal(map[string]interface{}{
			"booking_id":        "bk_77",
			"payment_method_id": "visa_zw",
			"amount":            "320.00",
			"currency":          "USD",
			"country":           "ZW",
			"payment_details": map[string]interface{}{
				"card": map[string]interface{}{
					"number":          "4242424242424242",
					"expiry_month":    12,
					"expiry_year":     2030,
					"cvv":             "123",
					"cardholder_name": "Tariro Moyo",
				},
			},
			"billing_address": map[string]interface{}{
				"street":      "12 Samora Machel Ave",
				"city":        "Harare",
				"postal_code": "00263",
				"country":     "ZW",
			},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return body
	}

	ginkgo.BeforeEach(func() {
		service = &stubPaymentAPI{}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		handler = paymentPkg.NewHandler(service, logger)
		recorder = httptest.NewRecorder()
	})

	ginkgo.Context("SubmitPayment", func() {
		ginkgo.When("the submission completes", func() {
			ginkgo.It("should respond 201 and echo the idempotency key", func() {
				service.submitResp = &paymentPkg.SubmitPaymentResponse{
					FlowState:   paymentPkg.StageConfirmation,
					Transaction: &paymentPkg.TransactionView{ID: "txn_1", Status: "completed"},
				}

				req := httptest.NewRequest("POST", "/api/v1/payments", bytes.NewBuffer(submitBody()))
				req.Header.Set("Idempotency-Key", "idk_client_1")
				handler.SubmitPayment(recorder, req)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusCreated))
				gomega.Expect(recorder.Header().Get("Idempotency-Key")).To(gomega.Equal("idk_client_1"))
				gomega.Expect(service.lastSubmit.IdempotencyKey).To(gomega.Equal("idk_client_1"))

				var resp paymentPkg.SubmitPaymentResponse
				gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
				gomega.Expect(resp.FlowState).To(gomega.Equal(paymentPkg.StageConfirmation))
			})

			ginkgo.It("should mint a key when the client sends none", func() {
				service.submitResp = &paymentPkg.SubmitPaymentResponse{
					FlowState:   paymentPkg.StageConfirmation,
					Transaction: &paymentPkg.TransactionView{ID: "txn_1", Status: "completed"},
				}

				req := httptest.NewRequest("POST", "/api/v1/payments", bytes.NewBuffer(submitBody()))
				handler.SubmitPayment(recorder, req)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusCreated))
				gomega.Expect(recorder.Header().Get("Idempotency-Key")).To(gomega.HavePrefix("idk_"))
			})
		})

		ginkgo.When("the provider demands a challenge", func() {
			ginkgo.It("should respond 202 with the redirect", func() {
				service.submitResp = &paymentPkg.SubmitPaymentResponse{
					FlowState:   paymentPkg.StageProcessing,
					Transaction: &paymentPkg.TransactionView{ID: "txn_1", Status: "processing"},
					ThreeDS: &paymentPkg.ThreeDSInstruction{
						RedirectURL: "https://3ds.gateway/challenge/1",
						ResumeToken: "token-1",
					},
				}

				req := httptest.NewRequest("POST", "/api/v1/payments", bytes.NewBuffer(submitBody()))
				handler.SubmitPayment(recorder, req)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusAccepted))
			})
		})

		ginkgo.When("the body is not JSON", func() {
			ginkgo.It("should respond 400", func() {
				req := httptest.NewRequest("POST", "/api/v1/payments", bytes.NewBufferString("not json"))
				handler.SubmitPayment(recorder, req)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
			})
		})

		ginkgo.When("the charge is declined", func() {
			ginkgo.It("should map the taxonomy error onto the wire", func() {
				service.submitErr = internal.NewProviderError("the payment was declined", internal.ErrCodeCardDeclined)

				req := httptest.NewRequest("POST", "/api/v1/payments", bytes.NewBuffer(submitBody()))
				handler.SubmitPayment(recorder, req)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusPaymentRequired))
				var body map[string]map[string]interface{}
				gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &body)).To(gomega.Succeed())
				gomega.Expect(body["error"]["code"]).To(gomega.Equal("card_declined"))
			})
		})

		ginkgo.When("the provider is rate limiting", func() {
			ginkgo.It("should respond 429 with Retry-After", func() {
				service.submitErr = internal.NewRateLimitedError("slow down", 30)

				req := httptest.NewRequest("POST", "/api/v1/payments", bytes.NewBuffer(submitBody()))
				handler.SubmitPayment(recorder, req)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusTooManyRequests))
				gomega.Expect(recorder.Header().Get("Retry-After")).To(gomega.Equal("30"))
			})
		})
	})

	ginkgo.Context("ResumeThreeDS", func() {
		ginkgo.It("should respond 200 when the challenge settled", func() {
			service.resumeResp = &paymentPkg.SubmitPaymentResponse{
				FlowState:   paymentPkg.StageConfirmation,
				Transaction: &paymentPkg.TransactionView{ID: "txn_1", Status: "completed"},
			}

			body, _ := json.Marshal(map[string]string{"resume_token": "token-1"})
			req := httptest.NewRequest("POST", "/api/v1/payments/3ds/resume", bytes.NewBuffer(body))
			handler.ResumeThreeDS(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should respond 401 for a rejected token", func() {
			service.resumeErr = internal.NewUnauthorizedError("resume token invalid", internal.ErrCodeResumeTokenInvalid)

			body, _ := json.Marshal(map[string]string{"resume_token": "bad"})
			req := httptest.NewRequest("POST", "/api/v1/payments/3ds/resume", bytes.NewBuffer(body))
			handler.ResumeThreeDS(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Context("ValidateDetails", func() {
		ginkgo.It("should return the field report", func() {
			service.validateResp = &paymentPkg.ValidateDetailsResponse{
				IsValid: false,
				Errors: []internal.ValidationError{
					{Field: "card.cvv", Message: "cvv must be 3 or 4 digits", Code: "invalid_cvv"},
				},
			}

			body, _ := json.Marshal(map[string]interface{}{
				"payment_method_id": "visa_zw",
				"payment_details":   map[string]interface{}{"card": map[string]interface{}{"number": "4242"}},
			})
			req := httptest.NewRequest("POST", "/api/v1/payments/validate", bytes.NewBuffer(body))
			handler.ValidateDetails(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp paymentPkg.ValidateDetailsResponse
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.IsValid).To(gomega.BeFalse())
			gomega.Expect(resp.Errors).To(gomega.HaveLen(1))
		})
	})

	ginkgo.Context("GetTransaction", func() {
		ginkgo.It("should serve the masked view by id", func() {
			service.view = &paymentPkg.TransactionView{
				ID:     "txn_55",
				Status: "completed",
				Amount: decimal.RequireFromString("100.00"),
			}

			router := chi.NewRouter()
			router.Get("/api/v1/payments/{id}", handler.GetTransaction)
			req := httptest.NewRequest("GET", "/api/v1/payments/txn_55", nil)
			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var view paymentPkg.TransactionView
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &view)).To(gomega.Succeed())
			gomega.Expect(view.ID).To(gomega.Equal("txn_55"))
		})

		ginkgo.It("should surface not found", func() {
			service.viewErr = internal.NewNotFoundError("transaction not found", internal.ErrCodeTransactionNotFound)

			router := chi.NewRouter()
			router.Get("/api/v1/payments/{id}", handler.GetTransaction)
			req := httptest.NewRequest("GET", "/api/v1/payments/txn_nope", nil)
			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})
	})
})
