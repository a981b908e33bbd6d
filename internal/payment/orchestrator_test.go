package payment_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/escrow"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	paymentPkg "github.com/tnyamukapa/rentpay/internal/payment"
)

var _ = Describe("Orchestrator", func() {
	var (
		o       *paymentPkg.Orchestrator
		attempt paymentPkg.AttemptContext
	)

	BeforeEach(func() {
		o = paymentPkg.NewOrchestrator(testCatalog(), paymentPkg.NewValidator())
		attempt = paymentPkg.AttemptContext{
			BookingID:      "bk_orch",
			Country:        "ZW",
			Amount:         decimal.NewFromInt(320),
			Currency:       "USD",
			IdempotencyKey: "idk_orig",
		}
	})

	// toProcessing walks a fresh attempt through the two guarded transitions.
	toProcessing := func() *paymentPkg.ProcessingState {
		form, err := o.ChooseMethod(o.StartAttempt(attempt), "visa_zw")
		Expect(err).ToNot(HaveOccurred())
		proc, err := o.SubmitForm(form, validCard(), zimBilling())
		Expect(err).ToNot(HaveOccurred())
		return proc
	}

	It("opens every attempt in method selection", func() {
		state := o.StartAttempt(attempt)
		Expect(state.Stage()).To(Equal(paymentPkg.StageMethodSelection))
		Expect(state.Attempt.IdempotencyKey).To(Equal("idk_orig"))
	})

	Describe("choosing a method", func() {
		It("moves to payment form carrying the resolved method", func() {
			form, err := o.ChooseMethod(o.StartAttempt(attempt), "visa_zw")
			Expect(err).ToNot(HaveOccurred())
			Expect(form.Stage()).To(Equal(paymentPkg.StagePaymentForm))
			Expect(form.Method.ID).To(Equal("visa_zw"))
			Expect(form.Method.Provider).To(Equal(payment.ProviderStripe))
			Expect(form.Attempt).To(Equal(attempt))
		})

		It("refuses a disabled method and stays put", func() {
			form, err := o.ChooseMethod(o.StartAttempt(attempt), "telecash_zw")
			Expect(err).To(Equal(internal.ErrMethodDisabled))
			Expect(form).To(BeNil())
		})

		It("refuses a method whose amount band excludes the attempt", func() {
			attempt.Amount = decimal.NewFromInt(9000)
			form, err := o.ChooseMethod(o.StartAttempt(attempt), "ecocash_zw")
			Expect(err).To(Equal(internal.ErrMethodNotAvailable))
			Expect(form).To(BeNil())
		})
	})

	Describe("submitting the form", func() {
		It("moves to processing when the details pass", func() {
			form, err := o.ChooseMethod(o.StartAttempt(attempt), "visa_zw")
			Expect(err).ToNot(HaveOccurred())

			proc, err := o.SubmitForm(form, validCard(), zimBilling())
			Expect(err).ToNot(HaveOccurred())
			Expect(proc.Stage()).To(Equal(paymentPkg.StageProcessing))
			Expect(proc.Method.ID).To(Equal("visa_zw"))
			Expect(proc.Transaction).To(BeNil())
			Expect(proc.Suspended).To(BeFalse())
		})

		It("returns the field errors and no next state on bad details", func() {
			form, err := o.ChooseMethod(o.StartAttempt(attempt), "visa_zw")
			Expect(err).ToNot(HaveOccurred())

			proc, err := o.SubmitForm(form, cardNumbered("4242424242424241"), zimBilling())
			Expect(proc).To(BeNil())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(fieldErrors(appErr)).To(HaveKey("card.number"))
		})
	})

	Describe("processing", func() {
		It("attaches the persisted transaction without mutating the prior state", func() {
			proc := toProcessing()
			txn := &payment.PaymentTransaction{ID: "txn_orch"}

			next := o.AttachTransaction(proc, txn)
			Expect(next.Transaction).To(Equal(txn))
			Expect(proc.Transaction).To(BeNil())
		})

		It("suspends onto the challenge redirect", func() {
			proc := o.AttachTransaction(toProcessing(), &payment.PaymentTransaction{ID: "txn_orch"})

			parked := o.Suspend(proc, "https://acs.example/challenge")
			Expect(parked.Stage()).To(Equal(paymentPkg.StageProcessing))
			Expect(parked.Suspended).To(BeTrue())
			Expect(parked.RedirectURL).To(Equal("https://acs.example/challenge"))
			Expect(proc.Suspended).To(BeFalse())
		})

		It("resumes only from a suspended state", func() {
			proc := toProcessing()

			resumed, err := o.Resume(proc)
			Expect(resumed).To(BeNil())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidTransition))
		})

		It("clears the suspension on resume", func() {
			parked := o.Suspend(toProcessing(), "https://acs.example/challenge")

			resumed, err := o.Resume(parked)
			Expect(err).ToNot(HaveOccurred())
			Expect(resumed.Suspended).To(BeFalse())
			Expect(resumed.RedirectURL).To(BeEmpty())
			Expect(resumed.Stage()).To(Equal(paymentPkg.StageProcessing))
		})
	})

	Describe("finishing", func() {
		It("confirms with the transaction and its escrow", func() {
			proc := toProcessing()
			txn := &payment.PaymentTransaction{ID: "txn_orch", Status: payment.StatusCompleted}
			esc := &escrow.EscrowAccount{ID: "esc_orch"}

			done := o.Complete(proc, txn, esc)
			Expect(done.Stage()).To(Equal(paymentPkg.StageConfirmation))
			Expect(done.Transaction).To(Equal(txn))
			Expect(done.Escrow).To(Equal(esc))
		})

		It("fails with the decline even when no row was created", func() {
			proc := toProcessing()
			failure := internal.NewProviderError("card was declined", internal.ErrCodeCardDeclined)

			failed := o.Fail(proc, nil, failure)
			Expect(failed.Stage()).To(Equal(paymentPkg.StageError))
			Expect(failed.Transaction).To(BeNil())
			Expect(failed.Failure.Code).To(Equal(internal.ErrCodeCardDeclined))
		})
	})

	Describe("retrying after an error", func() {
		It("returns to method selection under a fresh idempotency key", func() {
			failed := o.Fail(toProcessing(), nil,
				internal.NewProviderError("card was declined", internal.ErrCodeCardDeclined))

			restarted := o.Restart(failed, "idk_fresh")
			Expect(restarted.Stage()).To(Equal(paymentPkg.StageMethodSelection))
			Expect(restarted.Attempt.IdempotencyKey).To(Equal("idk_fresh"))
			Expect(restarted.Attempt.IdempotencyKey).ToNot(Equal(attempt.IdempotencyKey))
			Expect(restarted.Attempt.BookingID).To(Equal(attempt.BookingID))
			Expect(restarted.Attempt.Amount).To(Equal(attempt.Amount))
			Expect(restarted.Attempt.Currency).To(Equal(attempt.Currency))
			Expect(restarted.Attempt.Country).To(Equal(attempt.Country))
		})
	})
})
