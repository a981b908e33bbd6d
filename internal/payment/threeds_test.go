package payment_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	internal "github.com/tnyamukapa/rentpay/internal"
	paymentPkg "github.com/tnyamukapa/rentpay/internal/payment"
)

var _ = Describe("ResumeTokenIssuer", func() {
	var issuer *paymentPkg.ResumeTokenIssuer

	BeforeEach(func() {
		issuer = paymentPkg.NewResumeTokenIssuer("resume-secret", time.Minute)
	})

	It("round trips the transaction binding", func() {
		token, err := issuer.Issue("txn_3ds", "idk_3ds")
		Expect(err).ToNot(HaveOccurred())

		claims, err := issuer.Parse(token)
		Expect(err).ToNot(HaveOccurred())
		Expect(claims.TransactionID).To(Equal("txn_3ds"))
		Expect(claims.IdempotencyKey).To(Equal("idk_3ds"))
	})

	It("rejects a token signed under a different secret", func() {
		other := paymentPkg.NewResumeTokenIssuer("not-the-secret", time.Minute)
		token, err := other.Issue("txn_3ds", "idk_3ds")
		Expect(err).ToNot(HaveOccurred())

		claims, err := issuer.Parse(token)
		Expect(claims).To(BeNil())
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(internal.ErrCodeResumeTokenInvalid))
	})

	It("rejects an expired token with the same opaque code", func() {
		expired := paymentPkg.NewResumeTokenIssuer("resume-secret", -time.Minute)
		token, err := expired.Issue("txn_3ds", "idk_3ds")
		Expect(err).ToNot(HaveOccurred())

		claims, err := issuer.Parse(token)
		Expect(claims).To(BeNil())
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(internal.ErrCodeResumeTokenInvalid))
		Expect(appErr.Message).To(ContainSubstring("expired"))
	})

	It("rejects garbage", func() {
		claims, err := issuer.Parse("not.a.token")
		Expect(claims).To(BeNil())
		Expect(err).To(HaveOccurred())
	})
})
