package postgres

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	paymentPkg "github.com/tnyamukapa/rentpay/internal/payment"
)

func TestPaymentRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "PaymentRepository Suite")
}

// SQLiteTransaction mirrors the postgres schema with types the sqlite
// driver can migrate. The repository under test still reads and writes
// through the production datamodel.
type SQLiteTransaction struct {
	ID                string     `gorm:"primaryKey"`
	BookingID         string     `gorm:"column:booking_id;not null"`
	PaymentMethodID   string     `gorm:"column:payment_method_id;not null"`
	Amount            string     `gorm:"column:amount"`
	Currency          string     `gorm:"column:currency"`
	ProcessingFee     string     `gorm:"column:processing_fee"`
	TotalAmount       string     `gorm:"column:total_amount"`
	Status            string     `gorm:"column:status;default:'pending'"`
	PaymentDetails    string     `gorm:"column:payment_details"`
	BillingAddress    string     `gorm:"column:billing_address"`
	IdempotencyKey    string     `gorm:"column:idempotency_key;uniqueIndex"`
	ProviderReference *string    `gorm:"column:provider_reference"`
	NextActionURL     *string    `gorm:"column:next_action_url"`
	FailureCode       *string    `gorm:"column:failure_code"`
	FailureReason     *string    `gorm:"column:failure_reason"`
	RefundAmount      string     `gorm:"column:refund_amount"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	ProcessedAt       *time.Time `gorm:"column:processed_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (SQLiteTransaction) TableName() string {
	return "payment_transactions"
}

var _ = Describe("PaymentRepository", func() {
	var (
		db   *gorm.DB
		repo *PaymentRepository
	)

	newTransaction := func(id, bookingID, key string, status payment.TransactionStatus) *payment.PaymentTransaction {
		return &payment.PaymentTransaction{
			ID:              id,
			BookingID:       bookingID,
			PaymentMethodID: "visa_zw",
			Amount:          decimal.RequireFromString("320.00"),
			Currency:        "USD",
			ProcessingFee:   decimal.RequireFromString("9.58"),
			TotalAmount:     decimal.RequireFromString("329.58"),
			Status:          status,
			PaymentDetails: payment.MaskedDetails{
				Type:           payment.MethodTypeCard,
				LastFour:       "4242",
				CardholderName: "Tariro Moyo",
			},
			IdempotencyKey: key,
			RefundAmount:   decimal.Zero,
			CreatedAt:      time.Now().UTC(),
		}
	}

	BeforeEach(func() {
		var err error

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLiteTransaction{})
		Expect(err).NotTo(HaveOccurred())

		// The postgres migration declares this as a partial unique index;
		// sqlite supports the same predicate form.
		err = db.Exec(`CREATE UNIQUE INDEX idx_payment_transactions_active_booking
			ON payment_transactions (booking_id)
			WHERE status IN ('pending', 'processing')`).Error
		Expect(err).NotTo(HaveOccurred())

		repo = NewPaymentRepository(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		err = sqlDB.Close()
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Create", func() {
		It("should persist a transaction and read it back intact", func() {
			txn := newTransaction("txn_1", "bk_1", "idk_1", payment.StatusPending)

			err := repo.Create(txn)
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.GetByID("txn_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.BookingID).To(Equal("bk_1"))
			Expect(got.Amount.StringFixed(2)).To(Equal("320.00"))
			Expect(got.TotalAmount.StringFixed(2)).To(Equal("329.58"))
			Expect(got.Status).To(Equal(payment.StatusPending))
			Expect(got.PaymentDetails.Type).To(Equal(payment.MethodTypeCard))
			Expect(got.PaymentDetails.LastFour).To(Equal("4242"))
		})

		It("should reject a reused idempotency key", func() {
			err := repo.Create(newTransaction("txn_1", "bk_1", "idk_dup", payment.StatusPending))
			Expect(err).NotTo(HaveOccurred())

			err = repo.Create(newTransaction("txn_2", "bk_2", "idk_dup", payment.StatusPending))
			Expect(err).To(Equal(paymentPkg.ErrKeyReused))
		})

		It("should reject a second live transaction for the same booking", func() {
			err := repo.Create(newTransaction("txn_1", "bk_1", "idk_1", payment.StatusProcessing))
			Expect(err).NotTo(HaveOccurred())

			err = repo.Create(newTransaction("txn_2", "bk_1", "idk_2", payment.StatusPending))
			Expect(err).To(Equal(paymentPkg.ErrBookingActive))
		})

		It("should allow a new attempt once the previous one is terminal", func() {
			err := repo.Create(newTransaction("txn_1", "bk_1", "idk_1", payment.StatusFailed))
			Expect(err).NotTo(HaveOccurred())

			err = repo.Create(newTransaction("txn_2", "bk_1", "idk_2", payment.StatusPending))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("lookups", func() {
		BeforeEach(func() {
			Expect(repo.Create(newTransaction("txn_1", "bk_1", "idk_1", payment.StatusProcessing))).To(Succeed())
		})

		It("should find a transaction by idempotency key", func() {
			got, err := repo.GetByIdempotencyKey("idk_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("txn_1"))
		})

		It("should return the not found sentinel for unknown keys", func() {
			got, err := repo.GetByIdempotencyKey("idk_ghost")
			Expect(err).To(Equal(paymentPkg.ErrTransactionNotFound))
			Expect(got).To(BeNil())
		})

		It("should return the not found sentinel for unknown ids", func() {
			got, err := repo.GetByID("txn_ghost")
			Expect(err).To(Equal(paymentPkg.ErrTransactionNotFound))
			Expect(got).To(BeNil())
		})

		It("should find a transaction by provider reference", func() {
			ref := "ch_900"
			err := repo.TransitionStatus("txn_1", payment.StatusProcessing, payment.StatusCompleted, paymentPkg.StatusUpdate{
				ProviderReference: &ref,
			})
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.GetByProviderReference("ch_900")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("txn_1"))
		})

		It("should list booking transactions newest first", func() {
			older := newTransaction("txn_0", "bk_history", "idk_h0", payment.StatusFailed)
			older.CreatedAt = time.Now().UTC().Add(-time.Hour)
			Expect(repo.Create(older)).To(Succeed())

			newer := newTransaction("txn_9", "bk_history", "idk_h9", payment.StatusCompleted)
			Expect(repo.Create(newer)).To(Succeed())

			txns, err := repo.GetByBookingID("bk_history")
			Expect(err).NotTo(HaveOccurred())
			Expect(txns).To(HaveLen(2))
			Expect(txns[0].ID).To(Equal("txn_9"))
			Expect(txns[1].ID).To(Equal("txn_0"))
		})

		It("should report whether a booking already has a completed payment", func() {
			paid, err := repo.HasCompletedForBooking("bk_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(paid).To(BeFalse())

			Expect(repo.TransitionStatus("txn_1", payment.StatusProcessing, payment.StatusCompleted, paymentPkg.StatusUpdate{})).To(Succeed())

			paid, err = repo.HasCompletedForBooking("bk_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(paid).To(BeTrue())
		})
	})

	Describe("TransitionStatus", func() {
		BeforeEach(func() {
			Expect(repo.Create(newTransaction("txn_1", "bk_1", "idk_1", payment.StatusProcessing))).To(Succeed())
		})

		It("should apply the update when the expected status still holds", func() {
			ref := "ch_1"
			processedAt := time.Now().UTC()

			err := repo.TransitionStatus("txn_1", payment.StatusProcessing, payment.StatusCompleted, paymentPkg.StatusUpdate{
				ProviderReference: &ref,
				ProcessedAt:       &processedAt,
			})
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.GetByID("txn_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(payment.StatusCompleted))
			Expect(got.TransactionID).NotTo(BeNil())
			Expect(*got.TransactionID).To(Equal("ch_1"))
			Expect(got.ProcessedAt).NotTo(BeNil())
		})

		It("should record failure details on the losing path", func() {
			code := "card_declined"
			reason := "issuer rejected the charge"

			err := repo.TransitionStatus("txn_1", payment.StatusProcessing, payment.StatusFailed, paymentPkg.StatusUpdate{
				FailureCode:   &code,
				FailureReason: &reason,
			})
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.GetByID("txn_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(payment.StatusFailed))
			Expect(*got.FailureCode).To(Equal("card_declined"))
			Expect(*got.FailureReason).To(Equal("issuer rejected the charge"))
		})

		It("should lose cleanly when another writer already moved the row", func() {
			Expect(repo.TransitionStatus("txn_1", payment.StatusProcessing, payment.StatusCompleted, paymentPkg.StatusUpdate{})).To(Succeed())

			err := repo.TransitionStatus("txn_1", payment.StatusProcessing, payment.StatusFailed, paymentPkg.StatusUpdate{})
			Expect(err).To(Equal(paymentPkg.ErrStaleTransition))

			got, err := repo.GetByID("txn_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(payment.StatusCompleted))
		})
	})

	Describe("AttachProviderAction", func() {
		BeforeEach(func() {
			Expect(repo.Create(newTransaction("txn_1", "bk_1", "idk_1", payment.StatusProcessing))).To(Succeed())
		})

		It("should record the challenge redirect on a processing row", func() {
			err := repo.AttachProviderAction("txn_1", "ch_3ds", "https://3ds.gateway/challenge/1")
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.GetByID("txn_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(*got.TransactionID).To(Equal("ch_3ds"))
			Expect(*got.NextActionURL).To(Equal("https://3ds.gateway/challenge/1"))
		})

		It("should refuse once the row left processing", func() {
			Expect(repo.TransitionStatus("txn_1", payment.StatusProcessing, payment.StatusCompleted, paymentPkg.StatusUpdate{})).To(Succeed())

			err := repo.AttachProviderAction("txn_1", "ch_3ds", "https://3ds.gateway/challenge/1")
			Expect(err).To(Equal(paymentPkg.ErrStaleTransition))
		})
	})
})
