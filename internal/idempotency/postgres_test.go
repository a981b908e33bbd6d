package idempotency

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var _ = Describe("PostgresStore", func() {
	var (
		db    *gorm.DB
		store *PostgresStore
		ctx   context.Context
	)

	BeforeEach(func() {
		var err error

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&idempotencyRow{})
		Expect(err).NotTo(HaveOccurred())

		store = NewPostgresStore(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	It("claims a fresh key for the first caller", func() {
		rec, created, err := store.Begin(ctx, "idk_1", "fp_a", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())
		Expect(rec.Status).To(Equal(StatusInFlight))
		Expect(rec.RequestFingerprint).To(Equal("fp_a"))
	})

	It("hands the existing claim to replays", func() {
		_, created, err := store.Begin(ctx, "idk_1", "fp_a", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())

		rec, created, err := store.Begin(ctx, "idk_1", "fp_a", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeFalse())
		Expect(rec.Status).To(Equal(StatusInFlight))
	})

	It("replays the stored outcome after completion", func() {
		_, _, err := store.Begin(ctx, "idk_1", "fp_a", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Complete(ctx, "idk_1", "txn_1", StatusCompleted)).To(Succeed())

		rec, created, err := store.Begin(ctx, "idk_1", "fp_a", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeFalse())
		Expect(rec.Status).To(Equal(StatusCompleted))
		Expect(rec.TransactionID).To(Equal("txn_1"))
	})

	It("reclaims a key whose window has lapsed", func() {
		_, _, err := store.Begin(ctx, "idk_1", "fp_old", time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		time.Sleep(5 * time.Millisecond)

		rec, created, err := store.Begin(ctx, "idk_1", "fp_new", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())
		Expect(rec.RequestFingerprint).To(Equal("fp_new"))
		Expect(rec.Status).To(Equal(StatusInFlight))
	})

	It("refuses to complete a lapsed key", func() {
		_, _, err := store.Begin(ctx, "idk_1", "fp_a", time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		time.Sleep(5 * time.Millisecond)

		err = store.Complete(ctx, "idk_1", "txn_1", StatusCompleted)
		Expect(err).To(MatchError(ContainSubstring("expired before completion")))
	})

	It("reopens a released key", func() {
		_, _, err := store.Begin(ctx, "idk_1", "fp_a", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Release(ctx, "idk_1")).To(Succeed())

		_, created, err := store.Begin(ctx, "idk_1", "fp_b", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())
	})

	It("reports nothing for unknown or lapsed keys", func() {
		rec, err := store.Get(ctx, "idk_ghost")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec).To(BeNil())

		_, _, err = store.Begin(ctx, "idk_1", "fp_a", time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		time.Sleep(5 * time.Millisecond)

		rec, err = store.Get(ctx, "idk_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec).To(BeNil())
	})

	Describe("PurgeExpired", func() {
		It("removes lapsed rows and keeps live ones", func() {
			_, _, err := store.Begin(ctx, "idk_old", "fp_a", time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			_, _, err = store.Begin(ctx, "idk_live", "fp_b", time.Hour)
			Expect(err).NotTo(HaveOccurred())
			time.Sleep(5 * time.Millisecond)

			purged, err := store.PurgeExpired(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(purged).To(Equal(int64(1)))

			rec, err := store.Get(ctx, "idk_live")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec).NotTo(BeNil())
		})
	})
})
