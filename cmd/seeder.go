package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/tnyamukapa/rentpay/internal/catalog"
	paymentPostgres "github.com/tnyamukapa/rentpay/internal/payment/postgres"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the payment methods table and webhook credentials",
	Long: `Mirror the configured payment method catalog into the payment_methods
table and register bcrypt hashes of the provider webhook secrets. Safe to
re-run: existing rows are kept unless --clear is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		_, db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if clearData {
			if err := db.Exec("DELETE FROM webhook_credentials").Error; err != nil {
				log.Fatalf("failed to clear webhook_credentials: %v", err)
			}
			if err := db.Exec("DELETE FROM payment_methods").Error; err != nil {
				log.Fatalf("failed to clear payment_methods: %v", err)
			}
			fmt.Println("Cleared payment_methods and webhook_credentials")
		}

		cat, err := catalog.NewCatalog(cfg.Catalog)
		if err != nil {
			log.Fatalf("failed to build catalog: %v", err)
		}

		seeded := 0
		for _, method := range cat.All() {
			var exists int
			row := db.Raw("SELECT 1 FROM payment_methods WHERE id = ?", method.ID).Row()
			if err := row.Scan(&exists); err == nil {
				continue
			}

			m := method
			if err := db.Create(&m).Error; err != nil {
				log.Fatalf("failed to seed payment method %s: %v", method.ID, err)
			}
			seeded++
		}
		fmt.Printf("Seeded %d payment methods (%d already present)\n", seeded, len(cat.All())-seeded)

		cost := cfg.Webhook.BCryptCost
		if cost <= 0 {
			cost = bcrypt.DefaultCost
		}

		credentials := paymentPostgres.NewWebhookCredentialRepository(db)
		for provider, secret := range cfg.Webhook.Secrets {
			hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
			if err != nil {
				log.Fatalf("failed to hash webhook secret for %s: %v", provider, err)
			}
			if err := credentials.Upsert(provider, string(hash)); err != nil {
				log.Fatalf("failed to store webhook credential for %s: %v", provider, err)
			}
			fmt.Println("Registered webhook credential for provider:", provider)
		}
	},
}
