package postgres

import (
	"gorm.io/gorm"

	"github.com/tnyamukapa/rentpay/internal/core/datamodel/webhook"
	paymentpkg "github.com/tnyamukapa/rentpay/internal/payment"
)

type WebhookCredentialRepository struct {
	db *gorm.DB
}

func NewWebhookCredentialRepository(db *gorm.DB) *WebhookCredentialRepository {
	return &WebhookCredentialRepository{db: db}
}

func (r *WebhookCredentialRepository) SecretHash(provider string) (string, error) {
	var cred webhook.Credential
	if err := r.db.Where("provider = ?", provider).First(&cred).Error; err != nil {
		return "", err
	}
	return cred.SecretHash, nil
}

func (r *WebhookCredentialRepository) Upsert(provider, secretHash string) error {
	var count int64
	if err := r.db.Model(&webhook.Credential{}).Where("provider = ?", provider).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return r.db.Model(&webhook.Credential{}).Where("provider = ?", provider).Update("secret_hash", secretHash).Error
	}
	return r.db.Create(&webhook.Credential{Provider: provider, SecretHash: secretHash}).Error
}

var _ paymentpkg.CredentialStore = (*WebhookCredentialRepository)(nil)
