package webhook

import "time"

// Credential stores the bcrypt hash of a provider's shared webhook secret.
// Plaintext secrets exist only in deployment configuration; callbacks are
// verified against the hash.
type Credential struct {
	Provider   string    `gorm:"primaryKey"`
	SecretHash string    `gorm:"column:secret_hash;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Credential) TableName() string { return "webhook_credentials" }
