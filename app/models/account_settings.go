package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// AccountSettings stores per-account API access material and the effective
// plan snapshot used when no subscription row exists yet.
type AccountSettings struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	AccountID        uint           `gorm:"uniqueIndex" json:"account_id"`
	Plan             string         `gorm:"type:varchar(50);default:'free'" json:"plan"`
	APIKeyHash       string         `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix     string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt  *time.Time     `json:"api_key_created_at"`
	APIKeyLastUsedAt *time.Time     `json:"api_key_last_used_at"`
	APIKeyRevokedAt  *time.Time     `json:"api_key_revoked_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeySecretPrefix = "trd_"

// GetOrCreateAccountSettings returns existing settings or creates defaults
func GetOrCreateAccountSettings(db *gorm.DB, accountID uint) (*AccountSettings, error) {
	var as AccountSettings
	if err := db.Where("account_id = ?", accountID).First(&as).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			as = AccountSettings{AccountID: accountID, Plan: "free"}
			if err := db.Create(&as).Error; err != nil {
				return nil, err
			}
			return &as, nil
		}
		return nil, err
	}
	return &as, nil
}

// HasActiveAPIKey reports whether the account has an active API key configured
func (as *AccountSettings) HasActiveAPIKey() bool {
	return as != nil && as.APIKeyHash != "" && as.APIKeyRevokedAt == nil
}

// IssueAPIKey generates a new API key, persists metadata on the struct, and returns the raw secret.
// Callers must persist the struct via the database after invoking this method.
func (as *AccountSettings) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now()
	as.APIKeyHash = hash
	as.APIKeyPrefix = prefix
	as.APIKeyCreatedAt = &now
	as.APIKeyRevokedAt = nil
	as.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// RevokeAPIKey clears the stored API key metadata without deleting the record.
func (as *AccountSettings) RevokeAPIKey() {
	as.APIKeyHash = ""
	as.APIKeyPrefix = ""
	now := time.Now()
	as.APIKeyRevokedAt = &now
	as.APIKeyLastUsedAt = nil
}

// TouchAPIKeyUsage updates the last-used timestamp metadata.
func (as *AccountSettings) TouchAPIKeyUsage() {
	now := time.Now()
	as.APIKeyLastUsedAt = &now
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := strings.ToLower(apiKeyEncoding.EncodeToString(b))
	rawKey := apiKeySecretPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix := rawKey[:16]
	hash := HashAPIKey(rawKey)
	return rawKey, prefix, hash, nil
}
