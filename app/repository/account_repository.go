package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/trendit-hq/trendit/app/models"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new account in the database
func (r *accountRepository) Create(account *models.Account) error {
	return r.db.Create(account).Error
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByEmail retrieves an account by its email address
func (r *accountRepository) GetByEmail(email string) (*models.Account, error) {
	var account models.Account
	if err := r.db.Where("email = ?", email).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByAPIKeyHash resolves an active API key hash to its account and settings.
// Revoked keys never match.
func (r *accountRepository) GetByAPIKeyHash(hash string) (*models.Account, *models.AccountSettings, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, nil, gorm.ErrRecordNotFound
	}
	var settings models.AccountSettings
	query := r.db.Where("api_key_hash = ? AND api_key_hash <> '' AND api_key_revoked_at IS NULL", trimmed)
	if err := query.First(&settings).Error; err != nil {
		return nil, nil, err
	}
	var account models.Account
	if err := r.db.First(&account, settings.AccountID).Error; err != nil {
		return nil, nil, err
	}
	return &account, &settings, nil
}

// Update updates an existing account in the database
func (r *accountRepository) Update(account *models.Account) error {
	return r.db.Save(account).Error
}

// Delete soft deletes an account by its ID
func (r *accountRepository) Delete(id uint) error {
	return r.db.Delete(&models.Account{}, id).Error
}

// List retrieves a paginated list of accounts
func (r *accountRepository) List(offset, limit int) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&accounts).Error
	return accounts, err
}

// Count returns the total number of accounts
func (r *accountRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Account{}).Count(&count).Error
	return count, err
}

// TouchLastActive stamps the account's last activity timestamp best-effort.
func (r *accountRepository) TouchLastActive(id uint) error {
	now := time.Now()
	return r.db.Model(&models.Account{}).
		Where("id = ?", id).
		Update("last_active_at", now).Error
}
