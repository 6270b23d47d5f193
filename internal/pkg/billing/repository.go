package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trendit-hq/trendit/app/models"
)

// Repository provides DB operations used by the webhook event processor.
type Repository interface {
	FindEntitlingSubscriptionByAccount(accountID uint) (*models.Subscription, error)
	FindSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error)
	FindSubscriptionByCustomerID(providerCustomerID string) (*models.Subscription, error)
	CreateSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error
	ListSubscriptionsByAccount(accountID uint) ([]models.Subscription, error)
	AccountExists(accountID uint) (bool, error)
	GetOrCreateAccountSettings(accountID uint) (*models.AccountSettings, error)
	SaveAccountSettings(as *models.AccountSettings) error
	CreateEventIfNotExists(event *models.BillingEvent) (bool, *models.BillingEvent, error)
	MarkEventProcessed(id uint, status, processingError string, retryCount int) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindEntitlingSubscriptionByAccount(accountID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("account_id = ? AND status IN ?", accountID, []string{
			models.SubscriptionStatusActive,
			models.SubscriptionStatusTrialing,
			models.SubscriptionStatusPastDue,
		}).
		Order("updated_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("provider_subscription_id = ?", providerSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindSubscriptionByCustomerID(providerCustomerID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("provider_customer_id = ?", providerCustomerID).
		Order("updated_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_id",
			"provider_customer_id",
			"provider_price_id",
			"tier",
			"status",
			"current_period_start",
			"current_period_end",
			"next_billed_at",
			"trial_start",
			"trial_end",
			"monthly_api_calls_limit",
			"monthly_exports_limit",
			"monthly_sentiment_limit",
			"data_retention_days",
			"plan_version",
			"last_event_at",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider_subscription_id = ?", sub.ProviderSubscriptionID).First(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) ListSubscriptionsByAccount(accountID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("account_id = ?", accountID).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) AccountExists(accountID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Account{}).Where("id = ?", accountID).Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) GetOrCreateAccountSettings(accountID uint) (*models.AccountSettings, error) {
	return models.GetOrCreateAccountSettings(r.db, accountID)
}

func (r *gormRepository) SaveAccountSettings(as *models.AccountSettings) error {
	return r.db.Save(as).Error
}

// CreateEventIfNotExists inserts an audit row guarded by the unique index
// on provider_event_id. Concurrent duplicate deliveries resolve to first
// writer wins; everyone gets the stored row back.
func (r *gormRepository) CreateEventIfNotExists(event *models.BillingEvent) (bool, *models.BillingEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingEvent
	if err := r.db.Where("provider_event_id = ?", event.ProviderEventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkEventProcessed(id uint, status, processingError string, retryCount int) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processing_status": status,
		"processing_error":  processingError,
		"retry_count":       retryCount,
		"processed_at":      &now,
	}
	return r.db.Model(&models.BillingEvent{}).Where("id = ?", id).Updates(updates).Error
}
