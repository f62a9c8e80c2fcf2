package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
)

// Subscription mirrors a provider subscription and binds it to the one city
// whose leads it entitles. Renewal webhooks resolve subscription -> city
// through this table.
type Subscription struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	ProviderSubscriptionID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_subscription_id"`
	ProviderCustomerID     string    `gorm:"type:varchar(191);not null;index" json:"provider_customer_id"`
	Email                  string    `gorm:"type:varchar(200);default:''" json:"email"`
	City                   string    `gorm:"type:varchar(100);not null;index" json:"city"`
	Status                 string    `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
