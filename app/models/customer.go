package models

import "time"

// Customer mirrors the billing provider's customer object. The provider
// owns the record of truth; we keep a local row so assignments and admin
// views can resolve a provider customer id to an email without an API call.
type Customer struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	ProviderCustomerID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_customer_id"`
	Email              string    `gorm:"type:varchar(200);not null;index" json:"email"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
