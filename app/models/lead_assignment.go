package models

import (
	"encoding/json"
	"time"
)

// LeadAssignment is the audit record of one batch grant: which leads were
// handed to which customer for which billing event. Created once per
// assignment transaction; only the delivery flag changes afterwards.
type LeadAssignment struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PublicID       string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"public_id"`
	CustomerID     string     `gorm:"type:varchar(191);not null;index" json:"customer_id"`
	City           string     `gorm:"type:varchar(100);not null;index" json:"city"`
	SubscriptionID string     `gorm:"type:varchar(191);not null;index" json:"subscription_id"`
	LeadCount      int        `gorm:"not null" json:"lead_count"`
	LeadIDsJSON    string     `gorm:"column:lead_ids;type:longtext;not null" json:"-"`
	AssignedAt     time.Time  `gorm:"not null;index" json:"assigned_at"`
	Delivered      bool       `gorm:"default:false;index" json:"delivered"`
	DeliveredAt    *time.Time `gorm:"type:timestamp;default:null" json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SetLeadIDs stores the claimed lead ids as a JSON array.
func (a *LeadAssignment) SetLeadIDs(ids []uint) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	a.LeadIDsJSON = string(raw)
	a.LeadCount = len(ids)
	return nil
}

// LeadIDs decodes the claimed lead ids.
func (a *LeadAssignment) LeadIDs() ([]uint, error) {
	if a.LeadIDsJSON == "" {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal([]byte(a.LeadIDsJSON), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
