package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	LeadStatusUnassigned = "unassigned"
	LeadStatusAssigned   = "assigned"
)

// Lead is a single construction-permit record scraped by the ingestion
// backend. Assignment fields are written exclusively by the batch-claim
// transaction in the lead repository; once a lead is assigned it never
// returns to the pool.
type Lead struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PermitID       string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"permit_id" validate:"required"`
	City           string     `gorm:"type:varchar(100);not null;index:idx_leads_city_status,priority:1" json:"city" validate:"required"`
	Address        string     `gorm:"type:varchar(255);default:''" json:"address"`
	Description    string     `gorm:"type:text" json:"description"`
	PermitType     string     `gorm:"type:varchar(100);default:''" json:"permit_type"`
	ContractorName string     `gorm:"type:varchar(200);default:''" json:"contractor_name"`
	ValuationCents int64      `gorm:"default:0" json:"valuation_cents"`
	Latitude       float64    `gorm:"default:0" json:"latitude"`
	Longitude      float64    `gorm:"default:0" json:"longitude"`
	IssuedDate     time.Time  `gorm:"not null;index" json:"issued_date"`
	Status         string     `gorm:"type:varchar(20);not null;default:'unassigned';index:idx_leads_city_status,priority:2" json:"status" validate:"oneof=unassigned assigned"`
	AssignedTo     string     `gorm:"type:varchar(191);default:'';index" json:"assigned_to"`
	AssignedDate   *time.Time `gorm:"type:timestamp;default:null" json:"assigned_date,omitempty"`
	SubscriptionID string     `gorm:"type:varchar(191);default:''" json:"subscription_id"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *Lead) Validate() error {
	v := validator.New()

	return v.Struct(l)
}

// NormalizeCity lowercases and trims a city slug so lookups match the
// ingestion backend's keys ("Austin" and "austin" address the same pool).
func NormalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
