package repository

import (
	"strings"

	"github.com/permitradar/permitradar/app/models"
	"gorm.io/gorm"
)

// customerRepository implements the CustomerRepository interface
type customerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a new customer repository instance
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

// GetByEmail resolves the most recently updated customer row for an email.
// Emails are stored lowercased by the billing service.
func (r *customerRepository) GetByEmail(email string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Order("updated_at DESC").
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
