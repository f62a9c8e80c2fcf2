package repository

import (
	"time"

	"github.com/permitradar/permitradar/app/models"
	"gorm.io/gorm"
)

// assignmentRepository implements the AssignmentRepository interface
type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new assignment repository instance
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

// GetByPublicID retrieves an assignment record by its public identifier
func (r *assignmentRepository) GetByPublicID(publicID string) (*models.LeadAssignment, error) {
	var assignment models.LeadAssignment
	err := r.db.Where("public_id = ?", publicID).First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListRecent returns the newest assignment records first
func (r *assignmentRepository) ListRecent(limit int) ([]models.LeadAssignment, error) {
	var result []models.LeadAssignment
	err := r.db.Order("assigned_at DESC").Limit(limit).Find(&result).Error
	return result, err
}

// ListByCustomer returns a customer's assignment history, newest first
func (r *assignmentRepository) ListByCustomer(customerID string, limit int) ([]models.LeadAssignment, error) {
	var result []models.LeadAssignment
	err := r.db.Where("customer_id = ?", customerID).
		Order("assigned_at DESC").
		Limit(limit).
		Find(&result).Error
	return result, err
}

// MarkDelivered flags an assignment as delivered to the customer
func (r *assignmentRepository) MarkDelivered(id uint) error {
	now := time.Now()
	return r.db.Model(&models.LeadAssignment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"delivered":    true,
			"delivered_at": &now,
		}).Error
}
