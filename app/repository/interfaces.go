package repository

import (
	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/internal/pkg/leads"
)

// CityInventory is the per-city count of still-unassigned leads.
type CityInventory struct {
	City       string `json:"city"`
	Unassigned int64  `json:"unassigned"`
}

// LeadRepository defines the interface for lead-related database operations.
// It embeds leads.Store: the transactional batch claim lives here because it
// is the only writer of a lead's assignment fields.
type LeadRepository interface {
	leads.Store
	Create(lead *models.Lead) error
	GetByID(id uint) (*models.Lead, error)
	GetByPermitID(permitID string) (*models.Lead, error)
	ListAssignedToCustomer(customerID string, limit int) ([]models.Lead, error)
	CountUnassignedByCity(city string) (int64, error)
	UnassignedCountsByCity() ([]CityInventory, error)
}

// CustomerRepository resolves locally mirrored billing customers.
type CustomerRepository interface {
	GetByEmail(email string) (*models.Customer, error)
}

// AssignmentRepository defines the interface for assignment-record queries.
type AssignmentRepository interface {
	GetByPublicID(publicID string) (*models.LeadAssignment, error)
	ListRecent(limit int) ([]models.LeadAssignment, error)
	ListByCustomer(customerID string, limit int) ([]models.LeadAssignment, error)
	MarkDelivered(id uint) error
}
