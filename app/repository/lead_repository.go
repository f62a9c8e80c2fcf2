package repository

import (
	"context"
	"errors"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/internal/pkg/leads"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MySQL error numbers that mean "retry the transaction".
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// leadRepository implements the LeadRepository interface
type leadRepository struct {
	db *gorm.DB
}

// NewLeadRepository creates a new lead repository instance
func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &leadRepository{db: db}
}

// ClaimBatch runs one transactional claim attempt: lock the most recent
// unassigned leads for the city, flip them to assigned and write the audit
// record. The UPDATE is guarded by the unassigned status and its affected
// row count; any mismatch or InnoDB deadlock surfaces as
// leads.ErrClaimConflict so the ledger retries from a fresh read. The
// invariant this protects: a lead is assigned to at most one customer, ever.
func (r *leadRepository) ClaimBatch(ctx context.Context, req leads.ClaimRequest) (*models.LeadAssignment, error) {
	var assignment *models.LeadAssignment

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pool []models.Lead
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("city = ? AND status = ?", req.City, models.LeadStatusUnassigned).
			Order("issued_date DESC").
			Order("id DESC").
			Limit(req.BatchSize).
			Find(&pool).Error; err != nil {
			return err
		}
		if len(pool) == 0 {
			return &leads.NoLeadsAvailableError{City: req.City}
		}

		ids := make([]uint, 0, len(pool))
		for _, lead := range pool {
			ids = append(ids, lead.ID)
		}

		now := time.Now()
		res := tx.Model(&models.Lead{}).
			Where("id IN ? AND status = ?", ids, models.LeadStatusUnassigned).
			Updates(map[string]interface{}{
				"status":          models.LeadStatusAssigned,
				"assigned_to":     req.CustomerID,
				"assigned_date":   now,
				"subscription_id": req.SubscriptionID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return leads.ErrClaimConflict
		}

		record := &models.LeadAssignment{
			PublicID:       uuid.New().String(),
			CustomerID:     req.CustomerID,
			City:           req.City,
			SubscriptionID: req.SubscriptionID,
			AssignedAt:     now,
		}
		if err := record.SetLeadIDs(ids); err != nil {
			return err
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		assignment = record
		return nil
	})
	if err != nil {
		if isRetryableTxError(err) {
			return nil, leads.ErrClaimConflict
		}
		return nil, err
	}
	return assignment, nil
}

// Create inserts a lead (used by seeds and the ingestion import).
func (r *leadRepository) Create(lead *models.Lead) error {
	lead.City = models.NormalizeCity(lead.City)
	return r.db.Create(lead).Error
}

// GetByID retrieves a lead by its ID
func (r *leadRepository) GetByID(id uint) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.First(&lead, id).Error
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// GetByPermitID retrieves a lead by the source permit identifier
func (r *leadRepository) GetByPermitID(permitID string) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.Where("permit_id = ?", permitID).First(&lead).Error
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// ListAssignedToCustomer returns leads owned by a customer, newest grant first
func (r *leadRepository) ListAssignedToCustomer(customerID string, limit int) ([]models.Lead, error) {
	var result []models.Lead
	err := r.db.Where("assigned_to = ?", customerID).
		Order("assigned_date DESC").
		Limit(limit).
		Find(&result).Error
	return result, err
}

// CountUnassignedByCity counts the remaining pool for one city
func (r *leadRepository) CountUnassignedByCity(city string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Lead{}).
		Where("city = ? AND status = ?", models.NormalizeCity(city), models.LeadStatusUnassigned).
		Count(&count).Error
	return count, err
}

// UnassignedCountsByCity returns the remaining pool sizes across all cities
func (r *leadRepository) UnassignedCountsByCity() ([]CityInventory, error) {
	var result []CityInventory
	err := r.db.Model(&models.Lead{}).
		Select("city, COUNT(*) AS unassigned").
		Where("status = ?", models.LeadStatusUnassigned).
		Group("city").
		Order("city ASC").
		Scan(&result).Error
	return result, err
}

func isRetryableTxError(err error) bool {
	if errors.Is(err, leads.ErrClaimConflict) {
		return true
	}
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDeadlock || mysqlErr.Number == mysqlErrLockWaitTimeout
	}
	return false
}
