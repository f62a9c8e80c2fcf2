package controllers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/app/repository"
	"github.com/permitradar/permitradar/internal/pkg/leads"
	"github.com/permitradar/permitradar/internal/pkg/metrics/counter"
)

// AdminController serves the operator JSON endpoints using the repository pattern.
type AdminController struct {
	repos  *repository.Repositories
	ledger *leads.Ledger
}

// NewAdminController creates a new admin controller with repository dependencies
func NewAdminController(repos *repository.Repositories) *AdminController {
	return &AdminController{
		repos:  repos,
		ledger: leads.NewLedger(repos.Lead),
	}
}

// HandleAssignments lists recent lead assignments, newest first.
func (ac *AdminController) HandleAssignments(c *fiber.Ctx) error {
	limit := parseLimit(c.Query("limit"), 50, 500)

	if customerID := c.Query("customer"); customerID != "" {
		assignments, err := ac.repos.Assignment.ListByCustomer(customerID, limit)
		if err != nil {
			log.Printf("admin assignments: customer query failed: %v", err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Assignment query failed")
		}
		return c.JSON(fiber.Map{"assignments": assignments})
	}

	assignments, err := ac.repos.Assignment.ListRecent(limit)
	if err != nil {
		log.Printf("admin assignments: query failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Assignment query failed")
	}
	return c.JSON(fiber.Map{"assignments": assignments})
}

// HandleAssignmentDetail resolves one assignment by its public id and
// expands the granted leads for the operator view.
func (ac *AdminController) HandleAssignmentDetail(c *fiber.Ctx) error {
	publicID := c.Params("public_id")

	assignment, err := ac.repos.Assignment.GetByPublicID(publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No assignment with this id")
		}
		log.Printf("admin assignment detail: lookup failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Assignment lookup failed")
	}

	ids, err := assignment.LeadIDs()
	if err != nil {
		log.Printf("admin assignment detail: corrupt lead id list on %s: %v", assignment.PublicID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Assignment record unreadable")
	}

	granted := make([]models.Lead, 0, len(ids))
	for _, id := range ids {
		lead, err := ac.repos.Lead.GetByID(id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("admin assignment detail: lead %d on %s no longer exists", id, assignment.PublicID)
				continue
			}
			log.Printf("admin assignment detail: lead %d lookup failed: %v", id, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Lead lookup failed")
		}
		granted = append(granted, *lead)
	}

	return c.JSON(fiber.Map{"assignment": assignment, "leads": granted})
}

type manualAssignRequest struct {
	CustomerID     string `json:"customer_id" validate:"required"`
	City           string `json:"city" validate:"required"`
	SubscriptionID string `json:"subscription_id"`
}

// HandleManualAssign grants a lead batch outside the billing pipeline, for
// support cases where an operator makes a customer whole by hand. The grant
// goes through the same ledger as webhook-driven assignments.
func (ac *AdminController) HandleManualAssign(c *fiber.Ctx) error {
	var req manualAssignRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Request body must be JSON")
	}
	if err := validate.Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "customer_id and city are required")
	}
	if req.SubscriptionID == "" {
		req.SubscriptionID = "manual"
	}

	assignment, err := ac.ledger.AssignLeads(c.UserContext(), req.CustomerID, req.City, req.SubscriptionID)
	if err != nil {
		var noLeads *leads.NoLeadsAvailableError
		if errors.As(err, &noLeads) {
			return jsonError(c, fiber.StatusConflict, "no_leads_available", noLeads.Error())
		}
		log.Printf("admin assign: manual grant failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Assignment failed")
	}

	remaining, err := ac.repos.Lead.CountUnassignedByCity(assignment.City)
	if err != nil {
		log.Printf("admin assign: remaining count for %s failed: %v", assignment.City, err)
		remaining = -1
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"assignment": assignment,
		"remaining":  remaining,
	})
}

// HandleLeadImport inserts a single scraped permit into the pool, deduplicated
// by permit id. The ingestion backend normally writes leads in bulk; this is
// the operator's backfill path.
func (ac *AdminController) HandleLeadImport(c *fiber.Ctx) error {
	var lead models.Lead
	if err := c.BodyParser(&lead); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Request body must be JSON")
	}

	// Imported leads always enter the pool unassigned.
	lead.ID = 0
	lead.Status = models.LeadStatusUnassigned
	lead.AssignedTo = ""
	lead.AssignedDate = nil
	lead.SubscriptionID = ""
	if lead.IssuedDate.IsZero() {
		lead.IssuedDate = time.Now()
	}
	if err := lead.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "permit_id and city are required")
	}

	if _, err := ac.repos.Lead.GetByPermitID(lead.PermitID); err == nil {
		return jsonError(c, fiber.StatusConflict, "duplicate_permit", "A lead with this permit id already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("admin lead import: permit lookup failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Lead lookup failed")
	}

	if err := ac.repos.Lead.Create(&lead); err != nil {
		log.Printf("admin lead import: insert failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Lead insert failed")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"lead": lead})
}

// HandleInventory reports how many unassigned leads remain per city, so an
// operator can see exhaustion coming before a renewal hits an empty pool.
// A city query narrows the report to one pool.
func (ac *AdminController) HandleInventory(c *fiber.Ctx) error {
	if city := models.NormalizeCity(c.Query("city")); city != "" {
		count, err := ac.repos.Lead.CountUnassignedByCity(city)
		if err != nil {
			log.Printf("admin inventory: count for %s failed: %v", city, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Inventory query failed")
		}
		return c.JSON(fiber.Map{"inventory": []repository.CityInventory{{City: city, Unassigned: count}}})
	}

	inventory, err := ac.repos.Lead.UnassignedCountsByCity()
	if err != nil {
		log.Printf("admin inventory: query failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Inventory query failed")
	}
	return c.JSON(fiber.Map{"inventory": inventory})
}

// HandleMetrics dumps the Redis counters (downloads, denials, shortfalls).
func (ac *AdminController) HandleMetrics(c *fiber.Ctx) error {
	snapshot, err := counter.Snapshot()
	if err != nil {
		log.Printf("admin metrics: snapshot failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Metrics unavailable")
	}
	return c.JSON(fiber.Map{"counters": snapshot})
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
