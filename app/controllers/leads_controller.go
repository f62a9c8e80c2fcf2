package controllers

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/app/repository"
	"github.com/permitradar/permitradar/internal/pkg/env"
	"github.com/permitradar/permitradar/internal/pkg/exports"
	"github.com/permitradar/permitradar/internal/pkg/metrics/counter"
	"github.com/permitradar/permitradar/internal/pkg/paywall"
)

// Counter hooks are best-effort; swapped out in tests.
var (
	recordDownload     = counter.AddCSVDownload
	recordAccessDenied = counter.AddAccessDenied
)

// HandleLeadsDownload serves the paywalled CSV export for a city. The gate
// decides entitlement; export storage serves the file.
func HandleLeadsDownload(c *fiber.Ctx) error {
	storage, err := exportStorage()
	if err != nil {
		log.Printf("leads download: export storage unavailable: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Export storage unavailable")
	}
	return leadsDownload(c, accessGate(), storage)
}

func leadsDownload(c *fiber.Ctx, gate *paywall.Gate, storage exports.Storage) error {
	email := c.Query("email")
	city := models.NormalizeCity(c.Query("city"))
	if city == "" {
		city = models.NormalizeCity(env.GetEnv("DEFAULT_CITY", ""))
	}

	if city == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "city is required")
	}
	if !isValidEmail(email) {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "a valid email is required")
	}

	decision, err := gate.CheckAccess(c.UserContext(), email, city)
	if err != nil {
		if errors.Is(err, paywall.ErrInvalidRequest) {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
		}
		// Provider trouble is never a denial: the caller may well be
		// entitled, we just cannot tell right now.
		log.Printf("leads download: access check failed for %s: %v", city, err)
		return jsonError(c, fiber.StatusInternalServerError, "provider_unavailable", "Could not verify access, please retry")
	}
	if !decision.Allowed {
		if err := recordAccessDenied(city); err != nil {
			log.Printf("leads download: denied counter failed: %v", err)
		}
		return jsonError(c, fiber.StatusForbidden, "forbidden", decision.Reason)
	}

	data, err := storage.Fetch(c.UserContext(), city)
	if err != nil {
		if errors.Is(err, exports.ErrNoExport) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No export available for this city yet")
		}
		log.Printf("leads download: export fetch failed for %s: %v", city, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load export")
	}

	if err := recordDownload(city); err != nil {
		log.Printf("leads download: download counter failed: %v", err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, exports.Filename(city)))
	return c.Send(data)
}

// HandleMyLeads lists the leads already granted to the caller, newest grant
// first. Same entitlement check as the CSV download.
func HandleMyLeads(c *fiber.Ctx) error {
	return myLeads(c, accessGate(), repository.GetGlobalFactory().GetRepositories())
}

func myLeads(c *fiber.Ctx, gate *paywall.Gate, repos *repository.Repositories) error {
	email := c.Query("email")
	if !isValidEmail(email) {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "a valid email is required")
	}

	decision, err := gate.CheckAccess(c.UserContext(), email, "")
	if err != nil {
		if errors.Is(err, paywall.ErrInvalidRequest) {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
		}
		log.Printf("my leads: access check failed for %s: %v", email, err)
		return jsonError(c, fiber.StatusInternalServerError, "provider_unavailable", "Could not verify access, please retry")
	}
	if !decision.Allowed {
		return jsonError(c, fiber.StatusForbidden, "forbidden", decision.Reason)
	}

	customer, err := repos.Customer.GetByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Entitled but no purchase mirrored yet (allow-listed accounts,
			// webhook lag): an empty list, not an error.
			return c.JSON(fiber.Map{"leads": []models.Lead{}})
		}
		log.Printf("my leads: customer lookup failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Customer lookup failed")
	}

	limit := parseLimit(c.Query("limit"), 100, 500)
	granted, err := repos.Lead.ListAssignedToCustomer(customer.ProviderCustomerID, limit)
	if err != nil {
		log.Printf("my leads: lead query failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Lead query failed")
	}
	if granted == nil {
		granted = []models.Lead{}
	}
	return c.JSON(fiber.Map{"leads": granted})
}
