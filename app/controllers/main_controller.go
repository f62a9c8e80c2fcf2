package controllers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/permitradar/permitradar/app/repository"
	"github.com/permitradar/permitradar/internal/pkg/env"
)

// HandleHome renders the landing page.
func HandleHome(c *fiber.Ctx) error {
	return c.Render("home", fiber.Map{
		"Title": "Fresh construction permit leads for contractors",
		"IsDev": env.IsDev(),
	}, "layouts/main")
}

// HandlePricing renders the pricing page.
func HandlePricing(c *fiber.Ctx) error {
	return c.Render("pricing", fiber.Map{
		"Title": "Pricing",
		"IsDev": env.IsDev(),
	}, "layouts/main")
}

// HandleCities renders the city coverage page with live inventory counts.
func HandleCities(c *fiber.Ctx) error {
	inventory, err := repository.GetGlobalFactory().GetLeadRepository().UnassignedCountsByCity()
	if err != nil {
		log.Printf("cities page: inventory query failed: %v", err)
		inventory = nil
	}
	return c.Render("cities", fiber.Map{
		"Title":     "Covered cities",
		"IsDev":     env.IsDev(),
		"Inventory": inventory,
	}, "layouts/main")
}
