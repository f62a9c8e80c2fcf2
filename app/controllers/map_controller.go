package controllers

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/internal/pkg/backend"
	"github.com/permitradar/permitradar/internal/pkg/cache"
)

const mapCacheExpiration = 5 * time.Minute

var (
	backendOnce   sync.Once
	backendClient *backend.Client
)

func mapBackend() *backend.Client {
	backendOnce.Do(func() {
		backendClient = backend.NewClientFromEnv()
	})
	return backendClient
}

// Cache hooks are swapped out in tests.
var (
	mapCacheGet = cache.Get
	mapCacheSet = func(key string, value string) error {
		return cache.Set(key, value, mapCacheExpiration)
	}
)

// HandleMapLeads proxies the public map feed from the scraper backend with a
// short Redis cache in front, so map traffic never hammers the backend.
func HandleMapLeads(c *fiber.Ctx) error {
	city := models.NormalizeCity(c.Query("city"))
	if city == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "city is required")
	}

	cacheKey := "mapleads:" + city
	if cached, err := mapCacheGet(cacheKey); err == nil && cached != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(cached)
	}

	payload, err := mapBackend().GetMapLeads(c.UserContext(), city)
	if err != nil {
		log.Printf("map leads: backend fetch failed for %s: %v", city, err)
		return jsonError(c, fiber.StatusBadGateway, "backend_unavailable", "Map data temporarily unavailable")
	}

	if err := mapCacheSet(cacheKey, string(payload)); err != nil {
		log.Printf("map leads: cache write failed for %s: %v", city, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(payload)
}
