package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/permitradar/permitradar/app/controllers"
	"github.com/permitradar/permitradar/app/repository"
	"github.com/permitradar/permitradar/internal/pkg/constants"
	"github.com/permitradar/permitradar/internal/pkg/env"
	"github.com/permitradar/permitradar/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		Storage:    limiterStorage(),
	}))

	api.Get(constants.LeadsRoute, controllers.HandleLeadsDownload)
	api.Get(constants.MyLeadsRoute, controllers.HandleMyLeads)
	api.Get(constants.MapLeadsRoute, controllers.HandleMapLeads)

	adminController := controllers.NewAdminController(repository.GetGlobalFactory().GetRepositories())
	admin := api.Group("/admin", middleware.AdminAuthMiddleware())
	admin.Get("/assignments", adminController.HandleAssignments)
	admin.Get("/assignments/:public_id", adminController.HandleAssignmentDetail)
	admin.Post("/assign", adminController.HandleManualAssign)
	admin.Post("/leads", adminController.HandleLeadImport)
	admin.Get("/inventory", adminController.HandleInventory)
	admin.Get("/metrics", adminController.HandleMetrics)
}

// limiterStorage backs the rate limiter with Redis so limits hold across
// instances and restarts.
func limiterStorage() *redis.Storage {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	return redis.New(redis.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     port,
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: 1,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
