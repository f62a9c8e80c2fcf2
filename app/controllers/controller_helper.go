package controllers

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/permitradar/permitradar/internal/pkg/billing"
	"github.com/permitradar/permitradar/internal/pkg/env"
	"github.com/permitradar/permitradar/internal/pkg/exports"
	"github.com/permitradar/permitradar/internal/pkg/paywall"
)

var validate = validator.New()

// isValidEmail runs the same email validation the models use.
func isValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// allowedEmails returns the operator allow-list from ALLOWED_EMAILS
// (comma-separated), accounts that bypass the paywall entirely.
func allowedEmails() []string {
	raw := env.GetEnv("ALLOWED_EMAILS", "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	emails := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			emails = append(emails, p)
		}
	}
	return emails
}

var (
	gateOnce   sync.Once
	sharedGate *paywall.Gate

	storageOnce   sync.Once
	sharedStorage exports.Storage
	storageErr    error
)

// accessGate returns the shared paywall gate backed by Stripe.
func accessGate() *paywall.Gate {
	gateOnce.Do(func() {
		sharedGate = paywall.NewGate(billing.NewStripeClientFromEnv(), allowedEmails())
	})
	return sharedGate
}

// exportStorage returns the shared CSV export backend.
func exportStorage() (exports.Storage, error) {
	storageOnce.Do(func() {
		sharedStorage, storageErr = exports.NewStorageFromEnv()
	})
	return sharedStorage, storageErr
}
