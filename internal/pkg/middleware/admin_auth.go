package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/permitradar/permitradar/internal/pkg/env"
)

// AdminAuthMiddleware protects the operator endpoints with HTTP basic auth.
// The password is stored as a bcrypt hash in ADMIN_PASSWORD_HASH so the
// plaintext never lives in the environment.
func AdminAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminUser := env.GetEnv("ADMIN_USER", "")
		passwordHash := env.GetEnv("ADMIN_PASSWORD_HASH", "")
		if adminUser == "" || passwordHash == "" {
			log.Print("admin middleware: ADMIN_USER or ADMIN_PASSWORD_HASH not configured")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Admin access not configured"})
		}

		user, password, ok := parseBasicAuth(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return unauthorized(c)
		}
		if subtle.ConstantTimeCompare([]byte(user), []byte(adminUser)) != 1 {
			return unauthorized(c)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
			return unauthorized(c)
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="admin"`)
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Admin credentials required"})
}

func parseBasicAuth(header string) (user, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	user, password, ok = strings.Cut(string(decoded), ":")
	return user, password, ok
}
