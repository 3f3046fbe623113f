package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/interview-engine/internal/auth"
	"alfredoptarigan/interview-engine/internal/models"
)

const identityKey = "identity"

// RequireIdentity verifies the bearer token and stores the caller identity
// in the request locals.
func RequireIdentity(tokens *auth.TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token",
			})
		}

		identity, err := tokens.Verify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

func IdentityFrom(c *fiber.Ctx) (models.Identity, bool) {
	identity, ok := c.Locals(identityKey).(models.Identity)
	return identity, ok
}
