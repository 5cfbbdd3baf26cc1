package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RoomAuthMiddleware admits requests carrying a valid join token for
// the room named in the :roomKey path parameter. The claims are placed
// in locals for the handler.
func RoomAuthMiddleware(tokens *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		token := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid authorization header format",
				})
			}
			token = parts[1]
		} else {
			// Browser clients may only be able to pass a query param.
			token = c.Query("token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization token",
			})
		}

		claims, err := tokens.Validate(token, c.Params("roomKey"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}
