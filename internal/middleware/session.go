package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

// SessionAuth verifies the embedded-app session token the admin frontend
// sends as a Bearer token. The token is an HS256 JWT signed with the app
// secret; the shop domain comes from the dest claim and is stored in locals
// for the handlers.
func SessionAuth(apiKey, apiSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		if raw == "" || raw == c.Get("Authorization") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing session token",
			})
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(apiSecret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid session token",
			})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid session token",
			})
		}
		if aud, _ := claims["aud"].(string); aud != "" && aud != apiKey {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Session token audience mismatch",
			})
		}

		dest, _ := claims["dest"].(string)
		shopDomain := strings.TrimPrefix(dest, "https://")
		if shopDomain == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Session token has no shop",
			})
		}

		c.Locals("shopDomain", shopDomain)
		return c.Next()
	}
}
