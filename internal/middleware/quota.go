package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"orderform_backend/internal/billing"
)

// CheckOrderLimit gates order creation on the shop's entitlement. Free shops
// at their monthly cap are refused with the limit and the upgrade price; paid
// shops pass regardless of count. The resolved entitlement is left in locals
// so the handler does not resolve twice.
func CheckOrderLimit(resolver *billing.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		shopDomain := c.Locals("shopDomain").(string)

		entitlement, err := resolver.ResolveEntitlement(c.UserContext(), shopDomain)
		if err != nil {
			if errors.Is(err, billing.ErrUnknownShop) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Shop not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Could not resolve entitlement",
			})
		}

		if !entitlement.CanCreateOrder() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":             "You have reached your monthly order limit. Please upgrade your plan.",
				"order_count":       entitlement.OrderCount,
				"order_limit":       entitlement.OrderLimit,
				"upgrade_price_usd": entitlement.UpgradePriceUSD,
			})
		}

		c.Locals("entitlement", entitlement)
		return c.Next()
	}
}
