package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"orderform_backend/internal/billing"
	"orderform_backend/pkg/config"
	"orderform_backend/pkg/plan"
	"orderform_backend/pkg/shopify"
)

// confirmTimeout bounds the charge-detail/activate/re-fetch sequence on the
// billing confirm redirect. The merchant is redirected either way.
const confirmTimeout = 10 * time.Second

const paidPlanName = "Unlimited Orders"

type BillingController struct {
	cfg      config.ShopifyConfig
	repo     *billing.Repository
	gateway  *shopify.Client
	resolver *billing.Resolver
}

func NewBillingController(cfg config.ShopifyConfig, repo *billing.Repository, gateway *shopify.Client, resolver *billing.Resolver) *BillingController {
	return &BillingController{cfg: cfg, repo: repo, gateway: gateway, resolver: resolver}
}

func (bc *BillingController) ListPlans(c *fiber.Ctx) error {
	freeLimits := plan.GetLimits(plan.Free)
	return c.JSON([]fiber.Map{
		{
			"plan_type":   plan.Free,
			"price":       0,
			"order_limit": freeLimits.OrderLimit,
		},
		{
			"plan_type":     plan.Paid,
			"price":         plan.PaidPriceUSD,
			"is_unlimited":  true,
			"billing_cycle": plan.PaidBillingCycle,
		},
	})
}

// Subscribe creates a recurring charge and hands back the confirmation URL
// the merchant must approve on. The pending charge is recorded through the
// same upsert the webhook and confirm paths use.
func (bc *BillingController) Subscribe(c *fiber.Ctx) error {
	shopDomain := c.Locals("shopDomain").(string)

	shop, err := bc.repo.ShopByDomain(shopDomain)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not resolve shop",
		})
	}
	if shop == nil || !shop.Installed() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Shop is not installed",
		})
	}

	returnURL := fmt.Sprintf("%s/api/billing/confirm?shop=%s", bc.cfg.AppURL, shop.Domain)
	charge, err := bc.gateway.CreateRecurringCharge(c.UserContext(), shop.Domain, shop.AccessToken,
		paidPlanName, plan.PaidPriceUSD, plan.PaidBillingCycle, returnURL)
	if err != nil {
		log.Printf("Could not create recurring charge for %s: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create charge",
		})
	}

	if err := bc.repo.UpsertSubscription(shop, chargeToEvent(charge)); err != nil {
		log.Printf("Could not record pending charge for %s: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not save subscription",
		})
	}

	return c.JSON(fiber.Map{
		"confirmation_url": charge.ConfirmationURL,
	})
}

// HandleBillingConfirm is the redirect target after checkout. Reconciliation
// runs under a bounded timeout and its outcome is only logged; the merchant
// is always redirected back to the plans screen, never shown a raw error.
func (bc *BillingController) HandleBillingConfirm(c *fiber.Ctx) error {
	shopDomain := c.Query("shop")
	chargeID := c.Query("charge_id")

	if shopDomain != "" && chargeID != "" {
		if err := bc.reconcileCharge(shopDomain, chargeID); err != nil {
			log.Printf("Billing confirm reconciliation failed for %s charge %s: %v",
				shopDomain, chargeID, err)
		}
	} else {
		log.Printf("Billing confirm called without shop/charge_id (shop=%q)", shopDomain)
	}

	return c.Redirect(bc.plansPageURL(shopDomain))
}

// reconcileCharge runs fetch → activate → re-fetch and funnels the fresh
// status through the same upsert as the subscription webhook, so whichever
// of the two arrives first establishes the row.
func (bc *BillingController) reconcileCharge(shopDomain, chargeID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	shop, err := bc.repo.ShopByDomain(shopDomain)
	if err != nil {
		return err
	}
	if shop == nil {
		return billing.ErrUnknownShop
	}
	if !shop.Installed() {
		return fmt.Errorf("shop %s is not installed", shopDomain)
	}

	charge, err := bc.gateway.GetRecurringCharge(ctx, shop.Domain, shop.AccessToken, chargeID)
	if err != nil {
		return err
	}
	if charge == nil {
		return fmt.Errorf("charge %s does not exist", chargeID)
	}

	if _, err := bc.gateway.ActivateCharge(ctx, shop.Domain, shop.AccessToken, chargeID); err != nil {
		return err
	}

	charge, err = bc.gateway.GetRecurringCharge(ctx, shop.Domain, shop.AccessToken, chargeID)
	if err != nil {
		return err
	}
	if charge == nil {
		return fmt.Errorf("charge %s disappeared after activation", chargeID)
	}

	return bc.repo.UpsertSubscription(shop, chargeToEvent(charge))
}

func (bc *BillingController) plansPageURL(shopDomain string) string {
	if shopDomain == "" {
		return bc.cfg.AppURL + "/plans"
	}
	return fmt.Sprintf("https://%s/admin/apps/%s/plans", shopDomain, bc.cfg.APIKey)
}

// GetMyPlan returns the current entitlement. The read itself corrects any
// stale expired/cancelled state it finds.
func (bc *BillingController) GetMyPlan(c *fiber.Ctx) error {
	shopDomain := c.Locals("shopDomain").(string)

	entitlement, err := bc.resolver.ResolveEntitlement(c.UserContext(), shopDomain)
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

	return c.JSON(entitlement)
}

func chargeToEvent(charge *shopify.RecurringCharge) billing.SubscriptionEvent {
	price, _ := strconv.ParseFloat(charge.Price, 64)
	return billing.SubscriptionEvent{
		ChargeID:     strconv.FormatInt(charge.ID, 10),
		Status:       charge.Status,
		Price:        price,
		CurrencyCode: charge.Currency,
		BillingCycle: plan.PaidBillingCycle,
		StartedAt:    parseTimestamp(charge.CreatedAt),
		// The REST charge carries no expiry data; ExpiresAtKnown stays
		// false so the merge keeps whatever a webhook recorded.
	}
}
