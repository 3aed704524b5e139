package controller

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"orderform_backend/internal/billing"
	"orderform_backend/internal/model"
	"orderform_backend/pkg/shopify"
)

type WebhookController struct {
	secret string
	repo   *billing.Repository
}

func NewWebhookController(secret string, repo *billing.Repository) *WebhookController {
	return &WebhookController{secret: secret, repo: repo}
}

// verifiedBody checks the HMAC header against the raw body before anything
// parses it. Returns the raw bytes and whether the request is authentic.
func (wc *WebhookController) verifiedBody(c *fiber.Ctx) ([]byte, bool) {
	body := c.Body()
	return body, shopify.VerifyWebhookSignature(wc.secret, body, c.Get("X-Shopify-Hmac-Sha256"))
}

type appSubscriptionPayload struct {
	AppSubscription struct {
		AdminGraphqlAPIID     string `json:"admin_graphql_api_id"`
		AdminGraphqlAPIShopID string `json:"admin_graphql_api_shop_id"`
		Name                  string `json:"name"`
		Status                string `json:"status"`
		Price                 string `json:"price"`
		Currency              string `json:"currency"`
		CreatedAt             string `json:"created_at"`
		CurrentPeriodEnd      string `json:"current_period_end"`
	} `json:"app_subscription"`
}

// HandleAppSubscriptionUpdate feeds the subscription projection from the
// platform's app_subscriptions/update webhook. It funnels into the same
// upsert as the billing confirm redirect, so duplicate or out-of-order
// deliveries converge on the same row.
func (wc *WebhookController) HandleAppSubscriptionUpdate(c *fiber.Ctx) error {
	body, ok := wc.verifiedBody(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	var payload appSubscriptionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Malformed payload",
		})
	}
	if payload.AppSubscription.AdminGraphqlAPIID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Malformed payload",
		})
	}

	shopID := parseGlobalNumericID(payload.AppSubscription.AdminGraphqlAPIShopID)
	shop, err := wc.repo.ResolveShop(shopID, c.Get("X-Shopify-Shop-Domain"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not resolve shop",
		})
	}
	// Unknown shop acknowledges as success so the platform stops
	// redelivering; an uninstalled shop keeps its cancelled state.
	if shop == nil || !shop.Installed() {
		return c.SendStatus(fiber.StatusOK)
	}

	price, _ := strconv.ParseFloat(payload.AppSubscription.Price, 64)
	event := billing.SubscriptionEvent{
		ChargeID:     payload.AppSubscription.AdminGraphqlAPIID,
		Status:       payload.AppSubscription.Status,
		Price:        price,
		CurrencyCode: payload.AppSubscription.Currency,
		StartedAt:    parseTimestamp(payload.AppSubscription.CreatedAt),
		// The webhook is authoritative for the expiry; an absent
		// current_period_end means recurring, never expires.
		ExpiresAt:      parseTimestamp(payload.AppSubscription.CurrentPeriodEnd),
		ExpiresAtKnown: true,
	}

	if err := wc.repo.UpsertSubscription(shop, event); err != nil {
		log.Printf("Could not upsert subscription for %s: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not update subscription",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

// HandleAppUninstalled revokes access and cancels all subscription rows.
func (wc *WebhookController) HandleAppUninstalled(c *fiber.Ctx) error {
	body, ok := wc.verifiedBody(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	var payload struct {
		ID     int64  `json:"id"`
		Domain string `json:"myshopify_domain"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Malformed payload",
		})
	}

	domain := payload.Domain
	if domain == "" {
		domain = c.Get("X-Shopify-Shop-Domain")
	}

	shop, err := wc.repo.ResolveShop(payload.ID, domain)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not resolve shop",
		})
	}
	if shop == nil {
		return c.SendStatus(fiber.StatusOK)
	}

	if err := wc.repo.MarkUninstalled(shop); err != nil {
		log.Printf("Could not mark %s uninstalled: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not process uninstall",
		})
	}

	log.Printf("Shop %s uninstalled", shop.Domain)
	return c.SendStatus(fiber.StatusOK)
}

// HandleCustomersDataRequest acknowledges the GDPR data request. Orders live
// entirely on the platform; no customer PII is stored here.
func (wc *WebhookController) HandleCustomersDataRequest(c *fiber.Ctx) error {
	if _, ok := wc.verifiedBody(c); !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}
	return c.SendStatus(fiber.StatusOK)
}

// HandleCustomersRedact acknowledges the GDPR customer redact. Same as the
// data request: nothing customer-level is stored locally.
func (wc *WebhookController) HandleCustomersRedact(c *fiber.Ctx) error {
	if _, ok := wc.verifiedBody(c); !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}
	return c.SendStatus(fiber.StatusOK)
}

// HandleShopRedact purges every record the shop owns. A shop that is already
// gone acknowledges as success.
func (wc *WebhookController) HandleShopRedact(c *fiber.Ctx) error {
	body, ok := wc.verifiedBody(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	var payload struct {
		ShopID     int64  `json:"shop_id"`
		ShopDomain string `json:"shop_domain"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Malformed payload",
		})
	}

	shop, err := wc.repo.ResolveShop(payload.ShopID, payload.ShopDomain)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not resolve shop",
		})
	}
	if shop == nil {
		return c.SendStatus(fiber.StatusOK)
	}

	if err := wc.repo.PurgeShop(shop); err != nil {
		log.Printf("Could not purge shop %s: %v", shop.Domain, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not purge shop data",
		})
	}

	log.Printf("Shop %s redacted", payload.ShopDomain)
	return c.SendStatus(fiber.StatusOK)
}

func parseGlobalNumericID(gid string) int64 {
	id, _ := strconv.ParseInt(model.NormalizeChargeID(gid), 10, 64)
	return id
}

func parseTimestamp(value string) *time.Time {
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &parsed
}
