package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"orderform_backend/internal/billing"
	"orderform_backend/internal/controller"
	"orderform_backend/internal/middleware"
	"orderform_backend/internal/model"
	"orderform_backend/pkg/config"
	"orderform_backend/pkg/cron"
	"orderform_backend/pkg/database"
	"orderform_backend/pkg/shopify"
)

type controllers struct {
	webhooks *controller.WebhookController
	billing  *controller.BillingController
	forms    *controller.FormController
	orders   *controller.OrderController
}

func setupRoutes(app *fiber.App, cfg *config.Config, ctrl controllers, resolver *billing.Resolver) {
	api := app.Group("/api")

	// Webhooks (signature-verified on the raw body, no session)
	webhooks := api.Group("/webhooks")
	webhooks.Post("/app-subscriptions-update", ctrl.webhooks.HandleAppSubscriptionUpdate)
	webhooks.Post("/app-uninstalled", ctrl.webhooks.HandleAppUninstalled)
	webhooks.Post("/customers-data-request", ctrl.webhooks.HandleCustomersDataRequest)
	webhooks.Post("/customers-redact", ctrl.webhooks.HandleCustomersRedact)
	webhooks.Post("/shop-redact", ctrl.webhooks.HandleShopRedact)

	// Billing
	billingRoutes := api.Group("/billing")
	billingRoutes.Get("/plans", ctrl.billing.ListPlans)
	billingRoutes.Get("/confirm", ctrl.billing.HandleBillingConfirm) // checkout return URL

	session := middleware.SessionAuth(cfg.Shopify.APIKey, cfg.Shopify.APISecret)
	billingProtected := billingRoutes.Use(session)
	billingProtected.Post("/subscribe", ctrl.billing.Subscribe)
	billingProtected.Get("/my-plan", ctrl.billing.GetMyPlan)

	// Forms
	forms := api.Group("/forms", session)
	forms.Get("/", ctrl.forms.ListForms)
	forms.Post("/", ctrl.forms.CreateForm)
	forms.Put("/:public_id", ctrl.forms.UpdateForm)
	forms.Delete("/:public_id", ctrl.forms.DeleteForm)

	// Order submission with the quota gate
	api.Post("/orders", session, middleware.CheckOrderLimit(resolver), ctrl.orders.CreateOrder)
}

func main() {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is not set in .env")
	}

	db, err := database.InitDB(cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	err = database.MigrateDatabase(db,
		&model.Shop{},
		&model.ShopSubscription{},
		&model.Form{},
		&model.ShippingFee{},
		&model.OnboardingProgress{},
		&model.PixelCredential{},
	)
	if err != nil {
		log.Printf("Migration warning: %v", err)
	}

	repo := billing.NewRepository(db)
	gateway := shopify.NewClient(cfg.Shopify.APIVersion)
	resolver := billing.NewResolver(repo, gateway, cfg.Shopify.OrderTag)

	ctrl := controllers{
		webhooks: controller.NewWebhookController(cfg.Shopify.APISecret, repo),
		billing:  controller.NewBillingController(cfg.Shopify, repo, gateway, resolver),
		forms:    controller.NewFormController(db, repo),
		orders:   controller.NewOrderController(db, repo, gateway, cfg.Shopify.OrderTag),
	}

	cron.InitSubscriptionExpiryCron(repo)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New())

	setupRoutes(app, cfg, ctrl, resolver)

	log.Printf("Server is running on port %s", cfg.Server.Port)
	log.Fatal(app.Listen(":" + cfg.Server.Port))
}
