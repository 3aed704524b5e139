package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"orderform_backend/internal/billing"
	"orderform_backend/internal/model"
	"orderform_backend/pkg/plan"
)

var quotaDBSeq int64

type countStub struct {
	count int
}

func (s *countStub) CountTaggedOrders(ctx context.Context, shopDomain, token, tag string, since time.Time) (int, error) {
	return s.count, nil
}

func setupQuotaTest(t *testing.T) (*gorm.DB, *model.Shop, *countStub, *fiber.App) {
	t.Helper()

	dsn := fmt.Sprintf("file:quota_test_%d?mode=memory&cache=shared",
		atomic.AddInt64(&quotaDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Shop{}, &model.ShopSubscription{}))

	shop := &model.Shop{
		ShopifyID:   77,
		Domain:      "example.myshopify.com",
		AccessToken: "shpat_token",
		Plan:        model.PlanFree,
	}
	require.NoError(t, db.Create(shop).Error)

	repo := billing.NewRepository(db)
	counter := &countStub{}
	resolver := billing.NewResolver(repo, counter, "orderform-cod")

	app := fiber.New()
	app.Post("/orders",
		func(c *fiber.Ctx) error {
			c.Locals("shopDomain", "example.myshopify.com")
			return c.Next()
		},
		CheckOrderLimit(resolver),
		func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusCreated)
		})

	return db, shop, counter, app
}

func postOrder(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/orders", nil))
	require.NoError(t, err)
	return resp
}

func TestCheckOrderLimitBoundary(t *testing.T) {
	_, _, counter, app := setupQuotaTest(t)

	counter.count = 49
	assert.Equal(t, fiber.StatusCreated, postOrder(t, app).StatusCode,
		"one below the limit is allowed")

	counter.count = 50
	resp := postOrder(t, app)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "at the limit is refused")

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(50), body["order_limit"])
	assert.Equal(t, plan.PaidPriceUSD, body["upgrade_price_usd"])
}

func TestCheckOrderLimitUnlimitedPlan(t *testing.T) {
	db, shop, counter, app := setupQuotaTest(t)

	repo := billing.NewRepository(db)
	started := time.Now().Add(-time.Hour)
	require.NoError(t, repo.UpsertSubscription(shop, billing.SubscriptionEvent{
		ChargeID:  "801",
		Status:    "ACTIVE",
		Price:     9.99,
		StartedAt: &started,
	}))

	counter.count = 5000
	assert.Equal(t, fiber.StatusCreated, postOrder(t, app).StatusCode,
		"paid plan is not count-gated")
}

func TestCheckOrderLimitUnknownShop(t *testing.T) {
	db, _, _, _ := setupQuotaTest(t)

	repo := billing.NewRepository(db)
	resolver := billing.NewResolver(repo, &countStub{}, "orderform-cod")

	app := fiber.New()
	app.Post("/orders",
		func(c *fiber.Ctx) error {
			c.Locals("shopDomain", "gone.myshopify.com")
			return c.Next()
		},
		CheckOrderLimit(resolver),
		func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusCreated)
		})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/orders", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
