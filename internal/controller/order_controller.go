package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"orderform_backend/internal/billing"
	"orderform_backend/internal/model"
	"orderform_backend/pkg/shopify"
)

type OrderInput struct {
	CustomerName string `json:"customer_name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Region       string `json:"region"`
	VariantID    int64  `json:"variant_id" validate:"required"`
	Quantity     int    `json:"quantity"`
}

type OrderController struct {
	repo     *billing.Repository
	db       *gorm.DB
	gateway  *shopify.Client
	orderTag string
}

func NewOrderController(db *gorm.DB, repo *billing.Repository, gateway *shopify.Client, orderTag string) *OrderController {
	return &OrderController{repo: repo, db: db, gateway: gateway, orderTag: orderTag}
}

// CreateOrder submits a tagged COD order to the platform. The quota
// middleware has already refused shops over their free-tier limit.
func (oc *OrderController) CreateOrder(c *fiber.Ctx) error {
	shopDomain := c.Locals("shopDomain").(string)

	shop, err := oc.repo.ShopByDomain(shopDomain)
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

	input := new(OrderInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}
	if input.CustomerName == "" || input.Phone == "" || input.VariantID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "customer_name, phone and variant_id are required",
		})
	}
	if input.Quantity <= 0 {
		input.Quantity = 1
	}

	orderID, err := oc.gateway.CreateOrder(c.UserContext(), shop.Domain, shop.AccessToken, shopify.OrderInput{
		CustomerName:  input.CustomerName,
		Phone:         input.Phone,
		Address:       input.Address,
		City:          input.City,
		VariantID:     input.VariantID,
		Quantity:      input.Quantity,
		ShippingPrice: oc.shippingFee(shop.ID, input.Region),
		Tag:           oc.orderTag,
	})
	if err != nil {
		log.Printf("Could not create order for %s: %v", shop.Domain, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Could not create order",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id": orderID,
	})
}

// shippingFee looks up the shop's flat fee for the region, zero if none is
// configured.
func (oc *OrderController) shippingFee(shopID uint, region string) float64 {
	if region == "" {
		return 0
	}
	var fee model.ShippingFee
	err := oc.db.Where("shop_id = ? AND region = ?", shopID, region).First(&fee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	if err != nil {
		log.Printf("Could not look up shipping fee: %v", err)
		return 0
	}
	return fee.Amount
}
