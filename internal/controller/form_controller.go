package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"orderform_backend/internal/billing"
	"orderform_backend/internal/model"
)

type FormInput struct {
	Name     string         `json:"name" validate:"required"`
	IsActive *bool          `json:"is_active"`
	Schema   datatypes.JSON `json:"schema"`
}

type FormController struct {
	db   *gorm.DB
	repo *billing.Repository
}

func NewFormController(db *gorm.DB, repo *billing.Repository) *FormController {
	return &FormController{db: db, repo: repo}
}

func (fc *FormController) shopFromLocals(c *fiber.Ctx) (*model.Shop, error) {
	shopDomain := c.Locals("shopDomain").(string)
	return fc.repo.ShopByDomain(shopDomain)
}

func (fc *FormController) ListForms(c *fiber.Ctx) error {
	shop, err := fc.shopFromLocals(c)
	if err != nil || shop == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Shop not found",
		})
	}

	var forms []model.Form
	if err := fc.db.Where("shop_id = ?", shop.ID).Find(&forms).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch forms",
		})
	}
	return c.JSON(forms)
}

func (fc *FormController) CreateForm(c *fiber.Ctx) error {
	shop, err := fc.shopFromLocals(c)
	if err != nil || shop == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Shop not found",
		})
	}

	input := new(FormInput)
	if err := c.BodyParser(input); err != nil || input.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	form := model.Form{
		ShopID:   shop.ID,
		Name:     input.Name,
		IsActive: true,
		Schema:   input.Schema,
	}
	if err := fc.db.Create(&form).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not save form",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(form)
}

func (fc *FormController) UpdateForm(c *fiber.Ctx) error {
	shop, err := fc.shopFromLocals(c)
	if err != nil || shop == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Shop not found",
		})
	}

	var form model.Form
	err = fc.db.Where("shop_id = ? AND public_id = ?", shop.ID, c.Params("public_id")).
		First(&form).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Form not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch form",
		})
	}

	input := new(FormInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	if input.Name != "" {
		form.Name = input.Name
	}
	if input.IsActive != nil {
		form.IsActive = *input.IsActive
	}
	if input.Schema != nil {
		form.Schema = input.Schema
	}

	if err := fc.db.Save(&form).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not update form",
		})
	}
	return c.JSON(form)
}

func (fc *FormController) DeleteForm(c *fiber.Ctx) error {
	shop, err := fc.shopFromLocals(c)
	if err != nil || shop == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Shop not found",
		})
	}

	result := fc.db.Where("shop_id = ? AND public_id = ?", shop.ID, c.Params("public_id")).
		Delete(&model.Form{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not delete form",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Form not found",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Form deleted successfully",
	})
}
