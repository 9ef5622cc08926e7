package controllers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/FelixBrandt/GiftMile/app/models"
)

var validate = validator.New()

// HandleGetGiftSettings returns a shop's gift configuration, defaults when
// none has been saved yet.
func HandleGetGiftSettings(c *fiber.Ctx) error {
	shop := strings.TrimSpace(c.Params("shop"))
	if shop == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "shop is required"})
	}

	settings, err := giftService.Repo.GetGiftSetting(shop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(models.GiftSetting{
				Shop:            shop,
				MaxGiftProducts: models.DefaultMaxGiftProducts,
				GiftExpiryDays:  models.DefaultGiftExpiryDays,
				EmailDelayDays:  models.DefaultEmailDelayDays,
			})
		}
		return mapGiftError(c, err)
	}
	return c.JSON(settings)
}

// HandleSaveGiftSettings validates and upserts a shop's gift configuration.
func HandleSaveGiftSettings(c *fiber.Ctx) error {
	shop := strings.TrimSpace(c.Params("shop"))
	if shop == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "shop is required"})
	}

	var settings models.GiftSetting
	if err := c.BodyParser(&settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "invalid request body"})
	}
	settings.Shop = shop
	settings.ID = 0

	if err := validate.Struct(&settings); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "validation_failed", "message": err.Error()})
	}

	if err := giftService.Repo.SaveGiftSetting(&settings); err != nil {
		return mapGiftError(c, err)
	}
	return c.JSON(settings)
}

// HandleSaveAppSettings upserts a shop's upstream API credentials.
func HandleSaveAppSettings(c *fiber.Ctx) error {
	shop := strings.TrimSpace(c.Params("shop"))
	if shop == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "shop is required"})
	}

	var settings models.AppSetting
	if err := c.BodyParser(&settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "invalid request body"})
	}
	settings.Shop = shop
	settings.ID = 0

	if err := validate.Struct(&settings); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "validation_failed", "message": err.Error()})
	}

	if err := giftService.Repo.SaveAppSetting(&settings); err != nil {
		return mapGiftError(c, err)
	}
	return c.JSON(fiber.Map{"shop": settings.Shop, "api_base_url": settings.APIBaseURL})
}
