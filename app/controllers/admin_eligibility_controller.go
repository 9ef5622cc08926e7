package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// HandleListEligibilities returns all gift eligibilities for a shop with
// their selections, newest first.
func HandleListEligibilities(c *fiber.Ctx) error {
	shop := strings.TrimSpace(c.Params("shop"))
	if shop == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "shop is required"})
	}

	rows, err := giftService.Repo.ListEligibilities(shop)
	if err != nil {
		return mapGiftError(c, err)
	}
	return c.JSON(fiber.Map{"eligibilities": rows})
}

// HandleResetEligibility is the operator do-over: deletes the selections and
// returns the eligibility to pending so the same token can be redeemed again.
func HandleResetEligibility(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "invalid eligibility id"})
	}

	if err := giftService.ResetEligibility(c.Context(), uint(id)); err != nil {
		return mapGiftError(c, err)
	}
	return c.JSON(fiber.Map{"reset": true})
}
