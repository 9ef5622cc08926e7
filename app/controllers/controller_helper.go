package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/FelixBrandt/GiftMile/internal/pkg/gift"
	"github.com/FelixBrandt/GiftMile/internal/pkg/scheduler"
	"github.com/FelixBrandt/GiftMile/internal/pkg/subscription"
)

var (
	giftService *gift.Service
	cycleRunner *scheduler.Runner
)

// InitializeGiftControllers wires the shared service and runner used by all
// gift/sync handlers. Called once from the router.
func InitializeGiftControllers(svc *gift.Service, runner *scheduler.Runner) {
	giftService = svc
	cycleRunner = runner
}

// mapGiftError translates service errors into the storefront's distinct,
// user-facing messages.
func mapGiftError(c *fiber.Ctx, err error) error {
	var confErr *gift.ConfigurationError
	switch {
	case errors.Is(err, gift.ErrTokenNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "not_found", "message": "This gift link is not valid."})
	case errors.Is(err, gift.ErrTokenExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": "expired", "message": "This gift link has expired."})
	case errors.Is(err, gift.ErrAlreadyRedeemed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "already_redeemed", "message": "This gift has already been redeemed."})
	case errors.Is(err, gift.ErrNoSelections):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "no_selection", "message": "Please choose at least one product."})
	case errors.Is(err, gift.ErrTooManySelections):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "too_many_products", "message": "You selected more products than this gift allows."})
	case errors.Is(err, gift.ErrProductNotAllowed):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "product_not_eligible", "message": "One of the selected products is not eligible as a gift."})
	case errors.Is(err, subscription.ErrContractNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "contract_not_found", "message": "We could not find your subscription. Please verify it exists and re-sync."})
	case errors.As(err, &confErr):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "not_configured", "message": confErr.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error", "message": "Something went wrong. Please try again later."})
	}
}
