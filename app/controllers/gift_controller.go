package controllers

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/FelixBrandt/GiftMile/internal/pkg/cache"
	"github.com/FelixBrandt/GiftMile/internal/pkg/gift"
)

const verifyCacheTTL = 30 * time.Second

// verifyCacheKey trims the token so a cached verification and its
// invalidation always agree on the key, however the caller spelled the token.
func verifyCacheKey(token string) string {
	return "giftmile:verify:" + strings.TrimSpace(token)
}

// HandleVerifyGiftToken answers the storefront's token check. Valid answers
// are cached briefly since storefront pages tend to re-check on every render.
func HandleVerifyGiftToken(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "token is required"})
	}

	cacheKey := verifyCacheKey(token)
	if cached, err := cache.Get(cacheKey); err == nil && cached != "" {
		var v gift.Verification
		if err := json.Unmarshal([]byte(cached), &v); err == nil {
			return c.JSON(v)
		}
	}

	v, err := giftService.VerifyToken(c.Context(), token)
	if err != nil {
		return mapGiftError(c, err)
	}

	if raw, err := json.Marshal(v); err == nil {
		if err := cache.Set(cacheKey, string(raw), verifyCacheTTL); err != nil {
			log.Warnf("[Gift] verify cache write failed: %v", err)
		}
	}
	return c.JSON(v)
}

type redeemRequest struct {
	Token    string                `json:"token"`
	Products []gift.SelectionInput `json:"products"`
}

// HandleRedeemGift applies the customer's product selection.
func HandleRedeemGift(c *fiber.Ctx) error {
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "invalid request body"})
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "token is required"})
	}

	result, err := giftService.Redeem(c.Context(), token, req.Products)
	if err != nil {
		return mapGiftError(c, err)
	}

	// Redemption changes the token's state; drop any cached verification.
	if err := cache.Delete(verifyCacheKey(token)); err != nil {
		log.Warnf("[Gift] verify cache invalidation failed: %v", err)
	}

	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(result)
}
