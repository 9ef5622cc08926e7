package controllers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/FelixBrandt/GiftMile/internal/pkg/env"
	"github.com/FelixBrandt/GiftMile/internal/pkg/security"
)

type orderPaidPayload struct {
	Customer struct {
		ID        json.Number `json:"id"`
		Email     string      `json:"email"`
		FirstName string      `json:"first_name"`
		LastName  string      `json:"last_name"`
	} `json:"customer"`
}

// HandleOrderPaidWebhook processes the platform's order-paid event. The
// webhook is a fast out-of-band path to catch milestones between scheduled
// cycles; it evaluates against the customer's live completed-order count.
func HandleOrderPaidWebhook(c *fiber.Ctx) error {
	shop := strings.TrimSpace(c.Query("shop"))
	if shop == "" {
		shop = strings.TrimSpace(c.Get("X-Shopify-Shop-Domain"))
	}
	if shop == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "shop is required"})
	}

	body := c.Body()
	secret := env.GetEnv("WEBHOOK_SECRET", "")
	if secret != "" {
		sig := c.Get("X-Shopify-Hmac-Sha256")
		if !security.VerifyWebhookSignature(body, sig, secret) {
			log.Warnf("[Webhook] invalid signature for shop %s", shop)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized", "message": "invalid webhook signature"})
		}
	}

	var payload orderPaidPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "invalid webhook payload"})
	}
	customerID := payload.Customer.ID.String()
	if customerID == "" && payload.Customer.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "webhook payload missing customer"})
	}

	created, err := giftService.HandleOrderPaid(c.Context(), shop,
		customerID, payload.Customer.Email,
		payload.Customer.FirstName, payload.Customer.LastName)
	if err != nil {
		// Webhook callers retry on 5xx; surface the failure but keep the
		// body terse, the platform does not read it.
		log.Errorf("[Webhook] order-paid for shop %s failed: %v", shop, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error"})
	}

	return c.JSON(fiber.Map{"created": created})
}
