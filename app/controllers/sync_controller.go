package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// HandleRunSyncCycle is the externally callable trigger: it runs one full
// scheduler cycle across all enabled shops and returns the per-shop summary.
func HandleRunSyncCycle(c *fiber.Ctx) error {
	report := cycleRunner.RunCycle(c.Context())
	if report.Skipped {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "cycle_running", "message": "A sync cycle is already in progress."})
	}
	return c.JSON(report)
}

// HandleSchedulerState reports whether a cycle is in flight.
func HandleSchedulerState(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"state": cycleRunner.State().String()})
}

// HandleShopSync runs reconcile -> evaluate -> dispatch for a single shop,
// the manual per-shop action from the admin.
func HandleShopSync(c *fiber.Ctx) error {
	shop := strings.TrimSpace(c.Params("shop"))
	if shop == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "shop is required"})
	}

	sync, err := giftService.Reconcile(c.Context(), shop, 1, "")
	if err != nil {
		return mapGiftError(c, err)
	}
	created, err := giftService.EvaluateEligibility(c.Context(), shop)
	if err != nil {
		return mapGiftError(c, err)
	}
	dispatch, err := giftService.DispatchPendingEmails(c.Context(), shop)
	if err != nil {
		return mapGiftError(c, err)
	}

	return c.JSON(fiber.Map{
		"shop":                shop,
		"total_fetched":       sync.TotalFetched,
		"total_synced":        sync.TotalSynced,
		"eligibility_created": created,
		"emails_sent":         dispatch.Sent,
		"emails_failed":       dispatch.Failed,
	})
}

type contractStatusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateContractStatus forwards an operator status change to the
// upstream contract (pause, cancel, reactivate).
func HandleUpdateContractStatus(c *fiber.Ctx) error {
	shop := strings.TrimSpace(c.Params("shop"))
	contractID := strings.TrimSpace(c.Params("contract"))
	if shop == "" || contractID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "shop and contract are required"})
	}

	var req contractStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "invalid request body"})
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case "active", "paused", "cancelled":
	default:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "invalid_status", "message": "status must be active, paused or cancelled"})
	}

	if err := giftService.UpdateContractStatus(c.Context(), shop, contractID, status); err != nil {
		return mapGiftError(c, err)
	}
	return c.JSON(fiber.Map{"contract_id": contractID, "status": status})
}

// HandleListSyncLogs returns the shop's most recent reconciliation audit rows.
func HandleListSyncLogs(c *fiber.Ctx) error {
	shop := strings.TrimSpace(c.Params("shop"))
	if shop == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad_request", "message": "shop is required"})
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	logs, err := giftService.Repo.ListSyncLogs(shop, limit)
	if err != nil {
		return mapGiftError(c, err)
	}
	return c.JSON(fiber.Map{"logs": logs})
}
