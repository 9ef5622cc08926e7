package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/FelixBrandt/GiftMile/app/controllers"
	"github.com/FelixBrandt/GiftMile/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(), middleware.APIKeyAuthMiddleware())

	api.Post("/sync/run", controllers.HandleRunSyncCycle)
	api.Get("/sync/state", controllers.HandleSchedulerState)

	shops := api.Group("/shops/:shop")
	shops.Get("/settings", controllers.HandleGetGiftSettings)
	shops.Put("/settings", controllers.HandleSaveGiftSettings)
	shops.Put("/app-settings", controllers.HandleSaveAppSettings)
	shops.Get("/eligibilities", controllers.HandleListEligibilities)
	shops.Get("/synclogs", controllers.HandleListSyncLogs)
	shops.Post("/sync", controllers.HandleShopSync)
	shops.Put("/contracts/:contract/status", controllers.HandleUpdateContractStatus)

	api.Post("/eligibilities/:id/reset", controllers.HandleResetEligibility)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
