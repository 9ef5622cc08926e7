package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/FelixBrandt/GiftMile/app/controllers"
	"github.com/FelixBrandt/GiftMile/internal/pkg/database"
	"github.com/FelixBrandt/GiftMile/internal/pkg/env"
	"github.com/FelixBrandt/GiftMile/internal/pkg/gift"
	"github.com/FelixBrandt/GiftMile/internal/pkg/scheduler"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Wire the shared service and cycle runner before any route handles a
	// request.
	svc := gift.NewServiceFromDB(database.GetDB())
	runner := scheduler.NewRunner(svc, cycleInterval(), env.GetEnv("CYCLE_LEASE", "false") == "true")
	controllers.InitializeGiftControllers(svc, runner)
	runner.Start()

	h.registerStorefrontRoutes(app)
	h.registerWebhookRoutes(app)
}

// registerStorefrontRoutes exposes the redemption surface to the merchant's
// public storefront domain. Callers are cross-origin by definition, so the
// group carries permissive CORS including preflight handling.
func (h HttpRouter) registerStorefrontRoutes(app *fiber.App) {
	group := app.Group("/gift", cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	group.Get("/verify", controllers.HandleVerifyGiftToken)
	group.Post("/redeem", controllers.HandleRedeemGift)
}

func (h HttpRouter) registerWebhookRoutes(app *fiber.App) {
	app.Post("/webhooks/orders-paid", controllers.HandleOrderPaidWebhook)
}

func cycleInterval() time.Duration {
	minutes, err := strconv.Atoi(env.GetEnv("CYCLE_INTERVAL_MINUTES", "60"))
	if err != nil || minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
