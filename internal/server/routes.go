package server

import (
	"net/http"

	"planmarket/internal/config"
	"planmarket/internal/handler"
	"planmarket/internal/repository"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Users repository.UserRepository

	Auth           *handler.AuthHandler
	AdminUsers     *handler.AdminUserHandler
	Products       *handler.ProductHandler
	AdminProducts  *handler.AdminProductHandler
	Cart           *handler.CartHandler
	Orders         *handler.OrderHandler
	AdminOrders    *handler.AdminOrderHandler
	Downloads      *handler.DownloadHandler
	Reviews        *handler.ReviewHandler
	Webhooks       *handler.WebhookHandler
	BillingAddress *handler.BillingAddressHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, handler.SuccessResponse{Message: "ok"})
	})

	h.Auth.RegisterRoutes(e, cfg, h.Users)
	h.Products.RegisterRoutes(e, cfg, h.Users)
	h.Cart.RegisterRoutes(e, cfg, h.Users)
	h.Orders.RegisterRoutes(e, cfg, h.Users)
	h.Downloads.RegisterRoutes(e, cfg, h.Users)
	h.Reviews.RegisterRoutes(e, cfg, h.Users)
	h.BillingAddress.RegisterRoutes(e, cfg, h.Users)
	h.Webhooks.RegisterRoutes(e)

	h.AdminUsers.RegisterRoutes(e)
	h.AdminProducts.RegisterRoutes(e, cfg, h.Users)
	h.AdminOrders.RegisterRoutes(e, cfg, h.Users)
}
