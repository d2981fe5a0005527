package handler

import (
	"net/http"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	"planmarket/internal/middleware"
	"planmarket/internal/repository"
	"planmarket/internal/usecase"

	"github.com/labstack/echo/v4"
)

// OrderHandler serves the buyer side of orders: checkout, history and the
// payment follow-ups on a single order.
type OrderHandler struct {
	orders    *usecase.OrderUsecase
	checkout  *usecase.CheckoutUsecase
	downloads *usecase.DownloadUsecase
}

func NewOrderHandler(orders *usecase.OrderUsecase, checkout *usecase.CheckoutUsecase, downloads *usecase.DownloadUsecase) *OrderHandler {
	return &OrderHandler{orders: orders, checkout: checkout, downloads: downloads}
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	buyerOnly := []echo.MiddlewareFunc{
		middleware.AuthJWT(cfg),
		middleware.TokenVersionGuard(userRepo),
		middleware.RequireRole(model.RoleBuyer),
	}

	e.POST("/checkout/sessions", h.createSession, buyerOnly...)

	g := e.Group("/orders", buyerOnly...)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.GET("/:id/downloads", h.downloadsForOrder)
	g.POST("/:id/reactivate", h.reactivate)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/capture", h.capture)
}

func (h *OrderHandler) createSession(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req usecase.CreateSessionInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}

	out, err := h.checkout.CreateSession(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	page, limit, ok := pageParams(c, 20)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}

	out, err := h.orders.ListMine(c.Request().Context(), userID, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	out, err := h.orders.Detail(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) downloadsForOrder(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	out, err := h.downloads.ListForOrder(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) reactivate(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	out, err := h.checkout.Reactivate(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) cancel(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	o, err := h.checkout.Cancel(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) capture(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	o, err := h.checkout.Capture(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}
