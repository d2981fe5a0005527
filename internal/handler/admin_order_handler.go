package handler

import (
	"net/http"
	"time"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	"planmarket/internal/middleware"
	"planmarket/internal/repository"
	"planmarket/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

type AdminCancelRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	admin := e.Group("/admin/orders")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.TokenVersionGuard(userRepo))
	admin.Use(middleware.RequireRole(model.RoleAdmin))

	admin.GET("", h.list)
	admin.GET("/:id", h.detail)
	admin.GET("/:id/audit", h.audit)
	admin.POST("/:id/refund", h.refund)
	admin.POST("/:id/cancel", h.cancel)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page, limit, ok := pageParams(c, 50)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}

	var buyerID *string
	if v := c.QueryParam("buyer_id"); v != "" {
		buyerID = &v
	}

	var fromPtr *time.Time
	if v := c.QueryParam("from"); v != "" {
		tm, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
		}
		fromPtr = &tm
	}

	var toPtr *time.Time
	if v := c.QueryParam("to"); v != "" {
		tm, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
		}
		toPtr = &tm
	}

	out, err := h.uc.List(c.Request().Context(), repository.AdminOrderListFilter{
		Page:    page,
		Limit:   limit,
		Status:  c.QueryParam("status"),
		BuyerID: buyerID,
		From:    fromPtr,
		To:      toPtr,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) detail(c echo.Context) error {
	out, err := h.uc.Detail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) audit(c echo.Context) error {
	out, err := h.uc.AuditTrail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) refund(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req usecase.AdminRefundInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	out, err := h.uc.Refund(c.Request().Context(), adminID, c.Param("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) cancel(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req AdminCancelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	out, err := h.uc.Cancel(c.Request().Context(), adminID, c.Param("id"), req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
