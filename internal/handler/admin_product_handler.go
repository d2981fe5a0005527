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

// ModerationRequest is shared by product and review moderation.
type ModerationRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// /admin/products: the approval queue.
type AdminProductHandler struct {
	uc *usecase.ProductUsecase
}

func NewAdminProductHandler(uc *usecase.ProductUsecase) *AdminProductHandler {
	return &AdminProductHandler{uc: uc}
}

func (h *AdminProductHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.TokenVersionGuard(userRepo))
	admin.Use(middleware.RequireRole(model.RoleAdmin))

	admin.GET("/products", h.list)
	admin.PUT("/products/:id/moderation", h.moderate)
}

func (h *AdminProductHandler) list(c echo.Context) error {
	page, limit, ok := pageParams(c, 50)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	status := model.ProductStatus(c.QueryParam("status"))
	if status == "" {
		status = model.ProductStatusPending
	}

	out, err := h.uc.ListByStatus(c.Request().Context(), status, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) moderate(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req ModerationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}

	p, err := h.uc.Moderate(c.Request().Context(), adminID, c.Param("id"), model.ProductStatus(req.Status), req.Note)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// getUserIDFromContext reads the id middleware.AuthJWT stored.
func getUserIDFromContext(c echo.Context) (string, bool) {
	return middleware.UserID(c)
}

func getRoleFromContext(c echo.Context) model.Role {
	r, _ := middleware.UserRole(c)
	return r
}
