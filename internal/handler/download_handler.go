package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	"planmarket/internal/middleware"
	"planmarket/internal/repository"
	"planmarket/internal/usecase"

	"github.com/labstack/echo/v4"
)

type DownloadHandler struct {
	uc *usecase.DownloadUsecase
}

func NewDownloadHandler(uc *usecase.DownloadUsecase) *DownloadHandler {
	return &DownloadHandler{uc: uc}
}

func (h *DownloadHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/downloads", middleware.AuthJWT(cfg), middleware.TokenVersionGuard(userRepo))
	g.GET("", h.listMine, middleware.RequireRole(model.RoleBuyer))
	g.GET("/:token", h.consume, middleware.RequireRole(model.RoleBuyer))
	g.POST("/:id/regenerate", h.regenerate, middleware.RequireRole(model.RoleSeller, model.RoleAdmin))
}

func (h *DownloadHandler) listMine(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	out, err := h.uc.ListMine(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// consume spends one download and streams the PDF.
func (h *DownloadHandler) consume(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	dl, err := h.uc.Consume(c.Request().Context(), c.Param("token"), userID, c.RealIP())
	if err != nil {
		return writeError(c, err)
	}
	defer dl.Body.Close()

	hdr := c.Response().Header()
	hdr.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", dl.FileName))
	hdr.Set("X-Downloads-Remaining", strconv.Itoa(dl.Remaining))
	if dl.Size > 0 {
		hdr.Set(echo.HeaderContentLength, strconv.FormatInt(dl.Size, 10))
	}
	contentType := dl.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	return c.Stream(http.StatusOK, contentType, dl.Body)
}

func (h *DownloadHandler) regenerate(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	t, err := h.uc.Regenerate(c.Request().Context(), c.Param("id"), userID, getRoleFromContext(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}
