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

type ReviewHandler struct {
	uc *usecase.ReviewUsecase
}

func NewReviewHandler(uc *usecase.ReviewUsecase) *ReviewHandler {
	return &ReviewHandler{uc: uc}
}

type VoteRequest struct {
	Helpful bool `json:"helpful"`
}

type ReportRequest struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

type RespondRequest struct {
	Body string `json:"body"`
}

func (h *ReviewHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	e.GET("/products/:id/reviews", h.listForProduct)
	e.GET("/products/:id/rating", h.productRating)
	e.GET("/sellers/:id/rating", h.sellerRating)
	e.GET("/reviews/:id", h.get, middleware.OptionalAuthJWT(cfg))

	g := e.Group("/reviews", middleware.AuthJWT(cfg), middleware.TokenVersionGuard(userRepo))
	g.POST("", h.create, middleware.RequireRole(model.RoleBuyer))
	g.PATCH("/:id", h.update, middleware.RequireRole(model.RoleBuyer))
	g.DELETE("/:id", h.delete)
	g.POST("/:id/vote", h.vote)
	g.POST("/:id/report", h.report)
	g.POST("/:id/response", h.respond, middleware.RequireRole(model.RoleSeller))

	admin := e.Group("/admin/reviews",
		middleware.AuthJWT(cfg),
		middleware.TokenVersionGuard(userRepo),
		middleware.RequireRole(model.RoleAdmin),
	)
	admin.GET("", h.listByStatus)
	admin.PUT("/:id/moderation", h.moderate)
}

func (h *ReviewHandler) listForProduct(c echo.Context) error {
	page, limit, ok := pageParams(c, 10)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	rating, ok := queryInt(c, "rating", 0)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}

	out, err := h.uc.ListForProduct(c.Request().Context(), c.Param("id"), repository.ReviewListQuery{
		Page:   page,
		Limit:  limit,
		Rating: rating,
		Sort:   c.QueryParam("sort"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ReviewHandler) productRating(c echo.Context) error {
	out, err := h.uc.ProductRating(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ReviewHandler) sellerRating(c echo.Context) error {
	out, err := h.uc.SellerRating(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ReviewHandler) get(c echo.Context) error {
	viewerID, _ := middleware.UserID(c)
	out, err := h.uc.Get(c.Request().Context(), c.Param("id"), viewerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ReviewHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req usecase.CreateReviewInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	out, err := h.uc.Create(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *ReviewHandler) update(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req usecase.UpdateReviewInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	out, err := h.uc.Update(c.Request().Context(), userID, c.Param("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ReviewHandler) delete(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	if err := h.uc.Delete(c.Request().Context(), userID, getRoleFromContext(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *ReviewHandler) vote(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req VoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	out, err := h.uc.Vote(c.Request().Context(), userID, c.Param("id"), req.Helpful)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ReviewHandler) report(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	if _, err := h.uc.Report(c.Request().Context(), userID, c.Param("id"), req.Reason, req.Details); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "reported"})
}

func (h *ReviewHandler) respond(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req RespondRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	out, err := h.uc.Respond(c.Request().Context(), userID, c.Param("id"), req.Body)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *ReviewHandler) listByStatus(c echo.Context) error {
	page, limit, ok := pageParams(c, 50)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	status := model.ReviewStatus(c.QueryParam("status"))
	if status == "" {
		status = model.ReviewStatusFlagged
	}
	out, err := h.uc.ListByStatus(c.Request().Context(), status, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ReviewHandler) moderate(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req ModerationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	out, err := h.uc.Moderate(c.Request().Context(), adminID, c.Param("id"), model.ReviewStatus(req.Status), req.Note)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
