package handler

import (
	"net/http"
	"strconv"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	"planmarket/internal/logging"
	"planmarket/internal/middleware"
	"planmarket/internal/repository"
	"planmarket/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

// writeError renders usecase errors as {error: messageKey}. Anything else is
// logged and hidden behind a 500.
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message, Detail: he.Detail})
	}

	logging.FromContext(c.Request().Context()).Error("unhandled error", "err", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// queryInt reads an optional integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return def, true
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func queryDecimal(c echo.Context, name string) (*decimal.Decimal, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, true
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, false
	}
	return &d, true
}

func pageParams(c echo.Context, defLimit int) (int, int, bool) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return 0, 0, false
	}
	limit, ok := queryInt(c, "limit", defLimit)
	if !ok {
		return 0, 0, false
	}
	return page, limit, true
}

// Catalog: public browse, seller listings and uploads.
type ProductHandler struct {
	uc *usecase.ProductUsecase
}

func NewProductHandler(uc *usecase.ProductUsecase) *ProductHandler {
	return &ProductHandler{uc: uc}
}

type UploadResponse struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

func (h *ProductHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	e.GET("/products", h.list)
	e.GET("/products/:id", h.detail, middleware.OptionalAuthJWT(cfg))

	seller := e.Group("/seller",
		middleware.AuthJWT(cfg),
		middleware.TokenVersionGuard(userRepo),
		middleware.RequireRole(model.RoleSeller),
	)
	seller.GET("/products", h.listMine)
	seller.POST("/products", h.create)
	seller.PUT("/products/:id", h.update)
	seller.DELETE("/products/:id", h.delete)

	files := e.Group("/files", middleware.AuthJWT(cfg), middleware.TokenVersionGuard(userRepo))
	files.POST("", h.upload)
}

func (h *ProductHandler) list(c echo.Context) error {
	page, limit, ok := pageParams(c, 20)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	minPrice, ok := queryDecimal(c, "min_price")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	maxPrice, ok := queryDecimal(c, "max_price")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}

	out, err := h.uc.ListPublic(c.Request().Context(), usecase.ListProductsInput{
		Page:     page,
		Limit:    limit,
		Q:        c.QueryParam("q"),
		Category: c.QueryParam("category"),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		Sort:     c.QueryParam("sort"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) detail(c echo.Context) error {
	viewerID, _ := middleware.UserID(c)
	out, err := h.uc.Detail(c.Request().Context(), c.Param("id"), viewerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) listMine(c echo.Context) error {
	sellerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	out, err := h.uc.ListMine(c.Request().Context(), sellerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) create(c echo.Context) error {
	sellerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req usecase.ProductInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	p, err := h.uc.Create(c.Request().Context(), sellerID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *ProductHandler) update(c echo.Context) error {
	sellerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	var req usecase.ProductInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
	}
	p, err := h.uc.Update(c.Request().Context(), sellerID, c.Param("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ProductHandler) delete(c echo.Context) error {
	sellerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	if err := h.uc.Delete(c.Request().Context(), sellerID, c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// upload takes multipart form fields "kind" and "file".
func (h *ProductHandler) upload(c echo.Context) error {
	ownerID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: usecase.MsgUnauthorized})
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgFileInvalid})
	}
	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgFileInvalid})
	}
	defer src.Close()

	f, err := h.uc.UploadFile(
		c.Request().Context(),
		ownerID,
		model.FileKind(c.FormValue("kind")),
		fh.Filename,
		fh.Header.Get("Content-Type"),
		src,
	)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, UploadResponse{
		ID:       f.ID,
		Kind:     string(f.Kind),
		FileName: f.FileName,
		Size:     f.Size,
	})
}
