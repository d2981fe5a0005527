package handler

import (
	"io"
	"net/http"

	"planmarket/internal/domain/model"
	"planmarket/internal/usecase"

	"github.com/labstack/echo/v4"
)

// Providers sign the raw body, so it is read untouched and capped.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	uc *usecase.WebhookUsecase
}

func NewWebhookHandler(uc *usecase.WebhookUsecase) *WebhookHandler {
	return &WebhookHandler{uc: uc}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/stripe", h.handle(model.PaymentProviderStripe))
	e.POST("/webhooks/paypal", h.handle(model.PaymentProviderPayPal))
}

func (h *WebhookHandler) handle(provider model.PaymentProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
		if err != nil || len(payload) == 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: usecase.MsgInvalidInput})
		}
		res, err := h.uc.Handle(c.Request().Context(), provider, payload, c.Request().Header)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}
