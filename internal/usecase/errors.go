package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError carries a status and a stable message key for the boundary layer.
type HTTPError struct {
	Status  int
	Message string
	// optional upstream detail, e.g. the payment provider's message
	Detail string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func NewHTTPErrorWithDetail(status int, message, detail string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
		Detail:  detail,
	}
}

func unauthorized() error         { return NewHTTPError(http.StatusUnauthorized, MsgUnauthorized) }
func badRequest(key string) error { return NewHTTPError(http.StatusBadRequest, key) }
func notFound(key string) error   { return NewHTTPError(http.StatusNotFound, key) }
func forbidden(key string) error  { return NewHTTPError(http.StatusForbidden, key) }
func conflict(key string) error   { return NewHTTPError(http.StatusConflict, key) }

// Message keys. Translation into display text happens outside the core.
const (
	MsgUnauthorized = "auth.unauthorized"
	MsgForbidden    = "auth.forbidden"
	MsgInvalidInput = "common.invalidInput"

	MsgBuyerProfileRequired  = "cart.buyerProfileRequired"
	MsgProductNotFound       = "product.notFound"
	MsgProductNotAvailable   = "cart.productNotAvailable"
	MsgCannotBuyOwnProduct   = "cart.cannotBuyOwnProduct"
	MsgCartLimitExceeded     = "cart.limitExceeded"
	MsgCartAlreadyInCart     = "cart.alreadyInCart"
	MsgCartItemNotFound      = "cart.itemNotFound"
	MsgCartEmpty             = "checkout.cartEmpty"
	MsgCheckoutNoItems       = "checkout.noItemsSelected"
	MsgCheckoutSessionExpire = "checkout.sessionExpired"
	MsgCheckoutWindowClosing = "checkout.windowClosing"
	MsgBillingRequired       = "checkout.billingRequired"
	MsgPaymentMethodInvalid  = "checkout.invalidPaymentMethod"

	MsgOrderNotFound      = "order.notFound"
	MsgOrderNotPending    = "order.notPending"
	MsgOrderNotCompleted  = "order.notCompleted"
	MsgOrderNotRefundable = "order.notRefundable"

	MsgPaymentFailed           = "payment.failed"
	MsgPaymentInvalidSignature = "payment.invalidSignature"
	MsgPaymentSplitUnsupported = "payment.splitUnsupported"
	MsgPaymentCaptureNotNeeded = "payment.captureUnsupported"
	MsgPaymentInProgress       = "payment.inProgress"

	MsgDownloadNotFound      = "download.notFound"
	MsgDownloadInactive      = "download.inactive"
	MsgDownloadExpired       = "download.expired"
	MsgDownloadLimitExceeded = "download.limitExceeded"
	MsgDownloadFileMissing   = "download.fileNotFound"

	MsgReviewNotFound        = "review.notFound"
	MsgReviewAlreadyExists   = "review.alreadyExists"
	MsgReviewNotPurchased    = "review.productNotInOrder"
	MsgReviewInvalidRating   = "review.invalidRating"
	MsgReviewTooManyImages   = "review.tooManyImages"
	MsgReviewInvalidImage    = "review.invalidImage"
	MsgReviewNotEditable     = "review.notEditable"
	MsgReviewNotPublished    = "review.notPublished"
	MsgReviewOwnVote         = "review.cannotVoteOwn"
	MsgReviewAlreadyReported = "review.alreadyReported"
	MsgReviewResponseExists  = "review.responseAlreadyExists"
	MsgReviewInvalidStatus   = "review.invalidStatus"

	MsgSellerProfileRequired = "product.sellerProfileRequired"
	MsgFileNotFound          = "file.notFound"
	MsgFileInvalid           = "file.invalid"

	MsgAddressNotFound = "address.notFound"
	MsgAddressLimit    = "address.limitExceeded"

	MsgInvalidStatus = "common.invalidStatus"
)
