package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// エラー種別（クライアントはこれで分岐する）
const (
	CodeEmptyCart                 = "EMPTY_CART"
	CodeOutOfStock                = "OUT_OF_STOCK"
	CodeInsufficientPoints        = "INSUFFICIENT_POINTS"
	CodeBelowMinimumOrder         = "BELOW_MINIMUM_ORDER"
	CodeBelowMinimumRedemption    = "BELOW_MINIMUM_REDEMPTION"
	CodeRedemptionExceedsSubtotal = "REDEMPTION_EXCEEDS_SUBTOTAL"
	CodeInvalidTransition         = "INVALID_TRANSITION"
	CodeCourierNotFound           = "COURIER_NOT_FOUND"
	CodeProductNotFound           = "PRODUCT_NOT_FOUND"
	CodeOrderNotFound             = "ORDER_NOT_FOUND"
	CodeInvalidPostalCode         = "INVALID_POSTAL_CODE"
	CodeInvalidDeliveryMethod     = "INVALID_DELIVERY_METHOD"
	CodeInvalidPaymentMethod      = "INVALID_PAYMENT_METHOD"
	CodeInvalidArgument           = "INVALID_ARGUMENT"
	CodeUnauthorized              = "UNAUTHORIZED"
	CodeNotFound                  = "NOT_FOUND"
	CodeInternal                  = "INTERNAL"
)

type HTTPError struct {
	Status  int
	Code    string
	Message string

	// 付加情報（該当するときだけ）
	ProductID int64
	From      string
	To        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// ステータスからコードを決める（細かい種別が不要なとき）
func NewHTTPError(status int, message string) error {
	code := CodeInvalidArgument
	switch status {
	case http.StatusUnauthorized:
		code = CodeUnauthorized
	case http.StatusNotFound:
		code = CodeNotFound
	case http.StatusInternalServerError:
		code = CodeInternal
	}
	return &HTTPError{Status: status, Code: code, Message: message}
}

func newCodedError(status int, code string, message string) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func errDB() error {
	return NewHTTPError(http.StatusInternalServerError, "db error")
}

func errUnauthorized() error {
	return NewHTTPError(http.StatusUnauthorized, "unauthorized")
}

func errInvalid(message string) error {
	return NewHTTPError(http.StatusBadRequest, message)
}

func errEmptyCart() error {
	return newCodedError(http.StatusBadRequest, CodeEmptyCart, "cart is empty")
}

func errOutOfStock(productID int64) error {
	e := newCodedError(http.StatusConflict, CodeOutOfStock, "out of stock")
	e.ProductID = productID
	return e
}

func errProductNotFound(productID int64) error {
	e := newCodedError(http.StatusNotFound, CodeProductNotFound, "product not found")
	e.ProductID = productID
	return e
}

func errOrderNotFound() error {
	return newCodedError(http.StatusNotFound, CodeOrderNotFound, "order not found")
}

func errCourierNotFound() error {
	return newCodedError(http.StatusNotFound, CodeCourierNotFound, "courier not found")
}

func errInsufficientPoints() error {
	return newCodedError(http.StatusConflict, CodeInsufficientPoints, "insufficient points")
}

func errInvalidTransition(from, to string) error {
	e := newCodedError(http.StatusConflict, CodeInvalidTransition, fmt.Sprintf("cannot change status from %s to %s", from, to))
	e.From = from
	e.To = to
	return e
}
