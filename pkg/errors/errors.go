package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

// Generic codes shared by every surface.
const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Cart codes.
const (
	CodeMissingProductID      Code = "MISSING_PRODUCT_ID"
	CodeInvalidProductID      Code = "INVALID_PRODUCT_ID"
	CodeInvalidQuantity       Code = "INVALID_QUANTITY"
	CodeMissingRequiredFields Code = "MISSING_REQUIRED_FIELDS"
	CodeProductNotFound       Code = "PRODUCT_NOT_FOUND"
	CodeProductUnavailable    Code = "PRODUCT_UNAVAILABLE"
	CodeInsufficientStock     Code = "INSUFFICIENT_STOCK"
	CodeAuctionNotAllowed     Code = "AUCTION_PRODUCT_NOT_ALLOWED"
	CodeExceedStockLimit      Code = "EXCEED_STOCK_LIMIT"
	CodeCartNotFound          Code = "CART_NOT_FOUND"
	CodeItemNotFound          Code = "ITEM_NOT_FOUND"
	CodeCartVersionConflict   Code = "CART_VERSION_CONFLICT"
)

// Address codes. A missing address reports the generic NOT_FOUND code.
const (
	CodeMissingFields    Code = "MISSING_FIELDS"
	CodeInvalidUserID    Code = "INVALID_USER_ID"
	CodeInvalidAddressID Code = "INVALID_ADDRESS_ID"
)

// Order codes.
const (
	CodeInvalidOrderID         Code = "INVALID_ORDER_ID"
	CodeOrderNotFound          Code = "ORDER_NOT_FOUND"
	CodeOrderNotEligible       Code = "ORDER_NOT_ELIGIBLE"
	CodeDuplicateReturnRequest Code = "DUPLICATE_RETURN_REQUEST"
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeEmptyCart              Code = "EMPTY_CART"
)

// Category groups codes by who is at fault and whether a retry can help.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryAuth           Category = "auth"
	CategoryNotFound       Category = "not_found"
	CategoryStateConflict  Category = "state_conflict"
	CategoryInfrastructure Category = "infrastructure"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	Category       Category
}

func validation(msg string) Metadata {
	return Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: msg, DetailsAllowed: true, Category: CategoryValidation}
}

func notFound(msg string) Metadata {
	return Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: msg, Category: CategoryNotFound}
}

func conflict(status int, msg string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg, DetailsAllowed: true, Category: CategoryStateConflict}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: validation("validation failed"),
	CodeUnauthorized: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
		Category:      CategoryAuth,
	},
	CodeForbidden: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "access denied",
		Category:      CategoryAuth,
	},
	CodeNotFound: notFound("resource not found"),
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "conflict detected",
		Category:      CategoryStateConflict,
	},
	CodeStateConflict: conflict(http.StatusUnprocessableEntity, "state transition disallowed"),
	CodeIdempotency:   conflict(http.StatusConflict, "idempotency key reused"),
	CodeRateLimit: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "rate limit exceeded",
		Category:      CategoryAuth,
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
		Category:      CategoryInfrastructure,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
		Category:       CategoryInfrastructure,
	},

	CodeMissingProductID:      validation("product id is required"),
	CodeInvalidProductID:      validation("product id is malformed"),
	CodeInvalidQuantity:       validation("quantity must be between 1 and 999"),
	CodeMissingRequiredFields: validation("required fields are missing"),
	CodeProductNotFound:       notFound("product not found"),
	CodeProductUnavailable:    conflict(http.StatusConflict, "product is not available"),
	CodeInsufficientStock:     conflict(http.StatusConflict, "insufficient stock"),
	CodeAuctionNotAllowed:     conflict(http.StatusUnprocessableEntity, "auction products cannot be added to cart"),
	CodeExceedStockLimit:      conflict(http.StatusConflict, "cart quantity would exceed available stock"),
	CodeCartNotFound:          notFound("cart not found"),
	CodeItemNotFound:          notFound("item not found in cart"),
	CodeCartVersionConflict: {
		HTTPStatus:    http.StatusConflict,
		Retryable:     true,
		PublicMessage: "cart was modified concurrently",
		Category:      CategoryStateConflict,
	},

	CodeMissingFields:    validation("all address fields are required"),
	CodeInvalidUserID:    validation("user id is malformed"),
	CodeInvalidAddressID: validation("address id is malformed"),

	CodeInvalidOrderID:         validation("order id is malformed"),
	CodeOrderNotFound:          notFound("order not found"),
	CodeOrderNotEligible:       conflict(http.StatusUnprocessableEntity, "order is not eligible for this operation"),
	CodeDuplicateReturnRequest: conflict(http.StatusConflict, "return already requested for this order"),
	CodeInvalidTransition:      conflict(http.StatusUnprocessableEntity, "order status transition not allowed"),
	CodeEmptyCart:              conflict(http.StatusUnprocessableEntity, "cart has no active items"),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsRetryable is true only for typed errors whose code is marked retryable.
// Untyped errors are never retried.
func IsRetryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Retryable
}
