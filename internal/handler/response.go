package handler

import (
	"net/http"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/payment"
)

// Error codes reported in the error_code field of the envelope. Coupon
// rejections use coupon.Rejection.Code.
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeServer                = "SERVER_ERROR"
	CodeEmptyCart             = "EMPTY_CART"
	CodeTotalsMismatch        = "TOTALS_MISMATCH"
	CodeAccountExists         = "ACCOUNT_EXISTS"
	CodeAccountRequired       = "ACCOUNT_REQUIRED"
	CodeInsufficientStock     = "INSUFFICIENT_STOCK"
	CodeOrderCreationFailed   = "ORDER_CREATION_FAILED"
	CodeInvalidTransition     = "INVALID_STATUS_TRANSITION"
	CodePaymentFailed         = "PAYMENT_FAILED"
	CodePaymentUnavailable    = "PAYMENT_METHOD_UNAVAILABLE"
	CodeMethodNotAllowed      = "METHOD_NOT_ALLOWED"
	genericServerErrorMessage = "An unexpected error occurred. Please try again."
)

// apiError is the client-facing shape of a failure.
type apiError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

// requestError reports a malformed or invalid request body.
type requestError struct {
	status  int
	message string
	fields  map[string]string
}

func (e *requestError) Error() string {
	return e.message
}

// classify maps a service error to the envelope. Only errors listed here
// expose their message; everything else becomes SERVER_ERROR.
func classify(err error) apiError {
	var (
		reqErr     *requestError
		rejection  *coupon.Rejection
		mismatch   *checkout.TotalsMismatchError
		price      *checkout.PriceMismatchError
		exists     *checkout.AccountAlreadyExistsError
		stock      *product.InsufficientStockError
		transition *order.InvalidTransitionError
		address    *checkout.AddressError
		failed     *checkout.OrderCreationFailedError
	)
	switch {
	case errors.As(err, &reqErr):
		return apiError{Status: reqErr.status, Code: CodeValidation, Message: reqErr.message, Fields: reqErr.fields}
	case errors.Is(err, checkout.ErrEmptyCart):
		return apiError{Status: http.StatusUnprocessableEntity, Code: CodeEmptyCart, Message: "Your cart is empty."}
	case errors.As(err, &mismatch):
		return apiError{Status: http.StatusConflict, Code: CodeTotalsMismatch,
			Message: "Your order total has changed. Please review your cart and try again."}
	case errors.As(err, &price):
		return apiError{Status: http.StatusConflict, Code: CodeTotalsMismatch,
			Message: "The price of an item in your cart has changed. Please review your cart and try again."}
	case errors.Is(err, checkout.ErrInvalidQuantity):
		return apiError{Status: http.StatusUnprocessableEntity, Code: CodeValidation,
			Message: "Item quantities must be between 1 and 10000."}
	case errors.As(err, &exists):
		return apiError{Status: http.StatusConflict, Code: CodeAccountExists,
			Message: "An account with this email already exists. Please log in."}
	case errors.Is(err, checkout.ErrAccountRequired):
		return apiError{Status: http.StatusUnauthorized, Code: CodeAccountRequired,
			Message: "Please log in or create an account to check out."}
	case errors.As(err, &stock):
		return apiError{Status: http.StatusConflict, Code: CodeInsufficientStock, Message: stock.Error()}
	case errors.As(err, &rejection):
		return apiError{Status: http.StatusUnprocessableEntity, Code: rejection.Code(), Message: rejection.Message}
	case errors.As(err, &transition):
		if transition.From == "" {
			return apiError{Status: http.StatusUnprocessableEntity, Code: CodeInvalidTransition,
				Message: "Unknown order status " + string(transition.To) + "."}
		}
		return apiError{Status: http.StatusConflict, Code: CodeInvalidTransition, Message: transition.Error()}
	case errors.Is(err, checkout.ErrOrderClosed), errors.Is(err, checkout.ErrAlreadyPaid):
		return apiError{Status: http.StatusConflict, Code: CodeInvalidTransition, Message: rootMessage(err)}
	case errors.As(err, &address):
		return apiError{Status: http.StatusUnprocessableEntity, Code: CodeValidation,
			Message: "The " + string(address.Type) + " address is incomplete."}
	case errors.Is(err, checkout.ErrUnknownShippingMethod):
		return apiError{Status: http.StatusUnprocessableEntity, Code: CodeValidation,
			Message: "The selected shipping method is not available.",
			Fields:  map[string]string{"shipping_method": "is not available"}}
	case errors.Is(err, payment.ErrUnavailable):
		return apiError{Status: http.StatusUnprocessableEntity, Code: CodePaymentUnavailable,
			Message: "The selected payment method is not available."}
	case errors.Is(err, order.ErrNotFound):
		return apiError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "Order not found."}
	case errors.Is(err, product.ErrNotFound):
		return apiError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "Product not found."}
	case errors.As(err, &failed):
		return apiError{Status: http.StatusInternalServerError, Code: CodeOrderCreationFailed,
			Message: "We could not place your order. Please try again."}
	default:
		return apiError{Status: http.StatusInternalServerError, Code: CodeServer, Message: genericServerErrorMessage}
	}
}

// rootMessage returns the message of the sentinel at the bottom of the chain.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// writeError logs err and writes the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	lg := zctx.From(r.Context())
	if e.Status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err), zap.String("error_code", e.Code))
	} else {
		lg.Debug("Request rejected", zap.Error(err), zap.String("error_code", e.Code))
	}
	writeFailure(w, e)
}

func writeFailure(w http.ResponseWriter, e apiError) {
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("success", func(enc *jx.Encoder) { enc.Bool(false) })
		enc.Field("message", func(enc *jx.Encoder) { enc.Str(e.Message) })
		enc.Field("error_code", func(enc *jx.Encoder) { enc.Str(e.Code) })
		if len(e.Fields) > 0 {
			enc.Field("errors", func(enc *jx.Encoder) { encodeFields(enc, e.Fields) })
		}
	})
	writeBody(w, e.Status, enc.Bytes())
}

// writeData writes a success envelope. data may be nil.
func writeData(w http.ResponseWriter, status int, message string, data func(*jx.Encoder)) {
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("success", func(enc *jx.Encoder) { enc.Bool(true) })
		enc.Field("message", func(enc *jx.Encoder) { enc.Str(message) })
		if data != nil {
			enc.Field("data", data)
		}
	})
	writeBody(w, status, enc.Bytes())
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func encodeFields(enc *jx.Encoder, fields map[string]string) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	enc.Obj(func(enc *jx.Encoder) {
		for _, name := range names {
			enc.Field(name, func(enc *jx.Encoder) { enc.Str(fields[name]) })
		}
	})
}
