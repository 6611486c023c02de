package handler

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

const maxBodyBytes = 1 << 20

// HeaderUserID carries the account id of a shopper authenticated by the
// storefront. Requests without it check out as guests.
const HeaderUserID = "X-User-ID"

// HeaderIdempotencyKey makes order placement safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

type totalsRequest struct {
	Lines          []cart.Line          `json:"lines" validate:"dive"`
	CouponCode     string               `json:"coupon_code" validate:"max=50"`
	CustomerID     string               `json:"customer_id"`
	ShippingMethod string               `json:"shipping_method" validate:"max=50"`
	Tax            *cart.TaxResult      `json:"tax"`
	Shipping       *cart.ShippingResult `json:"shipping"`
}

func (r totalsRequest) toDomain() checkout.TotalsRequest {
	return checkout.TotalsRequest{
		Cart:           cart.Cart{Lines: r.Lines},
		CouponCode:     strings.TrimSpace(r.CouponCode),
		CustomerID:     r.CustomerID,
		ShippingMethod: r.ShippingMethod,
		Tax:            r.Tax,
		Shipping:       r.Shipping,
	}
}

type contactRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Phone     string `json:"phone" validate:"max=40"`
}

type orderRequest struct {
	Lines   []cart.Line    `json:"lines" validate:"dive"`
	Contact contactRequest `json:"contact"`

	CreateAccount bool   `json:"create_account"`
	Password      string `json:"password" validate:"required_if=CreateAccount true,max=72"`

	ShippingAddress order.Address  `json:"shipping_address"`
	BillingAddress  *order.Address `json:"billing_address"`
	SameAsShipping  bool           `json:"same_as_shipping"`

	ShippingMethod string `json:"shipping_method" validate:"required,max=50"`
	PaymentMethod  string `json:"payment_method" validate:"required,max=50"`
	CouponCode     string `json:"coupon_code" validate:"max=50"`
	Notes          string `json:"notes" validate:"max=1000"`

	Tax      *cart.TaxResult      `json:"tax"`
	Shipping *cart.ShippingResult `json:"shipping"`
	// ExpectedTotal is the total shown to the shopper on the review page.
	ExpectedTotal *decimal.Decimal `json:"expected_total"`
}

func (r orderRequest) toDomain(userID, ip, userAgent string) checkout.OrderRequest {
	return checkout.OrderRequest{
		Cart:   cart.Cart{Lines: r.Lines},
		UserID: userID,
		Contact: customer.Contact{
			Email:     r.Contact.Email,
			FirstName: r.Contact.FirstName,
			LastName:  r.Contact.LastName,
			Phone:     r.Contact.Phone,
		},
		CreateAccount:   r.CreateAccount,
		Password:        r.Password,
		ShippingAddress: r.ShippingAddress,
		BillingAddress:  r.BillingAddress,
		SameAsShipping:  r.SameAsShipping,
		ShippingMethod:  r.ShippingMethod,
		PaymentMethod:   r.PaymentMethod,
		CouponCode:      strings.TrimSpace(r.CouponCode),
		Notes:           r.Notes,
		IPAddress:       ip,
		UserAgent:       userAgent,
		Tax:             r.Tax,
		Shipping:        r.Shipping,
		ExpectedTotal:   r.ExpectedTotal,
	}
}

type couponValidateRequest struct {
	Code       string      `json:"code" validate:"required,max=50"`
	CustomerID string      `json:"customer_id"`
	Lines      []cart.Line `json:"lines" validate:"dive"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type paymentRequest struct {
	Result string `json:"result" validate:"required,oneof=paid failed"`
}

// newValidator returns a validator that reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, _ := f.Interface().(decimal.Decimal).Float64()
		return d
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &requestError{status: http.StatusBadRequest, message: "The request body is not valid JSON."}
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return errors.Wrap(err, "validate request")
		}
		return &requestError{
			status:  http.StatusUnprocessableEntity,
			message: "Please correct the highlighted fields.",
			fields:  fieldMessages(fieldErrs),
		}
	}
	return nil
}

func fieldMessages(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		// Drop the root struct name from the namespace.
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		out[field] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}
