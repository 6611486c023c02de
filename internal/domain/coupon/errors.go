package coupon

import (
	"github.com/go-faster/errors"
)

// Rejection reasons, one per validation step.
var (
	ErrNotFound         = errors.New("coupon not found")
	ErrInactive         = errors.New("coupon inactive")
	ErrNotYetActive     = errors.New("coupon not yet active")
	ErrExpired          = errors.New("coupon expired")
	ErrExhausted        = errors.New("coupon usage limit reached")
	ErrPerCustomerLimit = errors.New("coupon per-customer limit reached")
	ErrDayRestricted    = errors.New("coupon not valid today")
	ErrMinOrderNotMet   = errors.New("coupon minimum order not met")
	ErrNotFirstOrder    = errors.New("coupon valid on first order only")
	ErrGroupIneligible  = errors.New("coupon not available for customer group")
	ErrAccountTooNew    = errors.New("coupon requires an older account")
)

var reasonCodes = map[error]string{
	ErrNotFound:         "COUPON_NOT_FOUND",
	ErrInactive:         "COUPON_INACTIVE",
	ErrNotYetActive:     "COUPON_NOT_YET_ACTIVE",
	ErrExpired:          "COUPON_EXPIRED",
	ErrExhausted:        "COUPON_EXHAUSTED",
	ErrPerCustomerLimit: "COUPON_PER_CUSTOMER_LIMIT",
	ErrDayRestricted:    "COUPON_DAY_RESTRICTED",
	ErrMinOrderNotMet:   "COUPON_MIN_ORDER_NOT_MET",
	ErrNotFirstOrder:    "COUPON_NOT_FIRST_ORDER",
	ErrGroupIneligible:  "COUPON_GROUP_INELIGIBLE",
	ErrAccountTooNew:    "COUPON_ACCOUNT_TOO_NEW",
}

// Rejection is a business-rule failure carrying the reason and a message
// suitable for the customer.
type Rejection struct {
	Reason  error
	Message string
}

func reject(reason error, msg string) *Rejection {
	return &Rejection{Reason: reason, Message: msg}
}

func (r *Rejection) Error() string {
	return r.Reason.Error() + ": " + r.Message
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

// Code returns the stable error code for the rejection reason.
func (r *Rejection) Code() string {
	if code, ok := reasonCodes[r.Reason]; ok {
		return code
	}
	return "COUPON_INVALID"
}

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
