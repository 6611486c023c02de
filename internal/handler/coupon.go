package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/money"
)

// ValidateCoupon checks a code against the cart and reports the discount it
// would give. A rejected coupon is a successful response with valid=false.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponValidateRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	priced, err := h.checkout.PriceCart(r.Context(), cart.Cart{Lines: req.Lines})
	if err != nil {
		writeError(w, r, err)
		return
	}
	lines := priced.Lines
	total := priced.Subtotal()

	c, err := h.coupons.Validate(r.Context(), req.Code, req.CustomerID, total)
	if err != nil {
		rejection, ok := coupon.AsRejection(err)
		if !ok {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, rejection.Message, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("valid", func(e *jx.Encoder) { e.Bool(false) })
				e.Field("reason", str(rejection.Code()))
				e.Field("discount_amount", amount(money.Zero))
				e.Field("message", str(rejection.Message))
			})
		})
		return
	}

	app, err := h.coupons.Apply(c, total, lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, app.Message, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("reason", func(e *jx.Encoder) { e.Null() })
			e.Field("discount_amount", amount(app.Amount))
			e.Field("message", str(app.Message))
			e.Field("coupon", func(e *jx.Encoder) { encodeCoupon(e, *c) })
		})
	})
}

// AutoApplyCoupons lists the auto-apply coupons available to a customer.
func (h *Handler) AutoApplyCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.GetAutoApplyCoupons(r.Context(), r.URL.Query().Get("customer_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Auto-apply coupons.", func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range list {
			encodeCoupon(e, c)
		}
		e.ArrEnd()
	})
}
