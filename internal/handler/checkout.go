package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/payment"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

// CalculateTotals returns the money breakdown for a cart without creating
// anything.
func (h *Handler) CalculateTotals(w http.ResponseWriter, r *http.Request) {
	var req totalsRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.checkout.CalculateTotals(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Totals calculated.", func(e *jx.Encoder) { encodeTotals(e, t) })
}

// PlaceOrder creates the order and dispatches it to the payment gateway.
// With an Idempotency-Key header a retried request returns the order created
// by the first attempt instead of placing a new one.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	var req orderRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !h.payments.Supports(req.PaymentMethod) {
		writeError(w, r, payment.ErrUnavailable)
		return
	}

	key := r.Header.Get(HeaderIdempotencyKey)
	if key != "" {
		number, ok, err := h.idem.Lookup(ctx, key)
		if err != nil {
			lg.Warn("Idempotency lookup failed", zap.Error(err))
		}
		if ok {
			o, err := h.checkout.GetOrder(ctx, number)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeData(w, http.StatusOK, "Order already placed.", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
					e.Field("payment", func(e *jx.Encoder) { e.Null() })
					e.Field("replayed", func(e *jx.Encoder) { e.Bool(true) })
				})
			})
			return
		}
	}

	ip := httpmiddleware.ClientIP(r)
	o, err := h.checkout.CreateOrder(ctx, req.toDomain(r.Header.Get(HeaderUserID), ip, r.UserAgent()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if key != "" {
		stored, err := h.idem.Remember(ctx, key, o.Number)
		switch {
		case err != nil:
			lg.Warn("Idempotency store failed", zap.Error(err), zap.String("order_number", o.Number))
		case stored != o.Number:
			lg.Warn("Concurrent request with the same idempotency key",
				zap.String("order_number", o.Number),
				zap.String("stored_order_number", stored),
			)
		}
	}

	res, err := h.payments.Process(ctx, o, payment.Request{
		ReturnURL: h.cfg.ReturnURL,
		CancelURL: h.cfg.CancelURL,
		IPAddress: ip,
	})
	if err != nil {
		lg.Error("Payment dispatch failed", zap.Error(err), zap.String("order_number", o.Number))
		if _, ferr := h.checkout.FailPayment(ctx, o.Number); ferr != nil {
			lg.Error("Marking payment failed", zap.Error(ferr), zap.String("order_number", o.Number))
		}
		writeFailure(w, apiError{
			Status:  http.StatusBadGateway,
			Code:    CodePaymentFailed,
			Message: "Your order " + o.Number + " was placed but the payment could not be started.",
		})
		return
	}
	if res.Kind == payment.KindImmediate && res.Paid {
		paid, err := h.checkout.ConfirmPayment(ctx, o.Number)
		if err != nil {
			writeError(w, r, err)
			return
		}
		o = paid
	}

	writeData(w, http.StatusCreated, "Order placed.", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
			e.Field("payment", func(e *jx.Encoder) { encodePayment(e, res) })
		})
	})
}
