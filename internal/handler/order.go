package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

func orderNumber(r *http.Request) string {
	return chi.URLParam(r, "number")
}

// GetOrder returns an order with its items and addresses.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.checkout.GetOrder(r.Context(), orderNumber(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order found.", func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateStatus moves an order through the fulfilment state machine.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.checkout.TransitionStatus(r.Context(), orderNumber(r), order.Status(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order status updated.", func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdatePayment records the outcome reported by a payment gateway.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var (
		o   *order.Order
		err error
		msg string
	)
	if req.Result == "paid" {
		o, err = h.checkout.ConfirmPayment(r.Context(), orderNumber(r))
		msg = "Payment confirmed."
	} else {
		o, err = h.checkout.FailPayment(r.Context(), orderNumber(r))
		msg = "Payment marked as failed."
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, msg, func(e *jx.Encoder) { encodeOrder(e, o) })
}
