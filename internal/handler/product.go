package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// ProductPromotion returns the catalog promotion badge for a product.
// Products without a promotion get "promotion": null.
func (h *Handler) ProductPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.products.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	badge, ok, err := h.promotions.BadgeFor(ctx, *p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		badge = nil
	}
	writeData(w, http.StatusOK, "Product promotion.", func(e *jx.Encoder) {
		encodeBadge(e, p.ID, p.EffectivePrice(), badge)
	})
}
