// Package handler is the JSON HTTP adapter over the checkout services.
// Every response uses the envelope {success, message, errors?, error_code?, data?}.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/storefront-checkout/internal/cache"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
	"github.com/xenking/storefront-checkout/internal/payment"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ReturnURL and CancelURL are handed to hosted payment pages. The order
	// number is appended as the "order" query parameter by the gateway.
	ReturnURL string
	CancelURL string
}

// Handler serves the checkout API.
type Handler struct {
	cfg        Config
	checkout   *checkout.Service
	coupons    *coupon.Service
	promotions *promotion.Service
	products   product.Repository
	payments   *payment.Registry
	idem       cache.Idempotency
	validate   *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	checkoutSvc *checkout.Service,
	coupons *coupon.Service,
	promotions *promotion.Service,
	products product.Repository,
	payments *payment.Registry,
	idem cache.Idempotency,
) *Handler {
	return &Handler{
		cfg:        cfg,
		checkout:   checkoutSvc,
		coupons:    coupons,
		promotions: promotions,
		products:   products,
		payments:   payments,
		idem:       idem,
		validate:   newValidator(),
	}
}

// Routes returns the API router. Order status and payment updates come from
// back-office tools and payment webhooks, so they are wrapped with admin.
func (h *Handler) Routes(admin httpmiddleware.Middleware) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, apiError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "Resource not found."})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, apiError{Status: http.StatusMethodNotAllowed, Code: CodeMethodNotAllowed, Message: "Method not allowed."})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/checkout/totals", h.CalculateTotals)
		r.Post("/checkout", h.PlaceOrder)

		r.Post("/coupons/validate", h.ValidateCoupon)
		r.Get("/coupons/auto-apply", h.AutoApplyCoupons)

		r.Get("/products/{id}/promotion", h.ProductPromotion)

		r.Route("/orders/{number}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Group(func(r chi.Router) {
				if admin != nil {
					r.Use(admin)
				}
				r.Post("/status", h.UpdateStatus)
				r.Post("/payment", h.UpdatePayment)
			})
		})
	})
	return r
}
