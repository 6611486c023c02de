//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"regexp"
	"testing"
	"time"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-[A-Z0-9]{6}$`)

// Two posters: 50.00 subtotal, 5.00 standard shipping, no tax.
var posterLines = []line{{ProductID: "poster", Quantity: 2, UnitPrice: "25.00", CategoryIDs: []string{"prints"}}}

func orderBody(email, coupon string) map[string]any {
	return map[string]any{
		"lines": posterLines,
		"contact": map[string]string{
			"email":      email,
			"first_name": "Grace",
			"last_name":  "Hopper",
		},
		"shipping_address": map[string]string{
			"first_name":  "Grace",
			"last_name":   "Hopper",
			"line1":       "1 Compiler Way",
			"city":        "Arlington",
			"postal_code": "22201",
			"country":     "US",
		},
		"same_as_shipping": true,
		"shipping_method":  "standard",
		"payment_method":   "cod",
		"coupon_code":      coupon,
	}
}

func uniqueEmail() string {
	return fmt.Sprintf("it-%d@example.com", time.Now().UnixNano())
}

func TestCalculateTotals(t *testing.T) {
	for _, tt := range []struct {
		Name         string
		Coupon       string
		Discount     string
		Shipping     string
		Total        string
		FreeShipping bool
	}{
		{Name: "NoCoupon", Discount: "0.00", Shipping: "5.00", Total: "55.00"},
		{Name: "Percentage", Coupon: "SAVE10", Discount: "5.00", Shipping: "5.00", Total: "50.00"},
		{Name: "FreeShipping", Coupon: "freeship", Discount: "0.00", Shipping: "0.00", Total: "50.00", FreeShipping: true},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			env := expect(t, doPost(t, "/api/checkout/totals", map[string]any{
				"lines":           posterLines,
				"coupon_code":     tt.Coupon,
				"shipping_method": "standard",
			}), http.StatusOK)

			totals := decodeData[totalsResponse](t, env)
			if totals.Subtotal != "50.00" {
				t.Errorf("subtotal: got %s, want 50.00", totals.Subtotal)
			}
			if totals.Discount != tt.Discount {
				t.Errorf("discount: got %s, want %s", totals.Discount, tt.Discount)
			}
			if totals.ShippingCost != tt.Shipping {
				t.Errorf("shipping_cost: got %s, want %s", totals.ShippingCost, tt.Shipping)
			}
			if totals.Total != tt.Total {
				t.Errorf("total: got %s, want %s", totals.Total, tt.Total)
			}
			if totals.FreeShipping != tt.FreeShipping {
				t.Errorf("free_shipping: got %v, want %v", totals.FreeShipping, tt.FreeShipping)
			}
		})
	}
}

func TestCalculateTotals_UnknownCoupon(t *testing.T) {
	env := expect(t, doPost(t, "/api/checkout/totals", map[string]any{
		"lines":       posterLines,
		"coupon_code": "DOES-NOT-EXIST",
	}), http.StatusUnprocessableEntity)

	if env.ErrorCode != "COUPON_NOT_FOUND" {
		t.Errorf("error_code: got %q, want COUPON_NOT_FOUND", env.ErrorCode)
	}
}

func TestPlaceOrder(t *testing.T) {
	env := expect(t, doPost(t, "/api/checkout", orderBody(uniqueEmail(), "SAVE10")), http.StatusCreated)

	placed := decodeData[placedResponse](t, env)
	o := placed.Order
	if !orderNumberPattern.MatchString(o.OrderNumber) {
		t.Errorf("order_number %q does not match %s", o.OrderNumber, orderNumberPattern)
	}
	if o.Status != "pending" {
		t.Errorf("status: got %q, want pending", o.Status)
	}
	if o.Total != "50.00" {
		t.Errorf("total: got %s, want 50.00", o.Total)
	}
	if o.CouponCode != "SAVE10" {
		t.Errorf("coupon_code: got %q, want SAVE10", o.CouponCode)
	}
	if len(o.Items) != 1 || o.Items[0].ProductID != "poster" || o.Items[0].Quantity != 2 {
		t.Errorf("unexpected items: %+v", o.Items)
	}

	got := decodeData[orderResponse](t, expect(t, doGet(t, "/api/orders/"+o.OrderNumber), http.StatusOK))
	if got.OrderNumber != o.OrderNumber {
		t.Errorf("get order: got %q, want %q", got.OrderNumber, o.OrderNumber)
	}
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	body := orderBody(uniqueEmail(), "")
	headers := map[string]string{"Idempotency-Key": fmt.Sprintf("it-%d", time.Now().UnixNano())}

	first := decodeData[placedResponse](t,
		expect(t, doRequest(t, http.MethodPost, "/api/checkout", body, headers), http.StatusCreated))
	second := decodeData[placedResponse](t,
		expect(t, doRequest(t, http.MethodPost, "/api/checkout", body, headers), http.StatusOK))

	if !second.Replayed {
		t.Error("expected replayed=true on retry")
	}
	if second.Order.OrderNumber != first.Order.OrderNumber {
		t.Errorf("retry created %q, want %q", second.Order.OrderNumber, first.Order.OrderNumber)
	}
}

func TestPlaceOrder_Rejected(t *testing.T) {
	t.Run("TotalChanged", func(t *testing.T) {
		body := orderBody(uniqueEmail(), "")
		body["expected_total"] = "12.34"

		env := expect(t, doPost(t, "/api/checkout", body), http.StatusConflict)
		if env.ErrorCode != "TOTALS_MISMATCH" {
			t.Errorf("error_code: got %q, want TOTALS_MISMATCH", env.ErrorCode)
		}
	})

	t.Run("UnknownPayment", func(t *testing.T) {
		body := orderBody(uniqueEmail(), "")
		body["payment_method"] = "crypto"

		env := expect(t, doPost(t, "/api/checkout", body), http.StatusUnprocessableEntity)
		if env.ErrorCode != "PAYMENT_METHOD_UNAVAILABLE" {
			t.Errorf("error_code: got %q, want PAYMENT_METHOD_UNAVAILABLE", env.ErrorCode)
		}
	})

	t.Run("MissingContact", func(t *testing.T) {
		body := orderBody("", "")

		env := expect(t, doPost(t, "/api/checkout", body), http.StatusUnprocessableEntity)
		if _, ok := env.Errors["contact.email"]; !ok {
			t.Errorf("expected contact.email field error, got %v", env.Errors)
		}
	})
}

func TestValidateCoupon(t *testing.T) {
	type result struct {
		Valid          bool    `json:"valid"`
		Reason         *string `json:"reason"`
		DiscountAmount string  `json:"discount_amount"`
	}

	valid := decodeData[result](t, expect(t, doPost(t, "/api/coupons/validate", map[string]any{
		"code":  "save10",
		"lines": posterLines,
	}), http.StatusOK))
	if !valid.Valid || valid.DiscountAmount != "5.00" {
		t.Errorf("SAVE10: got %+v, want valid with 5.00", valid)
	}

	// FLAT50 needs a 100.00 minimum order.
	below := decodeData[result](t, expect(t, doPost(t, "/api/coupons/validate", map[string]any{
		"code":  "FLAT50",
		"lines": posterLines,
	}), http.StatusOK))
	if below.Valid || below.Reason == nil || *below.Reason != "COUPON_MIN_ORDER_NOT_MET" {
		t.Errorf("FLAT50: got %+v, want COUPON_MIN_ORDER_NOT_MET rejection", below)
	}
}

func TestProductPromotion(t *testing.T) {
	type badge struct {
		Price            string `json:"price"`
		PromotionalPrice string `json:"promotional_price"`
		Promotion        *struct {
			ID string `json:"id"`
		} `json:"promotion"`
	}

	// The hoodie is on sale at 39.00 and apparel is 20% off.
	hoodie := decodeData[badge](t, expect(t, doGet(t, "/api/products/hoodie/promotion"), http.StatusOK))
	if hoodie.Promotion == nil || hoodie.Promotion.ID != "seed-apparel-sale" {
		t.Fatalf("hoodie: expected seed-apparel-sale, got %+v", hoodie.Promotion)
	}
	if hoodie.Price != "39.00" || hoodie.PromotionalPrice != "31.20" {
		t.Errorf("hoodie: got price %s promotional %s", hoodie.Price, hoodie.PromotionalPrice)
	}

	poster := decodeData[badge](t, expect(t, doGet(t, "/api/products/poster/promotion"), http.StatusOK))
	if poster.Promotion != nil {
		t.Errorf("poster: expected no promotion, got %+v", poster.Promotion)
	}

	expect(t, doGet(t, "/api/products/unknown/promotion"), http.StatusNotFound)
}
