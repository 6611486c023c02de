package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
	"github.com/xenking/storefront-checkout/internal/payment"
)

func str(v string) func(*jx.Encoder) {
	return func(e *jx.Encoder) { e.Str(v) }
}

// amount encodes d as a fixed two-decimal string.
func amount(d decimal.Decimal) func(*jx.Encoder) {
	return str(money.Format(d))
}

func encodeTotals(e *jx.Encoder, t *checkout.Totals) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("subtotal", amount(t.Subtotal))
		e.Field("tax", amount(t.Tax))
		e.Field("shipping_cost", amount(t.ShippingCost))
		e.Field("discount", amount(t.Discount))
		e.Field("total", amount(t.Total))
		e.Field("coupon", func(e *jx.Encoder) {
			if t.Coupon == nil {
				e.Null()
				return
			}
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", str(t.Coupon.Code))
				e.Field("type", str(string(t.Coupon.Type)))
				e.Field("discount", amount(t.CouponDiscount))
				e.Field("message", str(t.CouponMessage))
			})
		})
		e.Field("free_shipping", func(e *jx.Encoder) { e.Bool(t.FreeShipping) })
		e.Field("promotion_discount", amount(t.PromotionDiscount))
		e.Field("promotions", func(e *jx.Encoder) {
			e.ArrStart()
			for _, p := range t.Promotions {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", str(p.PromotionID))
					e.Field("name", str(p.Name))
					e.Field("amount", amount(p.Amount))
				})
			}
			e.ArrEnd()
		})
		if len(t.TaxBreakdown) > 0 {
			e.Field("tax_breakdown", func(e *jx.Encoder) {
				e.ArrStart()
				for _, l := range t.TaxBreakdown {
					e.Obj(func(e *jx.Encoder) {
						e.Field("name", str(l.Name))
						e.Field("rate", str(l.Rate.String()))
						e.Field("amount", amount(l.Amount))
					})
				}
				e.ArrEnd()
			})
		}
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_number", str(o.Number))
		e.Field("status", str(string(o.Status)))
		e.Field("payment_status", str(string(o.PaymentStatus)))
		e.Field("customer_id", str(o.CustomerID))
		if o.UserID != "" {
			e.Field("user_id", str(o.UserID))
		}
		e.Field("customer_email", str(o.CustomerEmail))
		e.Field("subtotal", amount(o.Subtotal))
		e.Field("tax", amount(o.Tax))
		e.Field("shipping_cost", amount(o.ShippingCost))
		e.Field("discount", amount(o.Discount))
		e.Field("total", amount(o.Total))
		if o.CouponCode != "" {
			e.Field("coupon_code", str(o.CouponCode))
			e.Field("coupon_discount", amount(o.CouponDiscount))
		}
		e.Field("promotion_ids", func(e *jx.Encoder) {
			e.ArrStart()
			for _, id := range o.PromotionIDs {
				e.Str(id)
			}
			e.ArrEnd()
		})
		e.Field("payment_method", str(o.PaymentMethod))
		e.Field("shipping_method", str(o.ShippingMethod))
		if o.Notes != "" {
			e.Field("notes", str(o.Notes))
		}
		e.Field("created_at", str(o.CreatedAt.UTC().Format(time.RFC3339)))
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, it := range o.Items {
				encodeItem(e, it)
			}
			e.ArrEnd()
		})
		e.Field("addresses", func(e *jx.Encoder) {
			e.ArrStart()
			for _, a := range o.Addresses {
				encodeAddress(e, a)
			}
			e.ArrEnd()
		})
	})
}

func encodeItem(e *jx.Encoder, it order.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", str(it.ProductID))
		e.Field("sku", str(it.ProductSKU))
		e.Field("name", str(it.ProductName))
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("price", amount(it.Price))
		e.Field("total", amount(it.Total))
		e.Field("tax_amount", amount(it.TaxAmount))
		e.Field("discount_amount", amount(it.DiscountAmount))
		if len(it.Options) > 0 {
			e.Field("options", func(e *jx.Encoder) { encodeFields(e, it.Options) })
		}
	})
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", str(string(a.Type)))
		e.Field("first_name", str(a.FirstName))
		e.Field("last_name", str(a.LastName))
		if a.Company != "" {
			e.Field("company", str(a.Company))
		}
		e.Field("line1", str(a.Line1))
		if a.Line2 != "" {
			e.Field("line2", str(a.Line2))
		}
		e.Field("city", str(a.City))
		if a.State != "" {
			e.Field("state", str(a.State))
		}
		e.Field("postal_code", str(a.PostalCode))
		e.Field("country", str(a.Country))
		if a.Phone != "" {
			e.Field("phone", str(a.Phone))
		}
	})
}

func encodePayment(e *jx.Encoder, res *payment.Result) {
	if res == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", str(string(res.Kind)))
		switch res.Kind {
		case payment.KindRedirect:
			e.Field("redirect_url", str(res.RedirectURL))
		case payment.KindStructured:
			e.Field("payload", func(e *jx.Encoder) { encodeFields(e, res.Payload) })
		case payment.KindImmediate:
			e.Field("paid", func(e *jx.Encoder) { e.Bool(res.Paid) })
		}
	})
}

func encodeCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", str(c.Code))
		e.Field("description", str(c.Description))
		e.Field("type", str(string(c.Type)))
		e.Field("value", str(c.Value.String()))
		e.Field("priority", func(e *jx.Encoder) { e.Int(c.Priority) })
		if c.EndDate != nil {
			e.Field("expires_at", str(c.EndDate.UTC().Format(time.RFC3339)))
		}
	})
}

func encodeBadge(e *jx.Encoder, productID string, price decimal.Decimal, b *promotion.ProductBadge) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", str(productID))
		e.Field("price", amount(price))
		if b == nil {
			e.Field("promotion", func(e *jx.Encoder) { e.Null() })
			return
		}
		e.Field("promotional_price", amount(b.PromotionalPrice))
		e.Field("discount", amount(b.Discount))
		e.Field("promotion", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", str(b.Promotion.ID))
				e.Field("name", str(b.Promotion.Name))
				e.Field("discount_type", str(string(b.Promotion.DiscountType)))
				e.Field("discount_value", str(b.Promotion.DiscountValue.String()))
				if b.Promotion.Badge.Text != "" {
					e.Field("badge", func(e *jx.Encoder) {
						e.Obj(func(e *jx.Encoder) {
							e.Field("text", str(b.Promotion.Badge.Text))
							e.Field("color", str(b.Promotion.Badge.Color))
						})
					})
				}
			})
		})
	})
}
