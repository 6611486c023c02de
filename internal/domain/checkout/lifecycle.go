package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// GetOrder returns the order with its items and addresses.
func (s *Service) GetOrder(ctx context.Context, number string) (*order.Order, error) {
	o, err := s.store.Repos().Orders.FindByNumber(ctx, number)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", number)
	}
	return o, nil
}

// ConfirmPayment marks the order paid, moves it to processing and records
// coupon and promotion usage, all in one transaction. Confirming an order
// whose usage is already recorded is a no-op. Coupon limits are enforced
// when the order is placed, so a paid order is never refused over them.
func (s *Service) ConfirmPayment(ctx context.Context, number string) (*order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.ConfirmPayment",
		trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	var (
		confirmed *order.Order
		changed   bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, r Repos) error {
		o, err := r.Orders.LockByNumber(ctx, number)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		confirmed = o

		if o.PaymentStatus == order.PaymentPaid && o.UsageRecordedAt != nil {
			return nil
		}
		if o.Status == order.StatusCancelled || o.Status == order.StatusRefunded {
			return errors.Wrapf(ErrOrderClosed, "order %s is %s", o.Number, o.Status)
		}

		o.PaymentStatus = order.PaymentPaid
		if o.Status == order.StatusPending {
			if err := o.Transition(order.StatusProcessing); err != nil {
				return err
			}
		}

		coupons, promotions := s.bound(r)
		if o.CouponID != "" {
			err := coupons.RecordUsage(ctx, coupon.Usage{
				CouponID:       o.CouponID,
				OrderID:        o.ID,
				CustomerID:     o.CustomerID,
				DiscountAmount: o.CouponDiscount,
				OrderSubtotal:  o.Subtotal,
				UsedAt:         s.now(),
				IPAddress:      o.IPAddress,
				UserAgent:      o.UserAgent,
			})
			if err != nil {
				return errors.Wrap(err, "record coupon usage")
			}
		}
		if err := promotions.RecordUsage(ctx, o.PromotionIDs, o.Total); err != nil {
			return err
		}

		now := s.now()
		o.UsageRecordedAt = &now
		if err := r.Orders.UpdateStatus(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		changed = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !changed {
		return confirmed, nil
	}

	if confirmed.CouponCode != "" {
		if err := s.cache.InvalidateCoupon(ctx, confirmed.CouponCode); err != nil {
			zctx.From(ctx).Warn("Coupon cache invalidation failed",
				zap.String("coupon_code", confirmed.CouponCode), zap.Error(err))
		}
	}
	zctx.From(ctx).Info("Payment confirmed", zap.String("order_number", confirmed.Number))
	s.notifier.OrderPaid(ctx, confirmed)
	return confirmed, nil
}

// FailPayment records a failed payment. The order stays pending, no usage
// is recorded and its coupon hold is released.
func (s *Service) FailPayment(ctx context.Context, number string) (*order.Order, error) {
	var failed *order.Order
	err := s.store.InTx(ctx, func(ctx context.Context, r Repos) error {
		o, err := r.Orders.LockByNumber(ctx, number)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		if o.PaymentStatus == order.PaymentPaid {
			return errors.Wrapf(ErrAlreadyPaid, "order %s", o.Number)
		}
		o.PaymentStatus = order.PaymentFailed
		if err := r.Orders.UpdateStatus(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		failed = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Warn("Payment failed", zap.String("order_number", failed.Number))
	return failed, nil
}

// TransitionStatus moves the order through the status state machine.
// Totals and items are never changed.
func (s *Service) TransitionStatus(ctx context.Context, number string, to order.Status) (*order.Order, error) {
	if !to.Valid() {
		return nil, &order.InvalidTransitionError{To: to}
	}

	var (
		updated *order.Order
		from    order.Status
	)
	err := s.store.InTx(ctx, func(ctx context.Context, r Repos) error {
		o, err := r.Orders.LockByNumber(ctx, number)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		from = o.Status
		if err := o.Transition(to); err != nil {
			return err
		}
		if err := r.Orders.UpdateStatus(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_number", updated.Number),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.notifier.OrderStatusChanged(ctx, updated, from)
	return updated, nil
}
