package checkout

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// OrderRequest is the input to CreateOrder.
type OrderRequest struct {
	Cart cart.Cart
	// UserID is the authenticated account, if any.
	UserID  string
	Contact customer.Contact
	// CreateAccount provisions an account for Contact.Email with Password.
	CreateAccount bool
	Password      string

	ShippingAddress order.Address
	// BillingAddress is ignored when SameAsShipping is set.
	BillingAddress *order.Address
	SameAsShipping bool

	ShippingMethod string
	PaymentMethod  string
	CouponCode     string
	Notes          string
	IPAddress      string
	UserAgent      string

	Tax      *cart.TaxResult
	Shipping *cart.ShippingResult
	// Totals are precomputed totals. When nil they are computed inside the
	// transaction.
	Totals *Totals
	// ExpectedTotal is the total the customer was shown. A different
	// computed total fails the order with *TotalsMismatchError.
	ExpectedTotal *decimal.Decimal
}

// CreateOrder validates the cart, resolves the customer and persists the
// order with its items and addresses in one transaction. Any failure inside
// the transaction rolls everything back and is returned wrapped in
// *OrderCreationFailedError. The caller clears the cart only after success.
func (s *Service) CreateOrder(ctx context.Context, req OrderRequest) (*order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CreateOrder")
	defer span.End()

	if req.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if req.UserID == "" && !req.CreateAccount && !s.cfg.guestsAllowed() {
		return nil, ErrAccountRequired
	}
	req.Contact.Email = customer.NormalizeEmail(req.Contact.Email)
	if req.Totals != nil {
		if err := req.Totals.check(s.cfg.Rounding); err != nil {
			return nil, err
		}
	}

	var passwordHash string
	if req.UserID == "" && req.CreateAccount {
		h, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, errors.Wrap(err, "hash password")
		}
		passwordHash = h
	}

	var created *order.Order
	err := s.store.InTx(ctx, func(ctx context.Context, r Repos) error {
		o, err := s.createOrder(ctx, r, req, passwordHash)
		if err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		s.ordersFailed.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "order creation failed")
		zctx.From(ctx).Warn("Order creation failed", zap.Error(err))

		var mismatch *TotalsMismatchError
		if errors.As(err, &mismatch) {
			return nil, err
		}
		return nil, &OrderCreationFailedError{Cause: err}
	}

	s.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", created.PaymentMethod)))
	span.SetAttributes(attribute.String("order.number", created.Number))
	zctx.From(ctx).Info("Order created",
		zap.String("order_number", created.Number),
		zap.String("customer_id", created.CustomerID),
		zap.String("total", money.Format(created.Total)),
	)
	s.notifier.OrderPlaced(ctx, created)
	return created, nil
}

func (s *Service) createOrder(ctx context.Context, r Repos, req OrderRequest, passwordHash string) (*order.Order, error) {
	cust, userID, err := s.resolveCustomer(ctx, r, req, passwordHash)
	if err != nil {
		return nil, err
	}

	priced, err := priceCart(ctx, r.Products, req.Cart)
	if err != nil {
		return nil, err
	}
	req.Cart = priced

	coupons, promotions := s.bound(r)
	totals := req.Totals
	if totals == nil {
		totals, err = s.calculate(ctx, coupons, promotions, TotalsRequest{
			Cart:           req.Cart,
			CouponCode:     req.CouponCode,
			CustomerID:     cust.ID,
			ShippingMethod: req.ShippingMethod,
			Tax:            req.Tax,
			Shipping:       req.Shipping,
		})
		if err != nil {
			return nil, err
		}
	}
	if req.ExpectedTotal != nil && !s.cfg.Rounding.Equal(*req.ExpectedTotal, totals.Total) {
		return nil, &TotalsMismatchError{Expected: *req.ExpectedTotal, Actual: totals.Total}
	}

	if totals.Coupon != nil {
		if _, err := coupons.EnsureCapacity(ctx, totals.Coupon.ID, cust.ID); err != nil {
			return nil, err
		}
	}

	items, err := s.buildItems(ctx, r, req.Cart, totals)
	if err != nil {
		return nil, err
	}
	addrs, err := s.buildAddresses(req)
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		UserID:         userID,
		CustomerID:     cust.ID,
		Status:         order.StatusPending,
		PaymentStatus:  order.PaymentPending,
		Subtotal:       totals.Subtotal,
		Tax:            totals.Tax,
		ShippingCost:   totals.ShippingCost,
		Discount:       totals.Discount,
		Total:          totals.Total,
		CouponDiscount: totals.CouponDiscount,
		PromotionIDs:   totals.PromotionIDs(),
		PaymentMethod:  req.PaymentMethod,
		ShippingMethod: req.ShippingMethod,
		CustomerEmail:  req.Contact.Email,
		CustomerPhone:  req.Contact.Phone,
		Notes:          req.Notes,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		CreatedAt:      s.now(),
		Items:          items,
		Addresses:      addrs,
	}
	if totals.Coupon != nil {
		o.CouponID = totals.Coupon.ID
		o.CouponCode = totals.Coupon.Code
	}
	if !o.TotalsBalanced(s.cfg.Rounding) {
		return nil, &TotalsMismatchError{Expected: o.Subtotal.Add(o.Tax).Add(o.ShippingCost).Sub(o.Discount), Actual: o.Total}
	}

	if err := s.insertWithNumber(ctx, r.Orders, o); err != nil {
		return nil, err
	}

	if err := r.Customers.RecordOrder(ctx, cust.ID, o.Total); err != nil {
		return nil, errors.Wrap(err, "record customer order")
	}
	if err := s.snapshotAddressBook(ctx, r.Customers, cust.ID, addrs); err != nil {
		return nil, err
	}

	loaded, err := r.Orders.FindByNumber(ctx, o.Number)
	if err != nil {
		return nil, errors.Wrap(err, "load created order")
	}
	return loaded, nil
}

// resolveCustomer returns the customer the order is attributed to and the
// linked account id, if any.
func (s *Service) resolveCustomer(ctx context.Context, r Repos, req OrderRequest, passwordHash string) (*customer.Customer, string, error) {
	switch {
	case req.UserID != "":
		c, err := r.Customers.FindByUserID(ctx, req.UserID)
		if err == nil {
			return c, req.UserID, nil
		}
		if !errors.Is(err, customer.ErrNotFound) {
			return nil, "", errors.Wrap(err, "find customer by user")
		}
		c, err = r.Customers.AttachAccount(ctx, req.Contact, req.UserID)
		if err != nil {
			if errors.Is(err, customer.ErrEmailTaken) {
				return nil, "", &AccountAlreadyExistsError{Email: req.Contact.Email}
			}
			return nil, "", errors.Wrap(err, "attach account")
		}
		return c, req.UserID, nil

	case req.CreateAccount:
		acct, err := r.Customers.CreateAccount(ctx, customer.Account{
			Email:        req.Contact.Email,
			PasswordHash: passwordHash,
			Name:         strings.TrimSpace(req.Contact.FirstName + " " + req.Contact.LastName),
			CreatedAt:    s.now(),
		})
		if err != nil {
			if errors.Is(err, customer.ErrEmailTaken) {
				return nil, "", &AccountAlreadyExistsError{Email: req.Contact.Email}
			}
			return nil, "", errors.Wrap(err, "create account")
		}
		c, err := r.Customers.AttachAccount(ctx, req.Contact, acct.ID)
		if err != nil {
			return nil, "", errors.Wrap(err, "attach account")
		}
		return c, acct.ID, nil

	default:
		c, err := r.Customers.UpsertGuest(ctx, req.Contact)
		if err != nil {
			return nil, "", errors.Wrap(err, "upsert guest customer")
		}
		return c, "", nil
	}
}

// buildItems reserves stock for every line and snapshots product data.
// Reservations run in product id order so concurrent orders lock rows in
// the same sequence; items keep the cart order. Order-level tax and
// discount are allocated to lines by line total.
func (s *Service) buildItems(ctx context.Context, r Repos, c cart.Cart, t *Totals) ([]order.Item, error) {
	rounding := s.cfg.Rounding
	weights := make([]decimal.Decimal, len(c.Lines))
	for i, l := range c.Lines {
		weights[i] = l.Total()
	}
	taxShares := money.Allocate(t.Tax, weights, rounding)
	discountShares := money.Allocate(t.Discount, weights, rounding)

	items := make([]order.Item, len(c.Lines))
	for _, i := range reserveOrder(c.Lines) {
		l := c.Lines[i]
		p, err := r.Products.ReserveStock(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "reserve product %s", l.ProductID)
		}
		if err := checkPrice(l, *p); err != nil {
			return nil, err
		}
		snap := p.Snapshot()
		items[i] = order.Item{
			ProductID:      snap.ID,
			ProductSKU:     snap.SKU,
			ProductName:    snap.Name,
			Quantity:       l.Quantity,
			Price:          l.UnitPrice,
			Total:          rounding.Round(l.Total()),
			TaxAmount:      taxShares[i],
			DiscountAmount: discountShares[i],
			Options:        l.Options,
		}
	}
	return items, nil
}

// reserveOrder returns line indexes sorted by product id.
func reserveOrder(lines []cart.Line) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(lines[a].ProductID, lines[b].ProductID)
	})
	return idx
}

func (s *Service) buildAddresses(req OrderRequest) ([]order.Address, error) {
	shipping := req.ShippingAddress
	shipping.Type = order.AddressShipping
	if err := s.validate.Struct(shipping); err != nil {
		return nil, &AddressError{Type: order.AddressShipping, Err: err}
	}

	billing := shipping
	if !req.SameAsShipping && req.BillingAddress != nil {
		billing = *req.BillingAddress
	}
	billing.Type = order.AddressBilling
	if err := s.validate.Struct(billing); err != nil {
		return nil, &AddressError{Type: order.AddressBilling, Err: err}
	}
	return []order.Address{shipping, billing}, nil
}

// insertWithNumber generates order numbers until one is accepted. Only
// number collisions are retried.
func (s *Service) insertWithNumber(ctx context.Context, orders order.Repository, o *order.Order) error {
	for attempt := 1; attempt <= s.cfg.MaxOrderNumberAttempts; attempt++ {
		o.Number = s.numbers.Next(s.now())
		err := orders.Create(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, order.ErrDuplicateNumber) {
			return errors.Wrap(err, "insert order")
		}
		zctx.From(ctx).Debug("Order number collision",
			zap.String("order_number", o.Number),
			zap.Int("attempt", attempt),
		)
	}
	return errors.Wrapf(order.ErrDuplicateNumber, "no free order number after %d attempts", s.cfg.MaxOrderNumberAttempts)
}

// snapshotAddressBook saves the order addresses for customers that have
// none yet. Existing address-book entries are never overwritten.
func (s *Service) snapshotAddressBook(ctx context.Context, customers customer.Repository, customerID string, addrs []order.Address) error {
	has, err := customers.HasAddresses(ctx, customerID)
	if err != nil {
		return errors.Wrap(err, "check address book")
	}
	if has {
		return nil
	}
	if err := customers.SaveAddresses(ctx, customerID, addrs); err != nil {
		return errors.Wrap(err, "save address book")
	}
	return nil
}
