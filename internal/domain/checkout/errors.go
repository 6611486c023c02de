package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

var (
	// ErrEmptyCart is returned before any transaction starts when the cart
	// has no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrAccountRequired is returned when guest checkout is disabled and the
	// caller is neither authenticated nor creating an account.
	ErrAccountRequired = errors.New("an account is required to check out")
	// ErrUnknownShippingMethod is returned when no rate exists for the
	// selected shipping method.
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
	// ErrAlreadyPaid is returned when failing payment on a paid order.
	ErrAlreadyPaid = errors.New("order is already paid")
	// ErrOrderClosed is returned when confirming payment on a cancelled or
	// refunded order.
	ErrOrderClosed = errors.New("order is closed")
	// ErrInvalidQuantity is returned for a cart line whose quantity is not
	// between 1 and cart.MaxLineQuantity.
	ErrInvalidQuantity = errors.New("invalid line quantity")
)

// TotalsMismatchError reports totals that do not satisfy
// total == subtotal + tax + shipping - discount, or a total that differs
// from the one the customer was shown.
type TotalsMismatchError struct {
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *TotalsMismatchError) Error() string {
	return fmt.Sprintf("totals mismatch: expected %s, got %s", money.Format(e.Expected), money.Format(e.Actual))
}

// PriceMismatchError reports a cart line whose unit price is not the
// product's current catalog price.
type PriceMismatchError struct {
	ProductID string
	Expected  decimal.Decimal
	Actual    decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price of product %s changed: expected %s, got %s",
		e.ProductID, money.Format(e.Expected), money.Format(e.Actual))
}

// AccountAlreadyExistsError is returned when account creation is requested
// for an email that is already registered, or when an account checks out
// with an email that belongs to another account.
type AccountAlreadyExistsError struct {
	Email string
}

func (e *AccountAlreadyExistsError) Error() string {
	return fmt.Sprintf("an account already exists for %s", e.Email)
}

// AddressError reports an invalid order address.
type AddressError struct {
	Type order.AddressType
	Err  error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid %s address: %v", e.Type, e.Err)
}

func (e *AddressError) Unwrap() error {
	return e.Err
}

// OrderCreationFailedError wraps any failure inside the order transaction.
// Nothing from the failed attempt is persisted.
type OrderCreationFailedError struct {
	Cause error
}

func (e *OrderCreationFailedError) Error() string {
	return "order creation failed: " + e.Cause.Error()
}

func (e *OrderCreationFailedError) Unwrap() error {
	return e.Cause
}
