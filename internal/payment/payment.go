// Package payment dispatches placed orders to payment gateways.
//
// The checkout core never speaks a gateway protocol. A gateway returns one of
// three result shapes: a redirect to a hosted payment page, a structured
// payload the storefront renders, or an immediate result.
package payment

import (
	"context"
	"slices"
	"sort"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// ErrUnavailable is returned for unknown or unconfigured payment methods.
var ErrUnavailable = errors.New("payment method unavailable")

// Kind is the shape of a gateway result.
type Kind string

const (
	KindRedirect   Kind = "redirect"
	KindStructured Kind = "structured"
	KindImmediate  Kind = "immediate"
)

// Result is a tagged union over the three gateway result shapes. Only the
// fields of the selected Kind are set.
type Result struct {
	Kind Kind

	// RedirectURL is set for KindRedirect.
	RedirectURL string
	// Payload is set for KindStructured.
	Payload map[string]string
	// Paid is set for KindImmediate when the payment completed synchronously.
	Paid bool
}

// Redirect returns a redirect result.
func Redirect(url string) *Result {
	return &Result{Kind: KindRedirect, RedirectURL: url}
}

// Structured returns a structured payload result.
func Structured(payload map[string]string) *Result {
	return &Result{Kind: KindStructured, Payload: payload}
}

// Immediate returns an immediate result.
func Immediate(paid bool) *Result {
	return &Result{Kind: KindImmediate, Paid: paid}
}

// Request carries request-scoped data a gateway may need.
type Request struct {
	ReturnURL string
	CancelURL string
	IPAddress string
}

// Gateway processes payment for a placed order.
type Gateway interface {
	// Code is the payment method code the gateway serves.
	Code() string
	// IsConfigured reports whether the gateway has the settings it needs.
	IsConfigured() bool
	ProcessPayment(ctx context.Context, o *order.Order, req Request) (*Result, error)
}

// Registry resolves gateways by payment method code. It is built once at
// startup and is read-only afterwards.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry registers the gateways. A later gateway with the same code
// replaces an earlier one.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Code()] = g
	}
	return r
}

// Get returns the configured gateway for code.
func (r *Registry) Get(code string) (Gateway, error) {
	g, ok := r.gateways[code]
	if !ok {
		return nil, errors.Wrapf(ErrUnavailable, "unknown method %q", code)
	}
	if !g.IsConfigured() {
		return nil, errors.Wrapf(ErrUnavailable, "method %q is not configured", code)
	}
	return g, nil
}

// Available returns the codes of configured gateways, sorted.
func (r *Registry) Available() []string {
	var codes []string
	for code, g := range r.gateways {
		if g.IsConfigured() {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// Supports reports whether code names a configured gateway.
func (r *Registry) Supports(code string) bool {
	return slices.Contains(r.Available(), code)
}

// Process resolves the gateway for the order's payment method and runs it.
func (r *Registry) Process(ctx context.Context, o *order.Order, req Request) (*Result, error) {
	g, err := r.Get(o.PaymentMethod)
	if err != nil {
		return nil, err
	}
	res, err := g.ProcessPayment(ctx, o, req)
	if err != nil {
		return nil, errors.Wrapf(err, "process %s payment", g.Code())
	}
	return res, nil
}
