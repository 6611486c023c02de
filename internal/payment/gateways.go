package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

var (
	_ Gateway = CashOnDelivery{}
	_ Gateway = BankTransfer{}
	_ Gateway = (*Hosted)(nil)
)

// CashOnDelivery accepts the order without collecting payment. The order
// stays unpaid until delivery is confirmed.
type CashOnDelivery struct{}

func (CashOnDelivery) Code() string       { return "cod" }
func (CashOnDelivery) IsConfigured() bool { return true }

func (CashOnDelivery) ProcessPayment(context.Context, *order.Order, Request) (*Result, error) {
	return Immediate(false), nil
}

// BankTransfer returns transfer instructions for the storefront to render.
type BankTransfer struct {
	AccountName string
	IBAN        string
	BIC         string
}

func (BankTransfer) Code() string { return "bank_transfer" }

func (b BankTransfer) IsConfigured() bool {
	return b.AccountName != "" && b.IBAN != ""
}

func (b BankTransfer) ProcessPayment(_ context.Context, o *order.Order, _ Request) (*Result, error) {
	return Structured(map[string]string{
		"account_name": b.AccountName,
		"iban":         b.IBAN,
		"bic":          b.BIC,
		"amount":       money.Format(o.Total),
		"reference":    o.Number,
	}), nil
}

// Hosted redirects the customer to an external payment page. The query is
// signed with HMAC-SHA256 so the page can verify the amount.
type Hosted struct {
	MethodCode string
	PageURL    string
	Secret     string
}

func (h *Hosted) Code() string { return h.MethodCode }

func (h *Hosted) IsConfigured() bool {
	return h.MethodCode != "" && h.PageURL != "" && h.Secret != ""
}

func (h *Hosted) ProcessPayment(_ context.Context, o *order.Order, req Request) (*Result, error) {
	u, err := url.Parse(h.PageURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse page url")
	}
	amount := money.Format(o.Total)
	q := u.Query()
	q.Set("order", o.Number)
	q.Set("amount", amount)
	if req.ReturnURL != "" {
		q.Set("return_url", req.ReturnURL)
	}
	if req.CancelURL != "" {
		q.Set("cancel_url", req.CancelURL)
	}
	q.Set("signature", h.Sign(o.Number, amount))
	u.RawQuery = q.Encode()
	return Redirect(u.String()), nil
}

// Sign returns the hex HMAC of the order number and amount.
func (h *Hosted) Sign(number, amount string) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(number + ":" + amount))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func (h *Hosted) Verify(number, amount, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	got, _ := hex.DecodeString(h.Sign(number, amount))
	return hmac.Equal(got, want)
}
