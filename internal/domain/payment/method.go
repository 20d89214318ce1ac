// Package payment defines the closed set of payment methods a shopper can
// pick at checkout.
//
// Methods are modelled as a sealed variant type: every method is either a
// Redirect (the shopper finishes payment on a hosted page) or CashOnDelivery
// (no online payment step). Code that needs to branch on the variant uses
// Match, which takes one function per variant, so adding a variant breaks
// every call site at compile time instead of falling into a default case.
package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// Key is the stable identifier of a payment method on the wire and in storage.
type Key string

const (
	// KeyCard is the hosted card checkout.
	KeyCard Key = "card"
	// KeyMada is the local debit network, paid on the hosted page.
	KeyMada Key = "mada"
	// KeyWallet is a mobile wallet, paid on the hosted page.
	KeyWallet Key = "wallet"
	// KeyTabby is a deferred-payment lender.
	KeyTabby Key = "tabby"
	// KeyTamara is a deferred-payment lender.
	KeyTamara Key = "tamara"
	// KeyCashOnDelivery confirms the order immediately; payment is collected on delivery.
	KeyCashOnDelivery Key = "cod"
)

// ErrUnknownMethod is returned when a key is not one of the supported methods.
var ErrUnknownMethod = errors.New("unknown payment method")

// Method is a selectable payment method. Implementations are Redirect and
// CashOnDelivery only.
type Method interface {
	Key() Key
	sealed()
}

// Redirect is a method paid on the gateway's hosted page. Order creation
// yields a redirect URL.
type Redirect struct {
	key Key
}

// Key implements Method.
func (r Redirect) Key() Key { return r.key }

func (Redirect) sealed() {}

// CashOnDelivery skips the hosted payment hop. Order creation yields an
// order identifier directly.
type CashOnDelivery struct{}

// Key implements Method.
func (CashOnDelivery) Key() Key { return KeyCashOnDelivery }

func (CashOnDelivery) sealed() {}

var redirectKeys = []Key{KeyCard, KeyMada, KeyWallet, KeyTabby, KeyTamara}

// Parse resolves a wire key to its Method. Matching is case-insensitive and
// ignores surrounding whitespace.
func Parse(s string) (Method, error) {
	k := Key(strings.ToLower(strings.TrimSpace(s)))
	if k == KeyCashOnDelivery {
		return CashOnDelivery{}, nil
	}
	for _, rk := range redirectKeys {
		if k == rk {
			return Redirect{key: k}, nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownMethod, "%q", s)
}

// All returns every supported method in display order.
func All() []Method {
	out := make([]Method, 0, len(redirectKeys)+1)
	for _, k := range redirectKeys {
		out = append(out, Redirect{key: k})
	}
	return append(out, CashOnDelivery{})
}

// Match dispatches on the variant of m. Both handlers are required.
func Match[T any](m Method, redirect func(Redirect) T, cod func(CashOnDelivery) T) T {
	switch v := m.(type) {
	case Redirect:
		return redirect(v)
	case CashOnDelivery:
		return cod(v)
	default:
		// Unreachable: Method is sealed.
		panic(errors.Errorf("unexpected payment method %T", m))
	}
}

// IsRedirect reports whether m is paid on a hosted page.
func IsRedirect(m Method) bool {
	return Match(m,
		func(Redirect) bool { return true },
		func(CashOnDelivery) bool { return false },
	)
}

// Listing is the display metadata of a method, used only to render
// selection tiles.
type Listing struct {
	Key      Key
	Type     string
	Icon     string
	Position int
	Enabled  bool
}

// Repository provides the display metadata for payment methods.
type Repository interface {
	ListMethods(ctx context.Context) ([]Listing, error)
}
