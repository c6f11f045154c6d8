// File: internal/domain/ports/adapter/provider.go
package adapter

import "context"

// ProviderKind is the closed set of payment providers. Selection is a pure
// function over the configured registry; there is no runtime type sniffing.
type ProviderKind string

const (
	ProviderYooKassa  ProviderKind = "yookassa"        // hosted checkout, settles via webhook
	ProviderCryptoPay ProviderKind = "cryptopay"       // crypto invoice, settles via webhook
	ProviderStars     ProviderKind = "stars"           // Telegram Stars, settles synchronously in-chat
	ProviderManual    ProviderKind = "manual_transfer" // bank/phone transfer, settles via admin review
)

func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderYooKassa, ProviderCryptoPay, ProviderStars, ProviderManual:
		return true
	}
	return false
}

// CreateContext carries everything a provider needs to create its side of a
// payment. The domain record already exists when CreatePayment is called.
type CreateContext struct {
	PaymentID   int64
	UserID      int64
	Amount      int64 // minor units
	Currency    string
	Months      int
	Description string
}

// Receipt is the provider-side creation result.
type Receipt struct {
	ReferenceID string // provider payment/invoice id
	ActionURL   string // checkout / invoice URL; empty for in-chat and manual flows
}

// PaymentProvider is the hex port every provider variant implements.
type PaymentProvider interface {
	Kind() ProviderKind
	// Configured reports whether this provider has usable credentials.
	Configured() bool
	// CreatePayment creates the provider-side payment or invoice.
	CreatePayment(ctx context.Context, pc CreateContext) (*Receipt, error)
}

// StatusQuerier is implemented by providers whose settlement the reconciler
// can poll (hosted checkout, crypto invoices). Returns done=false while the
// provider still considers the payment in flight.
type StatusQuerier interface {
	FetchStatus(ctx context.Context, referenceID string) (paid bool, done bool, err error)
}

// InstructionsProvider is implemented by the manual transfer provider only.
type InstructionsProvider interface {
	TransferInstructions(amount int64, currency string, months int) string
}
