// File: internal/infra/providers/manual.go
package providers

import (
	"context"
	"fmt"

	"telegram-subscription-bot/internal/domain/ports/adapter"
)

// ManualProvider is the bank/phone transfer path. There is no provider side:
// creation only hands back transfer instructions, and the record stays put
// until the user uploads a receipt and an admin reviews it.
type ManualProvider struct {
	recipientPhone string
	recipientName  string
	bankName       string
}

func NewManualProvider(recipientPhone, recipientName, bankName string) *ManualProvider {
	return &ManualProvider{
		recipientPhone: recipientPhone,
		recipientName:  recipientName,
		bankName:       bankName,
	}
}

func (p *ManualProvider) Kind() adapter.ProviderKind { return adapter.ProviderManual }

func (p *ManualProvider) Configured() bool { return p.recipientPhone != "" }

func (p *ManualProvider) CreatePayment(ctx context.Context, pc adapter.CreateContext) (*adapter.Receipt, error) {
	// No external call and no reference; the empty ReferenceID keeps the
	// record in its initial state.
	return &adapter.Receipt{}, nil
}

func (p *ManualProvider) TransferInstructions(amount int64, currency string, months int) string {
	return fmt.Sprintf(
		"Transfer %d.%02d %s to:\n\nPhone: %s\nRecipient: %s\nBank: %s\n\nThen press \"I paid\" and send a photo of the receipt within 5 minutes.",
		amount/100, amount%100, currency, p.recipientPhone, p.recipientName, p.bankName,
	)
}
