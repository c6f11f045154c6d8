// File: internal/infra/providers/stars.go
package providers

import (
	"context"
	"fmt"

	"telegram-subscription-bot/internal/domain/ports/adapter"
)

// StarsProvider sells through the chat's native in-app currency. Creation
// sends an invoice message; settlement comes back synchronously as a payment
// event carrying the invoice payload, so there is nothing to poll.
type StarsProvider struct {
	enabled  bool
	invoices adapter.InvoiceSender
}

func NewStarsProvider(enabled bool, invoices adapter.InvoiceSender) *StarsProvider {
	return &StarsProvider{enabled: enabled, invoices: invoices}
}

func (p *StarsProvider) Kind() adapter.ProviderKind { return adapter.ProviderStars }

func (p *StarsProvider) Configured() bool { return p.enabled && p.invoices != nil }

// CreatePayment sends the invoice into the chat. The payload round-trips
// through the payment event and is the only way to find the record again.
func (p *StarsProvider) CreatePayment(ctx context.Context, pc adapter.CreateContext) (*adapter.Receipt, error) {
	payload := fmt.Sprintf("%s:%d:%d", adapter.ProviderStars, pc.PaymentID, pc.Months)
	title := fmt.Sprintf("Subscription, %d month(s)", pc.Months)
	if err := p.invoices.SendInvoice(ctx, pc.UserID, title, pc.Description, payload, pc.Currency, pc.Amount); err != nil {
		return nil, fmt.Errorf("failed to send invoice: %w", err)
	}
	return &adapter.Receipt{ReferenceID: payload}, nil
}
