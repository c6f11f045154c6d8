// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// Notifier is the outward notification boundary. Both methods are
// best-effort from the caller's point of view: the lifecycle never lets a
// notification failure affect a state transition.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, text string, rows [][]InlineButton) error
	// NotifyAdmins fans the message out to the configured admin pool.
	// photoFileID, when non-empty, attaches a previously uploaded photo.
	NotifyAdmins(ctx context.Context, text string, photoFileID string, rows [][]InlineButton) error
}

// InvoiceSender issues a native in-chat invoice (Telegram Stars). The
// payload string comes back verbatim in the successful-payment event.
type InvoiceSender interface {
	SendInvoice(ctx context.Context, userID int64, title, description, payload, currency string, amount int64) error
}
