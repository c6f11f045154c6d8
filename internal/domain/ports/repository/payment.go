package repository

import (
	"context"
	"time"

	"telegram-subscription-bot/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

// PaymentRepository is the single writer of payment state. Status mutation
// goes through the conditional UpdateStatusIf, which enforces the state
// machine at the storage level: the UPDATE matches only when the current
// status is one of `from`, so a losing racer simply affects zero rows.
type PaymentRepository interface {
	// Create inserts the record and returns the store-assigned id.
	Create(ctx context.Context, qx Tx, p *model.Payment) (int64, error)
	// FindByID loads a record; inside a transaction the row is locked FOR UPDATE.
	FindByID(ctx context.Context, qx Tx, id int64) (*model.Payment, error)
	FindByProviderRef(ctx context.Context, qx Tx, provider, ref string) (*model.Payment, error)
	// UpdateStatusIf transitions id from one of `from` to `to`, optionally
	// recording the provider reference and settlement time. Returns false
	// when the record was not in any `from` state (transition lost).
	UpdateStatusIf(ctx context.Context, qx Tx, id int64, from []model.PaymentStatus, to model.PaymentStatus, providerRef *string, settledAt *time.Time) (bool, error)
	// SetReceipt stores the uploaded receipt reference alongside the
	// pending_receipt -> pending_review transition (single statement).
	SetReceipt(ctx context.Context, qx Tx, id int64, fileID string) (bool, error)
	SetAdminNotes(ctx context.Context, qx Tx, id int64, notes string) error
	// LinkSubscription records which subscription extension this payment
	// produced; it is the activation idempotency marker.
	LinkSubscription(ctx context.Context, qx Tx, paymentID, subscriptionID int64) error
	// ListStatusOlderThan feeds the reconciler: stale pending payments to
	// poll, and approved payments whose settlement follow-up was lost.
	ListStatusOlderThan(ctx context.Context, qx Tx, status model.PaymentStatus, olderThan time.Time, limit int) ([]*model.Payment, error)
}
