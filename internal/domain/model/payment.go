package model

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated        PaymentStatus = "created"         // record exists, provider not yet invoked
	PaymentStatusPending        PaymentStatus = "pending"         // provider invoice issued; awaiting settlement
	PaymentStatusPendingReceipt PaymentStatus = "pending_receipt" // manual transfer: user is uploading a receipt
	PaymentStatusPendingReview  PaymentStatus = "pending_review"  // manual transfer: receipt attached, awaiting admin
	PaymentStatusApproved       PaymentStatus = "approved"        // admin approved; settlement in progress
	PaymentStatusSettled        PaymentStatus = "settled"         // terminal success
	PaymentStatusRejected       PaymentStatus = "rejected"        // terminal: admin rejected the receipt
	PaymentStatusFailed         PaymentStatus = "failed"          // terminal: provider reported failure/cancellation
	PaymentStatusFailedCreation PaymentStatus = "failed_creation" // terminal: provider call failed at creation
)

// transitions is the closed edge set of the payment state machine.
// Automated providers: created -> pending -> {settled, failed}.
// Manual transfer: created -> pending_receipt -> pending_review -> {approved, rejected},
// approved -> settled.
// created -> settled is the native-payment fast path: the in-chat payment
// event can outrun the created -> pending write of its own record.
var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated:        {PaymentStatusPending, PaymentStatusPendingReceipt, PaymentStatusSettled, PaymentStatusFailedCreation},
	PaymentStatusPending:        {PaymentStatusSettled, PaymentStatusFailed},
	PaymentStatusPendingReceipt: {PaymentStatusPendingReview},
	PaymentStatusPendingReview:  {PaymentStatusApproved, PaymentStatusRejected},
	PaymentStatusApproved:       {PaymentStatusSettled},
}

// Terminal reports whether no further transition is allowed from s.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusSettled, PaymentStatusRejected, PaymentStatusFailed, PaymentStatusFailedCreation:
		return true
	}
	return false
}

// CanTransition reports whether s -> to is one of the legal edges.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Payment is the provider-agnostic payment record and the audit trail of a
// purchase attempt. Records are never deleted; status moves monotonically
// along the edges above and stops at the first terminal state.
type Payment struct {
	ID            int64  // store-assigned, immutable
	UserID        int64  // telegram user id
	Amount        int64  // minor units (kopeks / stars / cents)
	Currency      string // "RUB", "XTR", ...
	Months        int    // subscription duration purchased
	Description   string
	Status        PaymentStatus
	Provider      string  // ProviderKind the payment was initiated with
	ProviderRef   *string // provider-side id; nil until the provider confirms creation
	PromoCodeID   *int64
	AdminNotes    *string // manual review decision notes / rejection reason
	ReceiptFileID *string // telegram file id of the uploaded transfer receipt
	// SubscriptionID links the extension granted for this payment and doubles
	// as the activation idempotency marker.
	SubscriptionID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SettledAt      *time.Time
}
