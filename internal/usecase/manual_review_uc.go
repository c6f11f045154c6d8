// File: internal/usecase/manual_review_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
)

var _ ManualReviewUseCase = (*manualReviewUC)(nil)

// RejectionReasons is the fixed set an admin can pick from. The value is
// what the user sees, word for word.
var RejectionReasons = map[string]string{
	"wrong_amount":       "the transferred amount does not match the order",
	"wrong_recipient":    "the transfer was sent to a different recipient",
	"unreadable_receipt": "the receipt is unreadable",
	"wrong_date":         "the receipt date does not match",
	"other":              "the payment could not be verified",
}

// ManualReviewUseCase drives the human half of the manual-transfer flow:
// receipt upload by the user, approve/reject by an admin.
type ManualReviewUseCase interface {
	// BeginReceiptUpload opens a short-lived upload session for the payment.
	BeginReceiptUpload(ctx context.Context, userID, paymentID int64) error
	// AttachReceipt consumes the user's open session and files the receipt
	// for review. Returns false when no live session exists; the photo is
	// then ignored rather than guessed at.
	AttachReceipt(ctx context.Context, userID int64, fileID string) (bool, error)
	// Approve settles the payment under review.
	Approve(ctx context.Context, adminID, paymentID int64) (*model.ActivationResult, error)
	// Reject declines it with a reason relayed to the user.
	Reject(ctx context.Context, adminID, paymentID int64, reason string) error
}

type manualReviewUC struct {
	payments repository.PaymentRepository
	sessions *ReceiptSessionTracker
	payUC    PaymentUseCase
	dispatch *NotificationDispatcher
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewManualReviewUseCase(
	payments repository.PaymentRepository,
	sessions *ReceiptSessionTracker,
	payUC PaymentUseCase,
	dispatch *NotificationDispatcher,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *manualReviewUC {
	return &manualReviewUC{
		payments: payments,
		sessions: sessions,
		payUC:    payUC,
		dispatch: dispatch,
		tm:       tm,
		log:      logger,
	}
}

func (u *manualReviewUC) BeginReceiptUpload(ctx context.Context, userID, paymentID int64) error {
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrValidation
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if p.UserID != userID || p.Provider != string(adapter.ProviderManual) {
		return domain.ErrValidation
	}

	switch p.Status {
	case model.PaymentStatusCreated:
		ok, err := u.payments.UpdateStatusIf(ctx, repository.NoTX, paymentID,
			[]model.PaymentStatus{model.PaymentStatusCreated}, model.PaymentStatusPendingReceipt, nil, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if !ok {
			return domain.ErrInvalidStateTransition
		}
	case model.PaymentStatusPendingReceipt:
		// Re-pressing the button restarts the upload window.
	default:
		return domain.ErrInvalidStateTransition
	}

	u.sessions.Begin(userID, paymentID)
	u.log.Info().Int64("payment_id", paymentID).Int64("user_id", userID).Msg("receipt upload session opened")
	return nil
}

func (u *manualReviewUC) AttachReceipt(ctx context.Context, userID int64, fileID string) (bool, error) {
	paymentID, ok := u.sessions.Consume(userID)
	if !ok {
		return false, nil // no live session; an unrelated photo
	}

	filed, err := u.payments.SetReceipt(ctx, repository.NoTX, paymentID, fileID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !filed {
		// The record moved on while the session was open (admin already
		// acted, or a duplicate upload). Nothing to review.
		u.log.Warn().Int64("payment_id", paymentID).Int64("user_id", userID).
			Msg("receipt upload ignored, payment no longer awaiting receipt")
		return false, nil
	}

	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return true, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	metrics.IncPayment(p.Provider, string(p.Status))
	u.dispatch.ReceiptReceived(p)
	u.log.Info().Int64("payment_id", paymentID).Int64("user_id", userID).Msg("receipt filed for review")
	return true, nil
}

// Approve moves pending_review -> approved, then settles. A payment in any
// other state (a second admin already acted, a webhook settled it) returns
// ErrInvalidStateTransition with the record untouched, so the first
// decision's admin_notes survive.
func (u *manualReviewUC) Approve(ctx context.Context, adminID, paymentID int64) (*model.ActivationResult, error) {
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		p, err := u.payments.FindByID(ctx, qx, paymentID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrValidation
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if p.Status != model.PaymentStatusPendingReview {
			return domain.ErrInvalidStateTransition
		}
		ok, err := u.payments.UpdateStatusIf(ctx, qx, paymentID,
			[]model.PaymentStatus{model.PaymentStatusPendingReview}, model.PaymentStatusApproved, nil, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if !ok {
			return domain.ErrInvalidStateTransition
		}
		if err := u.payments.SetAdminNotes(ctx, qx, paymentID, fmt.Sprintf("approved by admin %d", adminID)); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().Int64("payment_id", paymentID).Int64("admin_id", adminID).Msg("manual transfer approved")
	res, err := u.payUC.Settle(ctx, paymentID, Outcome{Paid: true})
	if err != nil {
		// The approval itself stuck; the settlement follow-up is what broke.
		// Settle already raised the operator alert.
		u.log.Error().Int64("payment_id", paymentID).Err(err).Msg("settlement after approval failed")
		return nil, err
	}
	return res, nil
}

func (u *manualReviewUC) Reject(ctx context.Context, adminID, paymentID int64, reason string) error {
	if text, ok := RejectionReasons[reason]; ok {
		reason = text
	}
	if reason == "" {
		reason = RejectionReasons["other"]
	}

	var payment *model.Payment
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		p, err := u.payments.FindByID(ctx, qx, paymentID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrValidation
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if p.Status != model.PaymentStatusPendingReview {
			return domain.ErrInvalidStateTransition
		}
		ok, err := u.payments.UpdateStatusIf(ctx, qx, paymentID,
			[]model.PaymentStatus{model.PaymentStatusPendingReview}, model.PaymentStatusRejected, nil, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if !ok {
			return domain.ErrInvalidStateTransition
		}
		if err := u.payments.SetAdminNotes(ctx, qx, paymentID, reason); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		p.Status = model.PaymentStatusRejected
		payment = p
		return nil
	})
	if err != nil {
		return err
	}

	metrics.IncPayment(payment.Provider, string(payment.Status))
	u.log.Info().Int64("payment_id", paymentID).Int64("admin_id", adminID).Str("reason", reason).
		Msg("manual transfer rejected")
	u.dispatch.PaymentRejected(payment.UserID, reason)
	return nil
}
