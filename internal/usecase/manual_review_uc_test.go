//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/usecase"
)

type reviewTestDeps struct {
	*paymentUCTestDeps
	sessions *usecase.ReceiptSessionTracker
	reviewUC usecase.ManualReviewUseCase
}

func newReviewDeps(t *testing.T) *reviewTestDeps {
	t.Helper()
	base := newPaymentUCDeps(t, hostedProvider())
	pool := startTestPool(t)
	logger := newTestLogger()
	dispatch := usecase.NewNotificationDispatcher(base.notifier, pool, logger)
	sessions := usecase.NewReceiptSessionTracker()
	reviewUC := usecase.NewManualReviewUseCase(base.payments, sessions, base.payUC, dispatch, base.tm, logger)
	return &reviewTestDeps{paymentUCTestDeps: base, sessions: sessions, reviewUC: reviewUC}
}

func manualPayment(deps *reviewTestDeps, userID int64, status model.PaymentStatus) *model.Payment {
	return deps.payments.Seed(&model.Payment{
		UserID:    userID,
		Amount:    30000,
		Currency:  "RUB",
		Months:    1,
		Status:    status,
		Provider:  string(adapter.ProviderManual),
		CreatedAt: time.Now(),
	})
}

func TestManualReviewUseCase_BeginReceiptUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("opens the upload window for the payer", func(t *testing.T) {
		// --- Arrange ---
		deps := newReviewDeps(t)
		p := manualPayment(deps, 101, model.PaymentStatusCreated)

		// --- Act ---
		err := deps.reviewUC.BeginReceiptUpload(ctx, 101, p.ID)

		// --- Assert ---
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := deps.payments.Get(p.ID).Status; got != model.PaymentStatusPendingReceipt {
			t.Errorf("expected pending_receipt, got %s", got)
		}
	})

	t.Run("re-pressing the button restarts the window", func(t *testing.T) {
		deps := newReviewDeps(t)
		p := manualPayment(deps, 101, model.PaymentStatusPendingReceipt)

		if err := deps.reviewUC.BeginReceiptUpload(ctx, 101, p.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects another user's payment", func(t *testing.T) {
		deps := newReviewDeps(t)
		p := manualPayment(deps, 101, model.PaymentStatusCreated)

		if err := deps.reviewUC.BeginReceiptUpload(ctx, 999, p.ID); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if got := deps.payments.Get(p.ID).Status; got != model.PaymentStatusCreated {
			t.Errorf("record must be untouched, got %s", got)
		}
	})

	t.Run("rejects a payment of a different provider", func(t *testing.T) {
		deps := newReviewDeps(t)
		p := pendingPayment(deps.paymentUCTestDeps, 101, 1)

		if err := deps.reviewUC.BeginReceiptUpload(ctx, 101, p.ID); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("rejects a payment past the upload stage", func(t *testing.T) {
		deps := newReviewDeps(t)
		p := manualPayment(deps, 101, model.PaymentStatusSettled)

		if err := deps.reviewUC.BeginReceiptUpload(ctx, 101, p.ID); !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
		}
	})
}

func TestManualReviewUseCase_AttachReceipt(t *testing.T) {
	ctx := context.Background()

	t.Run("files the receipt and alerts the review queue", func(t *testing.T) {
		// --- Arrange ---
		deps := newReviewDeps(t)
		p := manualPayment(deps, 101, model.PaymentStatusCreated)
		if err := deps.reviewUC.BeginReceiptUpload(ctx, 101, p.ID); err != nil {
			t.Fatalf("begin: %v", err)
		}

		// --- Act ---
		attached, err := deps.reviewUC.AttachReceipt(ctx, 101, "file-abc")

		// --- Assert ---
		if err != nil || !attached {
			t.Fatalf("expected the receipt to be filed, got %v / %v", attached, err)
		}
		stored := deps.payments.Get(p.ID)
		if stored.Status != model.PaymentStatusPendingReview {
			t.Errorf("expected pending_review, got %s", stored.Status)
		}
		if stored.ReceiptFileID == nil || *stored.ReceiptFileID != "file-abc" {
			t.Errorf("receipt file must be stored")
		}
		eventually(t, func() bool { return len(deps.notifier.AdminMessages()) > 0 }, "admins were not alerted")
	})

	t.Run("ignores a photo when no session is open", func(t *testing.T) {
		deps := newReviewDeps(t)
		manualPayment(deps, 101, model.PaymentStatusPendingReceipt)

		attached, err := deps.reviewUC.AttachReceipt(ctx, 101, "file-abc")
		if err != nil || attached {
			t.Fatalf("expected a silent no-op, got %v / %v", attached, err)
		}
	})

	t.Run("a session is consumed by its first photo", func(t *testing.T) {
		deps := newReviewDeps(t)
		p := manualPayment(deps, 101, model.PaymentStatusCreated)
		if err := deps.reviewUC.BeginReceiptUpload(ctx, 101, p.ID); err != nil {
			t.Fatalf("begin: %v", err)
		}
		if attached, _ := deps.reviewUC.AttachReceipt(ctx, 101, "first"); !attached {
			t.Fatal("first photo should attach")
		}

		attached, err := deps.reviewUC.AttachReceipt(ctx, 101, "second")
		if err != nil || attached {
			t.Fatalf("second photo must be ignored, got %v / %v", attached, err)
		}
		if got := *deps.payments.Get(p.ID).ReceiptFileID; got != "first" {
			t.Errorf("first receipt must win, got %q", got)
		}
	})
}

func TestManualReviewUseCase_Approve(t *testing.T) {
	ctx := context.Background()

	t.Run("approving a payment under review settles it", func(t *testing.T) {
		// --- Arrange ---
		deps := newReviewDeps(t)
		p := manualPayment(deps, 101, model.PaymentStatusPendingReview)

		// --- Act ---
		res, err := deps.reviewUC.Approve(ctx, 555, p.ID)

		// --- Assert ---
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res == nil || res.AlreadyActive {
			t.Fatalf("expected a fresh activation, got %+v", res)
		}
		stored := deps.payments.Get(p.ID)
		if stored.Status != model.PaymentStatusSettled {
			t.Errorf("expected settled, got %s", stored.Status)
		}
	})

	t.Run("approving an already decided payment changes nothing", func(t *testing.T) {
		// --- Arrange ---
		deps := newReviewDeps(t)
		notes := "rejected by admin 1"
		p := deps.payments.Seed(&model.Payment{
			UserID:     101,
			Amount:     30000,
			Currency:   "RUB",
			Months:     1,
			Status:     model.PaymentStatusRejected,
			Provider:   string(adapter.ProviderManual),
			AdminNotes: &notes,
			CreatedAt:  time.Now(),
		})

		// --- Act ---
		_, err := deps.reviewUC.Approve(ctx, 556, p.ID)

		// --- Assert ---
		if !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
		}
		stored := deps.payments.Get(p.ID)
		if stored.Status != model.PaymentStatusRejected {
			t.Errorf("first decision must stand, got %s", stored.Status)
		}
		if stored.AdminNotes == nil || *stored.AdminNotes != notes {
			t.Errorf("first decision's notes must survive, got %v", stored.AdminNotes)
		}
	})
}

func TestManualReviewUseCase_Reject(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects with a catalogued reason relayed verbatim", func(t *testing.T) {
		// --- Arrange ---
		deps := newReviewDeps(t)
		p := manualPayment(deps, 101, model.PaymentStatusPendingReview)

		// --- Act ---
		err := deps.reviewUC.Reject(ctx, 555, p.ID, "wrong_amount")

		// --- Assert ---
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		stored := deps.payments.Get(p.ID)
		if stored.Status != model.PaymentStatusRejected {
			t.Errorf("expected rejected, got %s", stored.Status)
		}
		want := usecase.RejectionReasons["wrong_amount"]
		if stored.AdminNotes == nil || *stored.AdminNotes != want {
			t.Errorf("expected notes %q, got %v", want, stored.AdminNotes)
		}
		eventually(t, func() bool {
			msgs := deps.notifier.UserMessages()
			return len(msgs) == 1 && strings.Contains(msgs[0].Text, want)
		}, "user did not receive the reason")
	})

	t.Run("accepts free-text reasons", func(t *testing.T) {
		deps := newReviewDeps(t)
		p := manualPayment(deps, 101, model.PaymentStatusPendingReview)

		if err := deps.reviewUC.Reject(ctx, 555, p.ID, "duplicate of payment 7"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := *deps.payments.Get(p.ID).AdminNotes; got != "duplicate of payment 7" {
			t.Errorf("free text must be kept as is, got %q", got)
		}
	})

	t.Run("rejecting a settled payment fails cleanly", func(t *testing.T) {
		deps := newReviewDeps(t)
		p := manualPayment(deps, 101, model.PaymentStatusSettled)

		if err := deps.reviewUC.Reject(ctx, 555, p.ID, "other"); !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
		}
		if got := deps.payments.Get(p.ID).Status; got != model.PaymentStatusSettled {
			t.Errorf("settled is final, got %s", got)
		}
	})
}
