// File: internal/usecase/notify.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/infra/worker"
)

// NotificationDispatcher fans user/admin notifications out through the
// post-commit worker pool. Nothing here can fail a state transition: send
// errors are logged by the pool and dropped.
type NotificationDispatcher struct {
	notifier adapter.Notifier
	pool     *worker.Pool
	log      *zerolog.Logger
}

func NewNotificationDispatcher(notifier adapter.Notifier, pool *worker.Pool, logger *zerolog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{notifier: notifier, pool: pool, log: logger}
}

func (d *NotificationDispatcher) submit(name string, task worker.Task) {
	if err := d.pool.Submit(task); err != nil {
		d.log.Warn().Str("notification", name).Err(err).Msg("notification dropped")
	}
}

func (d *NotificationDispatcher) PaymentSettled(userID int64, res *model.ActivationResult) {
	d.submit("payment_settled", func(ctx context.Context) error {
		text := fmt.Sprintf(
			"Payment confirmed. Your subscription is active until %s.\n\nYour access link:\n%s",
			res.EndDate.Format("2006-01-02"), res.ConfigLink,
		)
		return d.notifier.NotifyUser(ctx, userID, text, nil)
	})
}

// PaymentRejected relays the admin's reason to the user verbatim.
func (d *NotificationDispatcher) PaymentRejected(userID int64, reason string) {
	d.submit("payment_rejected", func(ctx context.Context) error {
		text := fmt.Sprintf(
			"Your payment was declined.\n\nReason: %s\n\nPlease check the transfer details and try again, or contact support.",
			reason,
		)
		return d.notifier.NotifyUser(ctx, userID, text, nil)
	})
}

// ReceiptReceived alerts the admin pool about a receipt awaiting review and
// attaches the approve/reject keyboard.
func (d *NotificationDispatcher) ReceiptReceived(p *model.Payment) {
	fileID := ""
	if p.ReceiptFileID != nil {
		fileID = *p.ReceiptFileID
	}
	d.submit("receipt_received", func(ctx context.Context) error {
		text := fmt.Sprintf(
			"Receipt for review\n\nUser: %d\nPayment ID: %d\nAmount: %d %s\nPeriod: %d mo\nReceived: %s",
			p.UserID, p.ID, p.Amount, p.Currency, p.Months, time.Now().Format("2006-01-02 15:04:05"),
		)
		rows := [][]adapter.InlineButton{{
			{Text: "Approve", Data: fmt.Sprintf("approve_transfer:%d", p.ID)},
			{Text: "Reject", Data: fmt.Sprintf("reject_transfer:%d", p.ID)},
		}}
		return d.notifier.NotifyAdmins(ctx, text, fileID, rows)
	})
}

// ActivationFailed is the operator alert for the one unacceptable state:
// money captured, service not granted. Kept separate from the approval
// confirmation so the admin sees it even when the approval itself "worked".
func (d *NotificationDispatcher) ActivationFailed(paymentID, userID int64, cause error) {
	d.submit("activation_failed", func(ctx context.Context) error {
		text := fmt.Sprintf(
			"ATTENTION: payment %d settled but subscription activation failed for user %d.\nManual remediation required.\nError: %v",
			paymentID, userID, cause,
		)
		return d.notifier.NotifyAdmins(ctx, text, "", nil)
	})
}

func (d *NotificationDispatcher) ReferralBonusCredited(referrerID int64, days int, endDate time.Time) {
	d.submit("referral_bonus", func(ctx context.Context) error {
		text := fmt.Sprintf(
			"A user you invited bought a subscription. %d bonus days added; your subscription now runs until %s.",
			days, endDate.Format("2006-01-02"),
		)
		return d.notifier.NotifyUser(ctx, referrerID, text, nil)
	})
}
