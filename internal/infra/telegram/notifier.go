// File: internal/infra/telegram/notifier.go
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain/ports/adapter"
)

var (
	_ adapter.Notifier      = (*Notifier)(nil)
	_ adapter.InvoiceSender = (*Notifier)(nil)
)

// Notifier sends outbound messages and invoices through the bot API. User
// ids are Telegram chat ids throughout the system, so no lookup is needed.
type Notifier struct {
	bot      *tgbotapi.BotAPI
	adminIDs []int64
	log      *zerolog.Logger
}

func NewNotifier(bot *tgbotapi.BotAPI, adminIDs []int64, logger *zerolog.Logger) *Notifier {
	return &Notifier{bot: bot, adminIDs: adminIDs, log: logger}
}

func keyboard(rows [][]adapter.InlineButton) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			switch {
			case b.URL != "":
				btns = append(btns, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			default:
				btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		kb = append(kb, btns)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(kb...)
	return &markup
}

func (n *Notifier) NotifyUser(ctx context.Context, userID int64, text string, rows [][]adapter.InlineButton) error {
	msg := tgbotapi.NewMessage(userID, text)
	if kb := keyboard(rows); kb != nil {
		msg.ReplyMarkup = kb
	}
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("notify user %d: %w", userID, err)
	}
	return nil
}

// NotifyAdmins delivers to every configured admin. One failing admin chat
// does not block the rest; the last error is reported.
func (n *Notifier) NotifyAdmins(ctx context.Context, text string, photoFileID string, rows [][]adapter.InlineButton) error {
	var lastErr error
	for _, adminID := range n.adminIDs {
		var err error
		if photoFileID != "" {
			photo := tgbotapi.NewPhoto(adminID, tgbotapi.FileID(photoFileID))
			photo.Caption = text
			if kb := keyboard(rows); kb != nil {
				photo.ReplyMarkup = kb
			}
			_, err = n.bot.Send(photo)
		} else {
			msg := tgbotapi.NewMessage(adminID, text)
			if kb := keyboard(rows); kb != nil {
				msg.ReplyMarkup = kb
			}
			_, err = n.bot.Send(msg)
		}
		if err != nil {
			n.log.Error().Int64("admin_id", adminID).Err(err).Msg("admin notification failed")
			lastErr = err
		}
	}
	return lastErr
}

// SendInvoice issues a native in-chat invoice. Telegram Stars invoices carry
// an empty provider token and the XTR currency.
func (n *Notifier) SendInvoice(ctx context.Context, userID int64, title, description, payload, currency string, amount int64) error {
	invoice := tgbotapi.NewInvoice(
		userID, title, description, payload,
		"", // provider token is empty for Stars
		"", currency,
		[]tgbotapi.LabeledPrice{{Label: title, Amount: int(amount)}},
	)
	invoice.SuggestedTipAmounts = []int{}
	if _, err := n.bot.Request(invoice); err != nil {
		return fmt.Errorf("send invoice to %d: %w", userID, err)
	}
	return nil
}
