// File: internal/infra/telegram/bot.go

// Package telegram adapts bot updates into lifecycle operations and carries
// notifications back out. It holds no payment logic of its own.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/config"
	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/providers"
	"telegram-subscription-bot/internal/usecase"
)

var nowFunc = time.Now

// Bot polls updates and routes them to the use-case layer with a bounded
// worker fan-out.
type Bot struct {
	bot       *tgbotapi.BotAPI
	cfg       *config.Config
	payUC     usecase.PaymentUseCase
	review    usecase.ManualReviewUseCase
	subUC     usecase.SubscriptionUseCase
	referrals repository.ReferralRepository
	registry  *providers.Registry
	adminIDs  map[int64]struct{}
	workers   int
	log       *zerolog.Logger

	cancelPolling context.CancelFunc
}

func NewBot(
	bot *tgbotapi.BotAPI,
	cfg *config.Config,
	payUC usecase.PaymentUseCase,
	review usecase.ManualReviewUseCase,
	subUC usecase.SubscriptionUseCase,
	referrals repository.ReferralRepository,
	registry *providers.Registry,
	logger *zerolog.Logger,
) (*Bot, error) {
	if bot == nil || cfg == nil {
		return nil, errors.New("bot api and config are required")
	}
	workers := cfg.Bot.Workers
	if workers <= 0 {
		workers = 8
	}
	adminMap := make(map[int64]struct{}, len(cfg.Bot.AdminIDs))
	for _, id := range cfg.Bot.AdminIDs {
		adminMap[id] = struct{}{}
	}
	return &Bot{
		bot:       bot,
		cfg:       cfg,
		payUC:     payUC,
		review:    review,
		subUC:     subUC,
		referrals: referrals,
		registry:  registry,
		adminIDs:  adminMap,
		workers:   workers,
		log:       logger,
	}, nil
}

// StartPolling runs until ctx is canceled. Updates for different users are
// handled concurrently; payment settlement serializes further down.
func (b *Bot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	b.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					if err := b.handleUpdate(ctx, update); err != nil {
						b.log.Error().Int("worker", workerID).Err(err).Msg("update handling failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	go func() {
		defer close(updateChan)
		for {
			select {
			case update := <-updates:
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	b.bot.StopReceivingUpdates()
	wg.Wait()
	return nil
}

func (b *Bot) StopPolling() {
	if b.cancelPolling != nil {
		b.cancelPolling()
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	_, ok := b.adminIDs[userID]
	return ok
}

func (b *Bot) reply(userID int64, text string, rows [][]adapter.InlineButton) {
	msg := tgbotapi.NewMessage(userID, text)
	if kb := keyboard(rows); kb != nil {
		msg.ReplyMarkup = kb
	}
	if _, err := b.bot.Send(msg); err != nil {
		b.log.Error().Int64("user_id", userID).Err(err).Msg("send failed")
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.PreCheckoutQuery != nil:
		return b.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.CallbackQuery != nil:
		return b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		return b.handleSuccessfulPayment(ctx, update.Message)
	case update.Message != nil && len(update.Message.Photo) > 0:
		return b.handlePhoto(ctx, update.Message)
	case update.Message != nil && update.Message.IsCommand():
		return b.handleCommand(ctx, update.Message)
	}
	return nil
}

// handlePreCheckout is Telegram's last gate before charging. Rejecting here
// is the only way to stop a native payment; a malformed payload means the
// invoice did not come from us.
func (b *Bot) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) error {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}
	if _, _, _, err := usecase.ParseInvoicePayload(q.InvoicePayload); err != nil {
		answer.OK = false
		answer.ErrorMessage = "This invoice is no longer valid."
		b.log.Warn().Str("payload", q.InvoicePayload).Msg("pre-checkout with unparseable payload rejected")
	}
	_, err := b.bot.Request(answer)
	return err
}

// handleSuccessfulPayment is the native settlement entry. The event is
// delivered once; any drop below is final, so mismatches are logged loudly.
func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) error {
	sp := msg.SuccessfulPayment
	res, err := b.payUC.HandleNativePayment(ctx, sp.InvoicePayload, int64(sp.TotalAmount), sp.Currency, sp.TelegramPaymentChargeID)
	switch {
	case errors.Is(err, domain.ErrMalformedPayload), errors.Is(err, domain.ErrValidation):
		// Dropped upstream with its own log line; nothing to tell the user
		// that would help.
		return nil
	case err != nil:
		return err
	}
	if res != nil && res.AlreadyActive {
		b.reply(msg.From.ID, fmt.Sprintf("This payment was already processed. Your subscription runs until %s.", res.EndDate.Format("2006-01-02")), nil)
	}
	return nil
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) error {
	// Largest photo size carries the readable receipt.
	fileID := msg.Photo[len(msg.Photo)-1].FileID
	attached, err := b.review.AttachReceipt(ctx, msg.From.ID, fileID)
	if err != nil {
		b.reply(msg.From.ID, "Could not accept the receipt. Please try again.", nil)
		return err
	}
	if attached {
		b.reply(msg.From.ID, "Receipt received. We will review it shortly and confirm your subscription.", nil)
	}
	// A photo with no open upload session is ignored.
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	userID := msg.From.ID
	switch msg.Command() {
	case "start":
		// Deep link "ref_<id>" attributes the signup to a referrer.
		if arg := msg.CommandArguments(); strings.HasPrefix(arg, "ref_") {
			if referrerID, err := strconv.ParseInt(strings.TrimPrefix(arg, "ref_"), 10, 64); err == nil && referrerID != userID {
				if err := b.referrals.Create(ctx, repository.NoTX, userID, referrerID); err != nil {
					b.log.Error().Int64("referee_id", userID).Int64("referrer_id", referrerID).Err(err).Msg("referral registration failed")
				}
			}
		}
		b.reply(userID, "Welcome! Use /buy to purchase a subscription, /status to check yours, /ref for your invite link.", nil)
		return nil
	case "buy":
		return b.sendPlanKeyboard(userID)
	case "status":
		return b.sendStatus(ctx, userID)
	case "ref":
		b.reply(userID, fmt.Sprintf("Invite friends and get %d bonus days when they buy:\nhttps://t.me/%s?start=ref_%d",
			b.cfg.Referral.BonusDays, b.cfg.Bot.Username, userID), nil)
		return nil
	case "help":
		b.reply(userID, "Commands:\n/buy - purchase a subscription\n/status - subscription status\n/ref - your invite link", nil)
		return nil
	default:
		b.reply(userID, "Unknown command. Send /help for the list of commands.", nil)
		return nil
	}
}

func (b *Bot) sendPlanKeyboard(userID int64) error {
	rows := make([][]adapter.InlineButton, 0, len(b.cfg.Subscription.Options))
	for _, opt := range b.cfg.Subscription.Options {
		rows = append(rows, []adapter.InlineButton{{
			Text: fmt.Sprintf("%d month(s) - %d.%02d RUB", opt.Months, opt.PriceRUB/100, opt.PriceRUB%100),
			Data: fmt.Sprintf("buy:%d", opt.Months),
		}})
	}
	b.reply(userID, "Choose a subscription period:", rows)
	return nil
}

func (b *Bot) sendStatus(ctx context.Context, userID int64) error {
	sub, err := b.subUC.Current(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		b.reply(userID, "You have no subscription yet. Use /buy to get one.", nil)
		return nil
	}
	if err != nil {
		return err
	}
	if !sub.Active(nowFunc()) {
		b.reply(userID, fmt.Sprintf("Your subscription expired on %s. Use /buy to renew.", sub.EndDate.Format("2006-01-02")), nil)
		return nil
	}
	b.reply(userID, fmt.Sprintf("Your subscription is active until %s.\n\nAccess link:\n%s",
		sub.EndDate.Format("2006-01-02"), sub.ConfigLink), nil)
	return nil
}

var providerButtonText = map[adapter.ProviderKind]string{
	adapter.ProviderYooKassa:  "Bank card",
	adapter.ProviderCryptoPay: "Crypto",
	adapter.ProviderStars:     "Telegram Stars",
	adapter.ProviderManual:    "Phone transfer",
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	// Ack first so the button stops spinning regardless of the outcome.
	if _, err := b.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("callback ack failed")
	}

	userID := q.From.ID
	data := q.Data

	switch {
	case strings.HasPrefix(data, "buy:"):
		return b.cbChoosePlan(userID, data)
	case strings.HasPrefix(data, "pay:"):
		return b.cbInitiate(ctx, userID, data)
	case strings.HasPrefix(data, "ipaid:"):
		return b.cbBeginUpload(ctx, userID, data)
	case strings.HasPrefix(data, "approve_transfer:"):
		return b.cbApprove(ctx, userID, data)
	case strings.HasPrefix(data, "reject_transfer:"):
		return b.cbRejectMenu(userID, data)
	case strings.HasPrefix(data, "reject_reason:"):
		return b.cbReject(ctx, userID, data)
	}
	return nil
}

func (b *Bot) cbChoosePlan(userID int64, data string) error {
	months, err := strconv.Atoi(strings.TrimPrefix(data, "buy:"))
	if err != nil || b.cfg.Subscription.Option(months) == nil {
		return nil
	}
	var row []adapter.InlineButton
	for _, kind := range []adapter.ProviderKind{adapter.ProviderYooKassa, adapter.ProviderCryptoPay, adapter.ProviderStars, adapter.ProviderManual} {
		if p, ok := b.registry.Get(kind); ok && p.Configured() {
			row = append(row, adapter.InlineButton{
				Text: providerButtonText[kind],
				Data: fmt.Sprintf("pay:%s:%d", kind, months),
			})
		}
	}
	if len(row) == 0 {
		b.reply(userID, "No payment methods are available right now. Please try later.", nil)
		return nil
	}
	rows := make([][]adapter.InlineButton, 0, len(row))
	for _, btn := range row {
		rows = append(rows, []adapter.InlineButton{btn})
	}
	b.reply(userID, "Choose a payment method:", rows)
	return nil
}

func (b *Bot) cbInitiate(ctx context.Context, userID int64, data string) error {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return nil
	}
	kind := adapter.ProviderKind(parts[1])
	months, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil
	}
	opt := b.cfg.Subscription.Option(months)
	if opt == nil {
		return nil
	}

	amount, currency := opt.PriceRUB, "RUB"
	if kind == adapter.ProviderStars {
		amount, currency = opt.PriceStars, "XTR"
	}

	p, receipt, err := b.payUC.Initiate(ctx, userID, months, amount, currency, kind, nil)
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		b.reply(userID, "This payment method is unavailable right now. Please pick another.", nil)
		return nil
	case errors.Is(err, domain.ErrProviderCreationFailed):
		b.reply(userID, "Could not create the payment. Please try again in a minute.", nil)
		return nil
	case err != nil:
		b.reply(userID, "Something went wrong. Please try again.", nil)
		return err
	}

	switch kind {
	case adapter.ProviderStars:
		// The invoice message is already in the chat.
		return nil
	case adapter.ProviderManual:
		prov, _ := b.registry.Get(kind)
		instr, ok := prov.(adapter.InstructionsProvider)
		if !ok {
			return fmt.Errorf("manual provider does not expose instructions")
		}
		b.reply(userID, instr.TransferInstructions(amount, currency, months), [][]adapter.InlineButton{{
			{Text: "I paid", Data: fmt.Sprintf("ipaid:%d", p.ID)},
		}})
		return nil
	default:
		b.reply(userID, "Complete the payment using the button below. Your subscription activates automatically.", [][]adapter.InlineButton{{
			{Text: "Pay", URL: receipt.ActionURL},
		}})
		return nil
	}
}

func (b *Bot) cbBeginUpload(ctx context.Context, userID int64, data string) error {
	paymentID, err := strconv.ParseInt(strings.TrimPrefix(data, "ipaid:"), 10, 64)
	if err != nil {
		return nil
	}
	if err := b.review.BeginReceiptUpload(ctx, userID, paymentID); err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInvalidStateTransition) {
			b.reply(userID, "This payment can no longer accept a receipt.", nil)
			return nil
		}
		return err
	}
	b.reply(userID, "Send a photo of the transfer receipt within the next 5 minutes.", nil)
	return nil
}

func (b *Bot) cbApprove(ctx context.Context, adminID int64, data string) error {
	if !b.isAdmin(adminID) {
		return nil
	}
	paymentID, err := strconv.ParseInt(strings.TrimPrefix(data, "approve_transfer:"), 10, 64)
	if err != nil {
		return nil
	}
	res, err := b.review.Approve(ctx, adminID, paymentID)
	switch {
	case errors.Is(err, domain.ErrInvalidStateTransition):
		b.reply(adminID, fmt.Sprintf("Payment %d was already decided by another admin.", paymentID), nil)
		return nil
	case errors.Is(err, domain.ErrActivationPersistence):
		// The dispatcher already raised the remediation alert.
		b.reply(adminID, fmt.Sprintf("Payment %d approved, but activation failed. See the alert.", paymentID), nil)
		return nil
	case err != nil:
		b.reply(adminID, fmt.Sprintf("Approving payment %d failed: %v", paymentID, err), nil)
		return err
	}
	b.reply(adminID, fmt.Sprintf("Payment %d approved. Subscription active until %s.", paymentID, res.EndDate.Format("2006-01-02")), nil)
	return nil
}

func (b *Bot) cbRejectMenu(adminID int64, data string) error {
	if !b.isAdmin(adminID) {
		return nil
	}
	paymentID := strings.TrimPrefix(data, "reject_transfer:")
	rows := [][]adapter.InlineButton{
		{{Text: "Wrong amount", Data: "reject_reason:" + paymentID + ":wrong_amount"}},
		{{Text: "Wrong recipient", Data: "reject_reason:" + paymentID + ":wrong_recipient"}},
		{{Text: "Unreadable receipt", Data: "reject_reason:" + paymentID + ":unreadable_receipt"}},
		{{Text: "Wrong date", Data: "reject_reason:" + paymentID + ":wrong_date"}},
		{{Text: "Other", Data: "reject_reason:" + paymentID + ":other"}},
	}
	b.reply(adminID, "Pick a rejection reason:", rows)
	return nil
}

func (b *Bot) cbReject(ctx context.Context, adminID int64, data string) error {
	if !b.isAdmin(adminID) {
		return nil
	}
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return nil
	}
	paymentID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	if err := b.review.Reject(ctx, adminID, paymentID, parts[2]); err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			b.reply(adminID, fmt.Sprintf("Payment %d was already decided by another admin.", paymentID), nil)
			return nil
		}
		return err
	}
	b.reply(adminID, fmt.Sprintf("Payment %d rejected. The user has been notified.", paymentID), nil)
	return nil
}
