// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
	"telegram-subscription-bot/internal/infra/redis"
	"telegram-subscription-bot/internal/infra/worker"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

const settleLockTTL = 30 * time.Second

// Outcome is a provider-agnostic settlement verdict.
type Outcome struct {
	Paid        bool
	Reason      string // negative outcomes: persisted to admin_notes, relayed to the user
	ProviderRef string // provider-side id captured at settlement time, if any
}

// PaymentUseCase is the payment lifecycle coordinator: it owns record
// creation, the per-provider state machine and at-most-once activation.
type PaymentUseCase interface {
	// Initiate creates the payment record and the provider-side payment.
	Initiate(ctx context.Context, userID int64, months int, amount int64, currency string, kind adapter.ProviderKind, promoCodeID *int64) (*model.Payment, *adapter.Receipt, error)
	// Settle drives a payment to a terminal state. Calling it again for an
	// already-terminal record returns the previously computed result and
	// performs no side effects.
	Settle(ctx context.Context, paymentID int64, out Outcome) (*model.ActivationResult, error)
	// SettleByProviderRef is the webhook entry point.
	SettleByProviderRef(ctx context.Context, kind adapter.ProviderKind, ref string, out Outcome) (*model.ActivationResult, error)
	// HandleNativePayment settles an in-chat payment from its invoice
	// payload ("stars:<payment_id>:<months>").
	HandleNativePayment(ctx context.Context, payload string, amount int64, currency string, chargeID string) (*model.ActivationResult, error)
}

// ProviderRegistry resolves a configured provider for a kind.
type ProviderRegistry interface {
	Get(kind adapter.ProviderKind) (adapter.PaymentProvider, bool)
}

type paymentUC struct {
	payments  repository.PaymentRepository
	subs      repository.SubscriptionRepository
	subUC     SubscriptionUseCase
	referral  ReferralUseCase
	dispatch  *NotificationDispatcher
	providers ProviderRegistry
	tm        repository.TransactionManager
	locker    redis.Locker
	pool      *worker.Pool
	log       *zerolog.Logger
	clock     func() time.Time
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	subUC SubscriptionUseCase,
	referral ReferralUseCase,
	dispatch *NotificationDispatcher,
	providers ProviderRegistry,
	tm repository.TransactionManager,
	locker redis.Locker,
	pool *worker.Pool,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		payments:  payments,
		subs:      subs,
		subUC:     subUC,
		referral:  referral,
		dispatch:  dispatch,
		providers: providers,
		tm:        tm,
		locker:    locker,
		pool:      pool,
		log:       logger,
		clock:     time.Now,
	}
}

// settleFrom is every state a positive settlement may arrive from: pending
// for provider-confirmed payments, approved for reviewed manual transfers,
// created for a native event racing its own record update.
var settleFrom = []model.PaymentStatus{
	model.PaymentStatusCreated,
	model.PaymentStatusPending,
	model.PaymentStatusApproved,
}

func (u *paymentUC) Initiate(ctx context.Context, userID int64, months int, amount int64, currency string, kind adapter.ProviderKind, promoCodeID *int64) (*model.Payment, *adapter.Receipt, error) {
	if userID == 0 || months <= 0 || amount <= 0 || currency == "" || !kind.Valid() {
		return nil, nil, domain.ErrValidation
	}
	prov, ok := u.providers.Get(kind)
	if !ok || !prov.Configured() {
		return nil, nil, domain.ErrProviderUnavailable
	}

	now := u.clock()
	p := &model.Payment{
		UserID:      userID,
		Amount:      amount,
		Currency:    currency,
		Months:      months,
		Description: fmt.Sprintf("Subscription for %d month(s)", months),
		Status:      model.PaymentStatusCreated,
		Provider:    string(kind),
		PromoCodeID: promoCodeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// The record exists before any provider call so a crash between the two
	// leaves an auditable trail, never an orphaned provider invoice.
	if _, err := u.payments.Create(ctx, repository.NoTX, p); err != nil {
		return nil, nil, fmt.Errorf("%w: create payment record: %v", domain.ErrPersistence, err)
	}
	metrics.IncPayment(p.Provider, string(p.Status))

	receipt, err := prov.CreatePayment(ctx, adapter.CreateContext{
		PaymentID:   p.ID,
		UserID:      userID,
		Amount:      amount,
		Currency:    currency,
		Months:      months,
		Description: p.Description,
	})
	if err != nil {
		// Persist the failure even though the operation failed overall:
		// the record stays accurate as an audit artifact.
		if _, uerr := u.payments.UpdateStatusIf(ctx, repository.NoTX, p.ID,
			[]model.PaymentStatus{model.PaymentStatusCreated}, model.PaymentStatusFailedCreation, nil, nil); uerr != nil {
			u.log.Error().Int64("payment_id", p.ID).Err(uerr).Msg("failed to record failed_creation")
		}
		p.Status = model.PaymentStatusFailedCreation
		metrics.IncPayment(p.Provider, string(p.Status))
		u.log.Error().Int64("payment_id", p.ID).Str("provider", p.Provider).Err(err).Msg("provider creation failed")
		return p, nil, fmt.Errorf("%w: %v", domain.ErrProviderCreationFailed, err)
	}

	// Manual transfers have no provider side; the record stays `created`
	// until the user starts the receipt upload.
	if receipt != nil && receipt.ReferenceID != "" {
		ref := receipt.ReferenceID
		if _, err := u.payments.UpdateStatusIf(ctx, repository.NoTX, p.ID,
			[]model.PaymentStatus{model.PaymentStatusCreated}, model.PaymentStatusPending, &ref, nil); err != nil {
			return nil, nil, fmt.Errorf("%w: store provider ref: %v", domain.ErrPersistence, err)
		}
		p.Status = model.PaymentStatusPending
		p.ProviderRef = &ref
		metrics.IncPayment(p.Provider, string(p.Status))
	}

	u.log.Info().Int64("payment_id", p.ID).Int64("user_id", userID).
		Str("provider", p.Provider).Int64("amount", amount).Str("currency", currency).
		Msg("payment initiated")
	return p, receipt, nil
}

func (u *paymentUC) Settle(ctx context.Context, paymentID int64, out Outcome) (*model.ActivationResult, error) {
	// Per-payment serialization; transitions for one id are linearized here,
	// and the conditional UPDATE below keeps the loser harmless regardless.
	lockKey := fmt.Sprintf("payment:settle:%d", paymentID)
	token, err := u.locker.TryLock(ctx, lockKey, settleLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(context.WithoutCancel(ctx), lockKey, token) }()

	var (
		payment  *model.Payment
		prior    *model.ActivationResult
		terminal bool
	)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		p, err := u.payments.FindByID(ctx, qx, paymentID) // row-locked FOR UPDATE
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: unknown payment %d", domain.ErrValidation, paymentID)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		payment = p

		// Idempotency guard: the defining correctness property. A second
		// settlement attempt observes the terminal state and short-circuits.
		if p.Status.Terminal() {
			terminal = true
			if p.Status == model.PaymentStatusSettled {
				sub, err := u.subs.FindByPaymentID(ctx, qx, p.ID)
				switch {
				case err == nil:
					prior = &model.ActivationResult{
						EndDate:       sub.EndDate,
						ConfigLink:    sub.ConfigLink,
						AlreadyActive: true,
					}
				case !errors.Is(err, domain.ErrNotFound):
					return fmt.Errorf("%w: load prior activation: %v", domain.ErrPersistence, err)
				}
			}
			return nil
		}

		now := u.clock()
		var refPtr *string
		if out.ProviderRef != "" {
			refPtr = &out.ProviderRef
		}
		if out.Paid {
			ok, err := u.payments.UpdateStatusIf(ctx, qx, p.ID, settleFrom, model.PaymentStatusSettled, refPtr, &now)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
			}
			if !ok {
				return domain.ErrInvalidStateTransition
			}
			p.Status = model.PaymentStatusSettled
			p.SettledAt = &now
			return nil
		}

		// Negative outcomes only apply to records the provider still owns.
		ok, err := u.payments.UpdateStatusIf(ctx, qx, p.ID,
			[]model.PaymentStatus{model.PaymentStatusCreated, model.PaymentStatusPending},
			model.PaymentStatusFailed, refPtr, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if !ok {
			return domain.ErrInvalidStateTransition
		}
		if out.Reason != "" {
			if err := u.payments.SetAdminNotes(ctx, qx, p.ID, out.Reason); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
			}
		}
		p.Status = model.PaymentStatusFailed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if terminal {
		metrics.IncSettleConflict()
		u.log.Info().Int64("payment_id", paymentID).Str("status", string(payment.Status)).
			Msg("settlement short-circuit on terminal state")
		return prior, nil
	}

	metrics.IncPayment(payment.Provider, string(payment.Status))
	if !out.Paid {
		reason := out.Reason
		if reason == "" {
			reason = "payment was not completed"
		}
		u.dispatch.PaymentRejected(payment.UserID, reason)
		return nil, nil
	}
	metrics.AddPaymentRevenue(payment.Currency, payment.Amount)

	// The terminal write is committed; from here on nothing may revert it.
	// Activation is the one hard follow-up: skipping it would grant payment
	// without service.
	var result *model.ActivationResult
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		var aerr error
		result, aerr = u.subUC.Activate(ctx, qx, payment)
		return aerr
	})
	if err != nil {
		u.log.Error().Int64("payment_id", payment.ID).Int64("user_id", payment.UserID).
			Err(err).Msg("activation failed after settlement")
		u.dispatch.ActivationFailed(payment.ID, payment.UserID, err)
		return nil, err
	}

	if !result.AlreadyActive {
		userID := payment.UserID
		if serr := u.pool.Submit(func(ctx context.Context) error {
			return u.referral.ApplyForPayment(ctx, userID)
		}); serr != nil {
			u.log.Warn().Int64("payment_id", payment.ID).Err(serr).Msg("referral task dropped")
		}
		u.dispatch.PaymentSettled(payment.UserID, result)
	}
	return result, nil
}

func (u *paymentUC) SettleByProviderRef(ctx context.Context, kind adapter.ProviderKind, ref string, out Outcome) (*model.ActivationResult, error) {
	p, err := u.payments.FindByProviderRef(ctx, repository.NoTX, string(kind), ref)
	if errors.Is(err, domain.ErrNotFound) {
		// Stale or forged notification: drop, never create state for it.
		u.log.Warn().Str("provider", string(kind)).Str("ref", ref).Msg("settlement for unknown provider ref dropped")
		return nil, fmt.Errorf("%w: unknown provider ref", domain.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return u.Settle(ctx, p.ID, out)
}

// ParseInvoicePayload splits a native-payment payload into its
// provider:payment_id:months triplet.
func ParseInvoicePayload(payload string) (kind adapter.ProviderKind, paymentID int64, months int, err error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return "", 0, 0, domain.ErrMalformedPayload
	}
	kind = adapter.ProviderKind(parts[0])
	if !kind.Valid() {
		return "", 0, 0, domain.ErrMalformedPayload
	}
	paymentID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, 0, domain.ErrMalformedPayload
	}
	months, err = strconv.Atoi(parts[2])
	if err != nil || months <= 0 {
		return "", 0, 0, domain.ErrMalformedPayload
	}
	return kind, paymentID, months, nil
}

// HandleNativePayment consumes the synchronous "payment completed" event of
// the in-chat provider. The transport does not redeliver it, so a malformed
// payload is dropped with no retry and no record mutation.
func (u *paymentUC) HandleNativePayment(ctx context.Context, payload string, amount int64, currency string, chargeID string) (*model.ActivationResult, error) {
	_, paymentID, months, err := ParseInvoicePayload(payload)
	if err != nil {
		u.log.Error().Str("payload", payload).Msg("malformed native payment payload dropped")
		return nil, err
	}

	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown payment %d", domain.ErrValidation, paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if p.Months != months || p.Amount != amount || p.Currency != currency {
		u.log.Warn().Int64("payment_id", paymentID).Str("payload", payload).
			Int64("amount", amount).Str("currency", currency).Msg("native payment does not match record")
		return nil, fmt.Errorf("%w: payment event does not match record", domain.ErrValidation)
	}
	return u.Settle(ctx, p.ID, Outcome{Paid: true, ProviderRef: chargeID})
}
