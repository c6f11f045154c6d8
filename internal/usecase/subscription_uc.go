// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase activates/extends subscription periods. Activation is
// idempotent per payment id: the payment's subscription link is the marker.
type SubscriptionUseCase interface {
	// Activate extends the user's subscription for a settled payment.
	// Runs inside the caller's transaction when qx is a live tx handle.
	Activate(ctx context.Context, qx repository.Tx, p *model.Payment) (*model.ActivationResult, error)
	// Extend pushes a user's subscription end date forward by days without a
	// payment attached (referral bonuses).
	Extend(ctx context.Context, qx repository.Tx, userID int64, days int) (*model.Subscription, error)
	// Current returns the user's subscription or ErrNotFound.
	Current(ctx context.Context, userID int64) (*model.Subscription, error)
}

type subscriptionUC struct {
	subs           repository.SubscriptionRepository
	payments       repository.PaymentRepository
	promos         repository.PromoCodeRepository
	configLinkBase string
	log            *zerolog.Logger
	clock          func() time.Time
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, payments repository.PaymentRepository, promos repository.PromoCodeRepository, configLinkBase string, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{subs: subs, payments: payments, promos: promos, configLinkBase: configLinkBase, log: logger, clock: time.Now}
}

// Activate grants the extension purchased by p. The new end date is
// max(now, current end) + months (+ promo bonus days), so an early renewal
// stacks on top of the remaining period instead of truncating it.
func (uc *subscriptionUC) Activate(ctx context.Context, qx repository.Tx, p *model.Payment) (*model.ActivationResult, error) {
	// Idempotency guard: a payment already linked to a subscription was
	// activated before; report the prior result and mutate nothing.
	if prior, err := uc.subs.FindByPaymentID(ctx, qx, p.ID); err == nil {
		return &model.ActivationResult{
			EndDate:       prior.EndDate,
			ConfigLink:    prior.ConfigLink,
			AlreadyActive: true,
		}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: lookup prior activation: %v", domain.ErrActivationPersistence, err)
	}

	bonusDays := 0
	if p.PromoCodeID != nil {
		promo, err := uc.promos.FindByID(ctx, qx, *p.PromoCodeID)
		switch {
		case err == nil && promo.Active:
			bonusDays = promo.BonusDays
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("%w: promo lookup: %v", domain.ErrActivationPersistence, err)
		}
	}

	now := uc.clock()
	base := now
	sub, err := uc.subs.FindByUser(ctx, qx, p.UserID)
	switch {
	case err == nil:
		if sub.EndDate.After(base) {
			base = sub.EndDate
		}
	case errors.Is(err, domain.ErrNotFound):
		sub = &model.Subscription{UserID: p.UserID}
	default:
		return nil, fmt.Errorf("%w: load subscription: %v", domain.ErrActivationPersistence, err)
	}

	sub.EndDate = base.AddDate(0, p.Months, bonusDays)
	sub.LastPaymentID = &p.ID
	if sub.ConfigLink == "" {
		sub.ConfigLink = fmt.Sprintf("%s/%d", uc.configLinkBase, p.UserID)
	}

	if err := uc.subs.Upsert(ctx, qx, sub); err != nil {
		return nil, fmt.Errorf("%w: persist extension: %v", domain.ErrActivationPersistence, err)
	}
	// The link is the idempotency marker a replayed settlement trips on.
	if err := uc.payments.LinkSubscription(ctx, qx, p.ID, sub.ID); err != nil {
		return nil, fmt.Errorf("%w: link payment: %v", domain.ErrActivationPersistence, err)
	}

	metrics.IncActivation(p.Provider)
	uc.log.Info().Int64("payment_id", p.ID).Int64("user_id", p.UserID).
		Time("end_date", sub.EndDate).Int("months", p.Months).Int("bonus_days", bonusDays).
		Msg("subscription activated")

	return &model.ActivationResult{EndDate: sub.EndDate, ConfigLink: sub.ConfigLink}, nil
}

func (uc *subscriptionUC) Extend(ctx context.Context, qx repository.Tx, userID int64, days int) (*model.Subscription, error) {
	now := uc.clock()
	sub, err := uc.subs.FindByUser(ctx, qx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		sub = &model.Subscription{
			UserID:     userID,
			ConfigLink: fmt.Sprintf("%s/%d", uc.configLinkBase, userID),
			EndDate:    now,
		}
	case err != nil:
		return nil, err
	}
	base := now
	if sub.EndDate.After(base) {
		base = sub.EndDate
	}
	sub.EndDate = base.AddDate(0, 0, days)
	if err := uc.subs.Upsert(ctx, qx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (uc *subscriptionUC) Current(ctx context.Context, userID int64) (*model.Subscription, error) {
	return uc.subs.FindByUser(ctx, repository.NoTX, userID)
}
