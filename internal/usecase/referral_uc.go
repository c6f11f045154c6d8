// File: internal/usecase/referral_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
)

var _ ReferralUseCase = (*referralUC)(nil)

// ReferralUseCase credits the referrer when a referred user's first payment
// settles. Strictly best-effort: the coordinator runs it after the
// settlement commit and only logs failures.
type ReferralUseCase interface {
	ApplyForPayment(ctx context.Context, refereeID int64) error
}

type referralUC struct {
	referrals repository.ReferralRepository
	subUC     SubscriptionUseCase
	notifier  *NotificationDispatcher
	bonusDays int
	log       *zerolog.Logger
}

func NewReferralUseCase(referrals repository.ReferralRepository, subUC SubscriptionUseCase, notifier *NotificationDispatcher, bonusDays int, logger *zerolog.Logger) *referralUC {
	return &referralUC{referrals: referrals, subUC: subUC, notifier: notifier, bonusDays: bonusDays, log: logger}
}

func (uc *referralUC) ApplyForPayment(ctx context.Context, refereeID int64) error {
	ref, err := uc.referrals.FindByReferee(ctx, repository.NoTX, refereeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil // not a referred user
	}
	if err != nil {
		return err
	}
	if ref.BonusAppliedAt != nil {
		return nil // bonus is once per referee
	}

	applied, err := uc.referrals.MarkBonusApplied(ctx, repository.NoTX, refereeID)
	if err != nil {
		return err
	}
	if !applied {
		return nil // lost the race to a concurrent settlement
	}

	sub, err := uc.subUC.Extend(ctx, repository.NoTX, ref.ReferrerID, uc.bonusDays)
	if err != nil {
		return fmt.Errorf("credit referrer %d: %w", ref.ReferrerID, err)
	}

	metrics.IncReferralBonus()
	uc.log.Info().Int64("referrer_id", ref.ReferrerID).Int64("referee_id", refereeID).
		Int("bonus_days", uc.bonusDays).Msg("referral bonus credited")

	uc.notifier.ReferralBonusCredited(ref.ReferrerID, uc.bonusDays, sub.EndDate)
	return nil
}
