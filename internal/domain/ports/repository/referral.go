package repository

import (
	"context"

	"telegram-subscription-bot/internal/domain/model"
)

// PromoCodeRepository resolves promo codes attached to payments.
type PromoCodeRepository interface {
	FindByID(ctx context.Context, qx Tx, id int64) (*model.PromoCode, error)
}

// ReferralRepository tracks who referred whom and whether the one-time
// bonus for a referee has been credited.
type ReferralRepository interface {
	// Create records that referrer invited referee. The first referrer wins;
	// a later claim for the same referee is a silent no-op.
	Create(ctx context.Context, qx Tx, refereeID, referrerID int64) error
	// FindByReferee returns the referral row for a referred user, or
	// ErrNotFound when the user was not referred.
	FindByReferee(ctx context.Context, qx Tx, refereeID int64) (*model.Referral, error)
	// MarkBonusApplied stamps BonusAppliedAt; returns false when the bonus
	// had already been applied (guards the once-per-referee invariant).
	MarkBonusApplied(ctx context.Context, qx Tx, refereeID int64) (bool, error)
}
