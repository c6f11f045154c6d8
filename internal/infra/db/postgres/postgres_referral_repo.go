package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/repository"
)

var (
	_ repository.ReferralRepository  = (*referralRepo)(nil)
	_ repository.PromoCodeRepository = (*promoCodeRepo)(nil)
)

type referralRepo struct{ pool *pgxpool.Pool }

func NewReferralRepo(pool *pgxpool.Pool) *referralRepo {
	return &referralRepo{pool: pool}
}

// Create keeps the first referrer: the conflict target swallows later claims.
func (r *referralRepo) Create(ctx context.Context, qx repository.Tx, refereeID, referrerID int64) error {
	const q = `INSERT INTO referrals (referee_id, referrer_id, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (referee_id) DO NOTHING;`
	if _, err := execSQL(ctx, r.pool, qx, q, refereeID, referrerID); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *referralRepo) FindByReferee(ctx context.Context, qx repository.Tx, refereeID int64) (*model.Referral, error) {
	const q = `SELECT referee_id, referrer_id, created_at, bonus_applied_at FROM referrals WHERE referee_id=$1;`
	row, err := pickRow(ctx, r.pool, qx, q, refereeID)
	if err != nil {
		return nil, err
	}
	ref := &model.Referral{}
	if err := row.Scan(&ref.RefereeID, &ref.ReferrerID, &ref.CreatedAt, &ref.BonusAppliedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return ref, nil
}

// MarkBonusApplied stamps the bonus exactly once; a second call matches zero
// rows and reports false.
func (r *referralRepo) MarkBonusApplied(ctx context.Context, qx repository.Tx, refereeID int64) (bool, error) {
	const q = `UPDATE referrals SET bonus_applied_at=NOW() WHERE referee_id=$1 AND bonus_applied_at IS NULL;`
	cmd, err := execSQL(ctx, r.pool, qx, q, refereeID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

type promoCodeRepo struct{ pool *pgxpool.Pool }

func NewPromoCodeRepo(pool *pgxpool.Pool) *promoCodeRepo {
	return &promoCodeRepo{pool: pool}
}

func (r *promoCodeRepo) FindByID(ctx context.Context, qx repository.Tx, id int64) (*model.PromoCode, error) {
	const q = `SELECT promo_code_id, code, bonus_days, active FROM promo_codes WHERE promo_code_id=$1;`
	row, err := pickRow(ctx, r.pool, qx, q, id)
	if err != nil {
		return nil, err
	}
	pc := &model.PromoCode{}
	if err := row.Scan(&pc.ID, &pc.Code, &pc.BonusDays, &pc.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return pc, nil
}
