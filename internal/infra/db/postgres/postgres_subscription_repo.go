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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subColumns = `subscription_id, user_id, end_date, config_link, last_payment_id, updated_at`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.EndDate, &s.ConfigLink, &s.LastPaymentID, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, qx repository.Tx, userID int64) (*model.Subscription, error) {
	q := `SELECT ` + subColumns + ` FROM subscriptions WHERE user_id=$1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindByPaymentID(ctx context.Context, qx repository.Tx, paymentID int64) (*model.Subscription, error) {
	const q = `
SELECT s.subscription_id, s.user_id, s.end_date, s.config_link, s.last_payment_id, s.updated_at
  FROM subscriptions s
  JOIN payments p ON p.subscription_id = s.subscription_id
 WHERE p.payment_id = $1;`
	row, err := pickRow(ctx, r.pool, qx, q, paymentID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

// Upsert keeps one subscription row per user; extensions update end_date in
// place. The store-assigned id is written back on insert.
func (r *subscriptionRepo) Upsert(ctx context.Context, qx repository.Tx, sub *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (user_id, end_date, config_link, last_payment_id, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (user_id) DO UPDATE SET
  end_date=$2, config_link=$3, last_payment_id=$4, updated_at=NOW()
RETURNING subscription_id;`

	row, err := pickRow(ctx, r.pool, qx, q, sub.UserID, sub.EndDate, sub.ConfigLink, sub.LastPaymentID)
	if err != nil {
		return err
	}
	if err := row.Scan(&sub.ID); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}
