package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `payment_id, user_id, amount, currency, months, description, status, provider, provider_ref, promo_code_id, admin_notes, receipt_file_id, subscription_id, created_at, updated_at, settled_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Months, &p.Description, &p.Status, &p.Provider, &p.ProviderRef, &p.PromoCodeID, &p.AdminNotes, &p.ReceiptFileID, &p.SubscriptionID, &p.CreatedAt, &p.UpdatedAt, &p.SettledAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) Create(ctx context.Context, qx repository.Tx, p *model.Payment) (int64, error) {
	const q = `
INSERT INTO payments (
  user_id, amount, currency, months, description, status, provider, promo_code_id, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
RETURNING payment_id;`

	row, err := pickRow(ctx, r.pool, qx, q, p.UserID, p.Amount, p.Currency, p.Months, p.Description, p.Status, p.Provider, p.PromoCodeID, p.CreatedAt)
	if err != nil {
		return 0, err
	}
	if err := row.Scan(&p.ID); err != nil {
		return 0, domain.ErrOperationFailed
	}
	return p.ID, nil
}

func (r *paymentRepo) FindByID(ctx context.Context, qx repository.Tx, id int64) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id=$1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByProviderRef(ctx context.Context, qx repository.Tx, provider, ref string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider=$1 AND provider_ref=$2 LIMIT 1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, provider, ref)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

// UpdateStatusIf performs the guarded transition: the row is touched only
// while its current status is in `from`, so racing writers cannot take a
// record out of a terminal state or replay an earlier one.
func (r *paymentRepo) UpdateStatusIf(ctx context.Context, qx repository.Tx, id int64, from []model.PaymentStatus, to model.PaymentStatus, providerRef *string, settledAt *time.Time) (bool, error) {
	fromSet := make([]string, len(from))
	for i, s := range from {
		fromSet[i] = string(s)
	}
	const q = `
UPDATE payments
   SET status = $2,
       provider_ref = COALESCE($3, provider_ref),
       settled_at = COALESCE($4, settled_at),
       updated_at = NOW()
 WHERE payment_id = $1
   AND status = ANY($5);`

	cmd, err := execSQL(ctx, r.pool, qx, q, id, string(to), providerRef, settledAt, fromSet)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) SetReceipt(ctx context.Context, qx repository.Tx, id int64, fileID string) (bool, error) {
	const q = `
UPDATE payments
   SET status = $2,
       receipt_file_id = $3,
       updated_at = NOW()
 WHERE payment_id = $1
   AND status = $4;`

	cmd, err := execSQL(ctx, r.pool, qx, q, id, string(model.PaymentStatusPendingReview), fileID, string(model.PaymentStatusPendingReceipt))
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) SetAdminNotes(ctx context.Context, qx repository.Tx, id int64, notes string) error {
	const q = `UPDATE payments SET admin_notes=$2, updated_at=NOW() WHERE payment_id=$1;`
	_, err := execSQL(ctx, r.pool, qx, q, id, notes)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) LinkSubscription(ctx context.Context, qx repository.Tx, paymentID, subscriptionID int64) error {
	const q = `UPDATE payments SET subscription_id=$2, updated_at=NOW() WHERE payment_id=$1;`
	_, err := execSQL(ctx, r.pool, qx, q, paymentID, subscriptionID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) ListStatusOlderThan(ctx context.Context, qx repository.Tx, status model.PaymentStatus, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE status=$1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, qx, q, string(status), olderThan, limit)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
