package repository

import (
	"context"

	"telegram-subscription-bot/internal/domain/model"
)

// SubscriptionRepository is the port for user subscription periods.
type SubscriptionRepository interface {
	// FindByUser returns the user's subscription row (active or expired),
	// or ErrNotFound when the user never had one.
	FindByUser(ctx context.Context, qx Tx, userID int64) (*model.Subscription, error)
	// FindByPaymentID resolves the subscription a payment was activated
	// against; ErrNotFound means the payment has not been activated yet.
	FindByPaymentID(ctx context.Context, qx Tx, paymentID int64) (*model.Subscription, error)
	// Upsert creates or updates the user's subscription row and fills in
	// the store-assigned id on insert.
	Upsert(ctx context.Context, qx Tx, sub *model.Subscription) error
}
