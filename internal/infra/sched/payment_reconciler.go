// File: internal/infra/sched/payment_reconciler.go

// Package sched holds the periodic background workers.
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/usecase"
)

// PaymentReconciler periodically scans stale pending payments and asks the
// provider for their real status. It covers lost webhooks and crashes
// between provider creation and settlement. Providers that settle in-chat
// or by admin review have nothing to poll and are skipped. It also re-drives
// approved payments whose settlement follow-up was lost after the review
// transaction committed.
type PaymentReconciler struct {
	payUC      usecase.PaymentUseCase
	payments   repository.PaymentRepository
	providers  usecase.ProviderRegistry
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewPaymentReconciler(
	payUC usecase.PaymentUseCase,
	payments repository.PaymentRepository,
	providers usecase.ProviderRegistry,
	interval, staleAfter time.Duration,
	logger *zerolog.Logger,
) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	compLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		payUC:      payUC,
		payments:   payments,
		providers:  providers,
		interval:   interval,
		staleAfter: staleAfter,
		log:        &compLog,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Msg("starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	w.pollPending(ctx, cutoff)
	w.resettleApproved(ctx, cutoff)
}

func (w *PaymentReconciler) pollPending(ctx context.Context, cutoff time.Time) {
	pending, err := w.payments.ListStatusOlderThan(ctx, repository.NoTX, model.PaymentStatusPending, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending failed")
		return
	}

	for _, p := range pending {
		if p.ProviderRef == nil || *p.ProviderRef == "" {
			continue
		}
		prov, ok := w.providers.Get(adapter.ProviderKind(p.Provider))
		if !ok {
			continue
		}
		querier, ok := prov.(adapter.StatusQuerier)
		if !ok {
			continue
		}

		paid, done, err := querier.FetchStatus(ctx, *p.ProviderRef)
		if err != nil {
			w.log.Warn().Int64("payment_id", p.ID).Str("provider", p.Provider).Err(err).Msg("status poll failed")
			continue
		}
		if !done {
			continue
		}

		out := usecase.Outcome{Paid: paid}
		if !paid {
			out.Reason = "payment was not completed in time"
		}
		if _, err := w.payUC.Settle(ctx, p.ID, out); err != nil {
			w.log.Error().Int64("payment_id", p.ID).Err(err).Msg("reconcile settle failed")
			continue
		}
		w.log.Info().Int64("payment_id", p.ID).Bool("paid", paid).Msg("payment reconciled")
	}
}

// resettleApproved re-drives approved payments through settlement. The admin
// decision is already committed, so no provider poll is needed.
func (w *PaymentReconciler) resettleApproved(ctx context.Context, cutoff time.Time) {
	approved, err := w.payments.ListStatusOlderThan(ctx, repository.NoTX, model.PaymentStatusApproved, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list approved failed")
		return
	}

	for _, p := range approved {
		if _, err := w.payUC.Settle(ctx, p.ID, usecase.Outcome{Paid: true}); err != nil {
			w.log.Error().Int64("payment_id", p.ID).Err(err).Msg("re-settle approved failed")
			continue
		}
		w.log.Info().Int64("payment_id", p.ID).Msg("approved payment settled")
	}
}
