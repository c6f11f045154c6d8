// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-subscription-bot/internal/config"
	pg "telegram-subscription-bot/internal/infra/db/postgres"
	"telegram-subscription-bot/internal/infra/logging"
	"telegram-subscription-bot/internal/infra/metrics"
	"telegram-subscription-bot/internal/infra/providers"
	red "telegram-subscription-bot/internal/infra/redis"
	"telegram-subscription-bot/internal/infra/sched"
	tele "telegram-subscription-bot/internal/infra/telegram"
	"telegram-subscription-bot/internal/infra/web"
	"telegram-subscription-bot/internal/infra/worker"
	"telegram-subscription-bot/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logging)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	payRepo := pg.NewPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	refRepo := pg.NewReferralRepo(pool)
	promoRepo := pg.NewPromoCodeRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Bot API ----
	botAPI, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram")
	}
	notifier := tele.NewNotifier(botAPI, cfg.Bot.AdminIDs, logger)

	// ---- Post-commit pool ----
	pool2 := worker.NewPool(cfg.Bot.Workers, logger)
	pool2.Start(ctx)
	defer pool2.Stop()

	// ---- Providers ----
	registry := providers.NewRegistry(
		providers.NewYooKassaProvider(cfg.Payment.YooKassa.ShopID, cfg.Payment.YooKassa.SecretKey, cfg.Payment.YooKassa.ReturnURL),
		providers.NewCryptoPayProvider(cfg.Payment.CryptoPay.APIToken, cfg.Payment.CryptoPay.BaseURL, cfg.Payment.CryptoPay.RubPerUSDT),
		providers.NewStarsProvider(cfg.Payment.Stars.Enabled, notifier),
		providers.NewManualProvider(cfg.Payment.ManualTransfer.RecipientPhone, cfg.Payment.ManualTransfer.RecipientName, cfg.Payment.ManualTransfer.BankName),
	)

	// ---- Use cases ----
	dispatch := usecase.NewNotificationDispatcher(notifier, pool2, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, payRepo, promoRepo, cfg.Subscription.ConfigLinkBase, logger)
	referralUC := usecase.NewReferralUseCase(refRepo, subUC, dispatch, cfg.Referral.BonusDays, logger)
	payUC := usecase.NewPaymentUseCase(payRepo, subRepo, subUC, referralUC, dispatch, registry, tm, locker, pool2, logger)
	sessions := usecase.NewReceiptSessionTracker()
	reviewUC := usecase.NewManualReviewUseCase(payRepo, sessions, payUC, dispatch, tm, logger)

	// ---- Telegram polling ----
	bot, err := tele.NewBot(botAPI, cfg, payUC, reviewUC, subUC, refRepo, registry, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot")
	}
	go func() {
		if err := bot.StartPolling(ctx); err != nil {
			logger.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- Webhook + metrics server ----
	srv := web.NewServer(cfg.Web.Port, payUC, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Reconciler ----
	reconciler := sched.NewPaymentReconciler(payUC, payRepo, registry, cfg.Scheduler.ReconcileInterval, cfg.Scheduler.StaleAfter, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	_ = srv.Shutdown(context.Background())
	bot.StopPolling()
}
