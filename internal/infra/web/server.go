// File: internal/infra/web/server.go

// Package web hosts the provider webhook listener plus health and metrics
// endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/usecase"
)

type Server struct {
	payUC  usecase.PaymentUseCase
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(port int, payUC usecase.PaymentUseCase, logger *zerolog.Logger) *Server {
	s := &Server{payUC: payUC, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhook/yookassa", s.handleYooKassaWebhook)
	r.Post("/webhook/cryptopay", s.handleCryptoPayWebhook)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

type yooKassaNotification struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		CancellationDetails struct {
			Reason string `json:"reason"`
		} `json:"cancellation_details"`
	} `json:"object"`
}

// handleYooKassaWebhook settles hosted-checkout payments. Notifications are
// retried by the sender on non-2xx answers, so every outcome we can do
// nothing more about is acknowledged with 200: unknown refs, already-settled
// records, malformed bodies. Only a persistence failure earns a 500 and a
// redelivery.
func (s *Server) handleYooKassaWebhook(w http.ResponseWriter, r *http.Request) {
	var n yooKassaNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		s.log.Warn().Err(err).Msg("undecodable yookassa notification dropped")
		w.WriteHeader(http.StatusOK)
		return
	}

	var out usecase.Outcome
	switch n.Event {
	case "payment.succeeded":
		out = usecase.Outcome{Paid: true}
	case "payment.canceled":
		out = usecase.Outcome{Paid: false, Reason: n.Object.CancellationDetails.Reason}
	default:
		// waiting_for_capture and friends; nothing to settle yet.
		w.WriteHeader(http.StatusOK)
		return
	}

	_, err := s.payUC.SettleByProviderRef(r.Context(), adapter.ProviderYooKassa, n.Object.ID, out)
	s.answerWebhook(w, "yookassa", n.Object.ID, err)
}

type cryptoPayUpdate struct {
	UpdateType string `json:"update_type"`
	Payload    struct {
		InvoiceID int64  `json:"invoice_id"`
		Status    string `json:"status"`
	} `json:"payload"`
}

func (s *Server) handleCryptoPayWebhook(w http.ResponseWriter, r *http.Request) {
	var u cryptoPayUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		s.log.Warn().Err(err).Msg("undecodable cryptopay update dropped")
		w.WriteHeader(http.StatusOK)
		return
	}
	if u.UpdateType != "invoice_paid" {
		w.WriteHeader(http.StatusOK)
		return
	}

	ref := strconv.FormatInt(u.Payload.InvoiceID, 10)
	_, err := s.payUC.SettleByProviderRef(r.Context(), adapter.ProviderCryptoPay, ref, usecase.Outcome{Paid: true})
	s.answerWebhook(w, "cryptopay", ref, err)
}

func (s *Server) answerWebhook(w http.ResponseWriter, provider, ref string, err error) {
	switch {
	case err == nil,
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidStateTransition):
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, domain.ErrActivationPersistence):
		// The payment is settled; redelivering the notification cannot fix
		// activation and would only short-circuit. Acknowledge.
		w.WriteHeader(http.StatusOK)
	default:
		s.log.Error().Str("provider", provider).Str("ref", ref).Err(err).Msg("webhook settlement failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
