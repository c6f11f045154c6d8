//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/worker"
)

// -----------------------------
// Repositories
// -----------------------------

// MockPaymentRepo is a thread-safe in-memory payment store. Individual
// methods can be overridden per test via the *Func fields.
type MockPaymentRepo struct {
	mu    sync.Mutex
	seq   int64
	items map[int64]*model.Payment

	CreateFunc         func(ctx context.Context, qx repository.Tx, p *model.Payment) (int64, error)
	UpdateStatusIfFunc func(ctx context.Context, qx repository.Tx, id int64, from []model.PaymentStatus, to model.PaymentStatus, providerRef *string, settledAt *time.Time) (bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{items: map[int64]*model.Payment{}}
}

// Seed inserts a payment directly, bypassing any overrides.
func (m *MockPaymentRepo) Seed(p *model.Payment) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.seq++
		p.ID = m.seq
	} else if p.ID > m.seq {
		m.seq = p.ID
	}
	cp := *p
	m.items[p.ID] = &cp
	return p
}

func (m *MockPaymentRepo) Get(id int64) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.items[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (m *MockPaymentRepo) Create(ctx context.Context, qx repository.Tx, p *model.Payment) (int64, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, qx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	p.ID = m.seq
	cp := *p
	m.items[p.ID] = &cp
	return p.ID, nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, qx repository.Tx, id int64) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) FindByProviderRef(ctx context.Context, qx repository.Tx, provider, ref string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.Provider == provider && p.ProviderRef != nil && *p.ProviderRef == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) UpdateStatusIf(ctx context.Context, qx repository.Tx, id int64, from []model.PaymentStatus, to model.PaymentStatus, providerRef *string, settledAt *time.Time) (bool, error) {
	if m.UpdateStatusIfFunc != nil {
		return m.UpdateStatusIfFunc(ctx, qx, id, from, to, providerRef, settledAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, f := range from {
		if p.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	p.Status = to
	if providerRef != nil {
		ref := *providerRef
		p.ProviderRef = &ref
	}
	if settledAt != nil {
		at := *settledAt
		p.SettledAt = &at
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockPaymentRepo) SetReceipt(ctx context.Context, qx repository.Tx, id int64, fileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok || p.Status != model.PaymentStatusPendingReceipt {
		return false, nil
	}
	p.Status = model.PaymentStatusPendingReview
	p.ReceiptFileID = &fileID
	return true, nil
}

func (m *MockPaymentRepo) SetAdminNotes(ctx context.Context, qx repository.Tx, id int64, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.AdminNotes = &notes
	return nil
}

func (m *MockPaymentRepo) LinkSubscription(ctx context.Context, qx repository.Tx, paymentID, subscriptionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	p.SubscriptionID = &subscriptionID
	return nil
}

func (m *MockPaymentRepo) ListStatusOlderThan(ctx context.Context, qx repository.Tx, status model.PaymentStatus, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.items {
		if p.Status == status && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Subscriptions ----

// MockSubscriptionRepo resolves FindByPaymentID through the payment repo's
// subscription links, mirroring the real join.
type MockSubscriptionRepo struct {
	mu       sync.Mutex
	seq      int64
	byUser   map[int64]*model.Subscription
	Payments *MockPaymentRepo

	UpsertFunc          func(ctx context.Context, qx repository.Tx, sub *model.Subscription) error
	FindByPaymentIDFunc func(ctx context.Context, qx repository.Tx, paymentID int64) (*model.Subscription, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo(payments *MockPaymentRepo) *MockSubscriptionRepo {
	return &MockSubscriptionRepo{byUser: map[int64]*model.Subscription{}, Payments: payments}
}

func (m *MockSubscriptionRepo) FindByUser(ctx context.Context, qx repository.Tx, userID int64) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) FindByPaymentID(ctx context.Context, qx repository.Tx, paymentID int64) (*model.Subscription, error) {
	if m.FindByPaymentIDFunc != nil {
		return m.FindByPaymentIDFunc(ctx, qx, paymentID)
	}
	p := m.Payments.Get(paymentID)
	if p == nil || p.SubscriptionID == nil {
		return nil, domain.ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byUser {
		if s.ID == *p.SubscriptionID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) Upsert(ctx context.Context, qx repository.Tx, sub *model.Subscription) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, qx, sub)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byUser[sub.UserID]; ok {
		sub.ID = existing.ID
	} else {
		m.seq++
		sub.ID = m.seq
	}
	cp := *sub
	m.byUser[sub.UserID] = &cp
	return nil
}

// ---- Promo codes ----

type MockPromoRepo struct {
	mu    sync.Mutex
	items map[int64]*model.PromoCode
}

var _ repository.PromoCodeRepository = (*MockPromoRepo)(nil)

func NewMockPromoRepo() *MockPromoRepo {
	return &MockPromoRepo{items: map[int64]*model.PromoCode{}}
}

func (m *MockPromoRepo) Seed(pc *model.PromoCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[pc.ID] = pc
}

func (m *MockPromoRepo) FindByID(ctx context.Context, qx repository.Tx, id int64) (*model.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return pc, nil
}

// ---- Referrals ----

type MockReferralRepo struct {
	mu    sync.Mutex
	items map[int64]*model.Referral

	MarkBonusAppliedFunc func(ctx context.Context, qx repository.Tx, refereeID int64) (bool, error)
}

var _ repository.ReferralRepository = (*MockReferralRepo)(nil)

func NewMockReferralRepo() *MockReferralRepo {
	return &MockReferralRepo{items: map[int64]*model.Referral{}}
}

func (m *MockReferralRepo) Create(ctx context.Context, qx repository.Tx, refereeID, referrerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[refereeID]; ok {
		return nil
	}
	m.items[refereeID] = &model.Referral{RefereeID: refereeID, ReferrerID: referrerID, CreatedAt: time.Now()}
	return nil
}

func (m *MockReferralRepo) FindByReferee(ctx context.Context, qx repository.Tx, refereeID int64) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.items[refereeID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *ref
	return &cp, nil
}

func (m *MockReferralRepo) MarkBonusApplied(ctx context.Context, qx repository.Tx, refereeID int64) (bool, error) {
	if m.MarkBonusAppliedFunc != nil {
		return m.MarkBonusAppliedFunc(ctx, qx, refereeID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.items[refereeID]
	if !ok || ref.BonusAppliedAt != nil {
		return false, nil
	}
	now := time.Now()
	ref.BonusAppliedAt = &now
	return true, nil
}

// -----------------------------
// Transaction manager / locker
// -----------------------------

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

// WithTx runs fn immediately with NoTX unless a test overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.ErrOn[key]; ok {
		return "", err
	}
	if _, taken := m.held[key]; taken {
		return "", domain.ErrSettleLockNotAcquired
	}
	token := fmt.Sprintf("tok-%d", len(m.held)+1)
	m.held[key] = token
	return token, nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

// -----------------------------
// Providers / notifier
// -----------------------------

type MockProvider struct {
	KindVal       adapter.ProviderKind
	ConfiguredVal bool
	ReceiptVal    *adapter.Receipt
	CreateErr     error

	mu      sync.Mutex
	Created []adapter.CreateContext
}

var _ adapter.PaymentProvider = (*MockProvider)(nil)

func (m *MockProvider) Kind() adapter.ProviderKind { return m.KindVal }
func (m *MockProvider) Configured() bool           { return m.ConfiguredVal }

func (m *MockProvider) CreatePayment(ctx context.Context, pc adapter.CreateContext) (*adapter.Receipt, error) {
	m.mu.Lock()
	m.Created = append(m.Created, pc)
	m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	return m.ReceiptVal, nil
}

type MockRegistry struct {
	byKind map[adapter.ProviderKind]adapter.PaymentProvider
}

func NewMockRegistry(provs ...adapter.PaymentProvider) *MockRegistry {
	r := &MockRegistry{byKind: map[adapter.ProviderKind]adapter.PaymentProvider{}}
	for _, p := range provs {
		r.byKind[p.Kind()] = p
	}
	return r
}

func (r *MockRegistry) Get(kind adapter.ProviderKind) (adapter.PaymentProvider, bool) {
	p, ok := r.byKind[kind]
	return p, ok
}

type sentMessage struct {
	UserID int64
	Text   string
}

type MockNotifier struct {
	mu       sync.Mutex
	User     []sentMessage
	Admin    []string
	Invoices []string
}

var _ adapter.Notifier = (*MockNotifier)(nil)
var _ adapter.InvoiceSender = (*MockNotifier)(nil)

func (m *MockNotifier) NotifyUser(ctx context.Context, userID int64, text string, rows [][]adapter.InlineButton) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.User = append(m.User, sentMessage{UserID: userID, Text: text})
	return nil
}

func (m *MockNotifier) NotifyAdmins(ctx context.Context, text string, photoFileID string, rows [][]adapter.InlineButton) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Admin = append(m.Admin, text)
	return nil
}

func (m *MockNotifier) SendInvoice(ctx context.Context, userID int64, title, description, payload, currency string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invoices = append(m.Invoices, payload)
	return nil
}

func (m *MockNotifier) UserMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.User))
	copy(out, m.User)
	return out
}

func (m *MockNotifier) AdminMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Admin))
	copy(out, m.Admin)
	return out
}

// -----------------------------
// Helpers
// -----------------------------

// newTestLogger creates a silent zerolog.Logger so test output stays clean.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// startTestPool runs a small post-commit pool for the duration of the test.
func startTestPool(t *testing.T) *worker.Pool {
	t.Helper()
	p := worker.NewPool(2, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	t.Cleanup(func() {
		cancel()
		p.Stop()
	})
	return p
}

// eventually polls cond for up to a second; post-commit side effects run on
// the pool and land asynchronously.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
