// File: internal/usecase/receipt_session.go
package usecase

import (
	"sync"
	"time"
)

// ReceiptSessionTTL bounds how long a user has to send the transfer receipt
// after pressing "upload receipt".
const ReceiptSessionTTL = 5 * time.Minute

type receiptSession struct {
	paymentID int64
	createdAt time.Time
}

// ReceiptSessionTracker associates a user with the manual-transfer payment
// they are currently uploading a receipt for. State is process-local and
// intentionally not durable: after a restart the user re-initiates the
// upload from the payment's own status. At most one session per user;
// Begin overwrites (last write wins). Expiry is lazy, checked at Consume.
type ReceiptSessionTracker struct {
	mu       sync.Mutex
	sessions map[int64]receiptSession
	now      func() time.Time
}

func NewReceiptSessionTracker() *ReceiptSessionTracker {
	return &ReceiptSessionTracker{
		sessions: make(map[int64]receiptSession),
		now:      time.Now,
	}
}

func (t *ReceiptSessionTracker) Begin(userID, paymentID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[userID] = receiptSession{paymentID: paymentID, createdAt: t.now()}
}

// Consume returns the payment id the user is uploading for and clears the
// session. An expired session is also cleared and reports ok=false; the
// caller treats both the same way (no active upload).
func (t *ReceiptSessionTracker) Consume(userID int64) (paymentID int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, exists := t.sessions[userID]
	if !exists {
		return 0, false
	}
	delete(t.sessions, userID)
	if t.now().Sub(s.createdAt) > ReceiptSessionTTL {
		return 0, false
	}
	return s.paymentID, true
}

// Sweep drops expired sessions. Correctness never depends on it; it only
// keeps the map from accumulating abandoned entries.
func (t *ReceiptSessionTracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for uid, s := range t.sessions {
		if now.Sub(s.createdAt) > ReceiptSessionTTL {
			delete(t.sessions, uid)
		}
	}
}
