package model

import "time"

// Subscription is a user's single rolling subscription period. Extensions
// always push EndDate forward from the later of "now" and the current
// expiry, so a paid period is never shortened or overlapped away.
type Subscription struct {
	ID            int64
	UserID        int64
	EndDate       time.Time
	ConfigLink    string // entitlement link handed to the user after activation
	LastPaymentID *int64
	UpdatedAt     time.Time
}

// Active reports whether the subscription covers the given instant.
func (s *Subscription) Active(now time.Time) bool {
	return s != nil && s.EndDate.After(now)
}

// ActivationResult is what the activator returns to the coordinator.
// AlreadyActive signals the idempotent no-op path: the payment had been
// activated before and EndDate reflects the prior extension.
type ActivationResult struct {
	EndDate       time.Time
	ConfigLink    string
	AlreadyActive bool
}
