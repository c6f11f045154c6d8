package model

import "time"

// Referral links a referred user (referee) to who invited them. The bonus is
// credited to the referrer once, on the referee's first settled payment.
type Referral struct {
	RefereeID      int64
	ReferrerID     int64
	CreatedAt      time.Time
	BonusAppliedAt *time.Time
}
