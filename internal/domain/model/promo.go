package model

// PromoCode grants extra subscription days on activation. Price discounts
// are applied by the presentation layer before Initiate; only the duration
// bonus matters to the activation engine.
type PromoCode struct {
	ID        int64
	Code      string
	BonusDays int
	Active    bool
}
