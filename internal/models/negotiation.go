package models

import "time"

// Offer is one accepted entry in a session's offer ledger. When a trait
// bonus amends an offer, BaseDiscountPct keeps the pre-bonus percentage and
// BonusApplied is set; the ledger length always equals the counter.
type Offer struct {
	Counter         int       `json:"counter"`
	DiscountPct     float64   `json:"discount_pct"`
	MarginPct       float64   `json:"margin_pct"`
	BaseDiscountPct float64   `json:"base_discount_pct,omitempty"`
	BonusApplied    bool      `json:"bonus_applied,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// OfferResult describes an accepted offer as returned to callers.
// BaseDiscountPct equals DiscountPct unless a trait bonus amended the offer.
type OfferResult struct {
	DiscountPct       float64 `json:"discount_pct"`
	MarginPct         float64 `json:"margin_pct"`
	Counter           int     `json:"counter"`
	RemainingCounters int     `json:"remaining_counters"`
	BaseDiscountPct   float64 `json:"base_discount_pct"`
	TraitBonusApplied bool    `json:"trait_bonus_applied,omitempty"`
}

// NegotiationSummary reports the negotiation position of a session.
type NegotiationSummary struct {
	SessionID          string  `json:"session_id"`
	Counter            int     `json:"counter"`
	MaxCounters        int     `json:"max_counters"`
	CurrentDiscountPct float64 `json:"current_discount_pct"`
	RemainingCounters  int     `json:"remaining_counters"`
	CanContinue        bool    `json:"can_continue"`
	Offers             []Offer `json:"offers"`
}

// TraitDetection describes one valuable-customer trait found in conversation text.
type TraitDetection struct {
	Trait      string  `json:"trait"`
	Confidence float64 `json:"confidence"`
	Matches    int     `json:"matches"`
	BonusPct   float64 `json:"bonus_pct"`
}

// DiscountPayload is the outcome of a discount issuance attempt. On failure
// only Success, Error and RemainingCounters are meaningful.
type DiscountPayload struct {
	Success           bool      `json:"success"`
	DiscountCode      string    `json:"discount_code,omitempty"`
	DiscountPct       float64   `json:"discount_pct,omitempty"`
	BaseDiscountPct   float64   `json:"base_discount_pct,omitempty"`
	ExpiresAt         time.Time `json:"expires_at,omitempty"`
	Counter           int       `json:"counter,omitempty"`
	RemainingCounters int       `json:"remaining_counters"`
	Simulated         bool      `json:"simulated,omitempty"`
	Note              string    `json:"note,omitempty"`
	DetectedTraits    []string  `json:"detected_traits,omitempty"`
	TraitBonusApplied bool      `json:"trait_bonus_applied,omitempty"`
	ShopifyID         string    `json:"shopify_id,omitempty"`
	Error             string    `json:"error,omitempty"`
}
