package models

import "time"

// ConversationTurnRecord is a persisted transcript row. Live conversation
// state stays in memory; these rows are an append-only record for the
// merchant.
type ConversationTurnRecord struct {
	ID        int64     `json:"id,omitempty"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// OfferRecord is a persisted discount offer row.
type OfferRecord struct {
	ID           int64     `json:"id,omitempty"`
	SessionID    string    `json:"session_id"`
	Counter      int       `json:"counter"`
	DiscountPct  float64   `json:"discount_pct"`
	DiscountCode string    `json:"discount_code,omitempty"`
	Simulated    bool      `json:"simulated"`
	Timestamp    time.Time `json:"timestamp"`
}

// ConsentEventKind classifies consent audit entries.
type ConsentEventKind string

const (
	// ConsentRequested records that the agent asked permission for a lookup.
	ConsentRequested ConsentEventKind = "requested"
	// ConsentGranted records that the customer agreed to the lookup.
	ConsentGranted ConsentEventKind = "granted"
	// ConsentDeclined records that the customer refused the lookup.
	ConsentDeclined ConsentEventKind = "declined"
)

// ConsentEvent is a persisted consent audit row. Every request, grant and
// decline is recorded with the agent type and query it concerned.
type ConsentEvent struct {
	ID        int64            `json:"id,omitempty"`
	SessionID string           `json:"session_id"`
	Kind      ConsentEventKind `json:"kind"`
	AgentType AgentType        `json:"agent_type"`
	Query     string           `json:"query,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
