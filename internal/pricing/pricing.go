// Package pricing implements the counter-bounded discount negotiation engine.
//
// Each chat session holds a negotiation state: how many counter-offers have
// been spent, the current discount, and an append-only offer ledger. Offers
// are validated in a fixed order (discount ceiling, then counter budget,
// then margin floor) and failed validation never mutates session state.
package pricing

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boovines/Nudge/internal/config"
	"github.com/boovines/Nudge/internal/models"
)

// Error variables for negotiation invariant violations
var (
	ErrDiscountExceedsMax = errors.New("discount exceeds maximum")
	ErrCountersExhausted  = errors.New("no more counter-offers allowed")
	ErrMarginBelowFloor   = errors.New("margin below floor")
	ErrSessionNotFound    = errors.New("negotiation session not found")
)

// Session holds the negotiation state for a single chat session. All
// mutations go through the engine, which serializes them per session.
type Session struct {
	id                 string
	counter            int
	currentDiscountPct float64
	offers             []models.Offer
	startedAt          time.Time
	mu                 sync.Mutex
}

// Engine validates and records negotiation offers across sessions. The
// session registry is owned by the engine instance and injected into its
// consumers; it is safe for concurrent use.
type Engine struct {
	maxDiscountPct float64
	floorMarginPct float64
	firstOfferPct  float64
	counterStepPct float64
	maxCounters    int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewEngine creates an Engine with the merchant's pricing policy.
func NewEngine(merchant *config.Merchant) *Engine {
	return &Engine{
		maxDiscountPct: merchant.MaxDiscountPct,
		floorMarginPct: merchant.FloorMarginPct,
		firstOfferPct:  merchant.FirstOfferPct,
		counterStepPct: merchant.CounterStepPct,
		maxCounters:    merchant.MaxCounters,
		sessions:       make(map[string]*Session),
	}
}

// session returns the negotiation state for sessionID, creating it on first use.
func (e *Engine) session(sessionID string) *Session {
	e.mu.RLock()
	s, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok = e.sessions[sessionID]; ok {
		return s
	}
	s = &Session{id: sessionID, startedAt: time.Now()}
	e.sessions[sessionID] = s
	slog.Debug("pricing.session: created negotiation session", "session_id", sessionID)
	return s
}

// lookup returns the session without creating it.
func (e *Engine) lookup(sessionID string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[sessionID]
	return s, ok
}

// MakeOffer validates and records an explicit discount offer. Validation
// order is fixed: ceiling, then counter budget, then margin floor. A margin
// exactly at the floor is accepted. On failure the session is unchanged and
// the returned error wraps the violated invariant's sentinel.
func (e *Engine) MakeOffer(sessionID string, discountPct float64) (models.OfferResult, error) {
	s := e.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.makeOfferLocked(s, discountPct)
}

func (e *Engine) makeOfferLocked(s *Session, discountPct float64) (models.OfferResult, error) {
	if discountPct > e.maxDiscountPct {
		slog.Debug("pricing.MakeOffer: rejected, exceeds ceiling", "session_id", s.id, "discount_pct", discountPct, "max_discount_pct", e.maxDiscountPct)
		return models.OfferResult{}, fmt.Errorf("%w: offered %.1f%%, maximum is %.1f%%", ErrDiscountExceedsMax, discountPct, e.maxDiscountPct)
	}
	if s.counter >= e.maxCounters {
		slog.Debug("pricing.MakeOffer: rejected, counters exhausted", "session_id", s.id, "counter", s.counter, "max_counters", e.maxCounters)
		return models.OfferResult{}, fmt.Errorf("%w: %d of %d counter-offers used", ErrCountersExhausted, s.counter, e.maxCounters)
	}
	marginPct := 100 - discountPct
	if marginPct < e.floorMarginPct {
		slog.Debug("pricing.MakeOffer: rejected, margin below floor", "session_id", s.id, "margin_pct", marginPct, "floor_margin_pct", e.floorMarginPct)
		return models.OfferResult{}, fmt.Errorf("%w: margin %.1f%% is below floor %.1f%%", ErrMarginBelowFloor, marginPct, e.floorMarginPct)
	}

	s.counter++
	s.currentDiscountPct = discountPct
	s.offers = append(s.offers, models.Offer{
		Counter:     s.counter,
		DiscountPct: discountPct,
		MarginPct:   marginPct,
		Timestamp:   time.Now(),
	})

	result := models.OfferResult{
		DiscountPct:       discountPct,
		MarginPct:         marginPct,
		Counter:           s.counter,
		RemainingCounters: e.maxCounters - s.counter,
		BaseDiscountPct:   discountPct,
	}
	slog.Debug("pricing.MakeOffer: offer accepted", "session_id", s.id, "discount_pct", discountPct, "counter", s.counter, "remaining", result.RemainingCounters)
	return result, nil
}

// nextOfferLocked computes the escalation policy: the first offer starts at
// the configured opener, later offers step up from the previous discount
// (or the current one when no previous is supplied), clamped to the ceiling.
func (e *Engine) nextOfferLocked(s *Session, previousDiscount *float64) float64 {
	if s.counter == 0 {
		return e.firstOfferPct
	}
	base := s.currentDiscountPct
	if previousDiscount != nil {
		base = *previousDiscount
	}
	next := base + e.counterStepPct
	if next > e.maxDiscountPct {
		next = e.maxDiscountPct
	}
	return next
}

// NextOffer computes the next escalated discount and places it as an offer.
// Escalation clamped at the ceiling still spends a counter when accepted.
func (e *Engine) NextOffer(sessionID string, previousDiscount *float64) (models.OfferResult, error) {
	s := e.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.makeOfferLocked(s, e.nextOfferLocked(s, previousDiscount))
}

// ApplyTraitBonus adds a trait bonus to the most recent offer, amending it
// in place. The bonus is clamped to the ceiling and skipped entirely when
// it would not raise the discount or would push margin under the floor.
// The amended ledger entry keeps the pre-bonus percentage and no counter is
// spent. The second return reports whether the bonus was applied.
func (e *Engine) ApplyTraitBonus(sessionID string, bonusPct float64) (models.OfferResult, bool) {
	s, ok := e.lookup(sessionID)
	if !ok {
		return models.OfferResult{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.offers) == 0 || bonusPct <= 0 {
		return models.OfferResult{}, false
	}

	base := s.currentDiscountPct
	candidate := base + bonusPct
	if candidate > e.maxDiscountPct {
		candidate = e.maxDiscountPct
	}
	if candidate <= base || 100-candidate < e.floorMarginPct {
		slog.Debug("pricing.ApplyTraitBonus: bonus skipped", "session_id", sessionID, "base_pct", base, "candidate_pct", candidate)
		return models.OfferResult{}, false
	}

	last := &s.offers[len(s.offers)-1]
	last.BaseDiscountPct = base
	last.DiscountPct = candidate
	last.MarginPct = 100 - candidate
	last.BonusApplied = true
	s.currentDiscountPct = candidate

	result := models.OfferResult{
		DiscountPct:       candidate,
		MarginPct:         100 - candidate,
		Counter:           s.counter,
		RemainingCounters: e.maxCounters - s.counter,
		BaseDiscountPct:   base,
		TraitBonusApplied: true,
	}
	slog.Debug("pricing.ApplyTraitBonus: bonus applied", "session_id", sessionID, "base_pct", base, "discount_pct", candidate)
	return result, true
}

// MakeDiscountOffer is the composite issuance path: an explicit discount is
// validated as-is, a nil discount auto-escalates, and a positive trait bonus
// is applied to whichever offer was accepted.
func (e *Engine) MakeDiscountOffer(sessionID string, requestedPct *float64, traitBonusPct float64) (models.OfferResult, error) {
	s := e.session(sessionID)
	s.mu.Lock()

	discountPct := 0.0
	if requestedPct != nil {
		discountPct = *requestedPct
	} else {
		var previous *float64
		if len(s.offers) > 0 {
			current := s.currentDiscountPct
			previous = &current
		}
		discountPct = e.nextOfferLocked(s, previous)
	}

	result, err := e.makeOfferLocked(s, discountPct)
	s.mu.Unlock()
	if err != nil {
		return result, err
	}

	if traitBonusPct > 0 {
		if boosted, applied := e.ApplyTraitBonus(sessionID, traitBonusPct); applied {
			result = boosted
		}
	}
	return result, nil
}

// Summary reports the negotiation position of a session. Unknown sessions
// return ErrSessionNotFound rather than being created.
func (e *Engine) Summary(sessionID string) (models.NegotiationSummary, error) {
	s, ok := e.lookup(sessionID)
	if !ok {
		return models.NegotiationSummary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	offers := make([]models.Offer, len(s.offers))
	copy(offers, s.offers)

	return models.NegotiationSummary{
		SessionID:          s.id,
		Counter:            s.counter,
		MaxCounters:        e.maxCounters,
		CurrentDiscountPct: s.currentDiscountPct,
		RemainingCounters:  e.maxCounters - s.counter,
		CanContinue:        s.counter < e.maxCounters,
		Offers:             offers,
	}, nil
}

// Reset discards a session's negotiation state.
func (e *Engine) Reset(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[sessionID]; ok {
		delete(e.sessions, sessionID)
		slog.Debug("pricing.Reset: negotiation session cleared", "session_id", sessionID)
	}
}
