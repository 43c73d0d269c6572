// Package store provides storage backends for Nudge.
//
// Three implementations are available: an in-memory store for tests and
// ephemeral runs, a SQLite store for single-box deployments and a Postgres
// store for shared deployments. All three persist the merchant-facing audit
// trail: conversation transcripts, discount offers and consent events. The
// SQL-backed stores additionally implement the outbox and dedup repos used
// by the messaging relay.
package store

import (
	"sync"

	"github.com/boovines/Nudge/internal/models"
)

// Store is the persistence contract the orchestrator and API depend on.
// Conversation turns are an append-only transcript keyed by session.
type Store interface {
	SaveConversationTurn(sessionID string, turn models.Turn) error
	GetConversationHistory(sessionID string) ([]models.Turn, error)
	DeleteConversationHistory(sessionID string) error

	SaveOfferRecord(rec models.OfferRecord) error
	GetOfferRecords(sessionID string) ([]models.OfferRecord, error)

	SaveConsentEvent(ev models.ConsentEvent) error
	GetConsentEvents(sessionID string) ([]models.ConsentEvent, error)

	Close() error
}

// PersistenceProvider is an optional extension implemented by the SQL-backed
// stores. The messaging relay type-asserts against it to get durable sends
// and inbound dedup; callers on the in-memory store fall back to direct
// delivery.
type PersistenceProvider interface {
	OutboxRepo() OutboxRepo
	DedupRepo() DedupRepo
}

// InMemoryStore keeps the audit trail in process memory. Used by tests and
// by `-chat` terminal sessions where durability is not wanted.
type InMemoryStore struct {
	mu       sync.RWMutex
	turns    map[string][]models.Turn
	offers   map[string][]models.OfferRecord
	consents map[string][]models.ConsentEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:    make(map[string][]models.Turn),
		offers:   make(map[string][]models.OfferRecord),
		consents: make(map[string][]models.ConsentEvent),
	}
}

func (s *InMemoryStore) SaveConversationTurn(sessionID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

func (s *InMemoryStore) GetConversationHistory(sessionID string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]models.Turn, len(s.turns[sessionID]))
	copy(history, s.turns[sessionID])
	return history, nil
}

func (s *InMemoryStore) DeleteConversationHistory(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
	return nil
}

func (s *InMemoryStore) SaveOfferRecord(rec models.OfferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.offers[rec.SessionID]) + 1)
	s.offers[rec.SessionID] = append(s.offers[rec.SessionID], rec)
	return nil
}

func (s *InMemoryStore) GetOfferRecords(sessionID string) ([]models.OfferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]models.OfferRecord, len(s.offers[sessionID]))
	copy(records, s.offers[sessionID])
	return records, nil
}

func (s *InMemoryStore) SaveConsentEvent(ev models.ConsentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = int64(len(s.consents[ev.SessionID]) + 1)
	s.consents[ev.SessionID] = append(s.consents[ev.SessionID], ev)
	return nil
}

func (s *InMemoryStore) GetConsentEvents(sessionID string) ([]models.ConsentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]models.ConsentEvent, len(s.consents[sessionID]))
	copy(events, s.consents[sessionID])
	return events, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
