// Package store provides storage backends for Nudge.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/boovines/Nudge/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time checks for the interfaces PostgresStore serves.
var (
	_ Store               = (*PostgresStore)(nil)
	_ PersistenceProvider = (*PostgresStore)(nil)
)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// OutboxRepo exposes the store as a durable outbox for the messaging relay.
func (s *PostgresStore) OutboxRepo() OutboxRepo { return s }

// DedupRepo exposes the store as an inbound dedup index for the relay.
func (s *PostgresStore) DedupRepo() DedupRepo { return s }

func (s *PostgresStore) SaveConversationTurn(sessionID string, turn models.Turn) error {
	_, err := s.db.Exec(
		`INSERT INTO conversation_turns (session_id, role, content, timestamp) VALUES ($1, $2, $3, $4)`,
		sessionID, string(turn.Role), turn.Content, turn.Timestamp,
	)
	if err != nil {
		slog.Error("PostgresStore SaveConversationTurn failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert conversation turn for %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore SaveConversationTurn succeeded", "sessionID", sessionID, "role", turn.Role)
	return nil
}

func (s *PostgresStore) GetConversationHistory(sessionID string) ([]models.Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, content, timestamp FROM conversation_turns WHERE session_id = $1 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		slog.Error("PostgresStore GetConversationHistory query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.Timestamp); err != nil {
			slog.Error("PostgresStore GetConversationHistory scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan conversation turn row: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetConversationHistory rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate conversation turn rows: %w", err)
	}
	slog.Debug("PostgresStore GetConversationHistory succeeded", "sessionID", sessionID, "count", len(turns))
	return turns, nil
}

func (s *PostgresStore) DeleteConversationHistory(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_turns WHERE session_id = $1`, sessionID)
	if err != nil {
		slog.Error("PostgresStore DeleteConversationHistory failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete conversation turns for %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore DeleteConversationHistory succeeded", "sessionID", sessionID)
	return nil
}

func (s *PostgresStore) SaveOfferRecord(rec models.OfferRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO offer_records (session_id, counter, discount_pct, discount_code, simulated, timestamp) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.SessionID, rec.Counter, rec.DiscountPct, nilIfEmpty(rec.DiscountCode), rec.Simulated, rec.Timestamp,
	)
	if err != nil {
		slog.Error("PostgresStore SaveOfferRecord failed", "error", err, "sessionID", rec.SessionID)
		return fmt.Errorf("failed to insert offer record for %s: %w", rec.SessionID, err)
	}
	slog.Debug("PostgresStore SaveOfferRecord succeeded", "sessionID", rec.SessionID, "discountPct", rec.DiscountPct)
	return nil
}

func (s *PostgresStore) GetOfferRecords(sessionID string) ([]models.OfferRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, counter, discount_pct, discount_code, simulated, timestamp
		 FROM offer_records WHERE session_id = $1 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		slog.Error("PostgresStore GetOfferRecords query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query offer records: %w", err)
	}
	defer rows.Close()

	var records []models.OfferRecord
	for rows.Next() {
		var rec models.OfferRecord
		var code sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Counter, &rec.DiscountPct, &code, &rec.Simulated, &rec.Timestamp); err != nil {
			slog.Error("PostgresStore GetOfferRecords scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan offer record row: %w", err)
		}
		rec.DiscountCode = code.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetOfferRecords rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate offer record rows: %w", err)
	}
	slog.Debug("PostgresStore GetOfferRecords succeeded", "sessionID", sessionID, "count", len(records))
	return records, nil
}

func (s *PostgresStore) SaveConsentEvent(ev models.ConsentEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO consent_events (session_id, kind, agent_type, query, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		ev.SessionID, string(ev.Kind), string(ev.AgentType), nilIfEmpty(ev.Query), ev.Timestamp,
	)
	if err != nil {
		slog.Error("PostgresStore SaveConsentEvent failed", "error", err, "sessionID", ev.SessionID)
		return fmt.Errorf("failed to insert consent event for %s: %w", ev.SessionID, err)
	}
	slog.Debug("PostgresStore SaveConsentEvent succeeded", "sessionID", ev.SessionID, "kind", ev.Kind)
	return nil
}

func (s *PostgresStore) GetConsentEvents(sessionID string) ([]models.ConsentEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, kind, agent_type, query, timestamp
		 FROM consent_events WHERE session_id = $1 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		slog.Error("PostgresStore GetConsentEvents query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query consent events: %w", err)
	}
	defer rows.Close()

	var events []models.ConsentEvent
	for rows.Next() {
		var ev models.ConsentEvent
		var kind, agentType string
		var query sql.NullString
		if err := rows.Scan(&ev.ID, &ev.SessionID, &kind, &agentType, &query, &ev.Timestamp); err != nil {
			slog.Error("PostgresStore GetConsentEvents scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan consent event row: %w", err)
		}
		ev.Kind = models.ConsentEventKind(kind)
		ev.AgentType = models.AgentType(agentType)
		ev.Query = query.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetConsentEvents rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate consent event rows: %w", err)
	}
	slog.Debug("PostgresStore GetConsentEvents succeeded", "sessionID", sessionID, "count", len(events))
	return events, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
