// Package store provides storage backends for Nudge.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/boovines/Nudge/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time checks for the interfaces SQLiteStore serves.
var (
	_ Store               = (*SQLiteStore)(nil)
	_ PersistenceProvider = (*SQLiteStore)(nil)
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// OutboxRepo exposes the store as a durable outbox for the messaging relay.
func (s *SQLiteStore) OutboxRepo() OutboxRepo { return s }

// DedupRepo exposes the store as an inbound dedup index for the relay.
func (s *SQLiteStore) DedupRepo() DedupRepo { return s }

func (s *SQLiteStore) SaveConversationTurn(sessionID string, turn models.Turn) error {
	_, err := s.db.Exec(
		`INSERT INTO conversation_turns (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		sessionID, string(turn.Role), turn.Content, turn.Timestamp,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationTurn failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert conversation turn for %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore SaveConversationTurn succeeded", "sessionID", sessionID, "role", turn.Role)
	return nil
}

func (s *SQLiteStore) GetConversationHistory(sessionID string) ([]models.Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, content, timestamp FROM conversation_turns WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		slog.Error("SQLiteStore GetConversationHistory query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.Timestamp); err != nil {
			slog.Error("SQLiteStore GetConversationHistory scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan conversation turn row: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetConversationHistory rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate conversation turn rows: %w", err)
	}
	slog.Debug("SQLiteStore GetConversationHistory succeeded", "sessionID", sessionID, "count", len(turns))
	return turns, nil
}

func (s *SQLiteStore) DeleteConversationHistory(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_turns WHERE session_id = ?`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore DeleteConversationHistory failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete conversation turns for %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore DeleteConversationHistory succeeded", "sessionID", sessionID)
	return nil
}

func (s *SQLiteStore) SaveOfferRecord(rec models.OfferRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO offer_records (session_id, counter, discount_pct, discount_code, simulated, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Counter, rec.DiscountPct, nilIfEmpty(rec.DiscountCode), rec.Simulated, rec.Timestamp,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveOfferRecord failed", "error", err, "sessionID", rec.SessionID)
		return fmt.Errorf("failed to insert offer record for %s: %w", rec.SessionID, err)
	}
	slog.Debug("SQLiteStore SaveOfferRecord succeeded", "sessionID", rec.SessionID, "discountPct", rec.DiscountPct)
	return nil
}

func (s *SQLiteStore) GetOfferRecords(sessionID string) ([]models.OfferRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, counter, discount_pct, discount_code, simulated, timestamp
		 FROM offer_records WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		slog.Error("SQLiteStore GetOfferRecords query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query offer records: %w", err)
	}
	defer rows.Close()

	var records []models.OfferRecord
	for rows.Next() {
		var rec models.OfferRecord
		var code sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Counter, &rec.DiscountPct, &code, &rec.Simulated, &rec.Timestamp); err != nil {
			slog.Error("SQLiteStore GetOfferRecords scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan offer record row: %w", err)
		}
		rec.DiscountCode = code.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetOfferRecords rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate offer record rows: %w", err)
	}
	slog.Debug("SQLiteStore GetOfferRecords succeeded", "sessionID", sessionID, "count", len(records))
	return records, nil
}

func (s *SQLiteStore) SaveConsentEvent(ev models.ConsentEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO consent_events (session_id, kind, agent_type, query, timestamp) VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID, string(ev.Kind), string(ev.AgentType), nilIfEmpty(ev.Query), ev.Timestamp,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveConsentEvent failed", "error", err, "sessionID", ev.SessionID)
		return fmt.Errorf("failed to insert consent event for %s: %w", ev.SessionID, err)
	}
	slog.Debug("SQLiteStore SaveConsentEvent succeeded", "sessionID", ev.SessionID, "kind", ev.Kind)
	return nil
}

func (s *SQLiteStore) GetConsentEvents(sessionID string) ([]models.ConsentEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, kind, agent_type, query, timestamp
		 FROM consent_events WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		slog.Error("SQLiteStore GetConsentEvents query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query consent events: %w", err)
	}
	defer rows.Close()

	var events []models.ConsentEvent
	for rows.Next() {
		var ev models.ConsentEvent
		var kind, agentType string
		var query sql.NullString
		if err := rows.Scan(&ev.ID, &ev.SessionID, &kind, &agentType, &query, &ev.Timestamp); err != nil {
			slog.Error("SQLiteStore GetConsentEvents scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan consent event row: %w", err)
		}
		ev.Kind = models.ConsentEventKind(kind)
		ev.AgentType = models.AgentType(agentType)
		ev.Query = query.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetConsentEvents rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate consent event rows: %w", err)
	}
	slog.Debug("SQLiteStore GetConsentEvents succeeded", "sessionID", sessionID, "count", len(events))
	return events, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
