package store

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boovines/Nudge/internal/models"
)

func seedTranscript(t *testing.T, s Store, sessionID string) {
	t.Helper()
	turns := []models.Turn{
		{Role: models.RoleUser, Content: "any discounts?", Timestamp: time.Now()},
		{Role: models.RoleAssistant, Content: "8% and not a point more", Timestamp: time.Now()},
	}
	for _, turn := range turns {
		if err := s.SaveConversationTurn(sessionID, turn); err != nil {
			t.Fatalf("SaveConversationTurn failed: %v", err)
		}
	}
}

// TestOutboxSenderRestartRecovery simulates a crash-and-restart for outbox messages.
func TestOutboxSenderRestartRecovery(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "outbox_restart_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "test.db")

	// Phase 1: Enqueue message, claim it (marking as "sending"), then "crash"
	s1, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 1) failed: %v", err)
	}

	_, err = s1.EnqueueOutboxMessage("wa:+15551230000", "reply", `{"body":"Hello!"}`, "outbox-restart-dedup")
	if err != nil {
		t.Fatalf("EnqueueOutboxMessage failed: %v", err)
	}

	// Claim it (simulates being mid-send when crash happens)
	msgs, err := s1.ClaimDueOutboxMessages(time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueOutboxMessages failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Status != OutboxStatusSending {
		t.Errorf("Expected status 'sending', got %q", msgs[0].Status)
	}

	// "Crash" without marking sent
	s1.Close()

	// Phase 2: Open new store, recover, verify it gets sent
	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 2) failed: %v", err)
	}
	defer s2.Close()

	var sent int32
	sender2 := NewOutboxSender(s2, func(ctx context.Context, msg OutboxMessage) error {
		atomic.AddInt32(&sent, 1)
		return nil
	}, 50*time.Millisecond)

	// Recover stale sending messages
	// Use a custom stale threshold to immediately recover
	staleBefore := time.Now().Add(time.Minute) // Everything is stale
	n, err := s2.RequeueStaleSendingMessages(staleBefore)
	if err != nil {
		t.Fatalf("RequeueStaleSendingMessages failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 message requeued, got %d", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go sender2.Run(ctx)
	<-ctx.Done()

	if atomic.LoadInt32(&sent) != 1 {
		t.Errorf("Expected 1 send after recovery, got %d", atomic.LoadInt32(&sent))
	}
}

// TestPersistenceProviderInterface verifies that SQLiteStore implements PersistenceProvider.
func TestPersistenceProviderInterface(t *testing.T) {
	s := newTestSQLiteStore(t)

	// Use Store interface to test type assertion
	var st Store = s
	pp, ok := st.(PersistenceProvider)
	if !ok {
		t.Fatal("SQLiteStore does not implement PersistenceProvider")
	}

	if pp.OutboxRepo() == nil {
		t.Error("OutboxRepo() returned nil")
	}
	if pp.DedupRepo() == nil {
		t.Error("DedupRepo() returned nil")
	}
}

// TestDedupRepoRestartSafety verifies that dedup records survive a store restart.
func TestDedupRepoRestartSafety(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "dedup_restart_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "test.db")

	// Phase 1: Record an inbound message
	s1, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 1) failed: %v", err)
	}

	isNew, err := s1.RecordInbound("msg-restart-1", "sms:+15551112222")
	if err != nil {
		t.Fatalf("RecordInbound failed: %v", err)
	}
	if !isNew {
		t.Error("Expected isNew=true for first record")
	}

	s1.Close()

	// Phase 2: Reopen and verify it's a duplicate
	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 2) failed: %v", err)
	}
	defer s2.Close()

	isNew2, err := s2.RecordInbound("msg-restart-1", "sms:+15551112222")
	if err != nil {
		t.Fatalf("RecordInbound duplicate failed: %v", err)
	}
	if isNew2 {
		t.Error("Expected isNew=false for duplicate after restart")
	}

	dup, err := s2.IsDuplicate("msg-restart-1")
	if err != nil {
		t.Fatalf("IsDuplicate failed: %v", err)
	}
	if !dup {
		t.Error("Expected true for duplicate message after restart")
	}
}

// TestTranscriptRestartSafety verifies that conversation history survives a
// store restart, which is what session rehydration depends on.
func TestTranscriptRestartSafety(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "transcript_restart_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "test.db")

	s1, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 1) failed: %v", err)
	}
	seedTranscript(t, s1, "session-1")
	s1.Close()

	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 2) failed: %v", err)
	}
	defer s2.Close()

	history, err := s2.GetConversationHistory("session-1")
	if err != nil {
		t.Fatalf("GetConversationHistory after restart failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 turns after restart, got %d", len(history))
	}
	if history[0].Content != "any discounts?" || history[1].Content != "8% and not a point more" {
		t.Errorf("Transcript order not preserved: %+v", history)
	}
}
