package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// --- Outbox repo tests ---

func TestSQLiteStore_OutboxRepo_EnqueueAndClaim(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, err := s.EnqueueOutboxMessage("wa:+15551234567", "reply", `{"to":"+15551234567","body":"Hello"}`, "")
	if err != nil {
		t.Fatalf("EnqueueOutboxMessage failed: %v", err)
	}
	if id == "" {
		t.Fatal("EnqueueOutboxMessage returned empty ID")
	}

	now := time.Now()
	msgs, err := s.ClaimDueOutboxMessages(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueOutboxMessages failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].SessionID != "wa:+15551234567" {
		t.Errorf("Expected session 'wa:+15551234567', got %q", msgs[0].SessionID)
	}
	if msgs[0].Status != OutboxStatusSending {
		t.Errorf("Expected status 'sending', got %q", msgs[0].Status)
	}
}

func TestSQLiteStore_OutboxRepo_DedupeKey(t *testing.T) {
	s := newTestSQLiteStore(t)

	id1, err := s.EnqueueOutboxMessage("s1", "reply", `{}`, "dedupe-1")
	if err != nil {
		t.Fatalf("EnqueueOutboxMessage 1 failed: %v", err)
	}

	id2, err := s.EnqueueOutboxMessage("s1", "reply", `{}`, "dedupe-1")
	if err != nil {
		t.Fatalf("EnqueueOutboxMessage 2 failed: %v", err)
	}
	if id2 != id1 {
		t.Errorf("Expected same ID for duplicate dedupe key, got %q and %q", id1, id2)
	}
}

func TestSQLiteStore_OutboxRepo_MarkSent(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, _ := s.EnqueueOutboxMessage("s1", "reply", `{}`, "")
	msgs, _ := s.ClaimDueOutboxMessages(time.Now(), 10)
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}

	if err := s.MarkOutboxMessageSent(id); err != nil {
		t.Fatalf("MarkOutboxMessageSent failed: %v", err)
	}

	// Should not be claimable again
	msgs2, _ := s.ClaimDueOutboxMessages(time.Now(), 10)
	if len(msgs2) != 0 {
		t.Errorf("Expected 0 messages after sent, got %d", len(msgs2))
	}
}

func TestSQLiteStore_OutboxRepo_FailAndRetry(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, _ := s.EnqueueOutboxMessage("s1", "reply", `{}`, "")
	s.ClaimDueOutboxMessages(time.Now(), 10)

	nextAttempt := time.Now().Add(-time.Second) // Already due for retry
	if err := s.FailOutboxMessage(id, "send error", nextAttempt); err != nil {
		t.Fatalf("FailOutboxMessage failed: %v", err)
	}

	// Should be claimable again
	msgs, _ := s.ClaimDueOutboxMessages(time.Now(), 10)
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 retryable message, got %d", len(msgs))
	}
	if msgs[0].Attempts != 1 {
		t.Errorf("Expected 1 attempt recorded, got %d", msgs[0].Attempts)
	}
	if msgs[0].LastError != "send error" {
		t.Errorf("Expected last error preserved, got %q", msgs[0].LastError)
	}
}

func TestSQLiteStore_OutboxRepo_RequeueStale(t *testing.T) {
	s := newTestSQLiteStore(t)

	s.EnqueueOutboxMessage("s1", "reply", `{}`, "")
	s.ClaimDueOutboxMessages(time.Now(), 10)

	staleBefore := time.Now().Add(time.Minute)
	n, err := s.RequeueStaleSendingMessages(staleBefore)
	if err != nil {
		t.Fatalf("RequeueStaleSendingMessages failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 requeued, got %d", n)
	}
}

// --- Dedup repo tests ---

func TestSQLiteStore_DedupRepo_Basic(t *testing.T) {
	s := newTestSQLiteStore(t)

	// Should not be a duplicate initially
	dup, err := s.IsDuplicate("msg-1")
	if err != nil {
		t.Fatalf("IsDuplicate failed: %v", err)
	}
	if dup {
		t.Error("Expected false for new message")
	}

	// Record it
	isNew, err := s.RecordInbound("msg-1", "sms:+15550001111")
	if err != nil {
		t.Fatalf("RecordInbound failed: %v", err)
	}
	if !isNew {
		t.Error("Expected isNew=true for first record")
	}

	// Should now be a duplicate
	dup, err = s.IsDuplicate("msg-1")
	if err != nil {
		t.Fatalf("IsDuplicate after record failed: %v", err)
	}
	if !dup {
		t.Error("Expected true for duplicate message")
	}

	// Record same message again
	isNew2, err := s.RecordInbound("msg-1", "sms:+15550001111")
	if err != nil {
		t.Fatalf("RecordInbound duplicate failed: %v", err)
	}
	if isNew2 {
		t.Error("Expected isNew=false for duplicate record")
	}
}

func TestSQLiteStore_DedupRepo_MarkProcessed(t *testing.T) {
	s := newTestSQLiteStore(t)

	s.RecordInbound("msg-2", "sms:+15550002222")
	if err := s.MarkProcessed("msg-2"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
}

// --- OutboxSender tests ---

func TestOutboxSender_Basic(t *testing.T) {
	s := newTestSQLiteStore(t)

	var sent int32
	sendFunc := func(ctx context.Context, msg OutboxMessage) error {
		atomic.AddInt32(&sent, 1)
		return nil
	}

	sender := NewOutboxSender(s, sendFunc, 50*time.Millisecond)

	// Enqueue a message
	_, err := s.EnqueueOutboxMessage("s1", "reply", `{"to":"+15551234567","body":"Hello"}`, "")
	if err != nil {
		t.Fatalf("EnqueueOutboxMessage failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go sender.Run(ctx)
	<-ctx.Done()

	if atomic.LoadInt32(&sent) != 1 {
		t.Errorf("Expected 1 send, got %d", atomic.LoadInt32(&sent))
	}
}
