// Package messaging connects chat channels to the conversation agent.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/boovines/Nudge/internal/bouncer"
	"github.com/boovines/Nudge/internal/models"
	"github.com/boovines/Nudge/internal/store"
)

// errorReply is sent when a conversation turn fails outright.
const errorReply = "Something went wrong on my end. Try that again."

// outboxKindReply marks durable reply records in the outbox.
const outboxKindReply = "reply"

// ChatAgent is the conversation surface the relay drives.
type ChatAgent interface {
	Chat(ctx context.Context, sessionID, message string) (bouncer.Reply, error)
}

// replyPayload is the outbox payload for a queued channel reply.
type replyPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Relay connects one messaging channel to the conversation agent. Incoming
// messages become chat turns keyed by the sender's number; replies go back
// out over the same channel, durably when an outbox is available.
type Relay struct {
	agent      ChatAgent
	msgService Service
	prefix     string
	dedup      store.DedupRepo
	outbox     store.OutboxRepo
	sender     *store.OutboxSender
}

// NewRelay creates a relay for one channel. The prefix namespaces session IDs
// by channel ("wa", "sms") so the same number on two channels stays two
// separate sessions. persistence may be nil; replies are then sent directly
// and webhook redeliveries are not deduplicated.
func NewRelay(agent ChatAgent, msgService Service, prefix string, persistence store.PersistenceProvider) *Relay {
	r := &Relay{agent: agent, msgService: msgService, prefix: prefix}
	if persistence != nil {
		r.dedup = persistence.DedupRepo()
		r.outbox = persistence.OutboxRepo()
		r.sender = store.NewOutboxSender(r.outbox, r.deliver, 0)
	}
	return r
}

// SessionID derives the channel-scoped session ID for a sender.
func (r *Relay) SessionID(from string) string {
	return r.prefix + ":" + from
}

// Run starts the channel service and consumes incoming messages until the
// context is cancelled or the responses channel closes.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	if r.sender != nil {
		if err := r.sender.RecoverStaleMessages(); err != nil {
			slog.Warn("Relay outbox recovery failed", "error", err)
		}
		go r.sender.Run(ctx)
	}

	slog.Info("Relay started", "prefix", r.prefix)
	defer slog.Info("Relay stopped", "prefix", r.prefix)

	for {
		select {
		case incoming, ok := <-r.msgService.Responses():
			if !ok {
				slog.Debug("Relay responses channel closed", "prefix", r.prefix)
				return nil
			}
			r.ProcessMessage(ctx, incoming)

		case <-ctx.Done():
			if err := r.msgService.Stop(); err != nil {
				slog.Warn("Relay failed to stop messaging service", "error", err)
			}
			return nil
		}
	}
}

// ProcessMessage runs one inbound message through the agent and sends the
// reply. Duplicate webhook deliveries are dropped before they reach the
// agent so a retried delivery never replays a conversation turn.
func (r *Relay) ProcessMessage(ctx context.Context, incoming models.IncomingMessage) {
	sessionID := r.SessionID(incoming.From)

	if incoming.MessageID != "" && r.dedup != nil {
		inserted, err := r.dedup.RecordInbound(incoming.MessageID, sessionID)
		if err != nil {
			slog.Warn("Relay dedup check failed, processing anyway", "error", err, "message_id", incoming.MessageID)
		} else if !inserted {
			slog.Info("Relay dropping duplicate delivery", "message_id", incoming.MessageID, "session_id", sessionID)
			return
		}
	}

	slog.Debug("Relay processing message", "session_id", sessionID, "body_length", len(incoming.Body))

	reply, err := r.agent.Chat(ctx, sessionID, incoming.Body)
	if err != nil {
		if errors.Is(err, models.ErrEmptyMessage) {
			slog.Debug("Relay ignoring empty message", "session_id", sessionID)
			return
		}
		slog.Error("Relay chat turn failed", "error", err, "session_id", sessionID)
		r.send(ctx, sessionID, incoming.From, errorReply)
		return
	}

	r.send(ctx, sessionID, incoming.From, reply.Text)
	// The consent question goes out as its own message so the customer can
	// answer it directly.
	if reply.ConsentRequest != "" {
		r.send(ctx, sessionID, incoming.From, reply.ConsentRequest)
	}

	if incoming.MessageID != "" && r.dedup != nil {
		if err := r.dedup.MarkProcessed(incoming.MessageID); err != nil {
			slog.Warn("Relay failed to mark message processed", "error", err, "message_id", incoming.MessageID)
		}
	}
}

// send queues a reply on the outbox when available, otherwise sends directly.
func (r *Relay) send(ctx context.Context, sessionID, to, body string) {
	if body == "" {
		return
	}
	if r.outbox != nil {
		payload, err := json.Marshal(replyPayload{To: to, Body: body})
		if err != nil {
			slog.Error("Relay failed to marshal reply payload", "error", err, "session_id", sessionID)
		} else if _, err := r.outbox.EnqueueOutboxMessage(sessionID, outboxKindReply, string(payload), ""); err != nil {
			slog.Error("Relay failed to queue reply, sending directly", "error", err, "session_id", sessionID)
		} else {
			slog.Debug("Relay reply queued", "session_id", sessionID)
			return
		}
	}
	if err := r.msgService.SendMessage(ctx, to, body); err != nil {
		slog.Error("Relay failed to send reply", "error", err, "session_id", sessionID, "to", to)
	}
}

// deliver sends one queued outbox reply over the channel.
func (r *Relay) deliver(ctx context.Context, msg store.OutboxMessage) error {
	var payload replyPayload
	if err := json.Unmarshal([]byte(msg.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("bad reply payload: %w", err)
	}
	return r.msgService.SendMessage(ctx, payload.To, payload.Body)
}
