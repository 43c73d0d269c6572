// Package bouncer runs the storefront negotiation conversation.
//
// Each customer message passes through a fixed pipeline: a consent gate for
// pending fact-check requests, a negotiation-intent scan, trait detection
// over recent turns, discount issuance or a probe hint injected as system
// context, and finally a model compose over the session's turns. Live
// session state stays in process memory; the store keeps an append-only
// audit trail of transcripts, offers and consent events.
package bouncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/boovines/Nudge/internal/config"
	"github.com/boovines/Nudge/internal/discount"
	"github.com/boovines/Nudge/internal/factcheck"
	"github.com/boovines/Nudge/internal/genai"
	"github.com/boovines/Nudge/internal/models"
	"github.com/boovines/Nudge/internal/store"
	"github.com/boovines/Nudge/internal/traits"
)

const (
	// maxStoredTurns caps a session's in-memory history.
	maxStoredTurns = 50
	// maxModelTurns caps how many turns one model request carries.
	maxModelTurns = 30
	// contextTurns is the window trait and fact-check detection read from.
	contextTurns = 6
)

// User-visible strings. The storefront widget and the transcripts match on
// the exact wording.
const (
	declineReply           = "No problem, I won't look that up. How else can I help you?"
	consentPromptSearch    = "Can I verify that on Brave search? (yes/no)"
	consentPromptDirectory = "Can I look that up on LinkedIn? (yes/no)"
)

// probeContext is injected when a customer negotiates without having shown
// a valuable trait. No engine mutation happens on this path.
const probeContext = "[No Discount Yet]: Customer asked for discount but hasn't provided valuable traits. " +
	"Probe them: 'What makes you special? Are you a beauty influencer? Salon owner? Distributor? " +
	"Otherwise, prices are what they are.'"

// negotiationKeywords trigger the discount pipeline on substring match.
var negotiationKeywords = []string{
	"discount", "deal", "cheaper", "lower price", "reduce", "haggle",
	"negotiate", "offer", "promo", "coupon", "code", "save money",
	"too expensive", "price", "cost", "afford",
}

// consentAffirmatives is the exact vocabulary that grants a pending lookup.
// Any other answer declines it.
var consentAffirmatives = []string{"yes", "y", "yeah", "sure", "ok", "okay", "go ahead"}

// ErrUnknownSession is returned when asking about a session that has never
// chatted.
var ErrUnknownSession = errors.New("unknown session")

// session is the live conversation state for one customer. All fields are
// guarded by mu; turns for the same session never interleave.
type session struct {
	mu        sync.Mutex
	history   []models.Turn
	pending   *models.FactCheckDetection
	lastCode  string
	createdAt time.Time
}

// Reply is the outcome of one conversation turn. ConsentRequest, when set,
// is a follow-up question the caller shows after Text; DiscountCode is set
// only on the turn that issued it.
type Reply struct {
	Text           string              `json:"text"`
	ConsentRequest string              `json:"consent_request,omitempty"`
	DiscountCode   string              `json:"discount_code,omitempty"`
	State          models.SessionState `json:"state"`
}

// SessionSnapshot is the API-facing view of a live session.
type SessionSnapshot struct {
	SessionID    string                     `json:"session_id"`
	State        models.SessionState        `json:"state"`
	Turns        int                        `json:"turns"`
	DiscountCode string                     `json:"discount_code,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	Negotiation  *models.NegotiationSummary `json:"negotiation,omitempty"`
}

// Agent owns the session registry and runs the conversation pipeline.
type Agent struct {
	merchant  *config.Merchant
	persona   string
	client    genai.ClientInterface
	router    *factcheck.Router
	scorer    *traits.Scorer
	discounts *discount.Service
	store     store.Store

	mu       sync.Mutex
	sessions map[string]*session
}

// New wires the agent. A nil store disables the audit trail but not the
// conversation.
func New(merchant *config.Merchant, client genai.ClientInterface, router *factcheck.Router, scorer *traits.Scorer, discounts *discount.Service, st store.Store) *Agent {
	return &Agent{
		merchant:  merchant,
		persona:   merchant.PersonaPrompt(),
		client:    client,
		router:    router,
		scorer:    scorer,
		discounts: discounts,
		store:     st,
		sessions:  make(map[string]*session),
	}
}

// Chat processes one customer message and returns the agent's reply. Turns
// for the same session are serialized; distinct sessions run concurrently.
func (a *Agent) Chat(ctx context.Context, sessionID, message string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, models.ErrEmptyMessage
	}

	s := a.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return a.consentTurn(ctx, sessionID, s, message)
	}
	return a.pipelineTurn(ctx, sessionID, s, message)
}

// consentTurn consumes the message as the answer to the pending consent
// prompt, bypassing the normal pipeline. The answer itself never enters the
// conversation history; the consent event rows carry the audit.
func (a *Agent) consentTurn(ctx context.Context, sessionID string, s *session, message string) (Reply, error) {
	detection := *s.pending
	s.pending = nil

	if !isAffirmative(message) {
		slog.Info("bouncer.Chat: consent declined", "session_id", sessionID, "agent_type", detection.AgentType)
		a.recordConsent(sessionID, models.ConsentDeclined, detection)
		a.appendTurn(sessionID, s, models.RoleAssistant, declineReply)
		return Reply{Text: declineReply, State: models.SessionStateIdle}, nil
	}

	slog.Info("bouncer.Chat: consent granted, dispatching fact check",
		"session_id", sessionID, "agent_type", detection.AgentType)
	a.recordConsent(sessionID, models.ConsentGranted, detection)

	result := a.router.Dispatch(ctx, detection)
	summary := result.Summary
	if summary == "" {
		summary = "No results found"
	}
	a.appendTurn(sessionID, s, models.RoleSystem,
		fmt.Sprintf("[Fact-check result via %s]: %s", detection.AgentType, summary))

	text, err := a.compose(ctx, sessionID, s)
	if err != nil {
		return Reply{}, err
	}
	a.appendTurn(sessionID, s, models.RoleAssistant, text)
	return Reply{Text: text, State: models.SessionStateIdle}, nil
}

// pipelineTurn runs the normal message pipeline: intent scan, detection,
// trait scoring, context injection, model compose.
func (a *Agent) pipelineTurn(ctx context.Context, sessionID string, s *session, message string) (Reply, error) {
	wantsDeal := hasNegotiationIntent(message)
	a.appendTurn(sessionID, s, models.RoleUser, message)

	conversationText := s.contextText()
	detection := a.router.Detect(message)
	detected := a.scorer.DetectTraits(conversationText)

	var issuedCode string
	switch {
	case wantsDeal && len(detected) > 0:
		payload := a.discounts.CreateNegotiationDiscount(ctx, sessionID, nil, discount.Options{
			ConversationText: conversationText,
		})
		if payload.Success {
			a.appendTurn(sessionID, s, models.RoleSystem, discountContext(payload))
			s.lastCode = payload.DiscountCode
			issuedCode = payload.DiscountCode
			a.recordOffer(sessionID, payload)
		} else {
			// The persona holds the line; no context is injected.
			slog.Info("bouncer.Chat: offer rejected", "session_id", sessionID, "error", payload.Error)
		}
	case wantsDeal:
		a.appendTurn(sessionID, s, models.RoleSystem, probeContext)
	}

	text, err := a.compose(ctx, sessionID, s)
	if err != nil {
		return Reply{}, err
	}

	// Pending consent is only recorded once the reply is composed, so a
	// model failure leaves the session answerable.
	var consentRequest string
	if detection.Needed && a.router.ShouldAskConsent(detection) {
		d := detection
		s.pending = &d
		consentRequest = consentPrompt(detection.AgentType)
		a.recordConsent(sessionID, models.ConsentRequested, detection)
		slog.Info("bouncer.Chat: consent requested", "session_id", sessionID, "agent_type", detection.AgentType)
	}

	a.appendTurn(sessionID, s, models.RoleAssistant, text)

	return Reply{
		Text:           text,
		ConsentRequest: consentRequest,
		DiscountCode:   issuedCode,
		State:          s.state(),
	}, nil
}

// compose asks the model for the next line over the session's recent turns.
func (a *Agent) compose(ctx context.Context, sessionID string, s *session) (string, error) {
	turns := s.modelTurns()
	start := time.Now()
	text, err := a.client.GenerateWithTurns(ctx, turns)
	if err != nil {
		slog.Error("bouncer.compose: model call failed", "session_id", sessionID, "error", err)
		return "", fmt.Errorf("failed to compose reply: %w", err)
	}
	slog.Debug("bouncer.compose: model call succeeded",
		"session_id", sessionID, "turns", len(turns), "elapsed", time.Since(start))
	return text, nil
}

// session returns the live session for the id, creating it on first
// contact. A fresh session opens with the persona turn; when the store
// already holds a transcript for the id, the stored turns follow it so a
// restarted process picks the conversation back up.
func (a *Agent) session(sessionID string) *session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[sessionID]; ok {
		return s
	}

	s := &session{createdAt: time.Now()}
	s.history = append(s.history, models.Turn{Role: models.RoleSystem, Content: a.persona, Timestamp: time.Now()})
	if a.store != nil {
		stored, err := a.store.GetConversationHistory(sessionID)
		switch {
		case err != nil:
			slog.Warn("bouncer.session: failed to load stored transcript", "session_id", sessionID, "error", err)
		case len(stored) > 0:
			s.history = append(s.history, stored...)
			s.trim(sessionID)
			slog.Info("bouncer.session: session restored from store", "session_id", sessionID, "turns", len(stored))
		}
	}
	a.sessions[sessionID] = s
	return s
}

// appendTurn records a turn in memory and mirrors it to the store. Storage
// failures are logged and never fail the conversation turn.
func (a *Agent) appendTurn(sessionID string, s *session, role models.Role, content string) {
	turn := models.Turn{Role: role, Content: content, Timestamp: time.Now()}
	s.history = append(s.history, turn)
	s.trim(sessionID)

	if a.store == nil {
		return
	}
	if err := a.store.SaveConversationTurn(sessionID, turn); err != nil {
		slog.Warn("bouncer.appendTurn: failed to persist turn",
			"session_id", sessionID, "role", role, "error", err)
	}
}

func (a *Agent) recordConsent(sessionID string, kind models.ConsentEventKind, detection models.FactCheckDetection) {
	if a.store == nil {
		return
	}
	ev := models.ConsentEvent{
		SessionID: sessionID,
		Kind:      kind,
		AgentType: detection.AgentType,
		Query:     detection.Query,
		Timestamp: time.Now(),
	}
	if err := a.store.SaveConsentEvent(ev); err != nil {
		slog.Warn("bouncer.recordConsent: failed to persist consent event",
			"session_id", sessionID, "kind", kind, "error", err)
	}
}

func (a *Agent) recordOffer(sessionID string, p models.DiscountPayload) {
	if a.store == nil {
		return
	}
	rec := models.OfferRecord{
		SessionID:    sessionID,
		Counter:      p.Counter,
		DiscountPct:  p.DiscountPct,
		DiscountCode: p.DiscountCode,
		Simulated:    p.Simulated,
		Timestamp:    time.Now(),
	}
	if err := a.store.SaveOfferRecord(rec); err != nil {
		slog.Warn("bouncer.recordOffer: failed to persist offer record",
			"session_id", sessionID, "error", err)
	}
}

// SessionSnapshot returns the live view of a session. Sessions are created
// by Chat; asking about one that never chatted is an error.
func (a *Agent) SessionSnapshot(sessionID string) (SessionSnapshot, error) {
	a.mu.Lock()
	s, ok := a.sessions[sessionID]
	a.mu.Unlock()
	if !ok {
		return SessionSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	s.mu.Lock()
	snap := SessionSnapshot{
		SessionID:    sessionID,
		State:        s.state(),
		Turns:        len(s.history),
		DiscountCode: s.lastCode,
		CreatedAt:    s.createdAt,
	}
	s.mu.Unlock()

	if summary, err := a.discounts.NegotiationInfo(sessionID); err == nil {
		snap.Negotiation = &summary
	}
	return snap, nil
}

// NegotiationInfo reports the pricing position of a session.
func (a *Agent) NegotiationInfo(sessionID string) (models.NegotiationSummary, error) {
	return a.discounts.NegotiationInfo(sessionID)
}

// Reset drops a session's conversation and negotiation state and deletes
// its stored transcript, so the next contact starts clean.
func (a *Agent) Reset(sessionID string) {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()

	a.discounts.Reset(sessionID)

	if a.store != nil {
		if err := a.store.DeleteConversationHistory(sessionID); err != nil {
			slog.Warn("bouncer.Reset: failed to delete stored transcript", "session_id", sessionID, "error", err)
		}
	}
	slog.Info("bouncer.Reset: session cleared", "session_id", sessionID)
}

// state derives the protocol state; pending consent is the only thing that
// takes a session out of idle.
func (s *session) state() models.SessionState {
	if s.pending != nil {
		return models.SessionStateAwaitingConsent
	}
	return models.SessionStateIdle
}

// contextText joins the content of the user and assistant turns inside the
// detection window. System injections are excluded so detection sees only
// what was actually said.
func (s *session) contextText() string {
	recent := s.history
	if len(recent) > contextTurns {
		recent = recent[len(recent)-contextTurns:]
	}
	parts := make([]string, 0, len(recent))
	for _, t := range recent {
		if t.Role == models.RoleUser || t.Role == models.RoleAssistant {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, " ")
}

// modelTurns is the slice sent to the model: the persona turn plus the
// most recent turns, capped to keep the request bounded.
func (s *session) modelTurns() []models.Turn {
	if len(s.history) <= maxModelTurns {
		return s.history
	}
	turns := make([]models.Turn, 0, maxModelTurns)
	turns = append(turns, s.history[0])
	turns = append(turns, s.history[len(s.history)-(maxModelTurns-1):]...)
	return turns
}

// trim caps the in-memory history, always keeping the persona turn first.
func (s *session) trim(sessionID string) {
	if len(s.history) <= maxStoredTurns {
		return
	}
	kept := make([]models.Turn, 0, maxStoredTurns)
	kept = append(kept, s.history[0])
	kept = append(kept, s.history[len(s.history)-(maxStoredTurns-1):]...)
	s.history = kept
	slog.Debug("bouncer.trim: history trimmed", "session_id", sessionID, "max", maxStoredTurns)
}

// discountContext renders the system note that authorizes the model to
// reveal a code. The counter is shown against the session's full allowance.
func discountContext(p models.DiscountPayload) string {
	note := ""
	if len(p.DetectedTraits) > 0 {
		first := p.DetectedTraits[0]
		if p.TraitBonusApplied {
			note = fmt.Sprintf(" They claim to be %s. Fine, I'll give them %s%% instead of %s%%.",
				first, pct(p.DiscountPct), pct(p.BaseDiscountPct))
		} else {
			note = fmt.Sprintf(" They claim to be %s. I'm skeptical.", first)
		}
	}
	return fmt.Sprintf("[Discount Available]: Code '%s' - %s%% off. Expires in 10 min. Counter: %d/%d.%s",
		p.DiscountCode, pct(p.DiscountPct), p.Counter, p.Counter+p.RemainingCounters, note)
}

// hasNegotiationIntent reports whether the message reads like a price ask.
func hasNegotiationIntent(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range negotiationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isAffirmative(message string) bool {
	answer := strings.ToLower(strings.TrimSpace(message))
	for _, affirmative := range consentAffirmatives {
		if answer == affirmative {
			return true
		}
	}
	return false
}

// consentPrompt maps a detection's capability to its exact ask.
func consentPrompt(agent models.AgentType) string {
	switch agent {
	case models.AgentTypeSearch:
		return consentPromptSearch
	case models.AgentTypeDirectoryLookup:
		return consentPromptDirectory
	default:
		return ""
	}
}

// pct renders a percentage without a trailing ".0" for whole numbers.
func pct(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
