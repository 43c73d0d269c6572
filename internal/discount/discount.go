// Package discount issues negotiation-scoped discount codes.
//
// Codes are created in Shopify when the store is connected; otherwise (or
// when Shopify is unreachable) the service falls back to locally generated
// simulated codes so the negotiation can still close.
package discount

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/boovines/Nudge/internal/models"
	"github.com/boovines/Nudge/internal/pricing"
	"github.com/boovines/Nudge/internal/shopify"
	"github.com/boovines/Nudge/internal/traits"
	"github.com/boovines/Nudge/internal/util"
)

const (
	// DefaultExpiry keeps negotiated codes short-lived so an offer made in
	// chat cannot be hoarded.
	DefaultExpiry = 10 * time.Minute

	codeLength    = 8
	simulatedNote = "Shopify not configured - this is a simulated discount code"
)

// CommerceClient is the slice of the Shopify client the service uses.
type CommerceClient interface {
	CreateDiscountCode(ctx context.Context, input shopify.DiscountCodeInput) (*shopify.DiscountCode, error)
}

// Service creates discount codes tied to a session's negotiation state.
type Service struct {
	engine   *pricing.Engine
	scorer   *traits.Scorer
	commerce CommerceClient
}

// NewService wires the negotiation engine, trait scorer, and optional
// commerce backend. A nil commerce client makes every code simulated.
func NewService(engine *pricing.Engine, scorer *traits.Scorer, commerce CommerceClient) *Service {
	return &Service{engine: engine, scorer: scorer, commerce: commerce}
}

// Options tune a single issuance. Zero values mean an auto-generated code,
// a 10 minute expiry, single use, and no trait detection.
type Options struct {
	Code             string
	ExpiresIn        time.Duration
	UsageLimit       int
	ConversationText string
}

// CreateNegotiationDiscount runs trait detection, places the offer through
// the negotiation engine, and materializes a code for it. Failures are
// reported in the payload rather than raised: a rejected offer or a
// Shopify-refused code comes back with Success=false, while an unreachable
// Shopify degrades to a simulated code.
func (s *Service) CreateNegotiationDiscount(ctx context.Context, sessionID string, requestedPct *float64, opts Options) models.DiscountPayload {
	expiresIn := opts.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = DefaultExpiry
	}
	usageLimit := opts.UsageLimit
	if usageLimit <= 0 {
		usageLimit = 1
	}

	var bonusPct float64
	var detected []string
	if opts.ConversationText != "" {
		if detections := s.scorer.DetectTraits(opts.ConversationText); len(detections) > 0 {
			bonusPct = s.scorer.DiscountBonus(detections)
			detected = traits.Names(detections)
		}
	}

	offer, err := s.engine.MakeDiscountOffer(sessionID, requestedPct, bonusPct)
	if err != nil {
		slog.Info("discount.CreateNegotiationDiscount: offer rejected", "session_id", sessionID, "error", err)
		return models.DiscountPayload{
			Success:        false,
			Error:          err.Error(),
			DetectedTraits: detected,
		}
	}

	if s.commerce == nil {
		return s.simulated(sessionID, opts.Code, expiresIn, offer, detected)
	}

	startsAt := time.Now()
	created, err := s.commerce.CreateDiscountCode(ctx, shopify.DiscountCodeInput{
		Percentage: offer.DiscountPct,
		Code:       opts.Code,
		StartsAt:   startsAt,
		EndsAt:     startsAt.Add(expiresIn),
		UsageLimit: usageLimit,
	})
	if err != nil {
		if errors.Is(err, shopify.ErrRejected) {
			slog.Warn("discount.CreateNegotiationDiscount: Shopify rejected the code", "session_id", sessionID, "error", err)
			return models.DiscountPayload{
				Success:     false,
				Error:       err.Error(),
				DiscountPct: offer.DiscountPct,
			}
		}
		slog.Warn("discount.CreateNegotiationDiscount: Shopify unreachable, falling back to simulated code", "session_id", sessionID, "error", err)
		return s.simulated(sessionID, opts.Code, expiresIn, offer, detected)
	}

	slog.Info("discount.CreateNegotiationDiscount: Shopify code issued",
		"session_id", sessionID, "code", created.Code, "discount_pct", offer.DiscountPct, "counter", offer.Counter)
	return models.DiscountPayload{
		Success:           true,
		DiscountCode:      created.Code,
		DiscountPct:       offer.DiscountPct,
		BaseDiscountPct:   offer.BaseDiscountPct,
		ExpiresAt:         created.ExpiresAt,
		Counter:           offer.Counter,
		RemainingCounters: offer.RemainingCounters,
		DetectedTraits:    detected,
		TraitBonusApplied: offer.TraitBonusApplied,
		ShopifyID:         created.ID,
	}
}

func (s *Service) simulated(sessionID, code string, expiresIn time.Duration, offer models.OfferResult, detected []string) models.DiscountPayload {
	if code == "" {
		code = util.GenerateDiscountCode(codeLength)
	}
	slog.Info("discount.CreateNegotiationDiscount: issuing simulated code",
		"session_id", sessionID, "code", code, "discount_pct", offer.DiscountPct, "counter", offer.Counter)
	return models.DiscountPayload{
		Success:           true,
		DiscountCode:      code,
		DiscountPct:       offer.DiscountPct,
		BaseDiscountPct:   offer.BaseDiscountPct,
		ExpiresAt:         time.Now().Add(expiresIn),
		Counter:           offer.Counter,
		RemainingCounters: offer.RemainingCounters,
		Simulated:         true,
		Note:              simulatedNote,
		DetectedTraits:    detected,
		TraitBonusApplied: offer.TraitBonusApplied,
	}
}

// NegotiationInfo reports the session's negotiation summary.
func (s *Service) NegotiationInfo(sessionID string) (models.NegotiationSummary, error) {
	return s.engine.Summary(sessionID)
}

// Reset clears the session's negotiation state. Codes already issued keep
// their own expiry.
func (s *Service) Reset(sessionID string) {
	s.engine.Reset(sessionID)
}
