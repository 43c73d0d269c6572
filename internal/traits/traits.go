// Package traits scores conversation text against a merchant-defined
// catalog of valuable-customer traits and converts detections into a
// capped discount bonus.
package traits

import (
	"sort"
	"strings"

	"github.com/boovines/Nudge/internal/config"
	"github.com/boovines/Nudge/internal/models"
)

// Scorer detects valuable-customer traits by keyword matching over the
// merchant catalog. Catalog order is preserved on confidence ties so
// detection output is deterministic.
type Scorer struct {
	catalog     []config.Trait
	maxBonusPct float64
}

// NewScorer creates a Scorer for the given merchant configuration.
func NewScorer(merchant *config.Merchant) *Scorer {
	return &Scorer{
		catalog:     merchant.ValuableTraits,
		maxBonusPct: merchant.MaxTraitBonusPct,
	}
}

// DetectTraits scans text for catalog traits. Matching is case-insensitive
// substring containment and each keyword counts at most once. Confidence is
// min(matches/len(keywords)*2, 1.0), so matching half a trait's keywords
// already yields full confidence. Traits with no matches are omitted;
// results are sorted by confidence descending with ties in catalog order.
func (s *Scorer) DetectTraits(text string) []models.TraitDetection {
	lowered := strings.ToLower(text)

	var detections []models.TraitDetection
	for _, trait := range s.catalog {
		if len(trait.Keywords) == 0 {
			continue
		}
		matches := 0
		for _, keyword := range trait.Keywords {
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		confidence := float64(matches) / float64(len(trait.Keywords)) * 2
		if confidence > 1.0 {
			confidence = 1.0
		}
		detections = append(detections, models.TraitDetection{
			Trait:      trait.Name,
			Confidence: confidence,
			Matches:    matches,
			BonusPct:   trait.DiscountBonusPct,
		})
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
	return detections
}

// DiscountBonus converts detections into a bonus percentage: each trait's
// bonus weighted by its confidence, summed and capped at the merchant's
// maximum trait bonus.
func (s *Scorer) DiscountBonus(detections []models.TraitDetection) float64 {
	var bonus float64
	for _, d := range detections {
		bonus += d.BonusPct * d.Confidence
	}
	if bonus > s.maxBonusPct {
		bonus = s.maxBonusPct
	}
	return bonus
}

// Names extracts the trait names from detections in order.
func Names(detections []models.TraitDetection) []string {
	if len(detections) == 0 {
		return nil
	}
	names := make([]string, 0, len(detections))
	for _, d := range detections {
		names = append(names, d.Trait)
	}
	return names
}
