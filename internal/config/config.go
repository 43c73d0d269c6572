// Package config loads merchant policy configuration for Nudge.
//
// A merchant config file sets the store identity, the negotiation pricing
// knobs, the valuable-trait catalog, and which external tools the agent may
// ask consent to use. Missing files and missing knobs fall back to defaults
// so the agent can run unconfigured in simulated mode.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Default pricing policy applied when the merchant config omits a knob.
const (
	DefaultMaxDiscountPct   = 20.0
	DefaultFloorMarginPct   = 18.0
	DefaultFirstOfferPct    = 8.0
	DefaultCounterStepPct   = 3.0
	DefaultMaxCounters      = 3
	DefaultMaxTraitBonusPct = 10.0
)

// DefaultStoreName is used when the merchant config does not name the store.
const DefaultStoreName = "our store"

// DefaultPromptFile is the persona template path used when the merchant
// config does not name one.
const DefaultPromptFile = "config/prompts/bouncer_prompt.txt"

// Error variables for configuration failures
var (
	ErrInvalidPolicy = errors.New("invalid pricing policy")
)

// Trait describes one valuable-customer trait the scorer looks for.
// Catalog order is significant: detection confidence ties keep it.
type Trait struct {
	Name             string   `json:"name"`
	Keywords         []string `json:"keywords"`
	DiscountBonusPct float64  `json:"discount_bonus_pct"`
}

// Merchant is the merchant-facing configuration for the agent.
type Merchant struct {
	StoreName        string   `json:"store_name"`
	MaxDiscountPct   float64  `json:"max_discount_pct"`
	FloorMarginPct   float64  `json:"floor_margin_pct"`
	FirstOfferPct    float64  `json:"first_offer_pct"`
	CounterStepPct   float64  `json:"counter_step_pct"`
	MaxCounters      int      `json:"max_counters"`
	MaxTraitBonusPct float64  `json:"max_trait_bonus_pct"`
	ValuableTraits   []Trait  `json:"valuable_traits"`
	EnabledTools     []string `json:"enabled_tools"`
	PromptFile       string   `json:"prompt_file,omitempty"`
}

// Default returns the built-in merchant configuration used when no config
// file is present.
func Default() *Merchant {
	return &Merchant{
		StoreName:        DefaultStoreName,
		MaxDiscountPct:   DefaultMaxDiscountPct,
		FloorMarginPct:   DefaultFloorMarginPct,
		FirstOfferPct:    DefaultFirstOfferPct,
		CounterStepPct:   DefaultCounterStepPct,
		MaxCounters:      DefaultMaxCounters,
		MaxTraitBonusPct: DefaultMaxTraitBonusPct,
		ValuableTraits: []Trait{
			{Name: "beauty_influencer", Keywords: []string{"influencer", "followers", "instagram", "tiktok", "content creator", "youtube"}, DiscountBonusPct: 5},
			{Name: "salon_owner", Keywords: []string{"salon", "my shop", "my business", "stylist", "booth"}, DiscountBonusPct: 4},
			{Name: "distributor", Keywords: []string{"distributor", "wholesale", "bulk", "reseller", "retail"}, DiscountBonusPct: 6},
			{Name: "makeup_artist", Keywords: []string{"makeup artist", "mua", "clients", "bridal", "photo shoots"}, DiscountBonusPct: 3},
		},
		EnabledTools: []string{"brave_search", "linkedin_lookup"},
		PromptFile:   DefaultPromptFile,
	}
}

// Load reads a merchant config file and merges it over the defaults. A
// missing file is not an error: the defaults are returned with a warning so
// a fresh checkout runs out of the box.
func Load(path string) (*Merchant, error) {
	merchant := Default()
	if path == "" {
		slog.Debug("config.Load: no merchant config path provided, using defaults")
		return merchant, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("config.Load: merchant config file not found, using defaults", "path", path)
			return merchant, nil
		}
		return nil, fmt.Errorf("failed to read merchant config %s: %w", path, err)
	}

	// Unmarshal over the defaults so omitted fields keep their values.
	// A present-but-empty traits array intentionally clears the catalog.
	if err := json.Unmarshal(data, merchant); err != nil {
		return nil, fmt.Errorf("failed to parse merchant config %s: %w", path, err)
	}

	if err := merchant.validate(); err != nil {
		return nil, err
	}

	slog.Info("config.Load: merchant config loaded", "path", path,
		"store_name", merchant.StoreName,
		"max_discount_pct", merchant.MaxDiscountPct,
		"floor_margin_pct", merchant.FloorMarginPct,
		"traits", len(merchant.ValuableTraits))
	return merchant, nil
}

func (m *Merchant) validate() error {
	if m.MaxDiscountPct <= 0 || m.MaxDiscountPct > 100 {
		return fmt.Errorf("%w: max_discount_pct %.1f must be in (0, 100]", ErrInvalidPolicy, m.MaxDiscountPct)
	}
	if m.FloorMarginPct < 0 || m.FloorMarginPct > 100 {
		return fmt.Errorf("%w: floor_margin_pct %.1f must be in [0, 100]", ErrInvalidPolicy, m.FloorMarginPct)
	}
	if m.FirstOfferPct <= 0 || m.FirstOfferPct > m.MaxDiscountPct {
		return fmt.Errorf("%w: first_offer_pct %.1f must be in (0, max_discount_pct]", ErrInvalidPolicy, m.FirstOfferPct)
	}
	if m.CounterStepPct <= 0 {
		return fmt.Errorf("%w: counter_step_pct %.1f must be positive", ErrInvalidPolicy, m.CounterStepPct)
	}
	if m.MaxCounters <= 0 {
		return fmt.Errorf("%w: max_counters %d must be positive", ErrInvalidPolicy, m.MaxCounters)
	}
	return nil
}

// ToolEnabled reports whether the merchant has enabled the named tool.
func (m *Merchant) ToolEnabled(name string) bool {
	for _, tool := range m.EnabledTools {
		if tool == name {
			return true
		}
	}
	return false
}

// fallbackPersona keeps the agent usable when no persona template exists.
const fallbackPersona = "You are the bouncer for <STORE_NAME>: a sharp, friendly gatekeeper who guards " +
	"prices the way a bouncer guards a door. Customers who show real value (influencers, " +
	"salon owners, distributors, makeup artists) can earn a discount; everyone else gets " +
	"charm but no deals. Never offer more than <max_discount_pct>% off, never let margin " +
	"fall below <floor_margin_pct>%, start low at <first_offer_pct>% and move in " +
	"<counter_step_pct>% steps only when pushed. Keep replies short, witty and in character."

// PersonaPrompt loads the persona template and substitutes the store and
// pricing placeholders. A missing template falls back to the built-in
// persona so the agent never runs promptless.
func (m *Merchant) PersonaPrompt() string {
	template := fallbackPersona
	path := m.PromptFile
	if path == "" {
		path = DefaultPromptFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("config.PersonaPrompt: failed to load persona template, using built-in persona", "path", path, "error", err)
	} else {
		template = string(data)
	}

	replacer := strings.NewReplacer(
		"<STORE_NAME>", m.StoreName,
		"<max_discount_pct>", formatPct(m.MaxDiscountPct),
		"<floor_margin_pct>", formatPct(m.FloorMarginPct),
		"<first_offer_pct>", formatPct(m.FirstOfferPct),
		"<counter_step_pct>", formatPct(m.CounterStepPct),
	)
	return replacer.Replace(template)
}

// formatPct renders a percentage without a trailing ".0" for whole numbers.
func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
