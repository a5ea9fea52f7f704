// Package config holds the business configuration of the assignment core:
// matching thresholds, cost tiers, exclusions, and penalty rules.
package config

import (
	"fmt"
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v3"
)

// Exclusion hard-blocks one (evaluator, customer) combination from the
// cost matrix regardless of cost.
type Exclusion struct {
	Evaluator string `yaml:"evaluator" json:"evaluator"`
	Customer  string `yaml:"customer" json:"customer"`
}

// Config drives one assignment computation. Business-rule differences that
// historically forked the tooling (rate tables, penalty lists, exclusion
// rules) are configuration variants here, not code paths.
type Config struct {
	// Entity resolution
	MatchThreshold float64           `yaml:"matchThreshold" json:"matchThreshold"` // 0..1
	MatchMetric    string            `yaml:"matchMetric" json:"matchMetric"`       // levenshtein, jaro-winkler, sorensen-dice
	Overrides      map[string]string `yaml:"overrides,omitempty" json:"overrides,omitempty"` // normalized raw -> canonical

	// Cost model
	PerMileRate      float64 `yaml:"perMileRate" json:"perMileRate"` // base cost when the table has none
	PerDiemAmount    float64 `yaml:"perDiemAmount" json:"perDiemAmount"`
	PerDiemMinMiles  float64 `yaml:"perDiemMinMiles" json:"perDiemMinMiles"` // strict >
	BonusHighAmount  float64 `yaml:"bonusHighAmount" json:"bonusHighAmount"`
	BonusHighMiles   float64 `yaml:"bonusHighMiles" json:"bonusHighMiles"` // strict >
	BonusLowAmount   float64 `yaml:"bonusLowAmount" json:"bonusLowAmount"`
	BonusLowMiles    float64 `yaml:"bonusLowMiles" json:"bonusLowMiles"` // strict >

	// Matrix policies
	Exclusions      []Exclusion `yaml:"exclusions,omitempty" json:"exclusions,omitempty"`
	LastResort      []string    `yaml:"lastResort,omitempty" json:"lastResort,omitempty"`
	LastResortPenalty float64   `yaml:"lastResortPenalty" json:"lastResortPenalty"`

	// Manual mode
	ShortlistTopK int `yaml:"shortlistTopK" json:"shortlistTopK"`
}

// Default returns the rule set the business runs with today.
func Default() Config {
	return Config{
		MatchThreshold:    0.85,
		MatchMetric:       "levenshtein",
		PerMileRate:       0.725,
		PerDiemAmount:     225,
		PerDiemMinMiles:   175,
		BonusHighAmount:   500,
		BonusHighMiles:    800,
		BonusLowAmount:    250,
		BonusLowMiles:     400,
		LastResortPenalty: 10000,
		ShortlistTopK:     5,
	}
}

// Load returns defaults overlaid with an optional YAML file (ASSIGN_CONFIG
// env or explicit path) and env tweaks for the two most-tuned knobs.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("ASSIGN_CONFIG")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if v := os.Getenv("MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.MatchThreshold = f
		}
	}
	if v := os.Getenv("MATCH_METRIC"); v != "" {
		cfg.MatchMetric = v
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the core cannot run with.
func (c Config) Validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("matchThreshold must be in (0,1], got %v", c.MatchThreshold)
	}
	switch c.MatchMetric {
	case "levenshtein", "jaro-winkler", "sorensen-dice":
	default:
		return fmt.Errorf("unknown matchMetric: %s", c.MatchMetric)
	}
	if c.LastResortPenalty < 0 {
		return fmt.Errorf("lastResortPenalty must be >= 0")
	}
	if c.ShortlistTopK <= 0 {
		return fmt.Errorf("shortlistTopK must be > 0")
	}
	if c.BonusLowMiles >= c.BonusHighMiles {
		return fmt.Errorf("bonusLowMiles must be below bonusHighMiles")
	}
	return nil
}
