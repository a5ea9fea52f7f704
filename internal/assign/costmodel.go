// Package assign implements the evaluator assignment core: cost derivation,
// customer name resolution, slot expansion, cost matrix construction, and
// the capacity-constrained minimum-cost assignment itself. Everything here
// is a pure computation over one immutable input snapshot.
package assign

import (
	"strings"

	"evalassign/internal/config"
	"evalassign/internal/model"
)

// Status is the employment status of an evaluator.
type Status int

const (
	FullTime Status = iota
	Contract
)

func (s Status) String() string {
	if s == FullTime {
		return "full_time"
	}
	return "contract"
}

// Roster answers employment status by evaluator last name.
type Roster map[string]struct{}

// NewRoster builds a full-time roster from raw names, trimming whitespace.
func NewRoster(fullTimeNames []string) Roster {
	r := Roster{}
	for _, n := range fullTimeNames {
		n = strings.TrimSpace(n)
		if n != "" {
			r[n] = struct{}{}
		}
	}
	return r
}

// StatusOf returns FullTime only on an exact trimmed-name roster hit.
func (r Roster) StatusOf(evaluator string) Status {
	if _, ok := r[strings.TrimSpace(evaluator)]; ok {
		return FullTime
	}
	return Contract
}

// CostBreakdown is the structured result of one cost derivation.
type CostBreakdown struct {
	Base         float64
	PerDiem      float64
	MileageBonus float64
	Total        float64
}

// DeriveCost computes the tiered cost of sending one evaluator to one
// customer. miles and baseCost may be nil (missing or non-numeric input);
// nil degrades to a zero contribution, never an error. When baseCost is
// nil but miles is known, base is derived as miles times the per-mile rate.
// Per-diem and mileage bonus apply to contractors only, with strict
// greater-than threshold semantics.
func DeriveCost(miles, baseCost *float64, status Status, cfg config.Config) CostBreakdown {
	var b CostBreakdown
	switch {
	case baseCost != nil:
		b.Base = *baseCost
	case miles != nil:
		b.Base = *miles * cfg.PerMileRate
	}
	if status == Contract && miles != nil {
		if *miles > cfg.PerDiemMinMiles {
			b.PerDiem = cfg.PerDiemAmount
		}
		switch {
		case *miles > cfg.BonusHighMiles:
			b.MileageBonus = cfg.BonusHighAmount
		case *miles > cfg.BonusLowMiles:
			b.MileageBonus = cfg.BonusLowAmount
		}
	}
	b.Total = b.Base + b.PerDiem + b.MileageBonus
	return b
}

// AnnotatedRecord is a mileage record with its derived cost attached.
type AnnotatedRecord struct {
	model.MileageRecord
	Status Status
	Cost   CostBreakdown
}

// Annotate derives status and cost for every mileage record. Input order is
// preserved; the matrix builder relies on it for duplicate tie-breaking.
func Annotate(records []model.MileageRecord, roster Roster, cfg config.Config) []AnnotatedRecord {
	out := make([]AnnotatedRecord, 0, len(records))
	for _, rec := range records {
		st := roster.StatusOf(rec.Evaluator)
		out = append(out, AnnotatedRecord{
			MileageRecord: rec,
			Status:        st,
			Cost:          DeriveCost(rec.RoundTripMiles, rec.BaseCost, st, cfg),
		})
	}
	return out
}
