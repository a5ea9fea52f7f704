package assign

import (
	"sort"

	"evalassign/internal/config"
	"evalassign/internal/model"
)

// Matrix is the sparse (evaluator, slot) -> cost mapping fed to the solver.
// Costs already include the last-resort penalty; the underlying records are
// kept so the assembler can report unpenalized cost attributes.
type Matrix struct {
	Slots      []model.JobSlot
	Evaluators []string // distinct, sorted for deterministic iteration

	costs      map[string][]float64 // evaluator -> cost per slot index, NaN-free via ok slice
	present    map[string][]bool
	records    map[pairKey]AnnotatedRecord
	lastResort map[string]bool
}

type pairKey struct{ evaluator, customer string }

// BuildMatrix constructs the cost matrix for the given slots.
//
// Policies applied, in order:
//   - availability: when available is non-empty, evaluators outside it are
//     dropped before anything else;
//   - duplicate rows: the first-listed record per (evaluator, customer)
//     wins, matching the historical first-match lookup;
//   - exclusions: block-listed (evaluator, customer) pairs never enter;
//   - last-resort penalty: added to every cost entry of listed evaluators.
//
// Slots with no eligible evaluator are returned as unfillable and excluded
// from the matrix rather than failing the run.
func BuildMatrix(records []AnnotatedRecord, slots []model.JobSlot, cfg config.Config, available []string) (*Matrix, []model.UnfillableSlot) {
	avail := map[string]bool{}
	for _, e := range available {
		avail[e] = true
	}
	blocked := map[pairKey]bool{}
	for _, ex := range cfg.Exclusions {
		blocked[pairKey{ex.Evaluator, ex.Customer}] = true
	}
	lastResort := map[string]bool{}
	for _, e := range cfg.LastResort {
		lastResort[e] = true
	}

	// First-listed record wins per (evaluator, customer).
	best := map[pairKey]AnnotatedRecord{}
	var evaluators []string
	evalSeen := map[string]bool{}
	for _, rec := range records {
		if len(avail) > 0 && !avail[rec.Evaluator] {
			continue
		}
		k := pairKey{rec.Evaluator, rec.Customer}
		if blocked[k] {
			continue
		}
		if _, dup := best[k]; dup {
			continue
		}
		best[k] = rec
		if !evalSeen[rec.Evaluator] {
			evalSeen[rec.Evaluator] = true
			evaluators = append(evaluators, rec.Evaluator)
		}
	}
	sort.Strings(evaluators)

	m := &Matrix{
		Evaluators: evaluators,
		costs:      map[string][]float64{},
		present:    map[string][]bool{},
		records:    best,
		lastResort: lastResort,
	}

	var unfillable []model.UnfillableSlot
	for _, slot := range slots {
		eligible := false
		for _, e := range evaluators {
			if _, ok := best[pairKey{e, slot.Customer}]; ok {
				eligible = true
				break
			}
		}
		if !eligible {
			unfillable = append(unfillable, model.UnfillableSlot{JobNumber: slot.JobNumber, Ordinal: slot.Ordinal, Customer: slot.Customer})
			continue
		}
		m.Slots = append(m.Slots, slot)
	}

	for _, e := range evaluators {
		costs := make([]float64, len(m.Slots))
		pres := make([]bool, len(m.Slots))
		for i, slot := range m.Slots {
			rec, ok := best[pairKey{e, slot.Customer}]
			if !ok {
				continue
			}
			c := rec.Cost.Total
			if lastResort[e] {
				c += cfg.LastResortPenalty
			}
			costs[i] = c
			pres[i] = true
		}
		m.costs[e] = costs
		m.present[e] = pres
	}
	return m, unfillable
}

// Cost returns the (penalized) cost of assigning evaluator e to slot i.
func (m *Matrix) Cost(e string, i int) (float64, bool) {
	pres, ok := m.present[e]
	if !ok || i < 0 || i >= len(pres) || !pres[i] {
		return 0, false
	}
	return m.costs[e][i], true
}

// Record returns the winning mileage record behind an (evaluator, customer)
// entry, without the last-resort penalty applied.
func (m *Matrix) Record(evaluator, customer string) (AnnotatedRecord, bool) {
	rec, ok := m.records[pairKey{evaluator, customer}]
	return rec, ok
}

// IsLastResort reports whether the evaluator carries the penalty tier.
func (m *Matrix) IsLastResort(evaluator string) bool { return m.lastResort[evaluator] }

// FeasibleEvaluators counts evaluators with at least one matrix entry.
func (m *Matrix) FeasibleEvaluators() int {
	n := 0
	for _, e := range m.Evaluators {
		for _, p := range m.present[e] {
			if p {
				n++
				break
			}
		}
	}
	return n
}
