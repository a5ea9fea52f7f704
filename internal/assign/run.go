package assign

import (
	"math"
	"sort"

	"evalassign/internal/config"
	"evalassign/internal/model"
)

// Snapshot is one immutable set of inputs for an assignment computation.
// Re-running with different inputs is a fresh snapshot; nothing is cached
// or shared across runs.
type Snapshot struct {
	Mileage       []model.MileageRecord
	FullTimeNames []string
	Jobs          []model.Job
}

// Run executes the full pipeline: annotate costs, resolve customers, expand
// slots, build the matrix, solve, and assemble the assignment table.
// available limits the evaluator pool when non-empty. Resolution and
// coverage failures land in Diagnostics; only the solver status reflects
// infeasibility.
func Run(snap Snapshot, cfg config.Config, available []string) model.RunResult {
	roster := NewRoster(snap.FullTimeNames)
	annotated := Annotate(snap.Mileage, roster, cfg)

	canonical := make([]string, 0, len(annotated))
	seen := map[string]bool{}
	for _, rec := range annotated {
		if !seen[rec.Customer] {
			seen[rec.Customer] = true
			canonical = append(canonical, rec.Customer)
		}
	}
	resolver := NewResolver(canonical, cfg.Overrides, cfg.MatchThreshold, cfg.MatchMetric)

	resolved := map[string]string{}
	rawByJob := map[string]string{}
	var unresolved []model.UnresolvedJob
	for _, j := range snap.Jobs {
		rawByJob[j.Number] = j.Customer
		if canon, _, ok := resolver.Resolve(j.Customer); ok {
			resolved[j.Number] = canon
		} else {
			unresolved = append(unresolved, model.UnresolvedJob{JobNumber: j.Number, Customer: j.Customer})
		}
	}

	slots := ExpandSlots(snap.Jobs, resolved)
	matrix, unfillable := BuildMatrix(annotated, slots, cfg, available)
	res := Solve(matrix)

	out := Assemble(matrix, res, rawByJob)
	out.SlotCount = len(slots)
	out.Diagnostics = model.Diagnostics{Unresolved: unresolved, Unfillable: unfillable}
	return out
}

// Assemble joins solver (or manual session) output back with job and cost
// attributes. Pure projection: no business logic beyond the tier label.
func Assemble(m *Matrix, res Result, rawByJob map[string]string) model.RunResult {
	out := model.RunResult{Status: res.Status, Rows: []model.AssignmentRow{}}
	for _, a := range res.Assignments {
		slot := m.Slots[a.SlotIndex]
		rec, ok := m.Record(a.Evaluator, slot.Customer)
		if !ok {
			continue
		}
		tier := "primary"
		if m.IsLastResort(a.Evaluator) {
			tier = "last_resort_manager"
		}
		row := model.AssignmentRow{
			JobNumber:      slot.JobNumber,
			Customer:       slot.Customer,
			RawCustomer:    rawByJob[slot.JobNumber],
			Evaluator:      a.Evaluator,
			RoundTripMiles: roundPtr(rec.RoundTripMiles),
			BaseCost:       round2(rec.Cost.Base),
			PerDiem:        rec.Cost.PerDiem,
			MileageBonus:   rec.Cost.MileageBonus,
			TotalCost:      round2(rec.Cost.Total),
			Status:         rec.Status.String(),
			Tier:           tier,
		}
		out.Rows = append(out.Rows, row)
		out.GrandTotal += rec.Cost.Total
	}
	sort.SliceStable(out.Rows, func(i, j int) bool {
		if out.Rows[i].JobNumber != out.Rows[j].JobNumber {
			return out.Rows[i].JobNumber < out.Rows[j].JobNumber
		}
		return out.Rows[i].TotalCost < out.Rows[j].TotalCost
	})
	out.GrandTotal = round2(out.GrandTotal)
	out.FilledCount = len(out.Rows)
	return out
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func roundPtr(f *float64) *float64 {
	if f == nil {
		return nil
	}
	r := round2(*f)
	return &r
}
