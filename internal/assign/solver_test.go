package assign

import (
	"testing"

	"evalassign/internal/config"
	"evalassign/internal/model"
)

func buildFor(t *testing.T, cfg config.Config, slots []model.JobSlot, recs ...model.MileageRecord) *Matrix {
	t.Helper()
	m, unfillable := BuildMatrix(Annotate(recs, Roster{}, cfg), slots, cfg, nil)
	if len(unfillable) > 0 {
		t.Fatalf("unexpected unfillable slots: %+v", unfillable)
	}
	return m
}

func byEvaluator(res Result) map[string]int {
	out := map[string]int{}
	for _, a := range res.Assignments {
		out[a.Evaluator] = a.SlotIndex
	}
	return out
}

func TestSolveEmpty(t *testing.T) {
	cfg := config.Default()
	m, _ := BuildMatrix(nil, nil, cfg, nil)
	if res := Solve(m); res.Status != StatusEmpty {
		t.Fatalf("status: %s", res.Status)
	}
}

func TestSolveOptimalPairing(t *testing.T) {
	cfg := config.Default()
	// greedy would send A to C1 (10) and leave B with C2 at 30: total 40.
	// true optimum is A->C2 (12), B->C1 (11): total 23.
	m := buildFor(t, cfg,
		[]model.JobSlot{slot("J-1", "C1", 0), slot("J-2", "C2", 0)},
		recCost("A", "C1", 50, 10),
		recCost("A", "C2", 50, 12),
		recCost("B", "C1", 50, 11),
		recCost("B", "C2", 50, 30),
	)
	res := Solve(m)
	if res.Status != StatusOptimal {
		t.Fatalf("status: %s", res.Status)
	}
	if res.Objective != 23 {
		t.Fatalf("objective: %v", res.Objective)
	}
	got := byEvaluator(res)
	if got["A"] != 1 || got["B"] != 0 {
		t.Fatalf("pairing: %+v", res.Assignments)
	}
}

func TestSolveOneTimeUse(t *testing.T) {
	cfg := config.Default()
	// A is cheapest for both customers but can only take one slot
	m := buildFor(t, cfg,
		[]model.JobSlot{slot("J-1", "C1", 0), slot("J-2", "C2", 0)},
		recCost("A", "C1", 50, 1),
		recCost("A", "C2", 50, 1),
		recCost("B", "C1", 50, 100),
		recCost("B", "C2", 50, 100),
	)
	res := Solve(m)
	if res.Status != StatusOptimal {
		t.Fatalf("status: %s", res.Status)
	}
	seen := map[string]int{}
	for _, a := range res.Assignments {
		seen[a.Evaluator]++
	}
	if seen["A"] != 1 || seen["B"] != 1 {
		t.Fatalf("one-time use violated: %+v", seen)
	}
	if res.Objective != 101 {
		t.Fatalf("objective: %v", res.Objective)
	}
}

func TestSolveInfeasibleMoreSlotsThanEvaluators(t *testing.T) {
	cfg := config.Default()
	// one evaluator, two replicas of the same job
	recs := Annotate([]model.MileageRecord{recCost("A", "C1", 50, 10)}, Roster{}, cfg)
	slots := []model.JobSlot{slot("J-1", "C1", 0), slot("J-1", "C1", 1)}
	m, _ := BuildMatrix(recs, slots, cfg, nil)
	res := Solve(m)
	if res.Status != StatusInfeasible {
		t.Fatalf("status: %s", res.Status)
	}
	if len(res.Assignments) != 1 {
		t.Fatalf("partial fill expected: %+v", res.Assignments)
	}
	if len(res.UnassignedSlots) != 1 {
		t.Fatalf("unassigned slots: %+v", res.UnassignedSlots)
	}
}

func TestSolvePrefersUnpenalizedEvaluator(t *testing.T) {
	cfg := config.Default()
	cfg.LastResort = []string{"Sherman"}
	// Sherman is nominally far cheaper but carries the penalty
	m := buildFor(t, cfg,
		[]model.JobSlot{slot("J-1", "C1", 0)},
		recCost("Sherman", "C1", 50, 1),
		recCost("B", "C1", 50, 500),
	)
	res := Solve(m)
	if res.Status != StatusOptimal || len(res.Assignments) != 1 {
		t.Fatalf("bad result: %+v", res)
	}
	if res.Assignments[0].Evaluator != "B" {
		t.Fatalf("penalized evaluator chosen over regular one: %+v", res.Assignments)
	}
}

func TestSolveFallsBackToLastResort(t *testing.T) {
	cfg := config.Default()
	cfg.LastResort = []string{"Sherman"}
	m := buildFor(t, cfg,
		[]model.JobSlot{slot("J-1", "C1", 0)},
		recCost("Sherman", "C1", 50, 1),
	)
	res := Solve(m)
	if res.Status != StatusOptimal || len(res.Assignments) != 1 || res.Assignments[0].Evaluator != "Sherman" {
		t.Fatalf("sole last-resort evaluator must still be used: %+v", res)
	}
}

func TestRunEndToEnd(t *testing.T) {
	cfg := config.Default()
	snap := Snapshot{
		Mileage: []model.MileageRecord{
			recCost("Alpha", "Acme Power", 50, 10),
			recCost("Alpha", "Borealis Gas", 50, 100),
			recCost("Beta", "Acme Power", 50, 20),
			recCost("Beta", "Borealis Gas", 50, 30),
		},
		FullTimeNames: []string{"Alpha", "Beta"},
		Jobs: []model.Job{
			{Number: "J-1", Customer: "1001 - Acme Power"},
			{Number: "J-2", Customer: "Borealis Gas"},
			{Number: "J-9", Customer: "Unknown Utility Co"},
		},
	}
	out := Run(snap, cfg, nil)
	if out.Status != StatusOptimal {
		t.Fatalf("status: %s", out.Status)
	}
	// the unknown customer lands in diagnostics, not in the matrix
	if len(out.Diagnostics.Unresolved) != 1 || out.Diagnostics.Unresolved[0].JobNumber != "J-9" {
		t.Fatalf("unresolved diagnostics: %+v", out.Diagnostics)
	}
	if out.SlotCount != 2 || out.FilledCount != 2 {
		t.Fatalf("counts: slots=%d filled=%d", out.SlotCount, out.FilledCount)
	}
	if out.GrandTotal != 40 {
		t.Fatalf("grand total: %v", out.GrandTotal)
	}
	// rows sorted by job number
	if out.Rows[0].JobNumber != "J-1" || out.Rows[1].JobNumber != "J-2" {
		t.Fatalf("row order: %+v", out.Rows)
	}
	if out.Rows[0].Evaluator != "Alpha" || out.Rows[1].Evaluator != "Beta" {
		t.Fatalf("pairing: %+v", out.Rows)
	}
	if out.Rows[0].Status != "full_time" {
		t.Fatalf("status label: %s", out.Rows[0].Status)
	}
	if out.Rows[0].Tier != "primary" {
		t.Fatalf("tier label: %s", out.Rows[0].Tier)
	}
}

func TestRunStatusWithUnresolvedOnly(t *testing.T) {
	cfg := config.Default()
	snap := Snapshot{
		Mileage: []model.MileageRecord{recCost("Alpha", "Acme Power", 50, 10)},
		Jobs:    []model.Job{{Number: "J-1", Customer: "No Such Customer Anywhere"}},
	}
	out := Run(snap, cfg, nil)
	if out.Status != StatusEmpty {
		t.Fatalf("no slots should be empty, got %s", out.Status)
	}
	if len(out.Diagnostics.Unresolved) != 1 {
		t.Fatalf("diagnostics: %+v", out.Diagnostics)
	}
}
